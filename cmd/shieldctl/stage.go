package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"shieldcore/internal/core"
	"shieldcore/pkg/domain"
)

// payloadFlags reads an entity payload from --data or --file.
type payloadFlags struct {
	data string
	file string
}

func (p *payloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.data, "data", "d", "", "Inline YAML payload")
	cmd.Flags().StringVarP(&p.file, "file", "f", "", "Read the YAML payload from a file (- for stdin)")
}

func (p *payloadFlags) read(stdin io.Reader) (map[string]any, error) {
	var raw []byte
	switch {
	case p.data != "" && p.file != "":
		return nil, fmt.Errorf("--data and --file are mutually exclusive")
	case p.data != "":
		raw = []byte(p.data)
	case p.file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = b
	case p.file != "":
		b, err := os.ReadFile(p.file)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		raw = b
	default:
		return nil, fmt.Errorf("a payload is required (--data or --file)")
	}
	var payload map[string]any
	if err := yaml.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload == nil {
		return nil, fmt.Errorf("payload must be a YAML mapping")
	}
	return payload, nil
}

func parseEntity(raw string) (domain.EntityType, error) {
	entity, ok := domain.ParseEntityType(raw)
	if !ok {
		return "", fmt.Errorf("unknown entity type %q", raw)
	}
	return entity, nil
}

func newProposeCmd(a *app) *cobra.Command {
	var payload payloadFlags
	cmd := &cobra.Command{
		Use:   "propose <entity>",
		Short: "Stage a new entity",
		Example: `  shieldctl propose body -d '{name: wall, type: SPH, center: "0 0 0", radius: 50}'
  shieldctl propose zone -f zone.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			body, err := payload.read(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc *core.Service) error {
				c, err := svc.Propose(ctx, entity, body)
				if err != nil {
					return err
				}
				return a.print(c)
			})
		},
	}
	payload.register(cmd)
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var payload payloadFlags
	cmd := &cobra.Command{
		Use:   "update <entity> <name>",
		Short: "Stage a partial update of an entity",
		Long: `Stage a partial update. Keys present in the payload replace the staged
values; keys set to null are removed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			patch, err := payload.read(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc *core.Service) error {
				c, err := svc.Update(ctx, entity, args[1], patch)
				if err != nil {
					return err
				}
				return a.print(c)
			})
		},
	}
	payload.register(cmd)
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entity> <name>",
		Short: "Stage the removal of an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc *core.Service) error {
				c, err := svc.Delete(ctx, entity, args[1])
				if err != nil {
					return err
				}
				return a.print(c)
			})
		},
	}
}

func newUnitsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "units <key=unit>...",
		Short:   "Stage a change of the unit system",
		Example: "  shieldctl units length=m angle=degree",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := make(map[string]string, len(args))
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok || key == "" {
					return fmt.Errorf("expected key=unit, got %q", arg)
				}
				patch[key] = value
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc *core.Service) error {
				factors, err := svc.UpdateUnits(ctx, patch)
				if err != nil {
					return err
				}
				return a.print(factors)
			})
		},
	}
}

func newBuildupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buildup",
		Short: "Reorder the buildup factor list",
	}

	var payload payloadFlags
	insert := &cobra.Command{
		Use:   "insert <index>",
		Short: "Stage a buildup factor at a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			body, err := payload.read(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc *core.Service) error {
				c, err := svc.InsertBuildupFactor(ctx, index, body)
				if err != nil {
					return err
				}
				return a.print(c)
			})
		},
	}
	payload.register(insert)

	move := &cobra.Command{
		Use:   "move <from> <to>",
		Short: "Stage moving a buildup factor to another position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("from: %w", err)
			}
			to, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("to: %w", err)
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc *core.Service) error {
				c, err := svc.MoveBuildupFactor(ctx, from, to)
				if err != nil {
					return err
				}
				return a.print(c)
			})
		},
	}

	cmd.AddCommand(insert, move)
	return cmd
}

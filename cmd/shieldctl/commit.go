package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"shieldcore/internal/core"
)

func newPendingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List staged changes in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(_ context.Context, svc *core.Service) error {
				return a.print(svc.Pending())
			})
		},
	}
}

func newDiscardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discard",
		Short: "Drop every staged change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc *core.Service) error {
				n, err := svc.DiscardPending(ctx)
				if err != nil {
					return err
				}
				return a.print(map[string]int{"discarded": n})
			})
		},
	}
}

func newApplyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Commit the staged changes",
		Long: `Replay the pending change log against the committed document and save
the result. The previous document is backed up first. When any change no
longer applies nothing is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc *core.Service) error {
				res, err := svc.Apply(ctx)
				if err != nil {
					return err
				}
				return a.print(res)
			})
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	var staged bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the committed document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(_ context.Context, svc *core.Service) error {
				if !staged {
					return a.print(svc.Document())
				}
				doc, err := svc.StagedDocument()
				if err != nil {
					return err
				}
				return a.print(doc)
			})
		},
	}
	cmd.Flags().BoolVar(&staged, "staged", false, "Print the document with pending changes replayed")
	return cmd
}

func newBackupsCmd(a *app) *cobra.Command {
	var (
		key    string
		latest bool
	)
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List document backups or print one",
		Long: `Without flags the backups taken on apply are listed, newest first.
--show prints the document stored under a key and --latest prints the newest
one. A backup whose content no longer matches its checksum is refused.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key != "" && latest {
				return fmt.Errorf("--show and --latest are mutually exclusive")
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc *core.Service) error {
				if key == "" && !latest {
					objs, err := svc.Backups(ctx)
					if err != nil {
						return err
					}
					return a.print(objs)
				}
				doc, err := svc.Backup(ctx, key)
				if err != nil {
					return err
				}
				return a.print(doc)
			})
		},
	}
	cmd.Flags().StringVar(&key, "show", "", "Print the backup stored under this key")
	cmd.Flags().BoolVar(&latest, "latest", false, "Print the newest backup")
	return cmd
}

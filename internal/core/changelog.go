package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"shieldcore/internal/infra/persistence/memory"
	"shieldcore/pkg/domain"
)

// decodePayload decodes a change payload into out, rejecting unknown fields.
func decodePayload(payload map[string]any, out any) error {
	raw, err := yaml.Marshal(payload)
	if err != nil {
		return domain.Validationf(domain.CodeInvalidInput, "payload", nil, "encode payload: %v", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return domain.Validationf(domain.CodeInvalidInput, "payload", nil, "invalid payload: %v", err)
	}
	return nil
}

// encodePayload converts an entity into its document field map.
func encodePayload(v any) (map[string]any, error) {
	raw, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

// mergePayload applies a partial update to current. A nil value removes the
// field. keyField names the identifying field, which cannot change.
func mergePayload(current any, patch map[string]any, keyField string, out any) error {
	base, err := encodePayload(current)
	if err != nil {
		return err
	}
	for k, v := range patch {
		if k == keyField {
			if s, ok := v.(string); !ok || s != base[k] {
				return domain.Validationf(domain.CodeInvalidInput, k, v, "%s cannot be changed; delete and propose instead", k)
			}
			continue
		}
		if v == nil {
			delete(base, k)
			continue
		}
		base[k] = v
	}
	return decodePayload(base, out)
}

// nameOf extracts the identifying name from a propose payload.
func nameOf(entity domain.EntityType, payload map[string]any) string {
	key := "name"
	switch entity {
	case domain.EntityZone:
		key = "body_name"
	case domain.EntityBuildupFactor:
		key = "material"
	}
	name, _ := payload[key].(string)
	return name
}

// replayAll applies changes in log order to a scratch copy of doc.
func replayAll(doc domain.Document, changes []domain.PendingChange) (domain.Document, []domain.Change, error) {
	return memory.DryRun(doc, func(tx domain.Transaction) error {
		for i, c := range changes {
			if err := replay(tx, c); err != nil {
				return fmt.Errorf("change %d (%s %s %s): %w", i+1, c.Action, c.Entity, c.Name, err)
			}
		}
		return nil
	})
}

// replay applies one pending change to tx.
func replay(tx domain.Transaction, c domain.PendingChange) error {
	switch c.Action {
	case domain.ActionPropose:
		return replayPropose(tx, c)
	case domain.ActionUpdate:
		return replayUpdate(tx, c)
	case domain.ActionDelete:
		return replayDelete(tx, c)
	case domain.ActionInsert:
		if c.Entity != domain.EntityBuildupFactor || c.Index == nil {
			return domain.Validationf(domain.CodeInvalidInput, "action", c.Action, "insert requires a buildup_factor and an index")
		}
		var b domain.BuildupFactor
		if err := decodePayload(c.Payload, &b); err != nil {
			return err
		}
		_, err := tx.InsertBuildupFactor(*c.Index, b)
		return err
	case domain.ActionReorder:
		if c.Entity != domain.EntityBuildupFactor || c.Index == nil || c.To == nil {
			return domain.Validationf(domain.CodeInvalidInput, "action", c.Action, "reorder requires a buildup_factor, index and to")
		}
		return tx.MoveBuildupFactor(*c.Index, *c.To)
	default:
		return domain.Validationf(domain.CodeInvalidInput, "action", c.Action, "unknown action %q", c.Action)
	}
}

func replayPropose(tx domain.Transaction, c domain.PendingChange) error {
	var err error
	switch c.Entity {
	case domain.EntitySolid:
		var v domain.Solid
		if err = decodePayload(c.Payload, &v); err == nil {
			_, err = tx.CreateSolid(v)
		}
	case domain.EntityZone:
		var v domain.Zone
		if err = decodePayload(c.Payload, &v); err == nil {
			_, err = tx.CreateZone(v)
		}
	case domain.EntityTransform:
		var v domain.Transform
		if err = decodePayload(c.Payload, &v); err == nil {
			_, err = tx.CreateTransform(v)
		}
	case domain.EntitySource:
		var v domain.Source
		if err = decodePayload(c.Payload, &v); err == nil {
			_, err = tx.CreateSource(v)
		}
	case domain.EntityDetector:
		var v domain.Detector
		if err = decodePayload(c.Payload, &v); err == nil {
			_, err = tx.CreateDetector(v)
		}
	case domain.EntityBuildupFactor:
		var v domain.BuildupFactor
		if err = decodePayload(c.Payload, &v); err == nil {
			_, err = tx.CreateBuildupFactor(v)
		}
	default:
		err = domain.Validationf(domain.CodeUnknownKind, "entity", c.Entity, "cannot propose %s", c.Entity)
	}
	return err
}

// merger returns a mutator that merges patch into the entity it receives.
func merger[T any](patch map[string]any, keyField string) func(*T) error {
	return func(current *T) error {
		var next T
		if err := mergePayload(*current, patch, keyField, &next); err != nil {
			return err
		}
		*current = next
		return nil
	}
}

func replayUpdate(tx domain.Transaction, c domain.PendingChange) error {
	var err error
	switch c.Entity {
	case domain.EntitySolid:
		_, err = tx.UpdateSolid(c.Name, merger[domain.Solid](c.Payload, "name"))
	case domain.EntityZone:
		return updateZone(tx, c)
	case domain.EntityTransform:
		_, err = tx.UpdateTransform(c.Name, merger[domain.Transform](c.Payload, "name"))
	case domain.EntitySource:
		_, err = tx.UpdateSource(c.Name, merger[domain.Source](c.Payload, "name"))
	case domain.EntityDetector:
		_, err = tx.UpdateDetector(c.Name, merger[domain.Detector](c.Payload, "name"))
	case domain.EntityBuildupFactor:
		_, err = tx.UpdateBuildupFactor(c.Name, merger[domain.BuildupFactor](c.Payload, "material"))
	case domain.EntityUnit:
		patch := make(map[string]string, len(c.Payload))
		for k, v := range c.Payload {
			s, ok := v.(string)
			if !ok {
				return domain.Validationf(domain.CodeInvalidUnits, "unit."+k, v, "unit values must be strings")
			}
			patch[k] = s
		}
		_, err = tx.UpdateUnits(patch)
	default:
		err = domain.Validationf(domain.CodeUnknownKind, "entity", c.Entity, "cannot update %s", c.Entity)
	}
	return err
}

// updateZone rebinds the zone first when body_name changes, then merges the
// remaining fields.
func updateZone(tx domain.Transaction, c domain.PendingChange) error {
	name := c.Name
	patch := c.Payload
	if target, ok := patch["body_name"].(string); ok && target != name {
		if _, err := memory.RebindZone(tx, name, target); err != nil {
			return err
		}
		name = target
		patch = domain.ClonePayload(patch)
		delete(patch, "body_name")
	}
	if len(patch) == 0 {
		return nil
	}
	_, err := tx.UpdateZone(name, merger[domain.Zone](patch, "body_name"))
	return err
}

func replayDelete(tx domain.Transaction, c domain.PendingChange) error {
	switch c.Entity {
	case domain.EntitySolid:
		return tx.DeleteSolid(c.Name)
	case domain.EntityZone:
		return tx.DeleteZone(c.Name)
	case domain.EntityTransform:
		return tx.DeleteTransform(c.Name)
	case domain.EntitySource:
		return tx.DeleteSource(c.Name)
	case domain.EntityDetector:
		return tx.DeleteDetector(c.Name)
	case domain.EntityBuildupFactor:
		return tx.DeleteBuildupFactor(c.Name)
	default:
		return domain.Validationf(domain.CodeUnknownKind, "entity", c.Entity, "cannot delete %s", c.Entity)
	}
}

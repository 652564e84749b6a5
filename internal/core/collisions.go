package core

import (
	"context"

	"shieldcore/internal/collision"
	"shieldcore/pkg/domain"
)

// DetectCollisions classifies every zone pair of the committed document.
// New body names in the proposals are also free in the staged view.
func (s *Service) DetectCollisions(ctx context.Context) (collision.Report, error) {
	var report collision.Report
	err := s.run(ctx, "detect_collisions", domain.EntityZone, "", func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		report = s.detector.Detect(s.store.ExportDocument())
		if staged, err := s.stagedLocked(); err == nil {
			for i, p := range report.Proposals {
				report.Proposals[i] = p.NamedFor(staged)
			}
		}
		s.observeCollisions(report)
		s.logger.Info("collisions detected", "pairs", report.PairsChecked, "collisions", len(report.Collisions), "contacts", len(report.Contacts), "unknown", len(report.Unknown))
		return nil
	})
	return report, err
}

// ApplyResolution stages a collision proposal as pending changes. Nothing is
// committed until Apply.
func (s *Service) ApplyResolution(ctx context.Context, p collision.Proposal) ([]domain.PendingChange, error) {
	var out []domain.PendingChange
	err := s.run(ctx, "apply_resolution", domain.EntitySolid, p.Target, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		doc, err := s.stagedLocked()
		if err != nil {
			return err
		}
		var changes []domain.PendingChange
		switch p.Kind {
		case collision.ResolutionDelete:
			if hasZone(doc, p.Target) {
				changes = append(changes, s.newChange(domain.ActionDelete, domain.EntityZone, p.Target, nil))
			}
			changes = append(changes, s.newChange(domain.ActionDelete, domain.EntitySolid, p.Target, nil))
		case collision.ResolutionSubtract:
			if p.NewBody == nil {
				return domain.Validationf(domain.CodeMissingField, "new_body", nil, "subtract resolution requires a new body")
			}
			p = p.NamedFor(doc)
			body, err := encodePayload(*p.NewBody)
			if err != nil {
				return domain.Validationf(domain.CodeInvalidInput, "new_body", nil, "%v", err)
			}
			changes = append(changes,
				s.newChange(domain.ActionPropose, domain.EntitySolid, p.NewBody.Name, body),
				s.newChange(domain.ActionUpdate, domain.EntityZone, p.Target, map[string]any{"body_name": p.NewBody.Name}),
			)
		default:
			return domain.Validationf(domain.CodeUnknownKind, "kind", p.Kind, "unknown resolution %q", p.Kind)
		}
		if err := s.stageLocked(ctx, changes...); err != nil {
			return err
		}
		for _, c := range changes {
			out = append(out, c.Clone())
		}
		return nil
	})
	return out, err
}

func hasZone(doc domain.Document, body string) bool {
	for _, z := range doc.Zones {
		if z.BodyName == body {
			return true
		}
	}
	return false
}

package core

import (
	"context"

	"shieldcore/internal/nuclide"
	"shieldcore/pkg/domain"
)

// DaughterReview lists the daughter nuclides proposed for one source.
type DaughterReview struct {
	Source               string             `json:"source" yaml:"source"`
	Additions            []nuclide.Addition `json:"additions" yaml:"additions"`
	RequiresConfirmation bool               `json:"requires_confirmation" yaml:"requires_confirmation"`
	Warnings             []string           `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// DaughterAction is the caller's decision on one proposed addition.
type DaughterAction string

// Daughter decisions.
const (
	DaughterConfirm DaughterAction = "confirm"
	DaughterReject  DaughterAction = "reject"
	// DaughterModify confirms the addition with a caller-supplied activity.
	DaughterModify DaughterAction = "modify"
)

// DaughterDecision resolves one proposed addition.
type DaughterDecision struct {
	Nuclide  string         `json:"nuclide" yaml:"nuclide"`
	Action   DaughterAction `json:"action" yaml:"action"`
	Activity float64        `json:"radioactivity,omitempty" yaml:"radioactivity,omitempty"`
}

// DaughterResolution reports what ResolveDaughters did.
type DaughterResolution struct {
	Staged    *domain.PendingChange `json:"staged,omitempty" yaml:"staged,omitempty"`
	Confirmed []string              `json:"confirmed,omitempty" yaml:"confirmed,omitempty"`
	Rejected  []string              `json:"rejected,omitempty" yaml:"rejected,omitempty"`
	Remaining []nuclide.Addition    `json:"remaining,omitempty" yaml:"remaining,omitempty"`
}

// CompleteDaughters proposes the daughter nuclides missing from the staged
// inventory of source. Nothing is staged.
func (s *Service) CompleteDaughters(ctx context.Context, source string) (DaughterReview, error) {
	var out DaughterReview
	err := s.run(ctx, "complete_daughters", domain.EntitySource, source, func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		doc, err := s.stagedLocked()
		if err != nil {
			return err
		}
		src, ok := findSource(doc, source)
		if !ok {
			return domain.NotFound(domain.EntitySource, source)
		}
		out = s.reviewSourceLocked(src)
		return nil
	})
	return out, err
}

// ResolveDaughters applies decisions to the additions proposed for source.
// Confirmed and modified additions are staged as one source update; rejected
// ones stop blocking calculation for the lifetime of the service.
func (s *Service) ResolveDaughters(ctx context.Context, source string, decisions []DaughterDecision) (DaughterResolution, error) {
	var out DaughterResolution
	err := s.run(ctx, "resolve_daughters", domain.EntitySource, source, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		doc, err := s.stagedLocked()
		if err != nil {
			return err
		}
		src, ok := findSource(doc, source)
		if !ok {
			return domain.NotFound(domain.EntitySource, source)
		}
		review := s.reviewSourceLocked(src)
		proposed := make(map[string]nuclide.Addition, len(review.Additions))
		for _, a := range review.Additions {
			proposed[nuclide.NormalizeName(a.Nuclide)] = a
		}

		inventory := append([]domain.InventoryEntry(nil), src.Inventory...)
		decided := make(map[string]struct{}, len(decisions))
		var rejected []string
		for _, d := range decisions {
			key := nuclide.NormalizeName(d.Nuclide)
			a, ok := proposed[key]
			if !ok {
				return domain.Validationf(domain.CodeInvalidInput, "nuclide", d.Nuclide, "%s is not a proposed daughter of source %s", d.Nuclide, source)
			}
			if _, dup := decided[key]; dup {
				return domain.Validationf(domain.CodeInvalidInput, "nuclide", d.Nuclide, "conflicting decisions for %s", d.Nuclide)
			}
			decided[key] = struct{}{}
			switch d.Action {
			case DaughterConfirm:
				inventory = append(inventory, domain.InventoryEntry{Nuclide: a.Nuclide, Activity: a.Activity})
				out.Confirmed = append(out.Confirmed, a.Nuclide)
			case DaughterModify:
				if d.Activity < domain.MinActivity || d.Activity > domain.MaxActivity {
					return domain.Validationf(domain.CodeOutOfRange, "radioactivity", d.Activity,
						"modified activity of %s must be within [%g, %g] Bq", d.Nuclide, domain.MinActivity, domain.MaxActivity)
				}
				inventory = append(inventory, domain.InventoryEntry{Nuclide: a.Nuclide, Activity: d.Activity})
				out.Confirmed = append(out.Confirmed, a.Nuclide)
			case DaughterReject:
				rejected = append(rejected, key)
				out.Rejected = append(out.Rejected, a.Nuclide)
			default:
				return domain.Validationf(domain.CodeInvalidInput, "action", d.Action, "unknown daughter action %q", d.Action)
			}
		}

		if len(out.Confirmed) > 0 {
			entries := make([]any, 0, len(inventory))
			for _, e := range inventory {
				entries = append(entries, map[string]any{"nuclide": e.Nuclide, "radioactivity": e.Activity})
			}
			c := s.newChange(domain.ActionUpdate, domain.EntitySource, source, map[string]any{"inventory": entries})
			if err := s.stageLocked(ctx, c); err != nil {
				return err
			}
			staged := c.Clone()
			out.Staged = &staged
		}
		if len(rejected) > 0 {
			set, ok := s.rejected[source]
			if !ok {
				set = make(map[string]struct{})
				s.rejected[source] = set
			}
			for _, key := range rejected {
				set[key] = struct{}{}
			}
		}
		for _, a := range review.Additions {
			if _, ok := decided[nuclide.NormalizeName(a.Nuclide)]; !ok {
				out.Remaining = append(out.Remaining, a)
			}
		}
		s.logger.Info("daughter nuclides resolved", "source", source, "confirmed", len(out.Confirmed), "rejected", len(out.Rejected), "remaining", len(out.Remaining))
		return nil
	})
	return out, err
}

// reviewLocked completes every source of doc. Callers hold s.mu.
func (s *Service) reviewLocked(doc domain.Document) []DaughterReview {
	out := make([]DaughterReview, 0, len(doc.Sources))
	for _, src := range doc.Sources {
		out = append(out, s.reviewSourceLocked(src))
	}
	return out
}

// reviewSourceLocked completes one source and drops rejected additions.
func (s *Service) reviewSourceLocked(src domain.Source) DaughterReview {
	c := s.resolver.Complete(src.Inventory)
	for _, w := range c.Warnings {
		s.logger.Warn("nuclide database unavailable", "source", src.Name, "warning", w)
	}
	review := DaughterReview{Source: src.Name, Warnings: c.Warnings}
	rejected := s.rejected[src.Name]
	for _, a := range c.Additions {
		if _, ok := rejected[nuclide.NormalizeName(a.Nuclide)]; ok {
			continue
		}
		review.Additions = append(review.Additions, a)
	}
	review.RequiresConfirmation = c.RequiresConfirmation && len(review.Additions) > 0
	return review
}

func findSource(doc domain.Document, name string) (domain.Source, bool) {
	for _, src := range doc.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return domain.Source{}, false
}

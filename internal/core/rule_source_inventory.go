package core

import (
	"context"

	"shieldcore/internal/nuclide"
	"shieldcore/pkg/domain"
)

// SourceInventoryRule checks source inventories for duplicate nuclides and,
// when a catalog is available, for nuclides it does not list.
func SourceInventoryRule(resolver *nuclide.Resolver) domain.Rule {
	return sourceInventoryRule{resolver: resolver}
}

type sourceInventoryRule struct {
	resolver *nuclide.Resolver
}

func (sourceInventoryRule) ID() domain.RuleID { return domain.RuleSourceInventory }

func (sourceInventoryRule) Category() domain.Category { return domain.CategoryPhysics }

func (r sourceInventoryRule) Evaluate(_ context.Context, doc domain.Document) (domain.Result, error) {
	res := domain.Result{}
	if len(doc.Sources) == 0 {
		res.Add(finding(domain.RuleSourceInventory, CodeNoSources, domain.SeverityWarn, domain.EntitySource, "",
			"no sources are defined"))
		return res, nil
	}
	for _, s := range doc.Sources {
		seen := make(map[string]struct{}, len(s.Inventory))
		for _, entry := range s.Inventory {
			key := nuclide.NormalizeName(entry.Nuclide)
			if _, dup := seen[key]; dup {
				res.Add(finding(domain.RuleSourceInventory, CodeDuplicateNuclide, domain.SeverityWarn, domain.EntitySource, s.Name,
					"source %s lists %s more than once", s.Name, entry.Nuclide))
				continue
			}
			seen[key] = struct{}{}
			if r.resolver == nil {
				continue
			}
			if known, available := r.resolver.KnownNuclide(entry.Nuclide); available && !known {
				res.Add(finding(domain.RuleSourceInventory, CodeUnknownNuclide, domain.SeverityWarn, domain.EntitySource, s.Name,
					"nuclide %s of source %s is not in the nuclide database", entry.Nuclide, s.Name))
			}
		}
	}
	return res, nil
}

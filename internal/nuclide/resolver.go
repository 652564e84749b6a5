package nuclide

import (
	"fmt"

	"shieldcore/pkg/domain"
)

// DefaultContributionThreshold is the smallest branching ratio proposed as a
// daughter addition.
const DefaultContributionThreshold = 0.05

// Equilibrium classifies the parent/daughter activity relationship.
type Equilibrium string

// Equilibrium types derived from the parent half-life.
const (
	EquilibriumSecular   Equilibrium = "secular"
	EquilibriumTransient Equilibrium = "transient"
	EquilibriumNone      Equilibrium = "none"
)

// Well-known chain that is always proposed, whether or not the database
// loaded.
const (
	cesiumParent   = "Cs137"
	cesiumDaughter = "Ba137m"
	cesiumRatio    = 0.9439
	cesiumHalfLife = 30.08 * SecondsPerYear
)

// Addition is a proposed daughter nuclide for a source inventory.
type Addition struct {
	Parent          string      `json:"parent" yaml:"parent"`
	Nuclide         string      `json:"nuclide" yaml:"nuclide"`
	Activity        float64     `json:"radioactivity" yaml:"radioactivity"`
	BranchingRatio  float64     `json:"branching_ratio" yaml:"branching_ratio"`
	EquilibriumType Equilibrium `json:"equilibrium_type" yaml:"equilibrium_type"`
}

// Completion is the outcome of daughter completion for one inventory.
type Completion struct {
	Additions            []Addition `json:"additions" yaml:"additions"`
	RequiresConfirmation bool       `json:"requires_confirmation" yaml:"requires_confirmation"`
	Warnings             []string   `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// CatalogLoader returns the nuclide catalog.
type CatalogLoader func() (*Catalog, error)

// PathLoader loads the process-wide cached catalog at path.
func PathLoader(path string) CatalogLoader {
	return func() (*Catalog, error) { return Load(path) }
}

// Resolver proposes daughter nuclides for source inventories.
type Resolver struct {
	load        CatalogLoader
	threshold   float64
	confirmMode bool
}

// NewResolver constructs a resolver. A non-positive threshold selects the
// default.
func NewResolver(load CatalogLoader, threshold float64, confirmMode bool) *Resolver {
	if threshold <= 0 {
		threshold = DefaultContributionThreshold
	}
	return &Resolver{load: load, threshold: threshold, confirmMode: confirmMode}
}

// EquilibriumFor classifies a parent half-life in seconds.
func EquilibriumFor(halfLife float64) Equilibrium {
	years := halfLife / SecondsPerYear
	switch {
	case years > 1000:
		return EquilibriumSecular
	case years > 1:
		return EquilibriumTransient
	default:
		return EquilibriumNone
	}
}

// Complete proposes every significant, unstable daughter missing from
// inventory. Database failures are reported as warnings; the built-in
// Cs137 chain is still checked. Daughters too weak to be an inventory entry
// are dropped with a warning.
func (r *Resolver) Complete(inventory []domain.InventoryEntry) Completion {
	var out Completion
	var catalog *Catalog
	if r.load != nil {
		c, err := r.load()
		if err != nil {
			out.Warnings = append(out.Warnings, err.Error())
		} else {
			catalog = c
		}
	}

	present := make(map[string]struct{}, len(inventory))
	for _, entry := range inventory {
		present[NormalizeName(entry.Nuclide)] = struct{}{}
	}
	proposed := make(map[string]int)
	propose := func(a Addition) {
		key := NormalizeName(a.Nuclide)
		if _, ok := present[key]; ok {
			return
		}
		if i, ok := proposed[key]; ok {
			out.Additions[i].Activity += a.Activity
			return
		}
		proposed[key] = len(out.Additions)
		out.Additions = append(out.Additions, a)
	}

	for _, entry := range inventory {
		rec, ok := catalog.Lookup(entry.Nuclide)
		if !ok {
			if catalog != nil {
				out.Warnings = append(out.Warnings, fmt.Sprintf("nuclide %s not found in database", entry.Nuclide))
			}
			continue
		}
		for _, d := range rec.Daughters {
			if d.StabilityIndex == 0 || d.BranchingRatio < r.threshold {
				continue
			}
			propose(Addition{
				Parent:          entry.Nuclide,
				Nuclide:         d.Name,
				Activity:        entry.Activity * d.BranchingRatio,
				BranchingRatio:  d.BranchingRatio,
				EquilibriumType: EquilibriumFor(rec.HalfLife),
			})
		}
	}

	for _, entry := range inventory {
		if NormalizeName(entry.Nuclide) != NormalizeName(cesiumParent) {
			continue
		}
		halfLife := cesiumHalfLife
		if rec, ok := catalog.Lookup(cesiumParent); ok {
			halfLife = rec.HalfLife
		}
		if _, ok := proposed[NormalizeName(cesiumDaughter)]; ok {
			continue
		}
		propose(Addition{
			Parent:          entry.Nuclide,
			Nuclide:         cesiumDaughter,
			Activity:        entry.Activity * cesiumRatio,
			BranchingRatio:  cesiumRatio,
			EquilibriumType: EquilibriumFor(halfLife),
		})
	}

	kept := out.Additions[:0]
	for _, a := range out.Additions {
		if a.Activity < domain.MinActivity {
			out.Warnings = append(out.Warnings, fmt.Sprintf("daughter %s of %s: %g Bq is below the inventory minimum of %g Bq", a.Nuclide, a.Parent, a.Activity, domain.MinActivity))
			continue
		}
		kept = append(kept, a)
	}
	out.Additions = kept

	out.RequiresConfirmation = r.confirmMode && len(out.Additions) > 0
	return out
}

// KnownNuclide reports whether the catalog lists name. available is false
// when the catalog cannot be loaded.
func (r *Resolver) KnownNuclide(name string) (known bool, available bool) {
	if r.load == nil {
		return false, false
	}
	c, err := r.load()
	if err != nil {
		return false, false
	}
	_, ok := c.Lookup(name)
	return ok, true
}

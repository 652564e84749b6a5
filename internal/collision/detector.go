// Package collision classifies overlaps between the bodies of material zones
// and proposes resolutions for colliding pairs.
package collision

import (
	"fmt"

	"shieldcore/internal/geometry"
	"shieldcore/internal/units"
	"shieldcore/pkg/domain"
)

// Default tolerances in cm3.
const (
	DefaultContactTolerance = 1e-9
	DefaultOverlapTolerance = 1e-6
)

// Status classifies one zone pair.
type Status string

// Pair classifications.
const (
	StatusNone      Status = "none"
	StatusContact   Status = "contact"
	StatusCollision Status = "collision"
	// StatusUnknown marks pairs whose geometry could not be resolved.
	StatusUnknown Status = "unknown"
)

// Severity bands a collision by overlap volume.
type Severity string

// Severity bands.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Tolerances band the shared volume of two intersecting boxes. Up to Contact
// the boxes only touch; up to Overlap the overlap is too small to matter and
// the pair still counts as contact. Boxes that do not intersect never touch.
type Tolerances struct {
	Contact float64
	Overlap float64
}

// DefaultTolerances returns the standard tolerances.
func DefaultTolerances() Tolerances {
	return Tolerances{Contact: DefaultContactTolerance, Overlap: DefaultOverlapTolerance}
}

// Pair is the classification of two zones.
type Pair struct {
	BodyA         string        `json:"body_a" yaml:"body_a"`
	BodyB         string        `json:"body_b" yaml:"body_b"`
	Status        Status        `json:"status" yaml:"status"`
	OverlapVolume float64       `json:"overlap_volume" yaml:"overlap_volume"`
	Overlap       *geometry.Box `json:"overlap,omitempty" yaml:"overlap,omitempty"`
	Severity      Severity      `json:"severity,omitempty" yaml:"severity,omitempty"`
	Reason        string        `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Report is the outcome of a detection run.
type Report struct {
	PairsChecked int        `json:"pairs_checked" yaml:"pairs_checked"`
	Collisions   []Pair     `json:"collisions" yaml:"collisions"`
	Contacts     []Pair     `json:"contacts" yaml:"contacts"`
	Unknown      []Pair     `json:"unknown" yaml:"unknown"`
	Proposals    []Proposal `json:"proposals" yaml:"proposals"`
}

// HasCollisions reports whether any pair collides.
func (r Report) HasCollisions() bool { return len(r.Collisions) > 0 }

// Detector classifies zone pairs. It never mutates the document.
type Detector struct {
	tol Tolerances
}

// NewDetector constructs a detector; zero tolerances select the defaults.
func NewDetector(tol Tolerances) *Detector {
	if tol.Contact <= 0 {
		tol.Contact = DefaultContactTolerance
	}
	if tol.Overlap <= 0 {
		tol.Overlap = DefaultOverlapTolerance
	}
	return &Detector{tol: tol}
}

// body is a zone's resolved solid.
type body struct {
	name   string
	solid  domain.Solid
	box    geometry.Box
	err    error
	found  bool
	volume float64
	order  int
}

// Detect checks every unordered pair of zones other than ATMOSPHERE.
func (d *Detector) Detect(doc domain.Document) Report {
	scale := units.LengthToCM(doc.Unit)
	bodies := d.resolve(doc, scale)
	var rep Report
	for i := 0; i < len(bodies); i++ {
		for j := i + 1; j < len(bodies); j++ {
			rep.PairsChecked++
			p := d.check(bodies[i], bodies[j])
			switch p.Status {
			case StatusCollision:
				rep.Collisions = append(rep.Collisions, p)
				rep.Proposals = append(rep.Proposals, propose(doc, p, bodies[i], bodies[j])...)
			case StatusContact:
				rep.Contacts = append(rep.Contacts, p)
			case StatusUnknown:
				rep.Unknown = append(rep.Unknown, p)
			}
		}
	}
	return rep
}

// CheckPair classifies the zones bound to bodies a and b of doc.
func (d *Detector) CheckPair(doc domain.Document, a, b string) Pair {
	scale := units.LengthToCM(doc.Unit)
	index := make(map[string]body)
	for _, bd := range d.resolve(doc, scale) {
		index[bd.name] = bd
	}
	lookup := func(name string) body {
		if bd, ok := index[name]; ok {
			return bd
		}
		return body{name: name, err: fmt.Errorf("no zone for body %s", name)}
	}
	return d.check(lookup(a), lookup(b))
}

func (d *Detector) resolve(doc domain.Document, scale float64) []body {
	solids := make(map[string]int, len(doc.Bodies))
	for i, s := range doc.Bodies {
		solids[s.Name] = i
	}
	transforms := make(map[string]domain.Transform, len(doc.Transforms))
	for _, t := range doc.Transforms {
		transforms[t.Name] = t
	}
	angle := units.AngleToRadians(doc.Unit)
	var out []body
	for _, z := range doc.Zones {
		if z.BodyName == domain.AtmosphereZone {
			continue
		}
		bd := body{name: z.BodyName}
		idx, ok := solids[z.BodyName]
		if !ok {
			bd.err = fmt.Errorf("body %s not found", z.BodyName)
			out = append(out, bd)
			continue
		}
		bd.found = true
		bd.solid = doc.Bodies[idx]
		bd.order = idx
		if bd.solid.Kind != domain.SolidCMB {
			bd.box, bd.err = geometry.SolidBounds(bd.solid, transforms, angle)
			if bd.err == nil {
				bd.box = bd.box.Map(func(v domain.Vector) domain.Vector { return v.Scale(scale) })
				if vol, err := geometry.Volume(bd.solid.Kind, bd.solid.Shape); err == nil {
					bd.volume = vol * scale * scale * scale
				} else {
					bd.volume = bd.box.Volume()
				}
			}
		}
		out = append(out, bd)
	}
	return out
}

// check is symmetric: swapping a and b only swaps BodyA and BodyB.
func (d *Detector) check(a, b body) Pair {
	p := Pair{BodyA: a.name, BodyB: b.name, Status: StatusNone}
	if a.found && a.solid.Kind == domain.SolidCMB || b.found && b.solid.Kind == domain.SolidCMB {
		p.Reason = "boolean combination bodies are assumed to partition space"
		return p
	}
	for _, bd := range []body{a, b} {
		if bd.err != nil {
			p.Status = StatusUnknown
			p.Reason = bd.err.Error()
			return p
		}
	}
	overlap, ok := a.box.Intersect(b.box)
	if !ok {
		return p
	}
	vol := overlap.Volume()
	p.OverlapVolume = vol
	switch {
	case vol <= d.tol.Contact:
		p.Status = StatusContact
		return p
	case vol <= d.tol.Overlap:
		p.Status = StatusContact
		p.Reason = fmt.Sprintf("overlap of %g cm3 is within tolerance", vol)
		return p
	}
	p.Status = StatusCollision
	p.Overlap = &overlap
	p.Severity = SeverityFor(vol)
	return p
}

// SeverityFor bands an overlap volume in cm3.
func SeverityFor(volume float64) Severity {
	switch {
	case volume < 10:
		return SeverityLow
	case volume < 100:
		return SeverityMedium
	case volume < 1000:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

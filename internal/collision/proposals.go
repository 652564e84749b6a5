package collision

import (
	"fmt"
	"math"

	"shieldcore/pkg/domain"
)

// ResolutionKind identifies a proposed fix for a collision.
type ResolutionKind string

// Resolution kinds.
const (
	// ResolutionDelete removes the lower-priority body and its zone.
	ResolutionDelete ResolutionKind = "delete_body"
	// ResolutionSubtract adds a CMB body "low - high" and binds the
	// lower-priority zone to it.
	ResolutionSubtract ResolutionKind = "subtract"
)

const maxNameLength = 50

// Proposal is one resolution of a collision. Applying it is the caller's
// decision.
type Proposal struct {
	Kind        ResolutionKind `json:"kind" yaml:"kind"`
	Target      string         `json:"target" yaml:"target"`
	Keep        string         `json:"keep" yaml:"keep"`
	NewBody     *domain.Solid  `json:"new_body,omitempty" yaml:"new_body,omitempty"`
	Description string         `json:"description" yaml:"description"`
}

// Priority weighs a body's volume against its creation order: larger and
// earlier bodies rank higher.
func Priority(volume float64, order int) float64 {
	if volume <= 0 {
		volume = math.SmallestNonzeroFloat64
	}
	return math.Log10(volume) - 0.5*float64(order)
}

func propose(doc domain.Document, p Pair, a, b body) []Proposal {
	low, high := a, b
	if Priority(a.volume, a.order) > Priority(b.volume, b.order) {
		low, high = b, a
	}
	name := subtractionName(doc, low.name, high.name)
	expr := fmt.Sprintf("%s - %s", low.name, high.name)
	return []Proposal{
		{
			Kind:        ResolutionDelete,
			Target:      low.name,
			Keep:        high.name,
			Description: fmt.Sprintf("delete body %s and its zone (overlap %.6g cm3 with %s)", low.name, p.OverlapVolume, high.name),
		},
		{
			Kind:        ResolutionSubtract,
			Target:      low.name,
			Keep:        high.name,
			NewBody:     &domain.Solid{Name: name, Kind: domain.SolidCMB, Expression: expr},
			Description: describeSubtraction(name, expr, low.name),
		},
	}
}

func describeSubtraction(name, expr, target string) string {
	return fmt.Sprintf("add CMB body %s = %s and bind the zone of %s to it", name, expr, target)
}

// NamedFor returns p with its new body renamed when doc already has a body
// of that name. Detection names bodies against the committed document;
// staged bodies can claim the name afterwards.
func (p Proposal) NamedFor(doc domain.Document) Proposal {
	if p.Kind != ResolutionSubtract || p.NewBody == nil {
		return p
	}
	for _, s := range doc.Bodies {
		if s.Name == p.NewBody.Name {
			body := *p.NewBody
			body.Name = subtractionName(doc, p.Target, p.Keep)
			p.NewBody = &body
			p.Description = describeSubtraction(body.Name, body.Expression, p.Target)
			return p
		}
	}
	return p
}

func subtractionName(doc domain.Document, low, high string) string {
	taken := make(map[string]struct{}, len(doc.Bodies))
	for _, s := range doc.Bodies {
		taken[s.Name] = struct{}{}
	}
	base := truncate(low + "_minus_" + high)
	if _, ok := taken[base]; !ok {
		return base
	}
	for i := 2; ; i++ {
		suffix := fmt.Sprintf("_%d", i)
		name := truncate(base[:min(len(base), maxNameLength-len(suffix))] + suffix)
		if _, ok := taken[name]; !ok {
			return name
		}
	}
}

func truncate(name string) string {
	if len(name) > maxNameLength {
		return name[:maxNameLength]
	}
	return name
}

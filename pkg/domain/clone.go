package domain

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Clone deep-copies the shape.
func (s Shape) Clone() Shape {
	cp := s
	cp.Radius = cloneFloat(s.Radius)
	cp.BottomRadius = cloneFloat(s.BottomRadius)
	cp.TopRadius = cloneFloat(s.TopRadius)
	cp.MajorRadius = cloneFloat(s.MajorRadius)
	cp.MinorRadius = cloneFloat(s.MinorRadius)
	return cp
}

// Clone deep-copies the solid.
func (s Solid) Clone() Solid {
	cp := s
	cp.Shape = s.Shape.Clone()
	return cp
}

// Clone deep-copies the zone.
func (z Zone) Clone() Zone {
	cp := z
	cp.Density = cloneFloat(z.Density)
	return cp
}

// Clone deep-copies the transform.
func (t Transform) Clone() Transform {
	cp := t
	if t.Operations != nil {
		cp.Operations = make([]TransformOp, len(t.Operations))
		for i, op := range t.Operations {
			cp.Operations[i] = TransformOp{
				Translate:     op.Translate,
				RotateAroundX: cloneFloat(op.RotateAroundX),
				RotateAroundY: cloneFloat(op.RotateAroundY),
				RotateAroundZ: cloneFloat(op.RotateAroundZ),
			}
		}
	}
	return cp
}

// Clone deep-copies the source.
func (s Source) Clone() Source {
	cp := s
	if s.Geometry != nil {
		g := *s.Geometry
		g.Shape = s.Geometry.Shape.Clone()
		cp.Geometry = &g
	}
	if s.Division != nil {
		cp.Division = make(map[string]AxisDivision, len(s.Division))
		for k, v := range s.Division {
			cp.Division[k] = v
		}
	}
	if s.Inventory != nil {
		cp.Inventory = append([]InventoryEntry(nil), s.Inventory...)
	}
	return cp
}

// Clone deep-copies the detector.
func (d Detector) Clone() Detector {
	cp := d
	if d.Grid != nil {
		cp.Grid = append([]GridAxis(nil), d.Grid...)
	}
	if d.ShowPathTrace != nil {
		v := *d.ShowPathTrace
		cp.ShowPathTrace = &v
	}
	return cp
}

// Clone deep-copies the whole document.
func (d Document) Clone() Document {
	cp := Document{Unit: d.Unit.Clone()}
	if d.Bodies != nil {
		cp.Bodies = make([]Solid, len(d.Bodies))
		for i, s := range d.Bodies {
			cp.Bodies[i] = s.Clone()
		}
	}
	if d.Zones != nil {
		cp.Zones = make([]Zone, len(d.Zones))
		for i, z := range d.Zones {
			cp.Zones[i] = z.Clone()
		}
	}
	if d.Transforms != nil {
		cp.Transforms = make([]Transform, len(d.Transforms))
		for i, t := range d.Transforms {
			cp.Transforms[i] = t.Clone()
		}
	}
	if d.BuildupFactors != nil {
		cp.BuildupFactors = append([]BuildupFactor(nil), d.BuildupFactors...)
	}
	if d.Sources != nil {
		cp.Sources = make([]Source, len(d.Sources))
		for i, s := range d.Sources {
			cp.Sources[i] = s.Clone()
		}
	}
	if d.Detectors != nil {
		cp.Detectors = make([]Detector, len(d.Detectors))
		for i, det := range d.Detectors {
			cp.Detectors[i] = det.Clone()
		}
	}
	return cp
}

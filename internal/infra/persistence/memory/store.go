// Package memory provides the in-memory transactional entity store holding
// the committed configuration document.
package memory

import (
	"context"
	"strings"
	"sync"

	"shieldcore/internal/expression"
	"shieldcore/internal/units"
	"shieldcore/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.Transaction     = (*transaction)(nil)
	_ domain.TransactionView = transactionView{}
)

type (
	// Document aliases domain.Document.
	Document = domain.Document
	// Solid aliases domain.Solid.
	Solid = domain.Solid
	// Zone aliases domain.Zone.
	Zone = domain.Zone
	// Transform aliases domain.Transform.
	Transform = domain.Transform
	// Source aliases domain.Source.
	Source = domain.Source
	// Detector aliases domain.Detector.
	Detector = domain.Detector
	// BuildupFactor aliases domain.BuildupFactor.
	BuildupFactor = domain.BuildupFactor
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// Store provides an in-memory transactional store for the committed document.
type Store struct {
	mu    sync.RWMutex
	state Document
}

// NewStore constructs a store holding a new document.
func NewStore() *Store {
	return &Store{state: domain.NewDocument()}
}

// ExportDocument clones the current document for external persistence.
func (s *Store) ExportDocument() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// ImportDocument replaces the store state with doc.
func (s *Store) ImportDocument(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = doc.Clone()
}

// RunInTransaction runs fn against a private copy of the document and swaps
// it in only when fn succeeds. A failing fn leaves the store untouched.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx Transaction) error) ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &transaction{state: s.state.Clone()}
	if err := fn(tx); err != nil {
		return nil, err
	}
	s.state = tx.state
	return tx.changes, nil
}

// DryRun runs fn against a private copy of doc and returns the resulting
// document without touching the store.
func DryRun(doc Document, fn func(tx Transaction) error) (Document, []Change, error) {
	tx := &transaction{state: doc.Clone()}
	if err := fn(tx); err != nil {
		return Document{}, nil, err
	}
	return tx.state, tx.changes, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.Clone()
	s.mu.RUnlock()
	return fn(transactionView{state: &snapshot})
}

type transactionView struct {
	state *Document
}

type transaction struct {
	state   Document
	changes []Change
}

func (tx *transaction) view() transactionView { return transactionView{state: &tx.state} }

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func indexOf[T any](items []T, key func(T) string, name string) int {
	for i, item := range items {
		if key(item) == name {
			return i
		}
	}
	return -1
}

func solidName(s Solid) string                         { return s.Name }
func zoneBody(z Zone) string                           { return z.BodyName }
func transformName(t Transform) string                 { return t.Name }
func sourceName(s Source) string                       { return s.Name }
func detectorName(d Detector) string                   { return d.Name }
func buildupKey(b BuildupFactor) string                { return strings.ToUpper(b.Material) }
func ref(entity domain.EntityType, name string) string { return string(entity) + ":" + name }

// Document returns a copy of the whole snapshot.
func (v transactionView) Document() Document { return v.state.Clone() }

// Units returns the unit section.
func (v transactionView) Units() domain.UnitSystem { return v.state.Unit.Clone() }

// FindSolid looks up a body by name.
func (v transactionView) FindSolid(name string) (Solid, bool) {
	if i := indexOf(v.state.Bodies, solidName, name); i >= 0 {
		return v.state.Bodies[i].Clone(), true
	}
	return Solid{}, false
}

// FindZone looks up a zone by its body name.
func (v transactionView) FindZone(bodyName string) (Zone, bool) {
	if i := indexOf(v.state.Zones, zoneBody, bodyName); i >= 0 {
		return v.state.Zones[i].Clone(), true
	}
	return Zone{}, false
}

// FindTransform looks up a transform by name.
func (v transactionView) FindTransform(name string) (Transform, bool) {
	if i := indexOf(v.state.Transforms, transformName, name); i >= 0 {
		return v.state.Transforms[i].Clone(), true
	}
	return Transform{}, false
}

// FindSource looks up a source by name.
func (v transactionView) FindSource(name string) (Source, bool) {
	if i := indexOf(v.state.Sources, sourceName, name); i >= 0 {
		return v.state.Sources[i].Clone(), true
	}
	return Source{}, false
}

// FindDetector looks up a detector by name.
func (v transactionView) FindDetector(name string) (Detector, bool) {
	if i := indexOf(v.state.Detectors, detectorName, name); i >= 0 {
		return v.state.Detectors[i].Clone(), true
	}
	return Detector{}, false
}

// FindBuildupFactor looks up a buildup factor by material, case-insensitively,
// and returns its position.
func (v transactionView) FindBuildupFactor(material string) (BuildupFactor, int, bool) {
	if i := indexOf(v.state.BuildupFactors, buildupKey, strings.ToUpper(material)); i >= 0 {
		return v.state.BuildupFactors[i], i, true
	}
	return BuildupFactor{}, -1, false
}

// Document returns a copy of the transactional snapshot.
func (tx *transaction) Document() Document { return tx.view().Document() }

// Units returns the transactional unit section.
func (tx *transaction) Units() domain.UnitSystem { return tx.view().Units() }

// FindSolid exposes body lookup within the transaction scope.
func (tx *transaction) FindSolid(name string) (Solid, bool) { return tx.view().FindSolid(name) }

// FindZone exposes zone lookup within the transaction scope.
func (tx *transaction) FindZone(bodyName string) (Zone, bool) { return tx.view().FindZone(bodyName) }

// FindTransform exposes transform lookup within the transaction scope.
func (tx *transaction) FindTransform(name string) (Transform, bool) {
	return tx.view().FindTransform(name)
}

// FindSource exposes source lookup within the transaction scope.
func (tx *transaction) FindSource(name string) (Source, bool) { return tx.view().FindSource(name) }

// FindDetector exposes detector lookup within the transaction scope.
func (tx *transaction) FindDetector(name string) (Detector, bool) {
	return tx.view().FindDetector(name)
}

// FindBuildupFactor exposes buildup factor lookup within the transaction scope.
func (tx *transaction) FindBuildupFactor(material string) (BuildupFactor, int, bool) {
	return tx.view().FindBuildupFactor(material)
}

func (tx *transaction) requireTransform(field, name string) error {
	if name == "" {
		return nil
	}
	if indexOf(tx.state.Transforms, transformName, name) < 0 {
		return domain.Validationf(domain.CodeNotFound, field, name, "transform %q not found", name)
	}
	return nil
}

func (tx *transaction) checkSolid(s Solid) error {
	if s.Name == domain.AtmosphereZone {
		return domain.Validationf(domain.CodeReservedName, "name", s.Name, "%s is reserved", s.Name)
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if err := tx.requireTransform("transform", s.Transform); err != nil {
		return err
	}
	if s.Kind == domain.SolidCMB {
		return expression.Validate(s.Name, s.Expression, expression.IndexBodies(tx.state.Bodies))
	}
	return nil
}

// CreateSolid stores a new body.
func (tx *transaction) CreateSolid(s Solid) (Solid, error) {
	if indexOf(tx.state.Bodies, solidName, s.Name) >= 0 {
		return Solid{}, domain.DuplicateName(domain.EntitySolid, s.Name)
	}
	if err := tx.checkSolid(s); err != nil {
		return Solid{}, err
	}
	tx.state.Bodies = append(tx.state.Bodies, s.Clone())
	tx.recordChange(Change{Entity: domain.EntitySolid, Action: domain.ActionPropose, Name: s.Name, After: s.Clone()})
	return s.Clone(), nil
}

// UpdateSolid mutates a body using the provided mutator function.
func (tx *transaction) UpdateSolid(name string, mutator func(*Solid) error) (Solid, error) {
	i := indexOf(tx.state.Bodies, solidName, name)
	if i < 0 {
		return Solid{}, domain.NotFound(domain.EntitySolid, name)
	}
	before := tx.state.Bodies[i].Clone()
	current := before.Clone()
	if err := mutator(&current); err != nil {
		return Solid{}, err
	}
	current.Name = name
	if err := tx.checkSolid(current); err != nil {
		return Solid{}, err
	}
	tx.state.Bodies[i] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntitySolid, Action: domain.ActionUpdate, Name: name, Before: before, After: current.Clone()})
	return current, nil
}

// DeleteSolid removes a body. Zones and CMB expressions referencing it block
// the delete.
func (tx *transaction) DeleteSolid(name string) error {
	i := indexOf(tx.state.Bodies, solidName, name)
	if i < 0 {
		return domain.NotFound(domain.EntitySolid, name)
	}
	var dependents []string
	for _, z := range tx.state.Zones {
		if z.BodyName == name {
			dependents = append(dependents, ref(domain.EntityZone, z.BodyName))
		}
	}
	for _, b := range tx.state.Bodies {
		if b.Kind == domain.SolidCMB && b.Name != name && expression.References(b.Expression, name) {
			dependents = append(dependents, ref(domain.EntitySolid, b.Name))
		}
	}
	if len(dependents) > 0 {
		return domain.DependencyExists(domain.EntitySolid, name, dependents)
	}
	before := tx.state.Bodies[i]
	tx.state.Bodies = append(tx.state.Bodies[:i:i], tx.state.Bodies[i+1:]...)
	tx.recordChange(Change{Entity: domain.EntitySolid, Action: domain.ActionDelete, Name: name, Before: before})
	return nil
}

func (tx *transaction) checkZone(z Zone) error {
	if err := z.Validate(); err != nil {
		return err
	}
	if z.BodyName != domain.AtmosphereZone && indexOf(tx.state.Bodies, solidName, z.BodyName) < 0 {
		return domain.Validationf(domain.CodeNotFound, "body_name", z.BodyName, "body %q not found", z.BodyName)
	}
	return nil
}

// CreateZone binds a material to a body. Each body carries at most one zone.
func (tx *transaction) CreateZone(z Zone) (Zone, error) {
	if indexOf(tx.state.Zones, zoneBody, z.BodyName) >= 0 {
		return Zone{}, domain.DuplicateName(domain.EntityZone, z.BodyName)
	}
	if err := tx.checkZone(z); err != nil {
		return Zone{}, err
	}
	tx.state.Zones = append(tx.state.Zones, z.Clone())
	tx.recordChange(Change{Entity: domain.EntityZone, Action: domain.ActionPropose, Name: z.BodyName, After: z.Clone()})
	return z.Clone(), nil
}

// UpdateZone mutates a zone. The body binding is the zone key and cannot change.
func (tx *transaction) UpdateZone(bodyName string, mutator func(*Zone) error) (Zone, error) {
	i := indexOf(tx.state.Zones, zoneBody, bodyName)
	if i < 0 {
		return Zone{}, domain.NotFound(domain.EntityZone, bodyName)
	}
	before := tx.state.Zones[i].Clone()
	current := before.Clone()
	if err := mutator(&current); err != nil {
		return Zone{}, err
	}
	current.BodyName = bodyName
	if err := tx.checkZone(current); err != nil {
		return Zone{}, err
	}
	tx.state.Zones[i] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityZone, Action: domain.ActionUpdate, Name: bodyName, Before: before, After: current.Clone()})
	return current, nil
}

// RebindZone moves a zone from one body to another existing body.
func RebindZone(tx Transaction, from, to string) (Zone, error) {
	z, ok := tx.FindZone(from)
	if !ok {
		return Zone{}, domain.NotFound(domain.EntityZone, from)
	}
	if err := tx.DeleteZone(from); err != nil {
		return Zone{}, err
	}
	z.BodyName = to
	return tx.CreateZone(z)
}

// DeleteZone removes a zone. The ATMOSPHERE zone cannot be deleted.
func (tx *transaction) DeleteZone(bodyName string) error {
	if bodyName == domain.AtmosphereZone {
		return domain.Validationf(domain.CodeReservedName, "name", bodyName, "the %s zone cannot be deleted", bodyName)
	}
	i := indexOf(tx.state.Zones, zoneBody, bodyName)
	if i < 0 {
		return domain.NotFound(domain.EntityZone, bodyName)
	}
	before := tx.state.Zones[i]
	tx.state.Zones = append(tx.state.Zones[:i:i], tx.state.Zones[i+1:]...)
	tx.recordChange(Change{Entity: domain.EntityZone, Action: domain.ActionDelete, Name: bodyName, Before: before})
	return nil
}

// CreateTransform stores a new transform.
func (tx *transaction) CreateTransform(t Transform) (Transform, error) {
	if indexOf(tx.state.Transforms, transformName, t.Name) >= 0 {
		return Transform{}, domain.DuplicateName(domain.EntityTransform, t.Name)
	}
	if err := t.Validate(); err != nil {
		return Transform{}, err
	}
	tx.state.Transforms = append(tx.state.Transforms, t.Clone())
	tx.recordChange(Change{Entity: domain.EntityTransform, Action: domain.ActionPropose, Name: t.Name, After: t.Clone()})
	return t.Clone(), nil
}

// UpdateTransform mutates a transform.
func (tx *transaction) UpdateTransform(name string, mutator func(*Transform) error) (Transform, error) {
	i := indexOf(tx.state.Transforms, transformName, name)
	if i < 0 {
		return Transform{}, domain.NotFound(domain.EntityTransform, name)
	}
	before := tx.state.Transforms[i].Clone()
	current := before.Clone()
	if err := mutator(&current); err != nil {
		return Transform{}, err
	}
	current.Name = name
	if err := current.Validate(); err != nil {
		return Transform{}, err
	}
	tx.state.Transforms[i] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityTransform, Action: domain.ActionUpdate, Name: name, Before: before, After: current.Clone()})
	return current, nil
}

// DeleteTransform removes a transform unless a body, source or detector uses it.
func (tx *transaction) DeleteTransform(name string) error {
	i := indexOf(tx.state.Transforms, transformName, name)
	if i < 0 {
		return domain.NotFound(domain.EntityTransform, name)
	}
	var dependents []string
	for _, b := range tx.state.Bodies {
		if b.Transform == name {
			dependents = append(dependents, ref(domain.EntitySolid, b.Name))
		}
	}
	for _, s := range tx.state.Sources {
		if s.Geometry != nil && s.Geometry.Transform == name {
			dependents = append(dependents, ref(domain.EntitySource, s.Name))
		}
	}
	for _, d := range tx.state.Detectors {
		if d.Transform == name {
			dependents = append(dependents, ref(domain.EntityDetector, d.Name))
		}
	}
	if len(dependents) > 0 {
		return domain.DependencyExists(domain.EntityTransform, name, dependents)
	}
	before := tx.state.Transforms[i]
	tx.state.Transforms = append(tx.state.Transforms[:i:i], tx.state.Transforms[i+1:]...)
	tx.recordChange(Change{Entity: domain.EntityTransform, Action: domain.ActionDelete, Name: name, Before: before})
	return nil
}

func (tx *transaction) checkSource(s Source) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Geometry != nil {
		return tx.requireTransform("geometry.transform", s.Geometry.Transform)
	}
	return nil
}

// CreateSource stores a new radiation source.
func (tx *transaction) CreateSource(s Source) (Source, error) {
	if indexOf(tx.state.Sources, sourceName, s.Name) >= 0 {
		return Source{}, domain.DuplicateName(domain.EntitySource, s.Name)
	}
	if err := tx.checkSource(s); err != nil {
		return Source{}, err
	}
	tx.state.Sources = append(tx.state.Sources, s.Clone())
	tx.recordChange(Change{Entity: domain.EntitySource, Action: domain.ActionPropose, Name: s.Name, After: s.Clone()})
	return s.Clone(), nil
}

// UpdateSource mutates a source.
func (tx *transaction) UpdateSource(name string, mutator func(*Source) error) (Source, error) {
	i := indexOf(tx.state.Sources, sourceName, name)
	if i < 0 {
		return Source{}, domain.NotFound(domain.EntitySource, name)
	}
	before := tx.state.Sources[i].Clone()
	current := before.Clone()
	if err := mutator(&current); err != nil {
		return Source{}, err
	}
	current.Name = name
	if err := tx.checkSource(current); err != nil {
		return Source{}, err
	}
	tx.state.Sources[i] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntitySource, Action: domain.ActionUpdate, Name: name, Before: before, After: current.Clone()})
	return current, nil
}

// DeleteSource removes a source.
func (tx *transaction) DeleteSource(name string) error {
	i := indexOf(tx.state.Sources, sourceName, name)
	if i < 0 {
		return domain.NotFound(domain.EntitySource, name)
	}
	before := tx.state.Sources[i]
	tx.state.Sources = append(tx.state.Sources[:i:i], tx.state.Sources[i+1:]...)
	tx.recordChange(Change{Entity: domain.EntitySource, Action: domain.ActionDelete, Name: name, Before: before})
	return nil
}

func (tx *transaction) checkDetector(d Detector) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return tx.requireTransform("transform", d.Transform)
}

// CreateDetector stores a new detector.
func (tx *transaction) CreateDetector(d Detector) (Detector, error) {
	if indexOf(tx.state.Detectors, detectorName, d.Name) >= 0 {
		return Detector{}, domain.DuplicateName(domain.EntityDetector, d.Name)
	}
	if err := tx.checkDetector(d); err != nil {
		return Detector{}, err
	}
	tx.state.Detectors = append(tx.state.Detectors, d.Clone())
	tx.recordChange(Change{Entity: domain.EntityDetector, Action: domain.ActionPropose, Name: d.Name, After: d.Clone()})
	return d.Clone(), nil
}

// UpdateDetector mutates a detector.
func (tx *transaction) UpdateDetector(name string, mutator func(*Detector) error) (Detector, error) {
	i := indexOf(tx.state.Detectors, detectorName, name)
	if i < 0 {
		return Detector{}, domain.NotFound(domain.EntityDetector, name)
	}
	before := tx.state.Detectors[i].Clone()
	current := before.Clone()
	if err := mutator(&current); err != nil {
		return Detector{}, err
	}
	current.Name = name
	if err := tx.checkDetector(current); err != nil {
		return Detector{}, err
	}
	tx.state.Detectors[i] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityDetector, Action: domain.ActionUpdate, Name: name, Before: before, After: current.Clone()})
	return current, nil
}

// DeleteDetector removes a detector.
func (tx *transaction) DeleteDetector(name string) error {
	i := indexOf(tx.state.Detectors, detectorName, name)
	if i < 0 {
		return domain.NotFound(domain.EntityDetector, name)
	}
	before := tx.state.Detectors[i]
	tx.state.Detectors = append(tx.state.Detectors[:i:i], tx.state.Detectors[i+1:]...)
	tx.recordChange(Change{Entity: domain.EntityDetector, Action: domain.ActionDelete, Name: name, Before: before})
	return nil
}

// CreateBuildupFactor appends a buildup factor.
func (tx *transaction) CreateBuildupFactor(b BuildupFactor) (BuildupFactor, error) {
	return tx.InsertBuildupFactor(len(tx.state.BuildupFactors), b)
}

// InsertBuildupFactor splices a buildup factor in at index, which may equal
// the list length to append.
func (tx *transaction) InsertBuildupFactor(index int, b BuildupFactor) (BuildupFactor, error) {
	if err := b.Validate(); err != nil {
		return BuildupFactor{}, err
	}
	if indexOf(tx.state.BuildupFactors, buildupKey, strings.ToUpper(b.Material)) >= 0 {
		return BuildupFactor{}, domain.DuplicateName(domain.EntityBuildupFactor, b.Material)
	}
	n := len(tx.state.BuildupFactors)
	if index < 0 || index > n {
		return BuildupFactor{}, domain.Validationf(domain.CodeIndexOutOfRange, "index", index, "index must be within [0, %d]", n)
	}
	list := make([]BuildupFactor, 0, n+1)
	list = append(list, tx.state.BuildupFactors[:index]...)
	list = append(list, b)
	list = append(list, tx.state.BuildupFactors[index:]...)
	tx.state.BuildupFactors = list
	tx.recordChange(Change{Entity: domain.EntityBuildupFactor, Action: domain.ActionInsert, Name: b.Material, After: b})
	return b, nil
}

// UpdateBuildupFactor mutates a buildup factor in place.
func (tx *transaction) UpdateBuildupFactor(material string, mutator func(*BuildupFactor) error) (BuildupFactor, error) {
	before, i, ok := tx.FindBuildupFactor(material)
	if !ok {
		return BuildupFactor{}, domain.NotFound(domain.EntityBuildupFactor, material)
	}
	current := before
	if err := mutator(&current); err != nil {
		return BuildupFactor{}, err
	}
	current.Material = before.Material
	tx.state.BuildupFactors[i] = current
	tx.recordChange(Change{Entity: domain.EntityBuildupFactor, Action: domain.ActionUpdate, Name: material, Before: before, After: current})
	return current, nil
}

// DeleteBuildupFactor removes a buildup factor.
func (tx *transaction) DeleteBuildupFactor(material string) error {
	before, i, ok := tx.FindBuildupFactor(material)
	if !ok {
		return domain.NotFound(domain.EntityBuildupFactor, material)
	}
	tx.state.BuildupFactors = append(tx.state.BuildupFactors[:i:i], tx.state.BuildupFactors[i+1:]...)
	tx.recordChange(Change{Entity: domain.EntityBuildupFactor, Action: domain.ActionDelete, Name: material, Before: before})
	return nil
}

// MoveBuildupFactor moves the entry at from so that it ends up at to.
func (tx *transaction) MoveBuildupFactor(from, to int) error {
	n := len(tx.state.BuildupFactors)
	if from < 0 || from >= n {
		return domain.Validationf(domain.CodeIndexOutOfRange, "index", from, "index must be within [0, %d)", n)
	}
	if to < 0 || to >= n {
		return domain.Validationf(domain.CodeIndexOutOfRange, "to", to, "to must be within [0, %d)", n)
	}
	if from == to {
		return nil
	}
	item := tx.state.BuildupFactors[from]
	list := append(tx.state.BuildupFactors[:from:from], tx.state.BuildupFactors[from+1:]...)
	list = append(list[:to:to], append([]BuildupFactor{item}, list[to:]...)...)
	tx.state.BuildupFactors = list
	tx.recordChange(Change{Entity: domain.EntityBuildupFactor, Action: domain.ActionReorder, Name: item.Material, Before: from, After: to})
	return nil
}

// UpdateUnits merges patch into the unit section and keeps it complete.
func (tx *transaction) UpdateUnits(patch map[string]string) (domain.UnitSystem, error) {
	merged, err := units.ValidatePartialUpdate(tx.state.Unit, patch)
	if err != nil {
		return nil, err
	}
	before := tx.state.Unit.Clone()
	tx.state.Unit = merged
	tx.recordChange(Change{Entity: domain.EntityUnit, Action: domain.ActionUpdate, Before: before, After: merged.Clone()})
	return merged.Clone(), nil
}

package domain

import "context"

// Change describes a mutation applied inside a transaction.
type Change struct {
	Entity EntityType `json:"entity" yaml:"entity"`
	Action Action     `json:"action" yaml:"action"`
	Name   string     `json:"name,omitempty" yaml:"name,omitempty"`
	Before any        `json:"before,omitempty" yaml:"before,omitempty"`
	After  any        `json:"after,omitempty" yaml:"after,omitempty"`
}

// TransactionView provides read-only access to a document snapshot.
type TransactionView interface {
	Document() Document
	Units() UnitSystem
	FindSolid(name string) (Solid, bool)
	FindZone(bodyName string) (Zone, bool)
	FindTransform(name string) (Transform, bool)
	FindSource(name string) (Source, bool)
	FindDetector(name string) (Detector, bool)
	FindBuildupFactor(material string) (BuildupFactor, int, bool)
}

// Transaction mutates a private copy of the document. Every method enforces
// the entity's own invariants and referential integrity against the copy.
type Transaction interface {
	TransactionView
	CreateSolid(Solid) (Solid, error)
	UpdateSolid(name string, mutator func(*Solid) error) (Solid, error)
	DeleteSolid(name string) error
	CreateZone(Zone) (Zone, error)
	UpdateZone(bodyName string, mutator func(*Zone) error) (Zone, error)
	DeleteZone(bodyName string) error
	CreateTransform(Transform) (Transform, error)
	UpdateTransform(name string, mutator func(*Transform) error) (Transform, error)
	DeleteTransform(name string) error
	CreateSource(Source) (Source, error)
	UpdateSource(name string, mutator func(*Source) error) (Source, error)
	DeleteSource(name string) error
	CreateDetector(Detector) (Detector, error)
	UpdateDetector(name string, mutator func(*Detector) error) (Detector, error)
	DeleteDetector(name string) error
	CreateBuildupFactor(BuildupFactor) (BuildupFactor, error)
	InsertBuildupFactor(index int, b BuildupFactor) (BuildupFactor, error)
	UpdateBuildupFactor(material string, mutator func(*BuildupFactor) error) (BuildupFactor, error)
	DeleteBuildupFactor(material string) error
	MoveBuildupFactor(from, to int) error
	UpdateUnits(patch map[string]string) (UnitSystem, error)
}

// Backend is the durable home of the committed document and the pending
// change log. Implementations must overwrite atomically where the medium allows.
type Backend interface {
	// LoadDocument returns the committed document; ok is false when none was saved yet.
	LoadDocument(ctx context.Context) (doc Document, ok bool, err error)
	SaveDocument(ctx context.Context, doc Document) error
	LoadPending(ctx context.Context) ([]PendingChange, error)
	SavePending(ctx context.Context, changes []PendingChange) error
	Close() error
}

// DocumentLocator is implemented by backends that keep the document in a
// file the external solver can read directly.
type DocumentLocator interface {
	DocumentPath() string
}

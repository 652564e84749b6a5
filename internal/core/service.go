package core

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"shieldcore/internal/backup"
	"shieldcore/internal/collision"
	"shieldcore/internal/infra/persistence/memory"
	"shieldcore/internal/nuclide"
	"shieldcore/internal/solver"
	"shieldcore/internal/units"
	"shieldcore/pkg/domain"
)

// Service stages edits to the committed document in a durable change log,
// applies them transactionally and validates the result.
type Service struct {
	cfg      Config
	backend  domain.Backend
	store    *memory.Store
	rules    *domain.RulesEngine
	detector *collision.Detector
	resolver *nuclide.Resolver

	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	backups *backup.Rotator
	solver  solver.Runner
	newID   func() string

	mu       sync.Mutex
	pending  []domain.PendingChange
	rejected map[string]map[string]struct{}
}

// NewService loads the committed document and the pending log from backend.
// A backend without a saved document starts from domain.NewDocument.
func NewService(ctx context.Context, backend domain.Backend, cfg Config, opts ...ServiceOption) (*Service, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend required")
	}
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.catalog == nil && cfg.NuclideDatabase != "" {
		o.catalog = nuclide.PathLoader(cfg.NuclideDatabase)
	}

	doc, ok, err := backend.LoadDocument(ctx)
	if err != nil {
		return nil, domain.DataError(domain.CodePersistence, err, "load committed document")
	}
	if !ok {
		doc = domain.NewDocument()
	}
	pending, err := backend.LoadPending(ctx)
	if err != nil {
		return nil, domain.DataError(domain.CodeCorruptLog, err, "load pending changes")
	}
	store := memory.NewStore()
	store.ImportDocument(doc)
	resolver := nuclide.NewResolver(o.catalog, cfg.DaughterThreshold, cfg.DaughterConfirm)

	s := &Service{
		cfg:      cfg,
		backend:  backend,
		store:    store,
		rules:    NewDefaultRulesEngine(cfg, resolver),
		detector: collision.NewDetector(cfg.Tolerances()),
		resolver: resolver,
		clock:    o.clock,
		logger:   o.logger,
		audit:    o.audit,
		metrics:  o.metrics,
		tracer:   o.tracer,
		backups:  o.backups,
		solver:   o.solver,
		newID:    o.newID,
		pending:  pending,
		rejected: make(map[string]map[string]struct{}),
	}
	s.observePending()
	s.logger.Info("service ready", "pending", len(pending), "bodies", len(doc.Bodies), "zones", len(doc.Zones))
	return s, nil
}

// Rules exposes the pre-commit rules engine.
func (s *Service) Rules() *domain.RulesEngine { return s.rules }

// Close releases the backend.
func (s *Service) Close() error { return s.backend.Close() }

// run wraps an operation with tracing, metrics, audit and logging.
func (s *Service) run(ctx context.Context, op string, entity domain.EntityType, name string, fn func(context.Context) error) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	duration := s.clock.Now().Sub(start)
	s.metrics.Observe(ctx, op, err == nil, duration)

	entry := AuditEntry{
		Operation: op,
		Entity:    entity,
		EntityID:  name,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: start,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		kv := []any{"operation", op, "entity", entity, "name", name, "error", err}
		if e, ok := domain.AsError(err); ok && e.Kind != domain.KindData {
			s.logger.Warn("operation rejected", kv...)
		} else {
			s.logger.Error("operation failed", kv...)
		}
	}
	s.audit.Record(ctx, entry)
	return err
}

func (s *Service) newChange(action domain.Action, entity domain.EntityType, name string, payload map[string]any) domain.PendingChange {
	return domain.PendingChange{
		ID:        s.newID(),
		Action:    action,
		Entity:    entity,
		Name:      name,
		Payload:   domain.ClonePayload(payload),
		Timestamp: s.clock.Now().UTC(),
	}
}

// stagedLocked replays the pending log, then extra, onto a copy of the
// committed document. Callers hold s.mu.
func (s *Service) stagedLocked(extra ...domain.PendingChange) (domain.Document, error) {
	doc, _, err := replayAll(s.store.ExportDocument(), s.pending)
	if err != nil {
		return domain.Document{}, domain.DataError(domain.CodeReplay, err, "pending log no longer applies")
	}
	if len(extra) == 0 {
		return doc, nil
	}
	doc, _, err = memory.DryRun(doc, func(tx domain.Transaction) error {
		for _, c := range extra {
			if err := replay(tx, c); err != nil {
				return err
			}
		}
		return nil
	})
	return doc, err
}

// stageLocked validates changes against the staged view and appends them to
// the log only once the log is persisted. Callers hold s.mu.
func (s *Service) stageLocked(ctx context.Context, changes ...domain.PendingChange) error {
	if _, err := s.stagedLocked(changes...); err != nil {
		return err
	}
	next := make([]domain.PendingChange, 0, len(s.pending)+len(changes))
	next = append(next, s.pending...)
	next = append(next, changes...)
	if err := s.backend.SavePending(ctx, next); err != nil {
		return domain.DataError(domain.CodePersistence, err, "persist pending changes")
	}
	s.pending = next
	for _, c := range changes {
		s.logger.Info("change staged", "id", c.ID, "action", c.Action, "entity", c.Entity, "name", c.Name)
	}
	s.observePending()
	return nil
}

func (s *Service) stage(ctx context.Context, changes ...domain.PendingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stageLocked(ctx, changes...)
}

func (s *Service) observePending() {
	if m, ok := s.metrics.(domainMetrics); ok {
		m.SetPendingChanges(len(s.pending))
	}
}

// Propose stages a new entity. The name must be free in the committed
// document and in every pending change.
func (s *Service) Propose(ctx context.Context, entity domain.EntityType, payload map[string]any) (domain.PendingChange, error) {
	name := nameOf(entity, payload)
	var out domain.PendingChange
	err := s.run(ctx, "propose", entity, name, func(ctx context.Context) error {
		c := s.newChange(domain.ActionPropose, entity, name, payload)
		if err := s.stage(ctx, c); err != nil {
			return err
		}
		out = c.Clone()
		return nil
	})
	return out, err
}

// Update stages a partial update of an existing entity. Fields set to nil
// in patch are removed.
func (s *Service) Update(ctx context.Context, entity domain.EntityType, name string, patch map[string]any) (domain.PendingChange, error) {
	var out domain.PendingChange
	err := s.run(ctx, "update", entity, name, func(ctx context.Context) error {
		c := s.newChange(domain.ActionUpdate, entity, name, patch)
		if err := s.stage(ctx, c); err != nil {
			return err
		}
		out = c.Clone()
		return nil
	})
	return out, err
}

// Delete stages the removal of an entity. Referenced entities are never
// deleted; the error lists the dependents.
func (s *Service) Delete(ctx context.Context, entity domain.EntityType, name string) (domain.PendingChange, error) {
	var out domain.PendingChange
	err := s.run(ctx, "delete", entity, name, func(ctx context.Context) error {
		c := s.newChange(domain.ActionDelete, entity, name, nil)
		if err := s.stage(ctx, c); err != nil {
			return err
		}
		out = c.Clone()
		return nil
	})
	return out, err
}

// UpdateUnits stages a merge of patch into the unit section and returns the
// factors converting values from the staged units to the merged ones.
func (s *Service) UpdateUnits(ctx context.Context, patch map[string]string) (units.ConversionFactors, error) {
	var out units.ConversionFactors
	err := s.run(ctx, "update_units", domain.EntityUnit, "", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		staged, err := s.stagedLocked()
		if err != nil {
			return err
		}
		merged, err := units.ValidatePartialUpdate(staged.Unit, patch)
		if err != nil {
			return err
		}
		payload := make(map[string]any, len(patch))
		for k, v := range patch {
			payload[k] = v
		}
		if err := s.stageLocked(ctx, s.newChange(domain.ActionUpdate, domain.EntityUnit, "", payload)); err != nil {
			return err
		}
		out, err = units.ComputeConversionFactors(staged.Unit, merged)
		if err != nil {
			// An incomplete committed unit section has no defined factors.
			out = units.ConversionFactors{}
		}
		return nil
	})
	return out, err
}

// InsertBuildupFactor stages a buildup factor at index; index may equal the
// list length to append.
func (s *Service) InsertBuildupFactor(ctx context.Context, index int, payload map[string]any) (domain.PendingChange, error) {
	name := nameOf(domain.EntityBuildupFactor, payload)
	var out domain.PendingChange
	err := s.run(ctx, "insert_buildup_factor", domain.EntityBuildupFactor, name, func(ctx context.Context) error {
		c := s.newChange(domain.ActionInsert, domain.EntityBuildupFactor, name, payload)
		c.Index = &index
		if err := s.stage(ctx, c); err != nil {
			return err
		}
		out = c.Clone()
		return nil
	})
	return out, err
}

// MoveBuildupFactor stages moving the buildup factor at from to position to.
// Out-of-range indices are rejected.
func (s *Service) MoveBuildupFactor(ctx context.Context, from, to int) (domain.PendingChange, error) {
	var out domain.PendingChange
	err := s.run(ctx, "move_buildup_factor", domain.EntityBuildupFactor, "", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		staged, err := s.stagedLocked()
		if err != nil {
			return err
		}
		c := s.newChange(domain.ActionReorder, domain.EntityBuildupFactor, "", nil)
		if from >= 0 && from < len(staged.BuildupFactors) {
			c.Name = staged.BuildupFactors[from].Material
		}
		c.Index, c.To = &from, &to
		if err := s.stageLocked(ctx, c); err != nil {
			return err
		}
		out = c.Clone()
		return nil
	})
	return out, err
}

// Pending returns a copy of the change log in append order.
func (s *Service) Pending() []domain.PendingChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PendingChange, len(s.pending))
	for i, c := range s.pending {
		out[i] = c.Clone()
	}
	return out
}

// DiscardPending drops every pending change and returns how many were dropped.
func (s *Service) DiscardPending(ctx context.Context) (int, error) {
	var n int
	err := s.run(ctx, "discard_pending", "", "", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.backend.SavePending(ctx, nil); err != nil {
			return domain.DataError(domain.CodePersistence, err, "persist pending changes")
		}
		n = len(s.pending)
		s.pending = nil
		s.observePending()
		s.logger.Info("pending changes discarded", "count", n)
		return nil
	})
	return n, err
}

// Document returns a copy of the committed document.
func (s *Service) Document() domain.Document {
	return s.store.ExportDocument()
}

// StagedDocument returns the committed document with the pending log applied.
func (s *Service) StagedDocument() (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stagedLocked()
}

// ApplyStatus reports what Apply did.
type ApplyStatus string

// Apply outcomes.
const (
	ApplyStatusApplied ApplyStatus = "applied"
	ApplyStatusNothing ApplyStatus = "nothing_to_apply"
)

// ApplyResult describes one Apply call. Report holds the advisory pre-commit
// findings for the new committed document.
type ApplyResult struct {
	Status    ApplyStatus     `json:"status" yaml:"status"`
	Applied   int             `json:"applied" yaml:"applied"`
	Changes   []domain.Change `json:"changes,omitempty" yaml:"changes,omitempty"`
	BackupKey string          `json:"backup_key,omitempty" yaml:"backup_key,omitempty"`
	Report    domain.Result   `json:"report" yaml:"report"`
}

// Apply replays the pending log in order against a scratch copy of the
// committed document. Only when every change replays does it back up the
// previous document and persist the new one; old backups are pruned once the
// save succeeded. Any failure leaves the committed document, the backups and
// the log untouched.
func (s *Service) Apply(ctx context.Context) (ApplyResult, error) {
	var res ApplyResult
	err := s.run(ctx, "apply", "", "", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(s.pending) == 0 {
			res.Status = ApplyStatusNothing
			s.logger.Info("nothing to apply")
			return nil
		}
		s.logger.Info("apply started", "pending", len(s.pending))
		previous := s.store.ExportDocument()
		changes, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			for i, c := range s.pending {
				if err := replay(tx, c); err != nil {
					return domain.DataError(domain.CodeReplay, err, "replay change %d (%s %s %s)", i+1, c.Action, c.Entity, c.Name)
				}
			}
			res.BackupKey = s.backupLocked(ctx, previous)
			if err := s.backend.SaveDocument(ctx, tx.Document()); err != nil {
				return domain.DataError(domain.CodePersistence, err, "persist committed document")
			}
			return nil
		})
		if err != nil {
			if derr := s.backups.Discard(ctx, res.BackupKey); derr != nil {
				s.logger.Warn("backup of failed apply left behind", "key", res.BackupKey, "error", derr)
			}
			res = ApplyResult{}
			return err
		}
		s.pruneBackupsLocked(ctx)
		res.Status = ApplyStatusApplied
		res.Applied = len(s.pending)
		res.Changes = changes
		s.pending = nil
		s.observePending()
		if err := s.backend.SavePending(ctx, nil); err != nil {
			return domain.DataError(domain.CodePersistence, err, "clear pending changes after commit")
		}
		res.Report = s.rules.Evaluate(ctx, s.store.ExportDocument())
		s.logger.Info("apply finished", "applied", res.Applied, "backup", res.BackupKey, "findings", len(res.Report.Violations))
		return nil
	})
	return res, err
}

// backupLocked snapshots doc without pruning and returns the backup key.
// Failures are logged and never block the apply.
func (s *Service) backupLocked(ctx context.Context, doc domain.Document) string {
	if !s.backups.Enabled() {
		return ""
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		s.logger.Warn("backup skipped", "error", err)
		return ""
	}
	key, err := s.backups.Write(ctx, data)
	if err != nil {
		s.logger.Warn("backup failed", "error", err)
		return ""
	}
	s.logger.Info("backup written", "key", key)
	return key
}

func (s *Service) pruneBackupsLocked(ctx context.Context) {
	if !s.backups.Enabled() {
		return
	}
	removed, err := s.backups.Prune(ctx)
	if err != nil {
		s.logger.Warn("backup prune failed", "error", err)
	}
	if len(removed) > 0 {
		s.logger.Info("backups pruned", "removed", removed)
	}
}

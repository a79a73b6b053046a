// Package scheduler owns the process-wide worker registry: one watcher
// per active file-based integration, control operations over them, and
// the periodic sync cycle that rolls sweep outcomes into sync logs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cstorehq/backoffice/pkg/adapter"
	"github.com/cstorehq/backoffice/pkg/naxml"
	"github.com/cstorehq/backoffice/pkg/processor"
	"github.com/cstorehq/backoffice/pkg/store"
	"github.com/cstorehq/backoffice/pkg/watcher"
)

var (
	// ErrUnknownIntegration is returned for control operations on an
	// integration with no running worker.
	ErrUnknownIntegration = errors.New("scheduler: unknown integration")

	// ErrUnsupportedPOSType is returned when no adapter is registered
	// for the integration's POS type.
	ErrUnsupportedPOSType = errors.New("scheduler: unsupported pos type")
)

// DefaultSyncInterval applies when an integration enables sync without
// an interval.
const DefaultSyncInterval = 60 * time.Minute

// SyncMetrics records completed sync cycles.
type SyncMetrics interface {
	RecordSyncCycle(ctx context.Context, storeID, status string)
}

// Options are the optional collaborators watchers are built with. Any
// field may be nil.
type Options struct {
	Cache    *watcher.SeenCache
	Acker    watcher.Acker
	Uploader watcher.Uploader
	Metrics  watcher.Metrics
	Sync     SyncMetrics
}

// Scheduler spawns and controls per-store watchers.
type Scheduler struct {
	store *store.Store
	proc  *processor.Processor
	reg   *adapter.Registry
	opts  Options
	log   *slog.Logger
	now   func() time.Time

	mu      sync.Mutex
	workers map[string]*worker
	wg      sync.WaitGroup
}

type worker struct {
	integ   *store.POSIntegration
	watcher *watcher.Watcher
	cancel  context.CancelFunc
}

// New builds a scheduler.
func New(s *store.Store, proc *processor.Processor, reg *adapter.Registry, opts Options, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:   s,
		proc:    proc,
		reg:     reg,
		opts:    opts,
		log:     log.With("component", "scheduler"),
		now:     func() time.Time { return time.Now().UTC() },
		workers: make(map[string]*worker),
	}
}

// Start enumerates active integrations and spawns their watchers. It
// returns after spawning; workers run until Shutdown or ctx cancel.
func (s *Scheduler) Start(ctx context.Context) error {
	integrations, err := s.store.ListActiveIntegrations(ctx)
	if err != nil {
		return err
	}
	started := 0
	for _, integ := range integrations {
		if !integ.FileBased() {
			continue
		}
		if err := s.StartIntegration(ctx, integ); err != nil {
			s.log.Error("integration not started",
				"integrationId", integ.ID, "store", integ.StoreID, "error", err)
			continue
		}
		started++
	}
	s.log.Info("scheduler started", "watchers", started)
	return nil
}

// newWatcher resolves the integration's adapter and paths into a
// watcher that has not been started.
func (s *Scheduler) newWatcher(integ *store.POSIntegration) (*watcher.Watcher, error) {
	a, ok := s.reg.Get(integ.POSType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPOSType, integ.POSType)
	}
	paths, err := a.Profile().ResolvePaths(integ.ExchangeRoot, adapter.Overrides{
		ImportPath:  integ.ImportPath,
		ExportPath:  integ.ExportPath,
		ArchivePath: integ.ArchivePath,
		ErrorPath:   integ.ErrorPath,
	})
	if err != nil {
		return nil, err
	}
	return watcher.New(s.store, s.proc, watcher.Config{
		Integration: integ,
		Adapter:     a,
		Paths:       paths,
		Acker:       s.opts.Acker,
		Uploader:    s.opts.Uploader,
		Metrics:     s.opts.Metrics,
	}, s.opts.Cache, s.log), nil
}

// StartIntegration spawns (or replaces) the watcher for one integration.
func (s *Scheduler) StartIntegration(ctx context.Context, integ *store.POSIntegration) error {
	w, err := s.newWatcher(integ)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if old, ok := s.workers[integ.ID]; ok {
		old.cancel()
	}
	s.workers[integ.ID] = &worker{integ: integ, watcher: w, cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w.Run(runCtx)
	}()
	return nil
}

// Stop cancels one integration's watcher.
func (s *Scheduler) Stop(integrationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wk, ok := s.workers[integrationID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIntegration, integrationID)
	}
	wk.cancel()
	delete(s.workers, integrationID)
	return nil
}

// Restart reloads the integration from the store and replaces its
// worker, picking up path or flag changes.
func (s *Scheduler) Restart(ctx context.Context, integrationID string) error {
	integ, err := s.store.GetIntegration(ctx, integrationID)
	if err != nil {
		return err
	}
	if err := s.Stop(integrationID); err != nil && !errors.Is(err, ErrUnknownIntegration) {
		return err
	}
	if !integ.IsActive || !integ.FileBased() {
		return nil
	}
	return s.StartIntegration(ctx, integ)
}

// UpdatePollInterval clamps, persists, and applies a new poll interval.
func (s *Scheduler) UpdatePollInterval(ctx context.Context, integrationID string, seconds int) error {
	d := watcher.ClampInterval(seconds)
	if err := s.store.UpdatePollInterval(ctx, integrationID, int(d.Seconds())); err != nil {
		return err
	}
	s.mu.Lock()
	wk, ok := s.workers[integrationID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIntegration, integrationID)
	}
	wk.watcher.SetInterval(d)
	return nil
}

// Shutdown cancels every worker and waits for them to drain.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for id, wk := range s.workers {
		wk.cancel()
		delete(s.workers, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// Running returns a snapshot of the worker integration ids.
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	return ids
}

// RunSyncLoop fires due sync cycles until the context is cancelled.
// checkEvery bounds how stale a due cycle can go unnoticed.
func (s *Scheduler) RunSyncLoop(ctx context.Context, checkEvery time.Duration) {
	ticker := time.NewTicker(checkEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDueSyncs(ctx)
		}
	}
}

func (s *Scheduler) fireDueSyncs(ctx context.Context) {
	s.mu.Lock()
	due := make([]*worker, 0)
	now := s.now()
	for _, wk := range s.workers {
		if wk.integ.SyncEnabled && !wk.integ.NextSyncAt.After(now) {
			due = append(due, wk)
		}
	}
	s.mu.Unlock()

	for _, wk := range due {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.SyncCycle(ctx, wk.integ.ID); err != nil {
			s.log.Error("sync cycle failed", "integrationId", wk.integ.ID, "error", err)
		}
	}
}

// syncCategory maps a swept document type onto its sync-log category.
func syncCategory(t naxml.DocumentType) string {
	switch t {
	case naxml.DocDepartmentMaint, naxml.DocMerchCodeMove:
		return "departments"
	case naxml.DocTenderMaint:
		return "tender_types"
	case naxml.DocTaxRateMaint, naxml.DocTaxLevelMove:
		return "tax_rates"
	case naxml.DocEmployeeMaint:
		return "cashiers"
	case naxml.DocFuelGradeMove, naxml.DocFuelProductMove, naxml.DocMiscSummaryMove:
		return "fuel"
	case naxml.DocTransaction, naxml.DocPOSJournal:
		return "transactions"
	}
	return "other"
}

// SyncCycle sweeps one integration's outbox and folds the per-file
// outcomes into a sync log. Next sync = now + interval. Integrations
// without a running worker get a transient watcher, so a manual sync
// works even while the integration's poll loop is stopped.
func (s *Scheduler) SyncCycle(ctx context.Context, integrationID string) (*store.SyncLog, error) {
	s.mu.Lock()
	wk, ok := s.workers[integrationID]
	s.mu.Unlock()

	var integ *store.POSIntegration
	var w *watcher.Watcher
	if ok {
		integ = wk.integ
		w = wk.watcher
	} else {
		var err error
		integ, err = s.store.GetIntegration(ctx, integrationID)
		if err != nil {
			return nil, err
		}
		if w, err = s.newWatcher(integ); err != nil {
			return nil, err
		}
		if err := w.EnsureDirs(); err != nil {
			return nil, err
		}
	}
	started := s.now()

	outcomes, sweepErr := w.Sweep(ctx)

	categories := make(map[string]store.CategoryCounts)
	failed, succeeded := 0, 0
	for _, oc := range outcomes {
		cat := syncCategory(oc.DocumentType)
		counts := categories[cat]
		switch oc.Status {
		case store.FileFailed:
			failed++
			counts.Received++
			counts.Errors = append(counts.Errors, oc.FileName+": "+oc.ErrorCode)
		case store.FileSkipped:
			counts.Received++
			counts.Skipped++
			succeeded++
		default:
			counts.Received += oc.Counts.Received
			counts.Created += oc.Counts.Created
			counts.Updated += oc.Counts.Updated
			counts.Deactivated += oc.Counts.Deactivated
			counts.Skipped += oc.Counts.Skipped
			succeeded++
		}
		categories[cat] = counts
	}

	status := store.SyncSuccess
	switch {
	case sweepErr != nil, failed > 0 && succeeded == 0:
		status = store.SyncFailed
	case failed > 0:
		status = store.SyncPartialSuccess
	}

	completed := s.now()
	entry := &store.SyncLog{
		IntegrationID: integ.ID,
		CompanyID:     integ.CompanyID,
		StoreID:       integ.StoreID,
		Status:        status,
		Categories:    categories,
		DurationMs:    completed.Sub(started).Milliseconds(),
		StartedAt:     started,
		CompletedAt:   completed,
	}
	if err := s.store.InsertSyncLog(ctx, entry); err != nil {
		return nil, err
	}

	interval := time.Duration(integ.SyncIntervalMins) * time.Minute
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	next := completed.Add(interval)
	if err := s.store.StampSync(ctx, integ.ID, completed, next); err != nil {
		return nil, err
	}
	integ.LastSyncAt = completed
	integ.NextSyncAt = next

	if s.opts.Sync != nil {
		s.opts.Sync.RecordSyncCycle(ctx, integ.StoreID, string(status))
	}
	s.log.Info("sync cycle completed",
		"integrationId", integ.ID,
		"status", string(status),
		"files", len(outcomes),
		"durationMs", entry.DurationMs)
	return entry, nil
}

// Package watcher polls per-store exchange folders and feeds new files
// through the processor. One watcher owns one integration's outbox; it
// never touches another store's folders, and every observed file leaves
// a file log row whether it processed, failed, or was a duplicate.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/cstorehq/backoffice/pkg/adapter"
	"github.com/cstorehq/backoffice/pkg/export"
	"github.com/cstorehq/backoffice/pkg/naxml"
	"github.com/cstorehq/backoffice/pkg/processor"
	"github.com/cstorehq/backoffice/pkg/store"
)

// Poll interval bounds in seconds. Values outside the range clamp.
const (
	MinPollSeconds     = 60
	MaxPollSeconds     = 86400
	DefaultPollSeconds = 900
)

// ClampInterval normalizes a configured poll interval.
func ClampInterval(seconds int) time.Duration {
	switch {
	case seconds <= 0:
		seconds = DefaultPollSeconds
	case seconds < MinPollSeconds:
		seconds = MinPollSeconds
	case seconds > MaxPollSeconds:
		seconds = MaxPollSeconds
	}
	return time.Duration(seconds) * time.Second
}

// Acker writes acknowledgment files for processed inbound documents.
type Acker interface {
	WriteAck(t export.Target, docName string, ok bool, errCode, errMsg string) (string, error)
}

// Uploader ships archived files to long-term object storage.
type Uploader interface {
	Upload(ctx context.Context, companyID, storeID, name string, data []byte) error
}

// Metrics records per-file sweep outcomes and traces.
type Metrics interface {
	StartFileSpan(ctx context.Context, storeID, fileName string) (context.Context, trace.Span)
	RecordFile(ctx context.Context, storeID, posType, status string, duplicate bool, seconds float64)
}

// Config binds a watcher to its integration.
type Config struct {
	Integration *store.POSIntegration
	Adapter     adapter.Adapter
	Paths       adapter.Paths

	// Acker is consulted when the integration requests acknowledgments.
	Acker Acker

	// Uploader, when set, receives every archived file. Upload failures
	// are logged and never fail the sweep.
	Uploader Uploader

	// Metrics, when set, receives per-file outcomes.
	Metrics Metrics
}

// Watcher is one integration's poll loop.
type Watcher struct {
	store    *store.Store
	proc     *processor.Processor
	cfg      Config
	cache    *SeenCache
	log      *slog.Logger
	interval chan time.Duration
	now      func() time.Time
}

// New builds a watcher. cache may be nil; the file-log table remains the
// authoritative dedup record either way.
func New(s *store.Store, proc *processor.Processor, cfg Config, cache *SeenCache, log *slog.Logger) *Watcher {
	return &Watcher{
		store: s,
		proc:  proc,
		cfg:   cfg,
		cache: cache,
		log: log.With("component", "watcher",
			"store", cfg.Integration.StoreID, "posType", string(cfg.Integration.POSType)),
		interval: make(chan time.Duration, 1),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetInterval requests a new poll interval; the loop picks it up on its
// next wakeup. Safe to call from any goroutine.
func (w *Watcher) SetInterval(d time.Duration) {
	select {
	case w.interval <- d:
	default:
		// A pending update is already queued; drop the older one.
		select {
		case <-w.interval:
		default:
		}
		w.interval <- d
	}
}

// Run polls until the context is cancelled. The first sweep happens
// immediately.
func (w *Watcher) Run(ctx context.Context) {
	if err := w.EnsureDirs(); err != nil {
		w.log.Error("exchange folders unavailable", "error", err)
	}

	interval := ClampInterval(w.cfg.Integration.PollIntervalSeconds)
	w.log.Info("watcher started", "outbox", w.cfg.Paths.Outbox, "interval", interval)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("watcher stopped")
			return
		case d := <-w.interval:
			interval = d
			w.log.Info("poll interval updated", "interval", interval)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(interval)
		case <-timer.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.log.Error("sweep failed", "error", err)
			}
			timer.Reset(interval)
		}
	}
}

// EnsureDirs creates the archive and error folders if missing.
func (w *Watcher) EnsureDirs() error {
	for _, dir := range []string{w.cfg.Paths.Archive, w.cfg.Paths.Error} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// FileOutcome is one swept file's result, reported to the scheduler for
// sync-cycle aggregation.
type FileOutcome struct {
	FileName     string
	DocumentType naxml.DocumentType
	Status       store.FileStatus
	RecordCount  int
	ErrorCode    string
	Duplicate    bool
	Counts       store.CategoryCounts
}

// Sweep processes every classifiable file currently in the outbox, in
// lexicographic order so multi-part drops replay deterministically.
func (w *Watcher) Sweep(ctx context.Context) ([]FileOutcome, error) {
	entries, err := os.ReadDir(w.cfg.Paths.Outbox)
	if err != nil {
		return nil, fmt.Errorf("read outbox: %w", err)
	}

	profile := w.cfg.Adapter.Profile()
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := profile.Classify(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var outcomes []FileOutcome
	for _, name := range names {
		if ctx.Err() != nil {
			return outcomes, ctx.Err()
		}
		oc, err := w.handleFile(ctx, name)
		if err != nil {
			w.log.Error("file handling failed", "file", name, "error", err)
			continue
		}
		outcomes = append(outcomes, oc)
	}
	return outcomes, nil
}

// handleFile runs one file through dedup, the processor, and disposition.
func (w *Watcher) handleFile(ctx context.Context, name string) (FileOutcome, error) {
	path := filepath.Join(w.cfg.Paths.Outbox, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return FileOutcome{}, fmt.Errorf("read %s: %w", name, err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	integ := w.cfg.Integration

	span := trace.SpanFromContext(ctx)
	if w.cfg.Metrics != nil {
		ctx, span = w.cfg.Metrics.StartFileSpan(ctx, integ.StoreID, name)
		defer span.End()
	}

	docType, _ := w.cfg.Adapter.Profile().Classify(name)

	seen, err := w.fileSeen(ctx, hash)
	if err != nil {
		return FileOutcome{}, err
	}
	if seen {
		// Redelivered content. The new filename gets its own SKIPPED row
		// so the redelivery is visible, but no audit record and no
		// projection; the original file log tells the processing story.
		w.log.Info("duplicate file skipped", "file", name, "hash", hash)
		dest, err := w.archive(name, false)
		if err != nil {
			return FileOutcome{}, err
		}
		if err := w.store.CreateFileLog(ctx, &store.FileLog{
			CompanyID:     integ.CompanyID,
			StoreID:       integ.StoreID,
			FileName:      name,
			FileType:      string(docType),
			Direction:     "INBOUND",
			Status:        store.FileSkipped,
			SkipReason:    "DUPLICATE",
			FileHash:      hash,
			SizeBytes:     int64(len(data)),
			SourcePath:    path,
			ProcessedPath: dest,
			ProcessedAt:   time.Now().UTC(),
		}); err != nil {
			return FileOutcome{}, err
		}
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.RecordFile(ctx, integ.StoreID, string(integ.POSType),
				string(store.FileSkipped), true, 0)
		}
		return FileOutcome{
			FileName:     name,
			DocumentType: docType,
			Status:       store.FileSkipped,
			Duplicate:    true,
		}, nil
	}

	flog := &store.FileLog{
		CompanyID:  integ.CompanyID,
		StoreID:    integ.StoreID,
		FileName:   name,
		FileType:   string(docType),
		Direction:  "INBOUND",
		FileHash:   hash,
		SizeBytes:  int64(len(data)),
		SourcePath: path,
	}
	if err := w.store.CreateFileLog(ctx, flog); err != nil {
		return FileOutcome{}, err
	}
	if err := w.store.MarkFileProcessing(ctx, flog.ID); err != nil {
		return FileOutcome{}, err
	}

	started := w.now()
	out, procErr := w.proc.Process(ctx, processor.Input{
		Integration: integ,
		Adapter:     w.cfg.Adapter,
		FileName:    name,
		FileHash:    hash,
		Data:        data,
	})
	if procErr != nil {
		span.RecordError(procErr)
		// The audit trail is down; without it nothing may change state.
		// Release the hash and leave the file for the next sweep.
		if err := w.store.DeleteFileLog(ctx, flog.ID); err != nil {
			w.log.Error("file log release failed", "file", name, "error", err)
		}
		return FileOutcome{}, procErr
	}

	flog.Status = out.Status
	flog.RecordCount = out.RecordCount
	flog.ErrorCode = out.ErrorCode
	flog.ErrorMessage = out.ErrorMessage
	flog.SkipReason = out.SkipReason
	flog.ProcessingMs = time.Since(started).Milliseconds()

	dest, moveErr := w.archive(name, out.Status == store.FileFailed)
	if moveErr != nil {
		w.log.Error("file disposition failed", "file", name, "error", moveErr)
	}
	flog.ProcessedPath = dest

	if err := w.store.FinishFileLog(ctx, flog); err != nil {
		return FileOutcome{}, err
	}
	w.markSeen(ctx, hash)

	if w.cfg.Uploader != nil && dest != "" && out.Status != store.FileFailed {
		if err := w.cfg.Uploader.Upload(ctx, integ.CompanyID, integ.StoreID, name, data); err != nil {
			w.log.Error("object storage upload failed", "file", name, "error", err)
		}
	}
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.RecordFile(ctx, integ.StoreID, string(integ.POSType),
			string(out.Status), out.Duplicate, time.Since(started).Seconds())
	}

	if integ.GenerateAcks && w.cfg.Acker != nil &&
		out.DocumentType != naxml.DocAcknowledgment &&
		(out.Status == store.FileSuccess || out.Status == store.FilePartial) {
		target := export.Target{Integration: integ, Paths: w.cfg.Paths}
		if _, err := w.cfg.Acker.WriteAck(target, name, true, "", ""); err != nil {
			w.log.Error("acknowledgment emission failed", "file", name, "error", err)
		}
	}

	w.log.Info("file swept",
		"file", name,
		"status", string(out.Status),
		"records", out.RecordCount,
		"errorCode", out.ErrorCode)
	if out.DocumentType == "" {
		// Unparseable content still classifies by filename.
		out.DocumentType = docType
	}
	return FileOutcome{
		FileName:     name,
		DocumentType: out.DocumentType,
		Status:       out.Status,
		RecordCount:  out.RecordCount,
		ErrorCode:    out.ErrorCode,
		Duplicate:    out.Duplicate,
		Counts:       out.Counts,
	}, nil
}

func (w *Watcher) fileSeen(ctx context.Context, hash string) (bool, error) {
	storeID := w.cfg.Integration.StoreID
	if w.cache != nil && w.cache.Seen(ctx, storeID, hash) {
		return true, nil
	}
	seen, err := w.store.FileSeen(ctx, storeID, hash)
	if err != nil {
		return false, err
	}
	if seen {
		w.markSeen(ctx, hash)
	}
	return seen, nil
}

func (w *Watcher) markSeen(ctx context.Context, hash string) {
	if w.cache != nil {
		w.cache.Mark(ctx, w.cfg.Integration.StoreID, hash)
	}
}

// archive moves a processed file out of the outbox: into the error
// folder with an ERROR marker on failure, into the archive otherwise.
// Integrations that disable archiving get successful files deleted.
func (w *Watcher) archive(name string, failed bool) (string, error) {
	src := filepath.Join(w.cfg.Paths.Outbox, name)
	stamp := w.now().Format("20060102T150405")

	var dest string
	switch {
	case failed:
		dest = filepath.Join(w.cfg.Paths.Error, stamp+"_ERROR_"+name)
	case !w.cfg.Integration.ArchiveProcessed:
		if err := os.Remove(src); err != nil {
			return "", fmt.Errorf("remove %s: %w", name, err)
		}
		return "", nil
	default:
		dest = filepath.Join(w.cfg.Paths.Archive, stamp+"_"+name)
	}

	if err := moveFile(src, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// moveFile renames, falling back to copy-and-remove for archive folders
// mounted on a different filesystem than the outbox.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("flush %s: %w", dest, err)
	}
	return os.Remove(src)
}

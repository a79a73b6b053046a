// Package importer runs the one-shot historical scan that seeds fuel
// grades and dispenser positions before continuous ingestion begins. It
// reads movement reports wherever the integration keeps them, including
// files the watcher already archived, and registers the fuel entities
// they mention without projecting totals or touching file logs.
package importer

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cstorehq/backoffice/pkg/adapter"
	"github.com/cstorehq/backoffice/pkg/naxml"
	"github.com/cstorehq/backoffice/pkg/projector"
	"github.com/cstorehq/backoffice/pkg/store"
)

var (
	// ErrImportRunning is returned when an initial import is requested
	// for an integration whose previous pass has not finished.
	ErrImportRunning = errors.New("importer: import already running")

	// ErrUnsupportedPOSType mirrors the scheduler's: no adapter covers
	// the integration's POS type.
	ErrUnsupportedPOSType = errors.New("importer: unsupported pos type")
)

// Status is the lifecycle of one import pass.
type Status string

const (
	ImportRunning   Status = "RUNNING"
	ImportCompleted Status = "COMPLETED"
	ImportFailed    Status = "FAILED"
)

// Progress is a snapshot of one integration's import pass.
type Progress struct {
	IntegrationID string
	Status        Status
	FilesScanned  int
	FilesSkipped  int
	Grades        int
	Positions     int
	Error         string
	StartedAt     time.Time
	CompletedAt   time.Time
}

// Service runs initial imports. Progress is held in memory only; a
// restart forgets past runs, which is fine because the pass is
// idempotent and cheap to repeat.
type Service struct {
	store *store.Store
	proj  *projector.Projector
	reg   *adapter.Registry
	log   *slog.Logger

	mu   sync.Mutex
	runs map[string]*Progress
}

// New builds an import service.
func New(s *store.Store, proj *projector.Projector, reg *adapter.Registry, log *slog.Logger) *Service {
	return &Service{
		store: s,
		proj:  proj,
		reg:   reg,
		log:   log.With("component", "importer"),
		runs:  make(map[string]*Progress),
	}
}

// Progress returns a snapshot of the integration's latest pass.
func (s *Service) Progress(integrationID string) (Progress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.runs[integrationID]
	if !ok {
		return Progress{}, false
	}
	return *p, true
}

// Run executes the import pass synchronously and returns its final
// progress. Only one pass per integration runs at a time.
func (s *Service) Run(ctx context.Context, integ *store.POSIntegration) (Progress, error) {
	a, ok := s.reg.Get(integ.POSType)
	if !ok {
		return Progress{}, fmt.Errorf("%w: %s", ErrUnsupportedPOSType, integ.POSType)
	}
	paths, err := a.Profile().ResolvePaths(integ.ExchangeRoot, adapter.Overrides{
		ImportPath:  integ.ImportPath,
		ExportPath:  integ.ExportPath,
		ArchivePath: integ.ArchivePath,
		ErrorPath:   integ.ErrorPath,
	})
	if err != nil {
		return Progress{}, err
	}

	s.mu.Lock()
	if prev, ok := s.runs[integ.ID]; ok && prev.Status == ImportRunning {
		s.mu.Unlock()
		return Progress{}, fmt.Errorf("%w: %s", ErrImportRunning, integ.ID)
	}
	prog := &Progress{
		IntegrationID: integ.ID,
		Status:        ImportRunning,
		StartedAt:     time.Now().UTC(),
	}
	s.runs[integ.ID] = prog
	s.mu.Unlock()

	grades, positions := map[string]struct{}{}, map[string]struct{}{}
	runErr := s.scan(ctx, integ, a.Profile(), paths, prog, grades, positions)

	s.mu.Lock()
	prog.Grades = len(grades)
	prog.Positions = len(positions)
	prog.CompletedAt = time.Now().UTC()
	if runErr != nil {
		prog.Status = ImportFailed
		prog.Error = runErr.Error()
	} else {
		prog.Status = ImportCompleted
	}
	snapshot := *prog
	s.mu.Unlock()

	s.log.Info("initial import finished",
		"integrationId", integ.ID,
		"status", string(snapshot.Status),
		"files", snapshot.FilesScanned,
		"grades", snapshot.Grades,
		"positions", snapshot.Positions)
	return snapshot, runErr
}

// scan walks the outbox and archive folders, oldest names first, and
// feeds every fuel movement report through discovery.
func (s *Service) scan(ctx context.Context, integ *store.POSIntegration, profile *adapter.Profile, paths adapter.Paths, prog *Progress, grades, positions map[string]struct{}) error {
	tgt := projector.Target{
		CompanyID: integ.CompanyID,
		StoreID:   integ.StoreID,
		Profile:   profile,
	}

	for _, dir := range []string{paths.Archive, paths.Outbox} {
		names, err := fuelFiles(profile, dir)
		if err != nil {
			return err
		}
		for _, name := range names {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := s.scanFile(ctx, tgt, filepath.Join(dir, name), prog, grades, positions); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) scanFile(ctx context.Context, tgt projector.Target, path string, prog *Progress, grades, positions map[string]struct{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	sum := sha256.Sum256(data)
	tgt.FileHash = hex.EncodeToString(sum[:])

	doc, err := naxml.Parse(data)
	if err != nil {
		// Historical folders accumulate malformed files; skip them.
		s.bump(prog, func(p *Progress) { p.FilesSkipped++ })
		s.log.Warn("historical file skipped", "file", filepath.Base(path), "error", err)
		return nil
	}

	var g, pos []string
	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		g, pos, err = s.proj.DiscoverFuel(ctx, tx, tgt, doc)
		return err
	})
	if err != nil {
		return fmt.Errorf("discover %s: %w", filepath.Base(path), err)
	}
	for _, id := range g {
		grades[id] = struct{}{}
	}
	for _, id := range pos {
		positions[id] = struct{}{}
	}
	s.bump(prog, func(p *Progress) { p.FilesScanned++ })
	return nil
}

func (s *Service) bump(prog *Progress, fn func(*Progress)) {
	s.mu.Lock()
	fn(prog)
	s.mu.Unlock()
}

// fuelFiles lists a folder's FGM and FPM files in lexicographic order.
// A missing folder is an empty result, not an error: the archive only
// exists once the watcher has processed something.
func fuelFiles(profile *adapter.Profile, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		docType, ok := profile.Classify(originalName(e.Name()))
		if !ok {
			continue
		}
		if docType == naxml.DocFuelGradeMove || docType == naxml.DocFuelProductMove {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// originalName strips the archive timestamp prefix the watcher adds, so
// archived files classify by their original vendor name.
func originalName(name string) string {
	stamp, rest, ok := strings.Cut(name, "_")
	if !ok {
		return name
	}
	if _, err := time.Parse("20060102T150405", stamp); err != nil {
		return name
	}
	return strings.TrimPrefix(rest, "ERROR_")
}

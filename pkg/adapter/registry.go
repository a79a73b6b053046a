package adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cstorehq/backoffice/pkg/naxml"
)

// Capabilities declares what an adapter can do. Optional behavior is a
// flag here plus a secondary interface, never runtime feature probing.
type Capabilities struct {
	SyncDepartments    bool
	SyncTenderTypes    bool
	SyncCashiers       bool
	SyncTaxRates       bool
	ImportTransactions bool
	ExportDepartments  bool
	ExportTenderTypes  bool
	ExportTaxRates     bool
	ExportPriceBook    bool
	SyncFuelSales      bool
	ExtractPJR         bool
}

// ConnectionTestResult is the user-visible outcome of a connection test.
type ConnectionTestResult struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	POSVersion string  `json:"posVersion,omitempty"`
	LatencyMs int64    `json:"latencyMs"`
	ErrorCode string   `json:"errorCode,omitempty"`
	Preview   []string `json:"preview,omitempty"`
}

// Adapter is the fixed vendor interface the registry dispatches on.
type Adapter interface {
	POSType() POSType
	Profile() *Profile
	Capabilities() Capabilities
	TestConnection(ctx context.Context, exchangeRoot string) ConnectionTestResult
}

// MaintenanceExtractor is the optional capability (flag: ExtractPJR) for
// vendors that deliver reference data through movement reports instead of
// pure maintenance documents.
type MaintenanceExtractor interface {
	ExtractMaintenance(doc naxml.Document) (*naxml.MaintenanceDoc, bool)
}

// Paths is the resolved folder set of one integration.
type Paths struct {
	Root    string
	Inbox   string
	Outbox  string
	Archive string
	Error   string
}

// Overrides are the per-integration path settings layered over a profile.
type Overrides struct {
	ImportPath  string // overrides outbox (POS → core)
	ExportPath  string // overrides inbox (core → POS)
	ArchivePath string
	ErrorPath   string
}

// ResolvePaths applies profile defaults and integration overrides under
// the exchange root, rejecting anything that escapes it.
func (p *Profile) ResolvePaths(root string, ov Overrides) (Paths, error) {
	paths := Paths{Root: filepath.Clean(root)}

	resolve := func(override, fallback string) (string, error) {
		name := fallback
		if override != "" {
			name = override
		}
		if filepath.IsAbs(name) {
			if err := WithinBase(paths.Root, name); err != nil {
				return "", err
			}
			return filepath.Clean(name), nil
		}
		return SecureJoin(paths.Root, name)
	}

	var err error
	if paths.Outbox, err = resolve(ov.ImportPath, p.OutboxDir); err != nil {
		return Paths{}, err
	}
	if paths.Inbox, err = resolve(ov.ExportPath, p.InboxDir); err != nil {
		return Paths{}, err
	}
	if paths.Archive, err = resolve(ov.ArchivePath, p.ArchiveDir); err != nil {
		return Paths{}, err
	}
	if paths.Error, err = resolve(ov.ErrorPath, p.ErrorDir); err != nil {
		return Paths{}, err
	}

	if p.AltDirCasings {
		paths.Outbox = pickCasing(paths.Outbox)
		paths.Inbox = pickCasing(paths.Inbox)
	}
	return paths, nil
}

// pickCasing keeps the configured directory unless only an upper- or
// lower-cased sibling exists on disk.
func pickCasing(dir string) string {
	if _, err := os.Stat(dir); err == nil {
		return dir
	}
	parent, name := filepath.Split(dir)
	for _, alt := range []string{strings.ToUpper(name), strings.ToLower(name)} {
		candidate := filepath.Join(parent, alt)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return dir
}

// FileExchangeAdapter is the shared implementation for folder-based
// vendors; behavior differences live in the profile and capability set.
type FileExchangeAdapter struct {
	profile *Profile
	caps    Capabilities
	probe   *rate.Limiter
}

// NewFileExchangeAdapter builds an adapter over a vendor profile.
func NewFileExchangeAdapter(profile *Profile, caps Capabilities) *FileExchangeAdapter {
	return &FileExchangeAdapter{
		profile: profile,
		caps:    caps,
		probe:   rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

func (a *FileExchangeAdapter) POSType() POSType           { return a.profile.Type }
func (a *FileExchangeAdapter) Profile() *Profile          { return a.profile }
func (a *FileExchangeAdapter) Capabilities() Capabilities { return a.caps }

// TestConnection verifies the exchange folders exist and previews the
// pending outbox files. Probes are rate limited so a misbehaving UI
// cannot hammer store controllers.
func (a *FileExchangeAdapter) TestConnection(ctx context.Context, exchangeRoot string) ConnectionTestResult {
	started := time.Now()
	fail := func(code, msg string) ConnectionTestResult {
		return ConnectionTestResult{
			Message:   msg,
			ErrorCode: code,
			LatencyMs: time.Since(started).Milliseconds(),
		}
	}

	if err := a.probe.Wait(ctx); err != nil {
		return fail("CANCELLED", "connection test cancelled")
	}

	paths, err := a.profile.ResolvePaths(exchangeRoot, Overrides{})
	if err != nil {
		return fail("PATH_TRAVERSAL", err.Error())
	}
	if _, err := os.Stat(paths.Root); err != nil {
		return fail("DIRECTORY_NOT_FOUND", fmt.Sprintf("exchange root %s is not reachable", paths.Root))
	}
	entries, err := os.ReadDir(paths.Outbox)
	if err != nil {
		return fail("DIRECTORY_NOT_FOUND", fmt.Sprintf("outbox %s is not reachable", paths.Outbox))
	}

	var preview []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := a.profile.Classify(e.Name()); ok {
			preview = append(preview, e.Name())
		}
	}
	sort.Strings(preview)
	if len(preview) > 5 {
		preview = preview[:5]
	}

	return ConnectionTestResult{
		Success:    true,
		Message:    fmt.Sprintf("%s exchange reachable, %d classifiable file(s) pending", a.profile.DisplayName, len(preview)),
		POSVersion: "NAXML " + naxml.DefaultVersion,
		LatencyMs:  time.Since(started).Milliseconds(),
		Preview:    preview,
	}
}

// ExtractMaintenance converts movement-borne reference data (TLM, MCM)
// into maintenance documents for vendors without pure maintenance files.
func (a *FileExchangeAdapter) ExtractMaintenance(doc naxml.Document) (*naxml.MaintenanceDoc, bool) {
	if !a.caps.ExtractPJR {
		return nil, false
	}
	switch d := doc.(type) {
	case *naxml.TLMDoc:
		return d.ToMaintenance(), true
	case *naxml.MCMDoc:
		return d.ToMaintenance(), true
	}
	return nil, false
}

// Registry maps POS types to adapters. Registration happens at startup
// from a single goroutine; reads take snapshots.
type Registry struct {
	mu       sync.RWMutex
	adapters map[POSType]Adapter
}

// NewRegistry returns a registry preloaded with the built-in file
// exchange vendors.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[POSType]Adapter)}
	fileCaps := Capabilities{
		SyncDepartments:    true,
		SyncTenderTypes:    true,
		SyncCashiers:       true,
		SyncTaxRates:       true,
		ImportTransactions: true,
		ExportDepartments:  true,
		ExportTenderTypes:  true,
		ExportTaxRates:     true,
		ExportPriceBook:    true,
		SyncFuelSales:      true,
	}
	gilbarco := fileCaps
	gilbarco.ExtractPJR = true

	r.Register(NewFileExchangeAdapter(GilbarcoProfile(), gilbarco))
	r.Register(NewFileExchangeAdapter(VerifoneProfile(), fileCaps))
	r.Register(NewFileExchangeAdapter(GenericProfile(), fileCaps))
	return r
}

// Register installs or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.POSType()] = a
}

// Get returns the adapter for a POS type.
func (r *Registry) Get(t POSType) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[t]
	return a, ok
}

// All returns a snapshot of the registered adapters.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].POSType() < out[j].POSType() })
	return out
}

package watcher_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cstorehq/backoffice/pkg/adapter"
	"github.com/cstorehq/backoffice/pkg/audit"
	"github.com/cstorehq/backoffice/pkg/naxml"
	"github.com/cstorehq/backoffice/pkg/processor"
	"github.com/cstorehq/backoffice/pkg/projector"
	"github.com/cstorehq/backoffice/pkg/store"
	"github.com/cstorehq/backoffice/pkg/watcher"
)

const deptMaint = `<DepartmentMaintenance version="3.4">
  <TransmissionHeader><StoreLocationID>241</StoreLocationID></TransmissionHeader>
  <MaintenanceHeader><TableAction>Incremental</TableAction></MaintenanceHeader>
  <Department Action="AddUpdate">
    <DepartmentCode>010</DepartmentCode>
    <Description>GROCERY</Description>
  </Department>
</DepartmentMaintenance>`

type fixture struct {
	w     *watcher.Watcher
	store *store.Store
	paths adapter.Paths
	integ *store.POSIntegration
}

func setup(t *testing.T, cache *watcher.SeenCache) *fixture {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &store.User{CompanyID: "co-1", Role: "import"}))

	root := t.TempDir()
	reg := adapter.NewRegistry()
	a, ok := reg.Get(adapter.POSGilbarcoPassport)
	require.True(t, ok)

	paths, err := a.Profile().ResolvePaths(root, adapter.Overrides{})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(paths.Outbox, 0o755))
	require.NoError(t, os.MkdirAll(paths.Archive, 0o755))
	require.NoError(t, os.MkdirAll(paths.Error, 0o755))

	integ := &store.POSIntegration{
		CompanyID:        "co-1",
		StoreID:          "st-1",
		POSType:          adapter.POSGilbarcoPassport,
		ConnectionMode:   store.ConnFileExchange,
		ExchangeRoot:     root,
		ArchiveProcessed: true,
		SyncDepartments:  true,
		SyncTenderTypes:  true,
		SyncCashiers:     true,
		SyncTaxRates:     true,
		IsActive:         true,
	}
	require.NoError(t, s.CreateIntegration(ctx, integ))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	proc := processor.New(s, projector.New(s, log), audit.NewRecorder(s, log), log)
	w := watcher.New(s, proc, watcher.Config{
		Integration: integ,
		Adapter:     a,
		Paths:       paths,
	}, cache, log)
	return &fixture{w: w, store: s, paths: paths, integ: integ}
}

func (f *fixture) drop(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.paths.Outbox, name), []byte(content), 0o644))
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestSweep_ProcessesAndArchives(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	f.drop(t, "DeptMaint_001.xml", deptMaint)
	f.drop(t, "readme.txt", "not an exchange file")

	outcomes, err := f.w.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, store.FileSuccess, outcomes[0].Status)
	assert.Equal(t, naxml.DocDepartmentMaint, outcomes[0].DocumentType)

	logs, err := f.store.ListFileLogs(ctx, "st-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	flog := logs[0]
	assert.Equal(t, store.FileSuccess, flog.Status)
	assert.Equal(t, "DeptMaint_001.xml", flog.FileName)
	assert.Equal(t, string(naxml.DocDepartmentMaint), flog.FileType)
	assert.Equal(t, 1, flog.RecordCount)
	assert.NotEmpty(t, flog.ProcessedPath)
	assert.False(t, flog.ProcessedAt.IsZero())

	archived := dirNames(t, f.paths.Archive)
	require.Len(t, archived, 1)
	assert.Contains(t, archived[0], "_DeptMaint_001.xml")

	// Unclassifiable files stay put.
	assert.Equal(t, []string{"readme.txt"}, dirNames(t, f.paths.Outbox))
}

func TestSweep_DuplicateContentSkipped(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	// Same bytes under two names in one drop: lexicographic order makes
	// the first one win and the second a duplicate.
	f.drop(t, "DeptMaint_001.xml", deptMaint)
	f.drop(t, "DeptMaint_002.xml", deptMaint)

	outcomes, err := f.w.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.False(t, outcomes[0].Duplicate)
	assert.True(t, outcomes[1].Duplicate)
	assert.Equal(t, store.FileSkipped, outcomes[1].Status)

	// The redelivery leaves its own SKIPPED row under the new filename;
	// only the first row actually processed.
	logs, err := f.store.ListFileLogs(ctx, "st-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "DeptMaint_002.xml", logs[0].FileName)
	assert.Equal(t, store.FileSkipped, logs[0].Status)
	assert.Equal(t, "DUPLICATE", logs[0].SkipReason)
	assert.NotEmpty(t, logs[0].ProcessedPath)
	assert.Equal(t, "DeptMaint_001.xml", logs[1].FileName)
	assert.Equal(t, store.FileSuccess, logs[1].Status)
	assert.Equal(t, logs[0].FileHash, logs[1].FileHash)

	// Both files leave the outbox; the duplicate is archived too.
	assert.Empty(t, dirNames(t, f.paths.Outbox))
	assert.Len(t, dirNames(t, f.paths.Archive), 2)
}

func TestSweep_FailedFileLandsInErrorDir(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	f.drop(t, "PJR_bad.xml", `<NAXML-POSJournal><JournalReport>`)

	outcomes, err := f.w.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, store.FileFailed, outcomes[0].Status)

	logs, err := f.store.ListFileLogs(ctx, "st-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, store.FileFailed, logs[0].Status)
	assert.Equal(t, "NAXML_INVALID_XML", logs[0].ErrorCode)

	failed := dirNames(t, f.paths.Error)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0], "_ERROR_PJR_bad.xml")
	assert.Empty(t, dirNames(t, f.paths.Outbox))
}

func TestSweep_ArchivingDisabledDeletes(t *testing.T) {
	f := setup(t, nil)
	f.integ.ArchiveProcessed = false
	ctx := context.Background()

	f.drop(t, "DeptMaint_001.xml", deptMaint)
	_, err := f.w.Sweep(ctx)
	require.NoError(t, err)

	assert.Empty(t, dirNames(t, f.paths.Outbox))
	assert.Empty(t, dirNames(t, f.paths.Archive))

	logs, err := f.store.ListFileLogs(ctx, "st-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, store.FileSuccess, logs[0].Status)
	assert.Empty(t, logs[0].ProcessedPath)
}

func TestSweep_SeenCacheFastPath(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := watcher.NewSeenCache(client, time.Hour, log)

	f := setup(t, cache)
	ctx := context.Background()

	// Pre-mark the content hash: the sweep must skip without consulting
	// the database for the hash.
	sum := sha256.Sum256([]byte(deptMaint))
	cache.Mark(ctx, "st-1", hex.EncodeToString(sum[:]))

	f.drop(t, "DeptMaint_001.xml", deptMaint)
	outcomes, err := f.w.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Duplicate)

	// The skip itself is still on record.
	logs, err := f.store.ListFileLogs(ctx, "st-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, store.FileSkipped, logs[0].Status)
	assert.Equal(t, "DUPLICATE", logs[0].SkipReason)
	assert.Len(t, dirNames(t, f.paths.Archive), 1)
}

func TestSeenCache_MarkAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := watcher.NewSeenCache(client, time.Minute, log)
	ctx := context.Background()

	assert.False(t, cache.Seen(ctx, "st-1", "abc"))
	cache.Mark(ctx, "st-1", "abc")
	assert.True(t, cache.Seen(ctx, "st-1", "abc"))
	assert.False(t, cache.Seen(ctx, "st-2", "abc"), "hashes are store scoped")

	mr.FastForward(2 * time.Minute)
	assert.False(t, cache.Seen(ctx, "st-1", "abc"))
}

func TestClampInterval(t *testing.T) {
	assert.Equal(t, 900*time.Second, watcher.ClampInterval(0))
	assert.Equal(t, 900*time.Second, watcher.ClampInterval(-5))
	assert.Equal(t, 60*time.Second, watcher.ClampInterval(10))
	assert.Equal(t, 300*time.Second, watcher.ClampInterval(300))
	assert.Equal(t, 86400*time.Second, watcher.ClampInterval(500000))
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := setup(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.w.Run(ctx)
		close(done)
	}()

	// Let the immediate first sweep happen, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancellation")
	}
}

// Command ingestd runs the POS ingestion service: one watcher per
// active file-based integration, the periodic sync loop, and audit
// retention sweeps.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cstorehq/backoffice/pkg/adapter"
	"github.com/cstorehq/backoffice/pkg/archive"
	"github.com/cstorehq/backoffice/pkg/audit"
	"github.com/cstorehq/backoffice/pkg/config"
	"github.com/cstorehq/backoffice/pkg/credentials"
	"github.com/cstorehq/backoffice/pkg/export"
	"github.com/cstorehq/backoffice/pkg/importer"
	"github.com/cstorehq/backoffice/pkg/observability"
	"github.com/cstorehq/backoffice/pkg/processor"
	"github.com/cstorehq/backoffice/pkg/projector"
	"github.com/cstorehq/backoffice/pkg/scheduler"
	"github.com/cstorehq/backoffice/pkg/store"
	"github.com/cstorehq/backoffice/pkg/watcher"
)

const serviceVersion = "1.0.0"

func main() {
	initialImport := flag.Bool("initial-import", false,
		"run the historical fuel discovery pass before starting watchers")
	flag.Parse()

	if err := run(*initialImport); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(initialImport bool) error {
	cfg := config.Load()
	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer s.Close()

	obs, err := observability.New(ctx, observability.Config{
		ServiceName:    "backoffice-ingest",
		ServiceVersion: serviceVersion,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			log.Error("metric flush failed", "error", err)
		}
	}()

	var cache *watcher.SeenCache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		cache = watcher.NewSeenCache(client, watcher.DefaultSeenTTL, log)
		log.Info("seen-hash cache enabled", "addr", cfg.RedisAddr)
	}

	var uploader watcher.Uploader
	if cfg.ArchiveBucket != "" {
		sink, err := archive.NewS3Sink(ctx, archive.SinkConfig{
			Bucket:   cfg.ArchiveBucket,
			Region:   cfg.ArchiveRegion,
			Endpoint: cfg.ArchiveEndpoint,
			Prefix:   cfg.ArchivePrefix,
		}, log)
		if err != nil {
			return err
		}
		uploader = sink
		log.Info("object storage archive enabled", "bucket", cfg.ArchiveBucket)
	}

	reg := adapter.NewRegistry()
	rec := audit.NewRecorder(s, log)
	proj := projector.New(s, log)
	proc := processor.New(s, proj, rec, log)
	exp := export.New(s, rec, log)

	if cfg.IntegrationsFile != "" {
		if err := provision(ctx, s, cfg, log); err != nil {
			return err
		}
	}

	if initialImport {
		if err := runInitialImport(ctx, s, proj, reg, log); err != nil {
			return err
		}
	}

	sched := scheduler.New(s, proc, reg, scheduler.Options{
		Cache:    cache,
		Acker:    exp,
		Uploader: uploader,
		Metrics:  obs,
		Sync:     obs,
	}, log)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	go sched.RunSyncLoop(ctx, time.Duration(cfg.SyncCheckSeconds)*time.Second)
	go retentionLoop(ctx, rec, log)

	<-ctx.Done()
	log.Info("shutting down")
	sched.Shutdown()
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)
	return log
}

// provision ensures the integrations in the provisioning file exist.
// Existing integrations are left alone; provisioning seeds, it does not
// reconcile.
func provision(ctx context.Context, s *store.Store, cfg *config.Config, log *slog.Logger) error {
	profiles, err := config.LoadIntegrations(cfg.IntegrationsFile)
	if err != nil {
		return err
	}

	var vault *credentials.Vault
	if cfg.CredentialSecret != "" {
		if vault, err = credentials.New(cfg.CredentialSecret); err != nil {
			return err
		}
	}

	created := 0
	for _, p := range profiles {
		if _, err := s.GetIntegrationByStore(ctx, p.StoreID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		integ := &store.POSIntegration{
			CompanyID:           p.CompanyID,
			StoreID:             p.StoreID,
			POSType:             adapter.POSType(p.POSType),
			ConnectionMode:      store.ConnectionMode(p.ConnectionMode),
			ExchangeRoot:        p.ExchangeRoot,
			ImportPath:          p.ImportPath,
			ExportPath:          p.ExportPath,
			ArchivePath:         p.ArchivePath,
			ErrorPath:           p.ErrorPath,
			NAXMLVersion:        p.NAXMLVersion,
			StoreLocationID:     p.StoreLocationID,
			PollIntervalSeconds: p.PollIntervalSeconds,
			GenerateAcks:        p.GenerateAcks,
			ArchiveProcessed:    true,
			SyncEnabled:         p.Sync.Enabled,
			SyncIntervalMins:    p.Sync.IntervalMins,
			SyncDepartments:     p.Sync.Departments,
			SyncTenderTypes:     p.Sync.TenderTypes,
			SyncCashiers:        p.Sync.Cashiers,
			SyncTaxRates:        p.Sync.TaxRates,
			IsActive:            true,
		}
		if p.ConnectionMode == "" {
			integ.ConnectionMode = store.ConnFileExchange
		}
		if p.ArchiveProcessed != nil {
			integ.ArchiveProcessed = *p.ArchiveProcessed
		}

		if p.Credentials != nil {
			if vault == nil {
				return fmt.Errorf("store %s has credentials but CREDENTIAL_SECRET is unset", p.StoreID)
			}
			sealed, err := vault.Seal(credentials.ConnectionCredentials{
				Host:     p.Credentials.Host,
				Port:     p.Credentials.Port,
				Username: p.Credentials.Username,
				Password: p.Credentials.Password,
				APIKey:   p.Credentials.APIKey,
			})
			if err != nil {
				return err
			}
			integ.EncryptedCredentials = sealed
		}

		if err := s.CreateIntegration(ctx, integ); err != nil {
			return err
		}
		if err := ensureImportUser(ctx, s, p.CompanyID); err != nil {
			return err
		}
		created++
	}
	if created > 0 {
		log.Info("integrations provisioned", "created", created)
	}
	return nil
}

func ensureImportUser(ctx context.Context, s *store.Store, companyID string) error {
	_, err := s.FindImportUser(ctx, s.DB(), companyID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return s.CreateUser(ctx, &store.User{CompanyID: companyID, Role: "import"})
}

func runInitialImport(ctx context.Context, s *store.Store, proj *projector.Projector, reg *adapter.Registry, log *slog.Logger) error {
	svc := importer.New(s, proj, reg, log)
	integrations, err := s.ListActiveIntegrations(ctx)
	if err != nil {
		return err
	}
	for _, integ := range integrations {
		if !integ.FileBased() {
			continue
		}
		if _, err := svc.Run(ctx, integ); err != nil {
			return err
		}
	}
	return nil
}

// retentionLoop sweeps expired audit records once a day.
func retentionLoop(ctx context.Context, rec *audit.Recorder, log *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rec.Sweep(ctx); err != nil {
				log.Error("retention sweep failed", "error", err)
			}
		}
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fadedpez/caseclash/internal/config"
	"github.com/fadedpez/caseclash/internal/discord"
	"github.com/fadedpez/caseclash/internal/httpapi"
	"github.com/fadedpez/caseclash/internal/logging"
	"github.com/fadedpez/caseclash/pkg/battle"
	"github.com/fadedpez/caseclash/pkg/db"
	"github.com/fadedpez/caseclash/pkg/notify"
	battleRepo "github.com/fadedpez/caseclash/pkg/repositories/battle"
	walletRepo "github.com/fadedpez/caseclash/pkg/repositories/wallet"
	"github.com/fadedpez/caseclash/pkg/scheduler"
	"github.com/fadedpez/caseclash/pkg/services/boxes"
	"github.com/fadedpez/caseclash/pkg/services/ledger"
	"github.com/fadedpez/caseclash/pkg/services/resolver"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		logging.Default.Warn("%v, using INFO", err)
	}
	logging.SetDefault(logging.NewLogger(level))
	logger := logging.Default.WithField("component", "server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize repositories
	var wallets walletRepo.Repository
	var battles battleRepo.Repository

	switch cfg.StorageType {
	case config.StorageSQLite:
		dbPath := cfg.SQLitePath()
		logger.Info("Initializing SQLite repositories at %s", dbPath)
		conn, err := db.OpenSQLite(dbPath)
		if err != nil {
			logger.Error("Failed to open SQLite database: %v", err)
			os.Exit(1)
		}
		defer conn.Close()
		wallets = walletRepo.NewSQLiteRepository(conn)
		battles = battleRepo.NewSQLiteRepository(conn)

	case config.StoragePostgres:
		logger.Info("Initializing Postgres repositories")
		pool, err := db.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("Failed to connect to Postgres: %v", err)
			os.Exit(1)
		}
		defer pool.Close()
		wallets = walletRepo.NewPostgresRepository(pool)
		battles = battleRepo.NewPostgresRepository(pool)

	default:
		logger.Warn("Using in-memory repositories (data will be lost on restart)")
		wallets = walletRepo.NewMemoryRepository()
		battles = battleRepo.NewMemoryRepository()
	}

	// Battle history is optional
	var history *battleRepo.ElasticsearchRepository
	if cfg.ElasticsearchURL != "" {
		history, err = battleRepo.NewElasticsearchRepository(battles, &battleRepo.ElasticsearchConfig{
			URL:             cfg.ElasticsearchURL,
			Username:        cfg.ElasticsearchUsername,
			Password:        cfg.ElasticsearchPassword,
			IndexPrefix:     cfg.ElasticsearchIndex,
			RetentionPeriod: cfg.ArchiveRetention,
		})
		if err != nil {
			logger.Warn("Battle history disabled: %v", err)
		} else {
			battles = history
			defer history.Wait()
			logger.Info("Indexing finished battles into Elasticsearch at %s", cfg.ElasticsearchURL)
		}
	}

	catalog, err := boxes.LoadCatalog(cfg.BoxCatalogPath)
	if err != nil {
		logger.Error("Failed to load box catalog: %v", err)
		os.Exit(1)
	}

	l := ledger.NewService(wallets, ledger.WithStartingBalance(cfg.StartingBalance))
	rng := resolver.DefaultSource()

	// Notifiers
	broker := notify.NewBroker(32)
	defer broker.Close()
	notifiers := notify.Fanout{broker}

	if cfg.DiscordToken != "" {
		session, err := discord.NewSession(cfg.DiscordToken)
		if err == nil {
			err = session.Open()
		}
		if err != nil {
			logger.Warn("Discord announcements disabled: %v", err)
		} else {
			defer session.Close()
			notifiers = append(notifiers, notify.NewDiscordAnnouncer(session, cfg.DiscordChannelID))
			logger.Info("Announcing battles to Discord channel %s", cfg.DiscordChannelID)
		}
	}

	manager := battle.NewManager(catalog, l, battle.Config{
		LobbyTimeout:      cfg.LobbyTimeout,
		CountdownWindow:   cfg.CountdownWindow,
		RoundInterval:     cfg.RoundInterval,
		FastRoundInterval: cfg.FastRoundInterval,
		RoundTimeout:      cfg.RoundTimeout,
	},
		battle.WithRepository(battles),
		battle.WithNotifier(notifiers),
		battle.WithRNG(rng))
	defer manager.Close()

	restored, err := manager.Restore(ctx)
	if err != nil {
		logger.Error("Failed to restore battles: %v", err)
		os.Exit(1)
	}
	logger.Info("%d battle(s) resumed", restored)
	go manager.Run(ctx, cfg.TickInterval)

	// Background jobs
	jobs := scheduler.NewScheduler(logging.Default)
	var indices scheduler.IndexPruner
	if history != nil {
		indices = history
	}
	maintenance := scheduler.NewMaintenance(manager, battles, indices, scheduler.MaintenanceConfig{
		SweepSchedule:    cfg.SweepSchedule,
		PruneSchedule:    cfg.PruneSchedule,
		ArchiveRetention: cfg.ArchiveRetention,
	}, logging.Default)
	if err := maintenance.Register(jobs); err != nil {
		logger.Error("Failed to schedule maintenance: %v", err)
		os.Exit(1)
	}
	if err := jobs.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler: %v", err)
		os.Exit(1)
	}
	defer jobs.Stop()

	api := httpapi.NewServer(httpapi.Deps{
		Battles: manager,
		Boxes:   boxes.NewService(catalog, l, rng),
		Ledger:  l,
		Broker:  broker,
		History: historySource(history),
		Logger:  logging.Default,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error stopping HTTP server: %v", err)
	}
}

// historySource keeps a nil repository from becoming a non-nil interface
func historySource(repo *battleRepo.ElasticsearchRepository) httpapi.History {
	if repo == nil {
		return nil
	}
	return repo
}

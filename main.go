package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/cryptofolio/src/binance"
	"github.com/username/cryptofolio/src/config"
	"github.com/username/cryptofolio/src/database"
	"github.com/username/cryptofolio/src/fetcher"
	"github.com/username/cryptofolio/src/ledger"
	"github.com/username/cryptofolio/src/logger"
	"github.com/username/cryptofolio/src/models"
	"github.com/username/cryptofolio/src/normalizer"
	"github.com/username/cryptofolio/src/processors"
	"github.com/username/cryptofolio/src/rates"
	"github.com/username/cryptofolio/src/services"
	"github.com/username/cryptofolio/src/utils"
)

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Cryptofolio starting...")

	syncStart, err := time.Parse(time.RFC3339, config.Cfg.SyncStart)
	if err != nil {
		logger.L.Error("SYNC_START is not valid RFC3339", "value", config.Cfg.SyncStart, "error", err)
		os.Exit(1)
	}

	rateTable := rates.Empty()
	if config.Cfg.RatesPath != "" {
		rateTable, err = rates.Load(config.Cfg.RatesPath)
		if err != nil {
			logger.L.Error("Failed to load exchange rates", "path", config.Cfg.RatesPath, "error", err)
			os.Exit(1)
		}
	} else {
		logger.L.Warn("RATES_PATH not set; only EUR-denominated records will normalize")
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	store := ledger.NewStore(database.DB)
	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	boundary := utils.YearBoundary{
		Month: time.Month(config.Cfg.TaxYearStartMonth),
		Day:   config.Cfg.TaxYearStartDay,
	}
	reconciler := processors.NewReconciliationProcessor(processors.ReconciliationConfig{
		QuantityTolerance: decimal.NewFromFloat(config.Cfg.ReconQuantityTolerance),
		ValueTolerance:    decimal.NewFromFloat(config.Cfg.ReconValueTolerance),
		TimeWindow:        config.Cfg.ReconTimeWindow,
		PreferredOrigin:   config.Cfg.ReconPreferredOrigin,
	})

	exchangeClient := binance.NewClient(config.Cfg.BinanceBaseURL, config.Cfg.BinanceAPIKey, config.Cfg.BinanceAPISecret)
	exchangeFetcher := fetcher.New(
		exchangeClient, store,
		config.Cfg.RequestsPerMinute, config.Cfg.WindowDays,
		config.Cfg.BackoffBase, config.Cfg.BackoffCap, config.Cfg.MaxRetries,
	)

	syncService := services.NewSyncService(
		exchangeFetcher,
		normalizer.New(rateTable),
		store,
		reconciler,
		config.Cfg.Channels,
		syncStart,
	)
	reportService := services.NewReportService(
		store,
		processors.NewFIFOProcessor(boundary),
		processors.NewTaxYearProcessor(
			decimal.NewFromFloat(config.Cfg.TaxRate),
			decimal.NewFromFloat(config.Cfg.AnnualExemption),
			boundary,
		),
		reportCache,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if config.Cfg.ImportDir != "" {
		importFiles(syncService, config.Cfg.ImportDir)
	}

	if config.Cfg.BinanceAPIKey != "" {
		if err := exchangeClient.TestConnection(ctx); err != nil {
			logger.L.Error("Exchange connectivity check failed", "error", err)
			os.Exit(1)
		}
		result, err := syncService.SyncExchange(ctx)
		if err != nil {
			logger.L.Error("Exchange sync failed", "error", err)
			os.Exit(1)
		}
		for _, ch := range result.Channels {
			if ch.Err != nil {
				logger.L.Warn("Channel did not complete; will resume next run", "channel", ch.Channel, "error", ch.Err)
			}
		}
	} else {
		logger.L.Info("BINANCE_API_KEY not set, skipping exchange sync")
	}

	if _, err := syncService.Reconcile(); err != nil {
		logger.L.Error("Reconciliation failed", "error", err)
		os.Exit(1)
	}

	report, err := reportService.GenerateReport()
	if err != nil {
		logger.L.Error("Report generation failed", "error", err)
		os.Exit(1)
	}
	if err := writeReport(report, config.Cfg.ReportPath); err != nil {
		logger.L.Error("Failed to write report", "error", err)
		os.Exit(1)
	}
	logger.L.Info("Run complete", "runID", report.RunID)
}

func importFiles(syncService services.SyncService, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.L.Error("Cannot read import directory", "dir", dir, "error", err)
		os.Exit(1)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".csv") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		file, err := os.Open(path)
		if err != nil {
			logger.L.Error("Cannot open import file", "path", path, "error", err)
			os.Exit(1)
		}
		result, err := syncService.ImportFile(file, "")
		file.Close()
		if err != nil {
			logger.L.Error("Import failed", "path", path, "error", err)
			os.Exit(1)
		}
		logger.L.Info("Imported file",
			"path", path,
			"source", result.Source,
			"inserted", result.Inserted,
			"duplicates", result.Duplicates,
			"quarantined", result.Quarantined)
	}
}

func writeReport(report *models.TaxReport, path string) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

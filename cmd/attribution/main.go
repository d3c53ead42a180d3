package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/revlens/attribution/internal/attribution"
	"github.com/revlens/attribution/internal/cache"
	"github.com/revlens/attribution/internal/config"
	"github.com/revlens/attribution/internal/klaviyo"
	"github.com/revlens/attribution/internal/metrics"
	"github.com/revlens/attribution/internal/models"
	"github.com/revlens/attribution/internal/sink"
	"github.com/revlens/attribution/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "attribution",
	Short: "Marketing revenue attribution reports",
	Long: `attribution computes marketing attribution reports from a remote
analytics API: revenue split by campaign/flow and customer kind, product
sales per campaign, and the daily share of shop revenue attributable to
marketing. Results are written as CSV and JSON, and optionally archived.`,
}

func init() {
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "revenue",
			Short: "Revenue split by source, new vs. returning customers",
			RunE:  func(*cobra.Command, []string) error { return run("revenue") },
		},
		&cobra.Command{
			Use:   "products",
			Short: "Product sales attributed per campaign and flow",
			RunE:  func(*cobra.Command, []string) error { return run("products") },
		},
		&cobra.Command{
			Use:   "share",
			Short: "Daily share of shop revenue attributed to marketing",
			RunE:  func(*cobra.Command, []string) error { return run("share") },
		},
		&cobra.Command{
			Use:   "all",
			Short: "Run all three reports",
			RunE:  func(*cobra.Command, []string) error { return run("revenue", "products", "share") },
		},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(reports ...string) error {
	// Credentials commonly live in a .env file; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg)
	defer logger.Sync()

	m := metrics.New("attribution")
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := klaviyo.NewClient(cfg.Klaviyo, logger.Named("klaviyo"), m)

	var lookup attribution.HistoryLookup = client
	if cfg.Redis.Enabled {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis not available, classification cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			lookup = cache.NewHistoryCache(rdb, client, cfg.Redis.TTL, logger)
		}
	}

	var reportArchive *storage.ReportArchive
	if cfg.Postgres.Enabled {
		reportArchive, err = storage.NewReportArchive(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Warn("PostgreSQL not available, report archive disabled", zap.Error(err))
			reportArchive = nil
		} else {
			defer reportArchive.Close()
		}
	}

	var purchaseArchive *storage.PurchaseArchive
	if cfg.ClickHouse.Enabled {
		purchaseArchive, err = storage.NewPurchaseArchive(ctx, cfg.ClickHouse, logger)
		if err != nil {
			logger.Warn("ClickHouse not available, purchase archive disabled", zap.Error(err))
			purchaseArchive = nil
		} else {
			defer purchaseArchive.Close()
		}
	}

	classifier := attribution.NewClassifier(lookup, cfg.Classifier.Workers, logger, m)
	engine := attribution.NewEngine(client, classifier, cfg.Report.MetricName, logger, m)
	writer := sink.NewWriter(cfg.Output.Dir, logger)

	start, end := cfg.Report.Window(time.Now())
	window := attribution.Window{Start: start, End: end}
	logger.Info("starting report run",
		zap.Strings("reports", reports),
		zap.Time("window_start", start),
		zap.Time("window_end", end),
	)

	for _, report := range reports {
		switch report {
		case "revenue":
			rep, err := engine.RevenueSplit(ctx, window)
			if err != nil {
				return err
			}
			if err := writer.WriteRevenueSplit(rep.Rows); err != nil {
				return err
			}
			if reportArchive != nil {
				if err := reportArchive.SaveRevenueSplit(ctx, rep); err != nil {
					logger.Error("failed to archive revenue split", zap.Error(err))
				}
			}
			archivePurchases(ctx, purchaseArchive, rep.RunID, rep.Purchases, logger)

		case "products":
			rep, err := engine.ProductAttribution(ctx, window)
			if err != nil {
				return err
			}
			if err := writer.WriteProductAttribution(rep.Rows); err != nil {
				return err
			}
			if reportArchive != nil {
				if err := reportArchive.SaveProductAttribution(ctx, rep); err != nil {
					logger.Error("failed to archive product attribution", zap.Error(err))
				}
			}
			archivePurchases(ctx, purchaseArchive, rep.RunID, rep.Purchases, logger)

		case "share":
			rep, err := engine.RevenueShare(ctx, window)
			if err != nil {
				return err
			}
			if err := writer.WriteRevenueShare(rep.Rows); err != nil {
				return err
			}
			if reportArchive != nil {
				if err := reportArchive.SaveRevenueShare(ctx, rep); err != nil {
					logger.Error("failed to archive revenue share", zap.Error(err))
				}
			}
			archivePurchases(ctx, purchaseArchive, rep.RunID, rep.Purchases, logger)
		}
	}

	logger.Info("report run finished")
	return nil
}

func archivePurchases(ctx context.Context, archive *storage.PurchaseArchive, runID uuid.UUID, purchases []models.Purchase, logger *zap.Logger) {
	if archive == nil {
		return
	}
	if err := archive.SavePurchases(ctx, runID, purchases); err != nil {
		logger.Error("failed to archive purchases", zap.Error(err))
	}
}

func serveMetrics(cfg config.MetricsConfig, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler())
	logger.Info("metrics endpoint listening",
		zap.String("addr", cfg.Addr),
		zap.String("path", cfg.Path),
	)
	if err := http.ListenAndServe(cfg.Addr, mux); err != nil {
		logger.Error("metrics endpoint failed", zap.Error(err))
	}
}

func setupLogger(cfg *config.Config) *zap.Logger {
	var zapCfg zap.Config

	if cfg.Log.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	switch cfg.Log.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	return logger
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/revlens/attribution/internal/config"
	"github.com/revlens/attribution/internal/models"
)

// ReportArchive persists finished report rows to PostgreSQL so the
// dashboard collaborator can read historical runs. The engine works
// without it; it is an optional sink.
type ReportArchive struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewReportArchive opens a connection pool and ensures the schema exists.
func NewReportArchive(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*ReportArchive, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	a := &ReportArchive{pool: pool, logger: logger}
	if err := a.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to PostgreSQL report archive",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName),
	)
	return a, nil
}

// Close closes the connection pool.
func (a *ReportArchive) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.logger.Info("PostgreSQL connection pool closed")
	}
}

func (a *ReportArchive) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS report_runs (
			run_id       UUID PRIMARY KEY,
			report       TEXT NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL,
			partial      BOOLEAN NOT NULL DEFAULT FALSE,
			row_count    INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS revenue_split_rows (
			run_id                      UUID NOT NULL REFERENCES report_runs(run_id),
			campaign_id                 TEXT NOT NULL,
			campaign_name               TEXT NOT NULL,
			send_time                   TEXT NOT NULL,
			total_attributed_revenue    DOUBLE PRECISION NOT NULL,
			new_customers_revenue       DOUBLE PRECISION NOT NULL,
			recurring_customers_revenue DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_id, campaign_id)
		)`,
		`CREATE TABLE IF NOT EXISTS product_attribution_rows (
			run_id        UUID NOT NULL REFERENCES report_runs(run_id),
			campaign_id   TEXT NOT NULL,
			campaign_name TEXT NOT NULL,
			send_time     TEXT NOT NULL,
			products      JSONB NOT NULL,
			PRIMARY KEY (run_id, campaign_id)
		)`,
		`CREATE TABLE IF NOT EXISTS revenue_share_rows (
			run_id             UUID NOT NULL REFERENCES report_runs(run_id),
			day                TEXT NOT NULL,
			total_revenue      DOUBLE PRECISION NOT NULL,
			attributed_revenue DOUBLE PRECISION NOT NULL,
			revenue_share      DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_id, day)
		)`,
	}
	for _, stmt := range statements {
		if _, err := a.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

func (a *ReportArchive) saveRun(batch *pgx.Batch, meta models.ReportMeta, report string, rows int) {
	batch.Queue(
		`INSERT INTO report_runs (run_id, report, generated_at, partial, row_count)
		 VALUES ($1, $2, $3, $4, $5)`,
		meta.RunID, report, meta.GeneratedAt, meta.Partial, rows,
	)
}

// SaveRevenueSplit archives one revenue split run.
func (a *ReportArchive) SaveRevenueSplit(ctx context.Context, report *models.RevenueSplitReport) error {
	batch := &pgx.Batch{}
	a.saveRun(batch, report.ReportMeta, "revenue_split", len(report.Rows))
	for _, row := range report.Rows {
		batch.Queue(
			`INSERT INTO revenue_split_rows
			 (run_id, campaign_id, campaign_name, send_time,
			  total_attributed_revenue, new_customers_revenue, recurring_customers_revenue)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			report.RunID, row.CampaignID, row.CampaignName, row.SendTime,
			row.TotalAttributedRevenue, row.NewCustomersRevenue, row.RecurringCustomersRevenue,
		)
	}
	return a.send(ctx, batch, "revenue_split", report.RunID.String())
}

// SaveProductAttribution archives one product attribution run. The nested
// product subtotals are stored as JSONB.
func (a *ReportArchive) SaveProductAttribution(ctx context.Context, report *models.ProductAttributionReport) error {
	batch := &pgx.Batch{}
	a.saveRun(batch, report.ReportMeta, "product_attribution", len(report.Rows))
	for _, row := range report.Rows {
		products, err := json.Marshal(row.Products)
		if err != nil {
			return fmt.Errorf("failed to encode products for %s: %w", row.CampaignID, err)
		}
		batch.Queue(
			`INSERT INTO product_attribution_rows
			 (run_id, campaign_id, campaign_name, send_time, products)
			 VALUES ($1, $2, $3, $4, $5)`,
			report.RunID, row.CampaignID, row.CampaignName, row.SendTime, products,
		)
	}
	return a.send(ctx, batch, "product_attribution", report.RunID.String())
}

// SaveRevenueShare archives one daily revenue share run.
func (a *ReportArchive) SaveRevenueShare(ctx context.Context, report *models.RevenueShareReport) error {
	batch := &pgx.Batch{}
	a.saveRun(batch, report.ReportMeta, "revenue_share", len(report.Rows))
	for _, row := range report.Rows {
		batch.Queue(
			`INSERT INTO revenue_share_rows
			 (run_id, day, total_revenue, attributed_revenue, revenue_share)
			 VALUES ($1, $2, $3, $4, $5)`,
			report.RunID, row.Date, row.TotalShopRevenue, row.AttributedRevenue, row.RevenueSharePct,
		)
	}
	return a.send(ctx, batch, "revenue_share", report.RunID.String())
}

func (a *ReportArchive) send(ctx context.Context, batch *pgx.Batch, report, runID string) error {
	if err := a.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to archive %s run %s: %w", report, runID, err)
	}
	a.logger.Info("report archived",
		zap.String("report", report),
		zap.String("run_id", runID),
	)
	return nil
}

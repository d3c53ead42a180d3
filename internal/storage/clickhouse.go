package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/revlens/attribution/internal/config"
	"github.com/revlens/attribution/internal/models"
)

// PurchaseArchive batch-inserts deduplicated purchases into ClickHouse
// for ad-hoc analysis outside the report pipelines. Optional sink.
type PurchaseArchive struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewPurchaseArchive connects to ClickHouse and ensures the table exists.
func NewPurchaseArchive(ctx context.Context, cfg config.ClickHouseConfig, logger *zap.Logger) (*PurchaseArchive, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	a := &PurchaseArchive{conn: conn, logger: logger}
	if err := a.ensureTable(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("connected to ClickHouse purchase archive",
		zap.String("addr", cfg.Addr),
		zap.String("database", cfg.Database),
	)
	return a, nil
}

// Close closes the connection.
func (a *PurchaseArchive) Close() error {
	if a.conn != nil {
		a.logger.Info("ClickHouse connection closed")
		return a.conn.Close()
	}
	return nil
}

func (a *PurchaseArchive) ensureTable(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS purchases (
			run_id     UUID,
			order_id   String,
			ts         DateTime64(3, 'UTC'),
			profile_id String,
			source_id  String,
			value      Float64,
			items      String
		) ENGINE = MergeTree()
		ORDER BY (run_id, ts)`
	if err := a.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure purchases table: %w", err)
	}
	return nil
}

// SavePurchases archives one run's deduplicated purchases.
func (a *PurchaseArchive) SavePurchases(ctx context.Context, runID uuid.UUID, purchases []models.Purchase) error {
	if len(purchases) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx,
		"INSERT INTO purchases (run_id, order_id, ts, profile_id, source_id, value, items)")
	if err != nil {
		return fmt.Errorf("failed to prepare purchase batch: %w", err)
	}

	for _, p := range purchases {
		items, err := json.Marshal(p.Items)
		if err != nil {
			a.logger.Warn("skipping purchase with unencodable items",
				zap.String("order_id", p.OrderID),
				zap.Error(err),
			)
			continue
		}
		if err := batch.Append(
			runID, p.OrderID, p.Timestamp, p.ProfileID, p.SourceID, p.Value, string(items),
		); err != nil {
			return fmt.Errorf("failed to append purchase %s: %w", p.OrderID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send purchase batch: %w", err)
	}

	a.logger.Info("purchases archived",
		zap.String("run_id", runID.String()),
		zap.Int("purchases", len(purchases)),
	)
	return nil
}

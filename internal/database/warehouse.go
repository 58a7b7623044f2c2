package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go-reports/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Warehouse is the read-only relational dataset reports are run against.
type Warehouse struct {
	DB     *sql.DB
	Driver string
}

// NewWarehouse opens the warehouse connection pool and closes it on shutdown.
func NewWarehouse(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*Warehouse, error) {
	switch cfg.WarehouseDriver {
	case "postgres", "mysql", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported warehouse driver %q", cfg.WarehouseDriver)
	}

	db, err := sql.Open(cfg.WarehouseDriver, cfg.WarehouseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	logger.Info("Connected to warehouse", zap.String("driver", cfg.WarehouseDriver))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("Closing warehouse connection")
			return db.Close()
		},
	})

	return &Warehouse{DB: db, Driver: cfg.WarehouseDriver}, nil
}

// Package db owns the connection pool: it registers the audit driver over
// lib/pq and applies the embedded schema migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/plantops/invaudit/audit"
	"github.com/plantops/invaudit/internal/config"
)

// DriverName is the registered audited driver. Every process-wide
// connection goes through it; that is what makes the audit trail
// independent of the HTTP layer's cooperation.
const DriverName = "auditpq"

var registerOnce sync.Once

// Open registers the audit driver (first call wins) and opens the pool.
func Open(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*sql.DB, error) {
	registerOnce.Do(func() {
		var filters []audit.TableFilter
		if len(cfg.Audit.IncludeTables) > 0 {
			filters = append(filters, audit.NewIncludePatternFilter(cfg.Audit.IncludeTables...))
		}
		if len(cfg.Audit.ExcludeTables) > 0 {
			filters = append(filters, audit.NewExcludePatternFilter(cfg.Audit.ExcludeTables...))
		}

		sql.Register(DriverName, audit.New(
			&pq.Driver{},
			audit.WithLogger(logger),
			audit.WithTableFilters(filters...),
		))
	})

	pool, err := sql.Open(DriverName, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

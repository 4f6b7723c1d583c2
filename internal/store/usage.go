// Package store provides read access to persisted business records used
// by the cache warmer: usage statistics identify the identifiers worth
// warming, derived from real orders and shipments rather than hardcoded
// lists.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresUsageStore reads usage statistics from the platform database.
type PostgresUsageStore struct {
	pool *pgxpool.Pool
}

// NewPostgresUsageStore connects to the platform database and verifies
// connectivity.
func NewPostgresUsageStore(ctx context.Context, dsn string) (*PostgresUsageStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &PostgresUsageStore{pool: pool}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Ping verifies database connectivity.
func (s *PostgresUsageStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	return s.pool.Ping(ctx)
}

// Close releases all connections in the pool.
func (s *PostgresUsageStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// TopProductIDs returns the most-ordered product identifiers over the last
// 30 days, most referenced first.
func (s *PostgresUsageStore) TopProductIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT oi.product_id
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.created_at > now() - interval '30 days'
		GROUP BY oi.product_id
		ORDER BY count(*) DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top products: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan product id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TopPostcodes returns the most-shipped-to postcodes over the last 30
// days, most referenced first.
func (s *PostgresUsageStore) TopPostcodes(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT shipping_postcode
		FROM orders
		WHERE created_at > now() - interval '30 days'
		  AND shipping_postcode <> ''
		GROUP BY shipping_postcode
		ORDER BY count(*) DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top postcodes: %w", err)
	}
	defer rows.Close()

	var postcodes []string
	for rows.Next() {
		var pc string
		if err := rows.Scan(&pc); err != nil {
			return nil, fmt.Errorf("scan postcode: %w", err)
		}
		postcodes = append(postcodes, pc)
	}
	return postcodes, rows.Err()
}

package pgtrack

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS tracking_records (
  order_id TEXT PRIMARY KEY,
  courier_id TEXT NOT NULL,
  driver_lat DOUBLE PRECISION NOT NULL,
  driver_lng DOUBLE PRECISION NOT NULL,
  driver_heading DOUBLE PRECISION NULL,
  driver_speed_kmh DOUBLE PRECISION NULL,
  driver_at TIMESTAMPTZ NOT NULL,
  shop_lat DOUBLE PRECISION NOT NULL,
  shop_lng DOUBLE PRECISION NOT NULL,
  shop_address TEXT NOT NULL DEFAULT '',
  customer_lat DOUBLE PRECISION NOT NULL,
  customer_lng DOUBLE PRECISION NOT NULL,
  customer_address TEXT NOT NULL DEFAULT '',
  is_active BOOLEAN NOT NULL,
  started_at TIMESTAMPTZ NOT NULL,
  stopped_at TIMESTAMPTZ NULL,
  last_ping_at TIMESTAMPTZ NOT NULL,
  next_sweep_at TIMESTAMPTZ NOT NULL,
  sweep_fail_count INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_records_sweep ON tracking_records(is_active, next_sweep_at)`,
		`
CREATE TABLE IF NOT EXISTS location_pings (
  id BIGSERIAL PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES tracking_records(order_id) ON DELETE CASCADE,
  lat DOUBLE PRECISION NOT NULL,
  lng DOUBLE PRECISION NOT NULL,
  heading DOUBLE PRECISION NULL,
  speed_kmh DOUBLE PRECISION NULL,
  ping_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_location_pings_order_ping_at ON location_pings(order_id, ping_at DESC)`,
		// Дедупликация пингов: повторная доставка того же пинга не плодит строки.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_location_pings_dedup ON location_pings(order_id, ping_at, lat, lng)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}

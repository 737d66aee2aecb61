package pgtrack

import (
	"context"
	"time"

	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const recordColumns = `
  order_id, courier_id,
  driver_lat, driver_lng, driver_heading, driver_speed_kmh, driver_at,
  shop_lat, shop_lng, shop_address,
  customer_lat, customer_lng, customer_address,
  is_active, started_at, stopped_at,
  last_ping_at, next_sweep_at, sweep_fail_count,
  created_at, updated_at`

// UpsertRecord перезаписывает запись трекинга целиком: повторный start
// для заказа затирает предыдущую запись.
func (s *Storage) UpsertRecord(ctx context.Context, rec *models.TrackingRecord) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO tracking_records (
  order_id, courier_id,
  driver_lat, driver_lng, driver_heading, driver_speed_kmh, driver_at,
  shop_lat, shop_lng, shop_address,
  customer_lat, customer_lng, customer_address,
  is_active, started_at, stopped_at,
  last_ping_at, next_sweep_at, sweep_fail_count,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$20)
ON CONFLICT (order_id) DO UPDATE SET
  courier_id = EXCLUDED.courier_id,
  driver_lat = EXCLUDED.driver_lat,
  driver_lng = EXCLUDED.driver_lng,
  driver_heading = EXCLUDED.driver_heading,
  driver_speed_kmh = EXCLUDED.driver_speed_kmh,
  driver_at = EXCLUDED.driver_at,
  shop_lat = EXCLUDED.shop_lat,
  shop_lng = EXCLUDED.shop_lng,
  shop_address = EXCLUDED.shop_address,
  customer_lat = EXCLUDED.customer_lat,
  customer_lng = EXCLUDED.customer_lng,
  customer_address = EXCLUDED.customer_address,
  is_active = EXCLUDED.is_active,
  started_at = EXCLUDED.started_at,
  stopped_at = EXCLUDED.stopped_at,
  last_ping_at = EXCLUDED.last_ping_at,
  next_sweep_at = EXCLUDED.next_sweep_at,
  sweep_fail_count = EXCLUDED.sweep_fail_count,
  updated_at = EXCLUDED.updated_at
`,
		rec.OrderID, rec.CourierID,
		rec.Driver.Lat, rec.Driver.Lng, rec.Driver.Heading, rec.Driver.SpeedKmh, rec.Driver.At.UTC(),
		rec.Shop.Lat, rec.Shop.Lng, rec.Shop.Address,
		rec.Customer.Lat, rec.Customer.Lng, rec.Customer.Address,
		rec.IsActive, rec.StartedAt.UTC(), rec.StoppedAt,
		rec.LastPingAt.UTC(), rec.NextSweepAt.UTC(), rec.SweepFailCount,
		rec.CreatedAt.UTC(),
	)
	return errors.Wrap(err, "upsert tracking record")
}

// GetRecord возвращает (nil, nil), если записи нет.
func (s *Storage) GetRecord(ctx context.Context, orderID string) (*models.TrackingRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM tracking_records WHERE order_id = $1`, orderID)
	rec, err := scanRecord(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select tracking record")
	}
	return rec, nil
}

// UpdateDriverLocation мержит новую локацию курьера в существующую запись.
// Возвращает (nil, nil), если записи нет — предусловие нарушено, решает caller.
func (s *Storage) UpdateDriverLocation(ctx context.Context, orderID string, loc models.DriverLocation, nextSweepAt time.Time) (*models.TrackingRecord, error) {
	row := s.db.QueryRow(ctx, `
UPDATE tracking_records
SET
  driver_lat = $2,
  driver_lng = $3,
  driver_heading = $4,
  driver_speed_kmh = $5,
  driver_at = $6,
  last_ping_at = $6,
  next_sweep_at = $7,
  sweep_fail_count = 0,
  updated_at = now()
WHERE order_id = $1
RETURNING `+recordColumns,
		orderID, loc.Lat, loc.Lng, loc.Heading, loc.SpeedKmh, loc.At.UTC(), nextSweepAt.UTC())

	rec, err := scanRecord(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "update driver location")
	}
	return rec, nil
}

// StopRecord гасит isActive и ставит stoppedAt; запись не удаляется.
func (s *Storage) StopRecord(ctx context.Context, orderID string, at time.Time) (*models.TrackingRecord, error) {
	row := s.db.QueryRow(ctx, `
UPDATE tracking_records
SET is_active = FALSE, stopped_at = $2, updated_at = now()
WHERE order_id = $1
RETURNING `+recordColumns, orderID, at.UTC())

	rec, err := scanRecord(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "stop tracking record")
	}
	return rec, nil
}

// ClaimDueRecords выбирает активные записи, готовые к проверке свежести,
// и "бронирует" их на lease, чтобы второй инстанс воркера их не подхватил.
// SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueRecords(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.TrackingRecord, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT `+recordColumns+`
FROM tracking_records
WHERE is_active AND next_sweep_at <= $1
ORDER BY next_sweep_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED
`, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due records")
	}

	var picked []*models.TrackingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan due record")
		}
		picked = append(picked, rec)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	rows.Close()

	leaseUntil := now.UTC().Add(lease)
	for _, rec := range picked {
		_, err := tx.Exec(ctx, `UPDATE tracking_records SET next_sweep_at = $2, updated_at = now() WHERE order_id = $1`, rec.OrderID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease record")
		}
		rec.NextSweepAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

// RescheduleSweep переносит следующую проверку свежей записи и сбрасывает
// счётчик протухших проверок.
func (s *Storage) RescheduleSweep(ctx context.Context, orderID string, next time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE tracking_records
SET next_sweep_at = $2, sweep_fail_count = 0, updated_at = now()
WHERE order_id = $1
`, orderID, next.UTC())
	return errors.Wrap(err, "reschedule sweep")
}

// MarkSweepStale инкрементит счётчик протухших проверок; при autoStop
// дополнительно останавливает трекинг. Возвращает обновлённую запись.
func (s *Storage) MarkSweepStale(ctx context.Context, orderID string, next time.Time, autoStop bool, now time.Time) (*models.TrackingRecord, error) {
	var row pgx.Row
	if autoStop {
		row = s.db.QueryRow(ctx, `
UPDATE tracking_records
SET sweep_fail_count = sweep_fail_count + 1,
    next_sweep_at = $2,
    is_active = FALSE,
    stopped_at = $3,
    updated_at = now()
WHERE order_id = $1
RETURNING `+recordColumns, orderID, next.UTC(), now.UTC())
	} else {
		row = s.db.QueryRow(ctx, `
UPDATE tracking_records
SET sweep_fail_count = sweep_fail_count + 1,
    next_sweep_at = $2,
    updated_at = now()
WHERE order_id = $1
RETURNING `+recordColumns, orderID, next.UTC())
	}

	rec, err := scanRecord(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "mark sweep stale")
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (*models.TrackingRecord, error) {
	var rec models.TrackingRecord
	var stoppedAt *time.Time
	if err := row.Scan(
		&rec.OrderID, &rec.CourierID,
		&rec.Driver.Lat, &rec.Driver.Lng, &rec.Driver.Heading, &rec.Driver.SpeedKmh, &rec.Driver.At,
		&rec.Shop.Lat, &rec.Shop.Lng, &rec.Shop.Address,
		&rec.Customer.Lat, &rec.Customer.Lng, &rec.Customer.Address,
		&rec.IsActive, &rec.StartedAt, &stoppedAt,
		&rec.LastPingAt, &rec.NextSweepAt, &rec.SweepFailCount,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.StoppedAt = stoppedAt
	return &rec, nil
}

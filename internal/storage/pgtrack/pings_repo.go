package pgtrack

import (
	"context"

	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/pkg/errors"
)

// InsertPing пишет точку маршрута. Дубликат (тот же заказ, момент и
// координата) молча игнорируется за счёт уникального индекса.
func (s *Storage) InsertPing(ctx context.Context, p *models.LocationPing) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO location_pings (order_id, lat, lng, heading, speed_kmh, ping_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT DO NOTHING
`, p.OrderID, p.Lat, p.Lng, p.Heading, p.SpeedKmh, p.PingAt.UTC())
	return errors.Wrap(err, "insert location ping")
}

// ListPings возвращает историю точек заказа в хронологическом порядке.
func (s *Storage) ListPings(ctx context.Context, orderID string, limit, offset int) ([]*models.LocationPing, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, order_id, lat, lng, heading, speed_kmh, ping_at, created_at
FROM location_pings
WHERE order_id = $1
ORDER BY ping_at ASC, id ASC
LIMIT $2 OFFSET $3
`, orderID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select location pings")
	}
	defer rows.Close()

	var out []*models.LocationPing
	for rows.Next() {
		var p models.LocationPing
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Lat, &p.Lng, &p.Heading, &p.SpeedKmh, &p.PingAt, &p.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan location ping")
		}
		out = append(out, &p)
	}
	return out, errors.Wrap(rows.Err(), "rows")
}

package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ListCrops returns the crop catalog ordered by code.
func (r *PostgresRepository) ListCrops(ctx context.Context) ([]Crop, error) {
	const q = `
SELECT id, code, name, cycle_days, market_price, price_trend
FROM crops
ORDER BY code;
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list crops: %w", err)
	}
	defer rows.Close()

	var crops []Crop
	for rows.Next() {
		var c Crop
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.CycleDays, &c.MarketPrice, &c.PriceTrend); err != nil {
			return nil, fmt.Errorf("scan crop: %w", err)
		}
		crops = append(crops, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crops: %w", err)
	}
	return crops, nil
}

// GetCropByCode returns catalog data for a crop code.
func (r *PostgresRepository) GetCropByCode(ctx context.Context, code string) (*Crop, error) {
	const q = `
SELECT id, code, name, cycle_days, market_price, price_trend
FROM crops
WHERE code = $1
LIMIT 1;
`
	var c Crop
	err := r.pool.QueryRow(ctx, q, code).Scan(&c.ID, &c.Code, &c.Name, &c.CycleDays, &c.MarketPrice, &c.PriceTrend)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get crop by code: %w", err)
	}
	return &c, nil
}

// GetZone returns zone reference data by identifier.
func (r *PostgresRepository) GetZone(ctx context.Context, id int) (*Zone, error) {
	const q = `
SELECT id, name, latitude, longitude
FROM zones
WHERE id = $1
LIMIT 1;
`
	var z Zone
	err := r.pool.QueryRow(ctx, q, id).Scan(&z.ID, &z.Name, &z.Latitude, &z.Longitude)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get zone: %w", err)
	}
	return &z, nil
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SQLite has no server-side UUID generation, so row ids are minted here.
func randomUUID() string {
	return uuid.NewString()
}

// -- Users --

func (r *SQLiteRepository) UserExists(ctx context.Context, contactID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE contact_id = ?);`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, contactID).Scan(&exists); err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return exists, nil
}

// -- Registration --

func (r *SQLiteRepository) CompleteRegistration(ctx context.Context, reg Registration) (*Planting, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const upsertUser = `
INSERT INTO users (id, contact_id, display_name, status, zone_id, updated_at)
VALUES (?, ?, ?, 'activo', ?, CURRENT_TIMESTAMP)
ON CONFLICT (contact_id) DO UPDATE SET
    status = 'activo',
    zone_id = excluded.zone_id,
    updated_at = CURRENT_TIMESTAMP
RETURNING id;
`
	var userID string
	if err := tx.QueryRowContext(ctx, upsertUser, randomUUID(), reg.ContactID, reg.DisplayName, reg.ZoneID).Scan(&userID); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	const cropByCode = `SELECT id FROM crops WHERE code = ? LIMIT 1;`
	var cropID string
	if err := tx.QueryRowContext(ctx, cropByCode, reg.CropCode).Scan(&cropID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("crop %s: %w", reg.CropCode, ErrNotFound)
		}
		return nil, fmt.Errorf("resolve crop: %w", err)
	}

	const retire = `UPDATE plantings SET active = 0 WHERE user_id = ? AND active = 1;`
	if _, err := tx.ExecContext(ctx, retire, userID); err != nil {
		return nil, fmt.Errorf("retire plantings: %w", err)
	}

	planting := Planting{
		ID:          randomUUID(),
		UserID:      userID,
		CropID:      cropID,
		SowingDate:  reg.SowingDate,
		ElapsedDays: reg.ElapsedDays,
		Active:      true,
	}
	const insert = `
INSERT INTO plantings (id, user_id, crop_id, sowing_date, elapsed_days, active)
VALUES (?, ?, ?, ?, ?, 1)
RETURNING created_at;
`
	if err := tx.QueryRowContext(ctx, insert,
		planting.ID, userID, cropID, reg.SowingDate, reg.ElapsedDays,
	).Scan(&planting.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert planting: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit registration: %w", err)
	}
	return &planting, nil
}

// -- Plantings --

func (r *SQLiteRepository) CurrentPlanting(ctx context.Context, contactID string) (*PlantingSnapshot, error) {
	const q = `
SELECT p.id, c.code, c.name, c.cycle_days, p.sowing_date,
       z.id, z.name, z.latitude, z.longitude,
       c.market_price, c.price_trend
FROM plantings p
JOIN users u ON u.id = p.user_id
JOIN crops c ON c.id = p.crop_id
JOIN zones z ON z.id = u.zone_id
WHERE u.contact_id = ? AND p.active = 1
ORDER BY p.created_at DESC
LIMIT 1;
`
	row := r.db.QueryRowContext(ctx, q, contactID)
	var s PlantingSnapshot
	err := row.Scan(
		&s.PlantingID, &s.CropCode, &s.CropName, &s.CycleDays, &s.SowingDate,
		&s.ZoneID, &s.ZoneName, &s.Latitude, &s.Longitude,
		&s.MarketPrice, &s.PriceTrend,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("current planting: %w", err)
	}
	return &s, nil
}

// -- Catalog --

func (r *SQLiteRepository) ListCrops(ctx context.Context) ([]Crop, error) {
	const q = `
SELECT id, code, name, cycle_days, market_price, price_trend
FROM crops
ORDER BY code;
`
	rows, err := r.db.QueryContext(ctx, q)
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

func (r *SQLiteRepository) GetCropByCode(ctx context.Context, code string) (*Crop, error) {
	const q = `
SELECT id, code, name, cycle_days, market_price, price_trend
FROM crops
WHERE code = ?
LIMIT 1;
`
	var c Crop
	err := r.db.QueryRowContext(ctx, q, code).Scan(&c.ID, &c.Code, &c.Name, &c.CycleDays, &c.MarketPrice, &c.PriceTrend)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get crop by code: %w", err)
	}
	return &c, nil
}

func (r *SQLiteRepository) GetZone(ctx context.Context, id int) (*Zone, error) {
	const q = `
SELECT id, name, latitude, longitude
FROM zones
WHERE id = ?
LIMIT 1;
`
	var z Zone
	err := r.db.QueryRowContext(ctx, q, id).Scan(&z.ID, &z.Name, &z.Latitude, &z.Longitude)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get zone: %w", err)
	}
	return &z, nil
}

// -- Feedback --

func (r *SQLiteRepository) InsertFeedback(ctx context.Context, fb FeedbackRecord) error {
	const q = `
INSERT INTO feedback (id, planting_id, recommendation, rating)
VALUES (?, ?, ?, ?);
`
	if _, err := r.db.ExecContext(ctx, q, randomUUID(), fb.PlantingID, fb.Recommendation, fb.Rating); err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CompleteRegistration finishes a registration in one transaction: the user
// is upserted (status and zone refreshed on re-registration), any previous
// active plantings are retired so at most one stays active per user, and the
// new planting row is inserted with the frozen elapsed-days snapshot.
func (r *PostgresRepository) CompleteRegistration(ctx context.Context, reg Registration) (*Planting, error) {
	var planting Planting
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		const upsertUser = `
INSERT INTO users (contact_id, display_name, status, zone_id, updated_at)
VALUES ($1, $2, 'activo', $3, NOW())
ON CONFLICT (contact_id) DO UPDATE SET
    status = 'activo',
    zone_id = EXCLUDED.zone_id,
    updated_at = NOW()
RETURNING id;
`
		var userID string
		if err := tx.QueryRow(ctx, upsertUser, reg.ContactID, reg.DisplayName, reg.ZoneID).Scan(&userID); err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}

		const cropByCode = `SELECT id FROM crops WHERE code = $1 LIMIT 1;`
		var cropID string
		if err := tx.QueryRow(ctx, cropByCode, reg.CropCode).Scan(&cropID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("crop %s: %w", reg.CropCode, ErrNotFound)
			}
			return fmt.Errorf("resolve crop: %w", err)
		}

		const retire = `UPDATE plantings SET active = FALSE WHERE user_id = $1 AND active;`
		if _, err := tx.Exec(ctx, retire, userID); err != nil {
			return fmt.Errorf("retire plantings: %w", err)
		}

		const insert = `
INSERT INTO plantings (user_id, crop_id, sowing_date, elapsed_days, active)
VALUES ($1, $2, $3, $4, TRUE)
RETURNING id, created_at;
`
		if err := tx.QueryRow(ctx, insert, userID, cropID, reg.SowingDate, reg.ElapsedDays).
			Scan(&planting.ID, &planting.CreatedAt); err != nil {
			return fmt.Errorf("insert planting: %w", err)
		}

		planting.UserID = userID
		planting.CropID = cropID
		planting.SowingDate = reg.SowingDate
		planting.ElapsedDays = reg.ElapsedDays
		planting.Active = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &planting, nil
}

// CurrentPlanting returns the most recently created active planting for the
// contact, joined with crop and zone data. ErrNotFound when none exists.
func (r *PostgresRepository) CurrentPlanting(ctx context.Context, contactID string) (*PlantingSnapshot, error) {
	const q = `
SELECT p.id, c.code, c.name, c.cycle_days, p.sowing_date,
       z.id, z.name, z.latitude, z.longitude,
       c.market_price, c.price_trend
FROM plantings p
JOIN users u ON u.id = p.user_id
JOIN crops c ON c.id = p.crop_id
JOIN zones z ON z.id = u.zone_id
WHERE u.contact_id = $1 AND p.active
ORDER BY p.created_at DESC
LIMIT 1;
`
	row := r.pool.QueryRow(ctx, q, contactID)
	var s PlantingSnapshot
	err := row.Scan(
		&s.PlantingID, &s.CropCode, &s.CropName, &s.CycleDays, &s.SowingDate,
		&s.ZoneID, &s.ZoneName, &s.Latitude, &s.Longitude,
		&s.MarketPrice, &s.PriceTrend,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("current planting: %w", err)
	}
	return &s, nil
}

// InsertFeedback stores the user's rating of a recommendation.
func (r *PostgresRepository) InsertFeedback(ctx context.Context, fb FeedbackRecord) error {
	const q = `
INSERT INTO feedback (planting_id, recommendation, rating)
VALUES ($1, $2, $3);
`
	if _, err := r.pool.Exec(ctx, q, fb.PlantingID, fb.Recommendation, fb.Rating); err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

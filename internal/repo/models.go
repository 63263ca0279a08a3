package repo

import "time"

// User represents the users table row.
type User struct {
	ID          string
	ContactID   string
	DisplayName string
	Status      string
	ZoneID      int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Zone is reference data describing an agro-ecological region.
type Zone struct {
	ID        int
	Name      string
	Latitude  float64
	Longitude float64
}

// Crop is reference data owned by the catalog tables.
type Crop struct {
	ID          string
	Code        string
	Name        string
	CycleDays   int
	MarketPrice *float64
	PriceTrend  *string
}

// Planting represents one recorded crop cycle for a user.
type Planting struct {
	ID          string
	UserID      string
	CropID      string
	SowingDate  time.Time
	ElapsedDays int
	Active      bool
	CreatedAt   time.Time
}

// Registration carries all data needed to complete a registration in one
// transaction: the user upsert plus the new planting row.
type Registration struct {
	ContactID   string
	DisplayName string
	ZoneID      int
	CropCode    string
	SowingDate  time.Time
	ElapsedDays int
}

// PlantingSnapshot is the current planting joined with its crop and zone,
// as needed to build a report.
type PlantingSnapshot struct {
	PlantingID  string
	CropCode    string
	CropName    string
	CycleDays   int
	SowingDate  time.Time
	ZoneID      int
	ZoneName    string
	Latitude    float64
	Longitude   float64
	MarketPrice *float64
	PriceTrend  *string
}

// FeedbackRecord links a planting to the recommendation shown and the
// user's rating of it.
type FeedbackRecord struct {
	PlantingID     string
	Recommendation string
	Rating         string
}

package repo

import (
	"context"
	"errors"
	"io/fs"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("repo: not found")

// Repository defines the interface for data persistence.
type Repository interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Users
	UserExists(ctx context.Context, contactID string) (bool, error)

	// Registration: upserts the user, deactivates previous active
	// plantings and inserts the new one, all in one transaction.
	CompleteRegistration(ctx context.Context, reg Registration) (*Planting, error)

	// Plantings
	CurrentPlanting(ctx context.Context, contactID string) (*PlantingSnapshot, error)

	// Catalog
	ListCrops(ctx context.Context) ([]Crop, error)
	GetCropByCode(ctx context.Context, code string) (*Crop, error)
	GetZone(ctx context.Context, id int) (*Zone, error)

	// Feedback
	InsertFeedback(ctx context.Context, fb FeedbackRecord) error
}

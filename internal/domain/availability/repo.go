package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type WindowRepository interface {
	Create(ctx context.Context, w *AvailabilityWindow) error
	GetByID(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error)
	Update(ctx context.Context, w *AvailabilityWindow) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByDoctor returns windows overlapping [from, to), newest page first.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time, limit, offset int) ([]*AvailabilityWindow, int, error)
	// ListOverlapping returns every window overlapping [from, to), unpaged.
	ListOverlapping(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*AvailabilityWindow, error)
}

// Cache is the slice of the platform cache client the availability
// service needs. Failures are treated as misses, never as errors.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

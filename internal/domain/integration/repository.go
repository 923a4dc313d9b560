package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists integrations
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Integration, error)
	List(ctx context.Context) ([]Integration, error)
	// ListActive returns every active integration; callers filter by event.
	ListActive(ctx context.Context) ([]Integration, error)
	Create(ctx context.Context, in *Integration) error
	Update(ctx context.Context, in *Integration) error
	Delete(ctx context.Context, id uuid.UUID) error
	MarkTriggered(ctx context.Context, id uuid.UUID, at time.Time) error
}

package repository

import (
	"aifit/coach-app/internal/domain"
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrUpdateFailed = RepositoryError("update failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
}

// GenerationRecordRepository defines the interface for persisting generation
// records. Writes are whole-document replacement keyed by the record id, so
// re-running an interrupted update is safe.
type GenerationRecordRepository interface {
	Create(ctx context.Context, record *domain.GenerationRecord) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.GenerationRecord, error)
	// Update replaces the stored record and advances updatedAt.
	Update(ctx context.Context, record *domain.GenerationRecord) error
	// GetByOwnerAndPhase returns the owner's records currently in the given
	// phase, oldest first. Recovery sweeps drive off this query.
	GetByOwnerAndPhase(ctx context.Context, ownerID primitive.ObjectID, phase domain.GenerationPhase) ([]domain.GenerationRecord, error)
	// GetActiveByOwnerAndKind returns the owner's non-terminal record for a
	// plan kind, or ErrNotFound. At most one such record exists at a time.
	GetActiveByOwnerAndKind(ctx context.Context, ownerID primitive.ObjectID, kind domain.PlanKind) (*domain.GenerationRecord, error)
	// Archive sets the archive flag and timestamp without touching any other
	// field.
	Archive(ctx context.Context, id primitive.ObjectID, at time.Time) error
}

// PlanRepository defines the interface for persisting generated plans.
type PlanRepository interface {
	Create(ctx context.Context, plan *domain.Plan) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Plan, error)
	GetByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]domain.Plan, error)
	// GetCurrentByOwnerAndKind returns the owner's newest unarchived plan of
	// the given kind, or ErrNotFound.
	GetCurrentByOwnerAndKind(ctx context.Context, ownerID primitive.ObjectID, kind domain.PlanKind) (*domain.Plan, error)
	// Archive sets the archive flag and timestamp without touching any other
	// field.
	Archive(ctx context.Context, id primitive.ObjectID, at time.Time) error
}

package repository

import (
	"context"
	"errors"

	"invoice-api/internal/domain"

	"github.com/jackc/pgx/v5"
)

// ErrUserNotFound is returned when no user matches the lookup
var ErrUserNotFound = errors.New("user not found")

// UserRepository defines the interface for user data operations
type UserRepository interface {
	// GetByExternalID retrieves a user by the subject of their identity token
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
}

// QueryObserver receives timing samples for every query a repository runs
type QueryObserver interface {
	RecordDBQuery(sample domain.QuerySample)
}

// Querier is the subset of pgxpool.Pool the repositories use
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

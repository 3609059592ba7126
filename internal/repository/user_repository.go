package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invoice-api/internal/domain"

	"github.com/jackc/pgx/v5"
)

// userRepository reads user accounts from PostgreSQL
type userRepository struct {
	db       Querier
	observer QueryObserver
}

// NewUserRepository creates a new user repository. observer may be nil.
func NewUserRepository(db Querier, observer QueryObserver) UserRepository {
	return &userRepository{
		db:       db,
		observer: observer,
	}
}

// GetByExternalID retrieves a user by the subject of their identity token
func (r *userRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	query := `
		SELECT id, external_id, email, name, COALESCE(company, ''), created_at, updated_at
		FROM users
		WHERE external_id = $1
	`

	start := time.Now()
	user := &domain.User{}
	err := r.db.QueryRow(ctx, query, externalID).Scan(
		&user.ID,
		&user.ExternalID,
		&user.Email,
		&user.Name,
		&user.Company,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	rows := 1.0
	if err != nil {
		rows = 0
	}
	r.observe("select", "users", start, rows)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by external id: %w", err)
	}

	return user, nil
}

func (r *userRepository) observe(operation, table string, start time.Time, rows float64) {
	if r.observer == nil {
		return
	}
	r.observer.RecordDBQuery(domain.QuerySample{
		Timestamp:  time.Now(),
		Operation:  operation,
		Table:      table,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000,
		Rows:       rows,
	})
}

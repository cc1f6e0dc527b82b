package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lotline-erp/lotline-erp/internal/shared"
)

// RepositoryPort abstracts token persistence.
type RepositoryPort interface {
	GetToken(ctx context.Context, id int64) (APIToken, error)
	TouchToken(ctx context.Context, id int64, usedAt time.Time) error
}

// Repository reads API tokens from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetToken loads one token row by id.
func (r *Repository) GetToken(ctx context.Context, id int64) (APIToken, error) {
	var token APIToken
	err := r.pool.QueryRow(ctx, `SELECT id, actor_id, name, secret_hash, is_active, created_at, last_used_at
FROM api_tokens WHERE id=$1`, id).
		Scan(&token.ID, &token.ActorID, &token.Name, &token.SecretHash, &token.IsActive, &token.CreatedAt, &token.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return APIToken{}, shared.ErrNotFound
		}
		return APIToken{}, err
	}
	return token, nil
}

// TouchToken records the last successful use of a token.
func (r *Repository) TouchToken(ctx context.Context, id int64, usedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_tokens SET last_used_at=$2 WHERE id=$1`, id, usedAt)
	return err
}

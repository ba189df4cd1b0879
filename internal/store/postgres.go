// Package store holds the optional Postgres connection used for readiness checks and for
// fetching the model artifact at startup.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrArtifactNotFound = errors.New("model artifact not found")

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

// Querier is the subset of pgxpool.Pool used by the repository.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ModelRepository reads serialized models from the model_artifacts table:
//
//	CREATE TABLE model_artifacts (name TEXT PRIMARY KEY, artifact JSONB NOT NULL);
type ModelRepository struct {
	db Querier
}

func NewModelRepository(db Querier) *ModelRepository {
	return &ModelRepository{db: db}
}

const selectArtifact = `SELECT artifact::text FROM model_artifacts WHERE name = $1`

// Artifact returns the raw JSON stored under name.
func (r *ModelRepository) Artifact(ctx context.Context, name string) ([]byte, error) {
	var raw string
	err := r.db.QueryRow(ctx, selectArtifact, name).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("query artifact: %w", err)
	}
	return []byte(raw), nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store hands out repository sessions scoped to a single unit of work.
// The release func must be called exactly once, whether or not the work
// succeeded.
type Store interface {
	Session(ctx context.Context) (TicketRepository, func(), error)
}

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store that pins one pooled connection per session.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) Session(ctx context.Context) (TicketRepository, func(), error) {
	if s.pool == nil {
		return nil, nil, errors.New("postgres pool not configured")
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire connection: %w", err)
	}
	return NewTicketRepository(conn), conn.Release, nil
}

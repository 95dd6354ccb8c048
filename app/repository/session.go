package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store hands out repositories bound to a dedicated connection for the
// duration of one unit of work.
type Store struct {
	db *gorm.DB
}

// NewStore creates a session store over a GORM DB handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Session runs fn with repositories bound to one pooled connection. The
// connection is returned to the pool when fn returns, panics included.
func (s *Store) Session(ctx context.Context, fn func(repos *Repositories) error) error {
	return s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		return fn(NewRepositories(conn))
	})
}

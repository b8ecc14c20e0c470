package credential

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/loykin/checkin/internal/constants"
	"github.com/loykin/checkin/internal/store"
)

// Store keeps the last known-good credential of every target.
type Store struct {
	mu      sync.Mutex
	backend store.Connector
	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewStore returns a credential store over backend.
func NewStore(backend store.Connector) *Store {
	return &Store{backend: backend, Now: time.Now}
}

// Get returns the stored credential of target, if any.
func (s *Store) Get(ctx context.Context, target string) (store.Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.backend.LoadCredential(ctx, target)
	if errors.Is(err, store.ErrNotFound) {
		return store.Credential{}, false, nil
	}
	if err != nil {
		return store.Credential{}, false, err
	}
	return c, c.Value != "", nil
}

// Put overwrites the credential of target, stamped with today's date.
func (s *Store) Put(ctx context.Context, target, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	return s.backend.SaveCredential(ctx, store.Credential{
		Target:    target,
		Value:     value,
		Date:      now.Format(constants.DateLayout),
		UpdatedAt: now.Format(time.RFC3339),
	})
}

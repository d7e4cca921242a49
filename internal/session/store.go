// Package session persists USSD session state keyed by the aggregator's
// session id. A session older than the store's TTL is treated as absent.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"harvestlink/internal/domain"
)

// ErrUnavailable wraps every backend failure so callers can tell storage
// problems apart from menu outcomes.
var ErrUnavailable = errors.New("session store unavailable")

// DefaultTTL is the inactivity window after which a session is discarded.
const DefaultTTL = 5 * time.Minute

// Store is the contract the session driver relies on.
type Store interface {
	// Get never reports a missing session: it returns a fresh one at
	// domain.StepInitial instead.
	Get(ctx context.Context, id string) (domain.Session, error)
	Put(ctx context.Context, s domain.Session) error
	Delete(ctx context.Context, id string) error
	// Purge removes expired sessions and reports how many were dropped.
	Purge(ctx context.Context) (int64, error)
	List(ctx context.Context) ([]domain.Session, error)
}

// Fresh returns an empty session at the initial step.
func Fresh(id string) domain.Session {
	return domain.Session{ID: id, CurrentStep: domain.StepInitial}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

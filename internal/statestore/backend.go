package statestore

import (
	"context"
	"fmt"
	"time"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// DefaultMaxAge is the retention used by ClearExpired when none is given.
const DefaultMaxAge = 24 * time.Hour

// Backend persists and restores one snapshot.
//
// Restore returns (nil, nil) when nothing is stored. Implementations never
// panic past their boundary.
type Backend interface {
	Name() string
	Save(ctx context.Context, s *domain.Snapshot) error
	Restore(ctx context.Context) (*domain.Snapshot, error)
}

// Expirer is implemented by backends that can drop stale snapshots.
type Expirer interface {
	ClearExpired(ctx context.Context, maxAge time.Duration) error
}

// recoverInto converts a panic in a backend call into an error.
func recoverInto(err *error, backend, op string) {
	if r := recover(); r != nil {
		*err = domain.ErrBackendUnavailable.WithDetails(fmt.Sprintf("%s %s panicked: %v", backend, op, r))
	}
}

func maxAgeOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultMaxAge
	}
	return d
}

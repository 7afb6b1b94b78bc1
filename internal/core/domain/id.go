package domain

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// GenerateID returns prefix followed by a lowercase ULID for time t.
func GenerateID(prefix string, t time.Time) (string, error) {
	entropyMu.Lock()
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	entropyMu.Unlock()
	if err != nil {
		return "", ErrInternal.WithCause(err)
	}
	return prefix + strings.ToLower(id.String()), nil
}

// MustGenerateID is GenerateID for callers that cannot handle an error.
// It falls back to a timestamp-only ID if entropy is exhausted.
func MustGenerateID(prefix string) string {
	now := time.Now()
	id, err := GenerateID(prefix, now)
	if err != nil {
		var zero ulid.ULID
		_ = zero.SetTime(ulid.Timestamp(now))
		return prefix + strings.ToLower(zero.String())
	}
	return id
}

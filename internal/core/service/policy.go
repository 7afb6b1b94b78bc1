package service

import (
	"time"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// MaxRestoreAge is the age at which a snapshot stops being restorable.
const MaxRestoreAge = 60 * time.Minute

// RestoreContext describes the page a snapshot would be restored into.
type RestoreContext struct {
	URI         string
	Orientation domain.Orientation
	Now         time.Time
}

// ShouldRestore reports whether s may be applied in cur.
//
// Snapshots aged exactly MaxRestoreAge or more are rejected. Orientation
// differences never block a restore.
func ShouldRestore(s *domain.Snapshot, cur RestoreContext) bool {
	if s == nil {
		return false
	}
	now := cur.Now
	if now.IsZero() {
		now = time.Now()
	}
	return s.Age(now) < MaxRestoreAge
}

// PathMatches reports whether two URIs share the same path. Empty or
// unparseable URIs never match.
func PathMatches(savedURI, currentURI string) bool {
	saved, current := domain.PathOf(savedURI), domain.PathOf(currentURI)
	if saved == "" || current == "" {
		return false
	}
	return saved == current
}

// OrientationChanged reports whether the viewport turned since capture.
func OrientationChanged(s *domain.Snapshot, cur RestoreContext) bool {
	return s != nil && s.Orientation != "" && cur.Orientation != "" && s.Orientation != cur.Orientation
}

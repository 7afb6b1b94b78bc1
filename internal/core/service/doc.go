// Package service holds the page-side state services of shellkeep.
//
// This package contains:
//
//   - the restore decision policy (ShouldRestore, PathMatches)
//   - Controller: the Idle/Restoring/Saving state machine that collects
//     snapshots on suspension and applies them on startup or resume
//   - in-memory Navigator and AppState collaborators for hosts without a
//     routing layer of their own
//
// The controller is the only component here that logs; collectors and
// backends report through return values.
package service

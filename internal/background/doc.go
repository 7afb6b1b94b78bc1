// Package background manages periodic timers that must pause while the
// host is backgrounded, and tracks user activity.
package background

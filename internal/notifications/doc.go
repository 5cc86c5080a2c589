// Package notifications pushes run milestones to ntfy.
//
// Events are published with a small string payload and rendered into an
// ntfy title, message, and tag set. When no topic is configured NewService
// returns a no-op so callers never branch on whether notifications are on.
package notifications

// Package notifications pushes sync events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured. Event
// kinds can be muted individually through the [notifications] config section,
// so callers publish unconditionally and let the service decide.
package notifications

// Package notify surfaces sync events to the user without ever
// blocking the caller. The sync driver fires and forgets.
package notify

import (
	"github.com/notedeck/notedeck/internal/logging"
)

// Kind classifies a notification.
type Kind string

const (
	KindSyncFailed       Kind = "sync.failed"
	KindConflictResolved Kind = "sync.conflict_resolved"
	KindOwnership        Kind = "sync.ownership_conflict"
	KindAttachment       Kind = "attachment.unresolved"
)

// Notifier delivers a fire-and-forget notification. Implementations
// must not block and must swallow their own delivery failures.
type Notifier interface {
	Notify(kind Kind, message string)
}

// LogNotifier writes notifications to the structured log. It is the
// default sink when no UI is connected.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(kind Kind, message string) {
	logging.Warn("user notification",
		map[string]interface{}{"kind": string(kind), "message": message})
}

// Multi fans one notification out to several sinks.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(kind Kind, message string) {
	for _, n := range m {
		n.Notify(kind, message)
	}
}

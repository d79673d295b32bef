// Package store provides repository interfaces for todo persistence.
package store

import (
	"github.com/notedeck/notedeck/internal/models"
)

// TodoRepository defines operations for todo record persistence. The
// interface exists so the sync driver can be tested against an
// in-memory implementation.
type TodoRepository interface {
	// InsertTodo creates a todo record under a caller-provided id.
	InsertTodo(rec *models.TodoRecord) error

	// GetTodo retrieves a todo record by id regardless of document.
	GetTodo(id string) (*models.TodoRecord, error)

	// ListByDocument returns the live records of one document.
	ListByDocument(documentID string) ([]*models.TodoRecord, error)

	// UpdateTodo overwrites a live record's mutable fields.
	UpdateTodo(rec *models.TodoRecord) error

	// DeleteTodo tombstones a record.
	DeleteTodo(id string) error
}

// ChangeLogRepository defines operations for change log persistence.
type ChangeLogRepository interface {
	CreateChangeLog(log *models.ChangeLog) error
}

// ConflictLogRepository defines operations for conflict log persistence.
type ConflictLogRepository interface {
	CreateConflictLog(log *models.ConflictLog) error
}

// SyncRepository groups the repositories the sync driver needs.
type SyncRepository interface {
	TodoRepository
	ChangeLogRepository
	ConflictLogRepository
}

// Ensure *Repository implements the interfaces at compile time.
var (
	_ TodoRepository        = (*Repository)(nil)
	_ ChangeLogRepository   = (*Repository)(nil)
	_ ConflictLogRepository = (*Repository)(nil)
	_ SyncRepository        = (*Repository)(nil)
)

// Package models provides data model definitions for the notedeck backend.
package models

import (
	"database/sql/driver"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// TodoRecord is the store-side row for a todo embedded in a document.
// The ID is shared with the embedded node and is the join key between
// the two representations. Unassigned fields use zero values: an empty
// AssignedTo means no assignee, a zero DueDate means no due date.
type TodoRecord struct {
	ID            UUID     `db:"id" json:"id"`
	DocumentID    UUID     `db:"document_id" json:"document_id"`
	Content       string   `db:"content" json:"content"`
	Completed     bool     `db:"completed" json:"completed"`
	AssignedTo    string   `db:"assigned_to" json:"assigned_to,omitempty"`
	DueDate       int64    `db:"due_date" json:"due_date,omitempty"`
	ProjectID     string   `db:"project_id" json:"project_id,omitempty"`
	AttachmentIDs []string `db:"attachment_ids" json:"attachment_ids,omitempty"`
	Version       int      `db:"version" json:"version"`
	CreatedBy     string   `db:"created_by" json:"created_by"`
	CreatedAt     int64    `db:"created_at" json:"created_at"`
	UpdatedAt     int64    `db:"updated_at" json:"updated_at"`
	IsDeleted     bool     `db:"is_deleted" json:"is_deleted"`
}

// TableName returns the table name for TodoRecord.
func (TodoRecord) TableName() string {
	return "todos"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (t *TodoRecord) CreatedAtTime() time.Time {
	return time.Unix(t.CreatedAt, 0)
}

// UpdatedAtTime returns the UpdatedAt as time.Time.
func (t *TodoRecord) UpdatedAtTime() time.Time {
	return time.Unix(t.UpdatedAt, 0)
}

// Touch updates the UpdatedAt timestamp.
func (t *TodoRecord) Touch() {
	t.UpdatedAt = time.Now().Unix()
}

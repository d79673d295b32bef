// Package models provides data model definitions for the notedeck backend.
package models

import "time"

// ChangeLog tracks committed store mutations so board, calendar and
// analytics views can query what changed since they last rendered.
type ChangeLog struct {
	ID         UUID   `db:"id" json:"id"`
	TodoID     UUID   `db:"todo_id" json:"todo_id"`
	DocumentID UUID   `db:"document_id" json:"document_id"`
	Operation  string `db:"operation" json:"operation"` // insert, update, delete
	Version    int    `db:"version" json:"version"`
	Timestamp  int64  `db:"timestamp" json:"timestamp"`
}

// TableName returns the table name for ChangeLog.
func (ChangeLog) TableName() string {
	return "change_log"
}

// Time returns the Timestamp as time.Time.
func (c *ChangeLog) Time() time.Time {
	return time.Unix(c.Timestamp, 0)
}

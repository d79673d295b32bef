// Package store provides CRUD repository operations for todo records.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/notedeck/notedeck/internal/errors"
	"github.com/notedeck/notedeck/internal/models"
	"github.com/notedeck/notedeck/internal/uuid"
)

// Repository provides CRUD operations over the todo tables. Statements
// are prepared on first use and cached for reuse.
type Repository struct {
	db *sql.DB

	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate.
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// TodoRecord Operations
// =====================================================

const todoColumns = `id, document_id, content, completed, assigned_to, due_date,
	project_id, attachment_ids, version, created_by, created_at, updated_at, is_deleted`

// InsertTodo creates a todo record. The id is the join key shared with
// the embedded node and must be provided by the caller, never
// generated here. Inserting over a tombstone revives the row.
func (r *Repository) InsertTodo(rec *models.TodoRecord) error {
	if rec.ID == "" {
		return errors.New(errors.ErrInvalid, "todo record requires an id")
	}
	now := time.Now().Unix()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Version < 1 {
		rec.Version = 1
	}
	rec.IsDeleted = false

	query := `
	INSERT INTO todos (` + todoColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	ON CONFLICT(id) DO UPDATE SET
		document_id = excluded.document_id,
		content = excluded.content,
		completed = excluded.completed,
		assigned_to = excluded.assigned_to,
		due_date = excluded.due_date,
		project_id = excluded.project_id,
		attachment_ids = excluded.attachment_ids,
		version = excluded.version,
		updated_at = excluded.updated_at,
		is_deleted = 0
	WHERE todos.is_deleted = 1
	`
	_, err := r.db.Exec(query, rec.ID, rec.DocumentID, rec.Content, rec.Completed,
		rec.AssignedTo, rec.DueDate, rec.ProjectID, marshalAttachments(rec.AttachmentIDs),
		rec.Version, rec.CreatedBy, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return errors.Wrap(errors.ErrStoreFailed, "insert todo failed", err)
	}
	return nil
}

// GetTodo retrieves a todo record by id, tombstoned or not. Callers
// needing only live records filter on IsDeleted.
func (r *Repository) GetTodo(id string) (*models.TodoRecord, error) {
	query := `SELECT ` + todoColumns + ` FROM todos WHERE id = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rec, err := scanTodo(stmt.QueryRow(id))
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreFailed, "get todo failed", err)
	}
	return rec, nil
}

// ListByDocument returns the live todo records of one document,
// ordered by creation time.
func (r *Repository) ListByDocument(documentID string) ([]*models.TodoRecord, error) {
	query := `SELECT ` + todoColumns + ` FROM todos
		WHERE document_id = ? AND is_deleted = 0 ORDER BY created_at, id`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(documentID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreFailed, "list todos failed", err)
	}
	defer rows.Close()

	var recs []*models.TodoRecord
	for rows.Next() {
		rec, err := scanTodo(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrStoreFailed, "scan todo failed", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrStoreFailed, "list todos failed", err)
	}
	return recs, nil
}

// UpdateTodo overwrites the mutable fields of a live record and bumps
// its updated_at timestamp.
func (r *Repository) UpdateTodo(rec *models.TodoRecord) error {
	rec.Touch()
	query := `
	UPDATE todos
	SET content = ?, completed = ?, assigned_to = ?, due_date = ?, project_id = ?,
		attachment_ids = ?, version = ?, updated_at = ?
	WHERE id = ? AND is_deleted = 0
	`
	result, err := r.db.Exec(query, rec.Content, rec.Completed, rec.AssignedTo,
		rec.DueDate, rec.ProjectID, marshalAttachments(rec.AttachmentIDs),
		rec.Version, rec.UpdatedAt, rec.ID)
	if err != nil {
		return errors.Wrap(errors.ErrStoreFailed, "update todo failed", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Newf(errors.ErrNotFound, "todo record not found: %s", rec.ID)
	}
	return nil
}

// DeleteTodo tombstones a todo record. The row is kept so analytics
// and recovery flows can still see it.
func (r *Repository) DeleteTodo(id string) error {
	query := `UPDATE todos SET is_deleted = 1, updated_at = ? WHERE id = ? AND is_deleted = 0`
	result, err := r.db.Exec(query, time.Now().Unix(), id)
	if err != nil {
		return errors.Wrap(errors.ErrStoreFailed, "delete todo failed", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Newf(errors.ErrNotFound, "todo record not found: %s", id)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTodo(s scanner) (*models.TodoRecord, error) {
	var rec models.TodoRecord
	var attachments string
	err := s.Scan(
		&rec.ID, &rec.DocumentID, &rec.Content, &rec.Completed, &rec.AssignedTo,
		&rec.DueDate, &rec.ProjectID, &attachments, &rec.Version, &rec.CreatedBy,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.IsDeleted,
	)
	if err != nil {
		return nil, err
	}
	rec.AttachmentIDs = unmarshalAttachments(attachments)
	return &rec, nil
}

// marshalAttachments stores the ordered attachment id list as JSON.
func marshalAttachments(ids []string) string {
	if len(ids) == 0 {
		return "[]"
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalAttachments(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}

// =====================================================
// ChangeLog Operations
// =====================================================

// CreateChangeLog records one committed store mutation.
func (r *Repository) CreateChangeLog(log *models.ChangeLog) error {
	log.ID = models.UUID(uuid.New())
	log.Timestamp = time.Now().Unix()

	query := `
	INSERT INTO change_log (id, todo_id, document_id, operation, version, timestamp)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, log.ID, log.TodoID, log.DocumentID, log.Operation,
		log.Version, log.Timestamp)
	if err != nil {
		return errors.Wrap(errors.ErrStoreFailed, "create change log failed", err)
	}
	return nil
}

// ListChangeLog returns change log entries for a document since a unix
// timestamp, oldest first. Board and analytics views poll this.
func (r *Repository) ListChangeLog(documentID string, since int64) ([]*models.ChangeLog, error) {
	query := `SELECT id, todo_id, document_id, operation, version, timestamp
		FROM change_log WHERE document_id = ? AND timestamp >= ? ORDER BY timestamp`
	rows, err := r.db.Query(query, documentID, since)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreFailed, "list change log failed", err)
	}
	defer rows.Close()

	var logs []*models.ChangeLog
	for rows.Next() {
		var l models.ChangeLog
		if err := rows.Scan(&l.ID, &l.TodoID, &l.DocumentID, &l.Operation, &l.Version, &l.Timestamp); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// =====================================================
// ConflictLog Operations
// =====================================================

// CreateConflictLog records one resolved reconciliation conflict.
func (r *Repository) CreateConflictLog(log *models.ConflictLog) error {
	log.ID = models.UUID(uuid.New())
	if log.DetectedAt == 0 {
		log.DetectedAt = time.Now().Unix()
	}

	query := `
	INSERT INTO conflict_log (id, todo_id, local_timestamp, remote_timestamp, resolution, detected_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, log.ID, log.TodoID, log.LocalTimestamp,
		log.RemoteTimestamp, log.Resolution, log.DetectedAt)
	if err != nil {
		return errors.Wrap(errors.ErrStoreFailed, "create conflict log failed", err)
	}
	return nil
}

// Package sync test doubles: an in-memory repository and a recording
// notifier.
package sync

import (
	"database/sql"
	gosync "sync"
	"time"

	"github.com/notedeck/notedeck/internal/errors"
	"github.com/notedeck/notedeck/internal/models"
	"github.com/notedeck/notedeck/internal/notify"
)

// fakeRepo is an in-memory store.SyncRepository with per-operation
// error injection and call counters.
type fakeRepo struct {
	mu      gosync.Mutex
	records map[string]*models.TodoRecord

	changeLogs   []*models.ChangeLog
	conflictLogs []*models.ConflictLog

	inserts int
	updates int
	deletes int

	failInsert error
	failUpdate error
	failDelete error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[string]*models.TodoRecord)}
}

func copyRecord(rec *models.TodoRecord) *models.TodoRecord {
	c := *rec
	c.AttachmentIDs = append([]string(nil), rec.AttachmentIDs...)
	return &c
}

func (r *fakeRepo) InsertTodo(rec *models.TodoRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	if r.failInsert != nil {
		return r.failInsert
	}
	now := time.Now().Unix()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.IsDeleted = false
	r.records[string(rec.ID)] = copyRecord(rec)
	return nil
}

func (r *fakeRepo) GetTodo(id string) (*models.TodoRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return copyRecord(rec), nil
}

func (r *fakeRepo) ListByDocument(documentID string) ([]*models.TodoRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var recs []*models.TodoRecord
	for _, rec := range r.records {
		if string(rec.DocumentID) == documentID && !rec.IsDeleted {
			recs = append(recs, copyRecord(rec))
		}
	}
	return recs, nil
}

func (r *fakeRepo) UpdateTodo(rec *models.TodoRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.failUpdate != nil {
		return r.failUpdate
	}
	existing, ok := r.records[string(rec.ID)]
	if !ok || existing.IsDeleted {
		return errors.Newf(errors.ErrNotFound, "todo record not found: %s", rec.ID)
	}
	rec.Touch()
	rec.CreatedAt = existing.CreatedAt
	r.records[string(rec.ID)] = copyRecord(rec)
	return nil
}

func (r *fakeRepo) DeleteTodo(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	if r.failDelete != nil {
		return r.failDelete
	}
	rec, ok := r.records[id]
	if !ok || rec.IsDeleted {
		return errors.Newf(errors.ErrNotFound, "todo record not found: %s", id)
	}
	rec.IsDeleted = true
	rec.UpdatedAt = time.Now().Unix()
	return nil
}

func (r *fakeRepo) CreateChangeLog(log *models.ChangeLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changeLogs = append(r.changeLogs, log)
	return nil
}

func (r *fakeRepo) CreateConflictLog(log *models.ConflictLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflictLogs = append(r.conflictLogs, log)
	return nil
}

// get returns the stored record, including tombstones.
func (r *fakeRepo) get(id string) *models.TodoRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		return copyRecord(rec)
	}
	return nil
}

// seed stores a record directly, bypassing the counters.
func (r *fakeRepo) seed(rec *models.TodoRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[string(rec.ID)] = copyRecord(rec)
}

func (r *fakeRepo) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu     gosync.Mutex
	events []notify.Kind
}

func (n *recordingNotifier) Notify(kind notify.Kind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, kind)
}

func (n *recordingNotifier) count(kind notify.Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, k := range n.events {
		if k == kind {
			c++
		}
	}
	return c
}

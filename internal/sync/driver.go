package sync

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/notedeck/notedeck/internal/config"
	"github.com/notedeck/notedeck/internal/document"
	"github.com/notedeck/notedeck/internal/errors"
	"github.com/notedeck/notedeck/internal/logging"
	"github.com/notedeck/notedeck/internal/models"
	"github.com/notedeck/notedeck/internal/notify"
	"github.com/notedeck/notedeck/internal/store"
	"github.com/notedeck/notedeck/internal/sync/reconcile"
)

// State is the sync driver's per-document state machine.
type State string

const (
	// StateIdle: document and store agree as far as the driver knows.
	StateIdle State = "idle"
	// StatePending: a todo-affecting transaction occurred; a sync is
	// scheduled after the debounce window.
	StatePending State = "pending"
	// StateSyncing: a sync round-trip is in flight.
	StateSyncing State = "syncing"
)

// SyncResult summarizes one sync round-trip.
type SyncResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Inserted   int
	Updated    int
	Deleted    int
	MergedBack int
	Detached   int
	Conflicts  int
	Failed     int
}

// Driver owns the sync state of one open document. Exactly one driver
// may be bound to a document at a time; the Manager enforces this.
type Driver struct {
	documentID string
	userID     string
	editor     *document.Editor
	repo       store.SyncRepository
	notifier   notify.Notifier
	cfg        config.SyncConfig

	mu       gosync.Mutex
	state    State
	prev     []document.TodoNode
	marks    map[string]reconcile.SyncMark
	failures map[string]int
	reported map[string]bool
	retry    *RetryQueue
	debounce *time.Timer
	lastSync *time.Time
	lastErr  error
	closed   bool

	stopCh chan struct{}
	wg     gosync.WaitGroup
}

func newDriver(documentID, userID string, editor *document.Editor,
	repo store.SyncRepository, notifier notify.Notifier, cfg config.SyncConfig) *Driver {
	d := &Driver{
		documentID: documentID,
		userID:     userID,
		editor:     editor,
		repo:       repo,
		notifier:   notifier,
		cfg:        cfg,
		state:      StateIdle,
		marks:      make(map[string]reconcile.SyncMark),
		failures:   make(map[string]int),
		reported:   make(map[string]bool),
		retry:      NewRetryQueue(cfg.MaxRetries),
		stopCh:     make(chan struct{}),
	}
	// The document may already contain synced todos from a previous
	// session; treat them as the previous snapshot so reload does not
	// look like mass creation.
	d.prev = document.ExtractTodos(editor.Document())
	for i := range d.prev {
		n := &d.prev[i]
		d.marks[n.ID] = reconcile.SyncMark{Version: n.Version, SyncedAt: n.ModifiedAt}
	}

	editor.OnChange(d.noteChange)

	d.wg.Add(1)
	go d.intervalLoop()

	return d
}

// State returns the driver's current state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// LastSync returns the timestamp of the last fully successful sync.
func (d *Driver) LastSync() *time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSync
}

// LastError returns the most recent sync error, nil after a clean run.
func (d *Driver) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// noteChange is the editor's change event consumer: any todo-affecting
// transaction arms (or re-arms) the debounce timer.
func (d *Driver) noteChange(ev document.ChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	d.state = StatePending
	if d.debounce != nil {
		d.debounce.Stop()
	}
	d.debounce = time.AfterFunc(d.cfg.DebounceWindow, d.debouncedSync)
}

// debouncedSync fires when the debounce window elapses with no further
// edits. Rapid edits inside the window batch into one round-trip.
func (d *Driver) debouncedSync() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := d.sync(ctx); err != nil {
		logging.Error("debounced sync failed", err,
			map[string]interface{}{"document_id": d.documentID})
	}
}

// ForceSync runs a sync immediately, superseding any pending debounced
// sync. Called by the host UI before navigation and on dispose.
func (d *Driver) ForceSync(ctx context.Context) (*SyncResult, error) {
	d.retry.Reset()
	return d.sync(ctx)
}

// intervalLoop periodically merges store-side changes back into the
// document even when no local edits occur.
func (d *Driver) intervalLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			if d.State() == StateSyncing {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if _, err := d.sync(ctx); err != nil {
				logging.Error("interval sync failed", err,
					map[string]interface{}{"document_id": d.documentID})
			}
			cancel()
		}
	}
}

// shutdown stops scheduling and makes one final best-effort sync.
func (d *Driver) shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if d.debounce != nil {
		d.debounce.Stop()
		d.debounce = nil
	}
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()

	// Final force-sync attempt: fire-and-forget semantics, completion
	// is not guaranteed.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := d.sync(ctx); err != nil {
		logging.Warn("final sync on dispose failed",
			map[string]interface{}{"document_id": d.documentID, "error": err.Error()})
	}
	cancel()

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// sync runs one reconcile-and-commit round-trip. Operations for
// different ids commit independently: one failing record never blocks
// the rest of the batch.
func (d *Driver) sync(ctx context.Context) (*SyncResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New(errors.ErrSyncFailed, "sync driver is disposed")
	}

	// A running sync supersedes the debounce timer.
	if d.debounce != nil {
		d.debounce.Stop()
		d.debounce = nil
	}
	d.state = StateSyncing

	result := &SyncResult{StartTime: time.Now()}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	curr := document.ExtractTodos(d.editor.Document())
	intents := d.editor.DeleteIntents()

	records, err := d.repo.ListByDocument(d.documentID)
	if err != nil {
		d.state = StatePending
		d.lastErr = err
		return result, errors.Wrap(errors.ErrSyncFailed, "failed to load store records", err)
	}

	recordIDs := make(map[string]bool, len(records))
	for _, rec := range records {
		recordIDs[string(rec.ID)] = true
	}

	// Ids in the document but not in this document's record set may be
	// bound to another document; fetch them so ownership conflicts are
	// reported rather than silently merged.
	for i := range curr {
		id := curr[i].ID
		if recordIDs[id] {
			continue
		}
		rec, err := d.repo.GetTodo(id)
		if err != nil {
			if stderrors.Is(err, sql.ErrNoRows) {
				continue
			}
			logging.Warn("failed to probe record ownership",
				map[string]interface{}{"todo_id": id, "error": err.Error()})
			continue
		}
		records = append(records, rec)
		recordIDs[id] = true
	}

	ops := reconcile.Reconcile(reconcile.Input{
		DocumentID:    d.documentID,
		UserID:        d.userID,
		Prev:          d.prev,
		Curr:          curr,
		Records:       records,
		DeleteIntents: intents,
		Marks:         d.marks,
		Now:           time.Now().Unix(),
	})

	d.commit(ctx, ops, result)

	// Delete intents with no backing record have nothing to destroy.
	deleting := make(map[string]bool, len(ops.Deletes))
	for _, id := range ops.Deletes {
		deleting[id] = true
	}
	for id := range intents {
		if !recordIDs[id] && !deleting[id] {
			d.editor.ClearDeleteIntent(id)
		}
	}

	// Merge-backs may have mutated the document; the post-commit tree
	// is the next previous snapshot.
	d.prev = document.ExtractTodos(d.editor.Document())

	if result.Failed > 0 {
		d.state = StatePending
		d.lastErr = errors.Newf(errors.ErrSyncFailed, "%d record(s) failed to commit", result.Failed)
		// Retry on the next debounce cycle.
		d.debounce = time.AfterFunc(d.cfg.DebounceWindow, d.debouncedSync)
	} else {
		d.state = StateIdle
		d.lastErr = nil
		now := time.Now()
		d.lastSync = &now
	}

	return result, nil
}

// commit applies an operation set: per-id store calls, change log
// entries, merge-backs into the document and conflict reporting.
func (d *Driver) commit(ctx context.Context, ops *reconcile.OperationSet, result *SyncResult) {
	now := time.Now().Unix()

	for _, rec := range ops.Inserts {
		if ctx.Err() != nil {
			result.Failed++
			continue
		}
		id := string(rec.ID)
		if !d.retry.Ready(id, now) {
			result.Failed++
			continue
		}
		if err := d.repo.InsertTodo(rec); err != nil {
			d.recordFailure(id, "insert", err)
			result.Failed++
			continue
		}
		d.recordSuccess(id, "insert", rec)
		result.Inserted++
	}

	for _, rec := range ops.Updates {
		if ctx.Err() != nil {
			result.Failed++
			continue
		}
		id := string(rec.ID)
		if !d.retry.Ready(id, now) {
			result.Failed++
			continue
		}
		if err := d.repo.UpdateTodo(rec); err != nil {
			d.recordFailure(id, "update", err)
			result.Failed++
			continue
		}
		d.recordSuccess(id, "update", rec)
		result.Updated++
	}

	for _, id := range ops.Deletes {
		if ctx.Err() != nil {
			result.Failed++
			continue
		}
		if !d.retry.Ready(id, now) {
			result.Failed++
			continue
		}
		err := d.repo.DeleteTodo(id)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			d.recordFailure(id, "delete", err)
			result.Failed++
			continue
		}
		d.editor.ClearDeleteIntent(id)
		delete(d.marks, id)
		d.failures[id] = 0
		d.retry.Complete(id)
		d.logChange(id, "delete", 0)
		result.Deleted++
	}

	for _, mb := range ops.MergeBacks {
		rec := mb.Record
		id := string(rec.ID)
		if mb.InDocument {
			if err := d.editor.ApplyPatch(id, reconcile.PatchFromRecord(rec)); err != nil {
				logging.Warn("merge-back skipped",
					map[string]interface{}{"todo_id": id, "error": err.Error()})
				continue
			}
		} else {
			d.editor.AppendRemote(reconcile.NodeFromRecord(rec))
		}
		d.marks[id] = reconcile.SyncMark{Version: rec.Version, SyncedAt: rec.UpdatedAt}
		result.MergedBack++
	}

	for _, c := range ops.Conflicts {
		result.Conflicts++
		d.reportConflict(c)
	}

	result.Detached += len(ops.Detached)
}

// recordSuccess advances the sync mark and clears failure state.
func (d *Driver) recordSuccess(id, operation string, rec *models.TodoRecord) {
	d.marks[id] = reconcile.SyncMark{Version: rec.Version, SyncedAt: rec.UpdatedAt}
	d.failures[id] = 0
	d.retry.Complete(id)
	d.logChange(id, operation, rec.Version)
}

// recordFailure counts a per-id store failure and surfaces it once the
// threshold of consecutive failures is reached.
func (d *Driver) recordFailure(id, operation string, err error) {
	d.failures[id]++
	d.retry.Failed(id, time.Now().Unix(), err)

	logging.Error("store operation failed", err, map[string]interface{}{
		"todo_id":   id,
		"operation": operation,
		"failures":  d.failures[id],
	})

	if d.failures[id] == d.cfg.FailureThreshold {
		d.notifier.Notify(notify.KindSyncFailed,
			fmt.Sprintf("changes to a task could not be saved after %d attempts; will keep retrying", d.failures[id]))
	}
}

// logChange records a committed mutation; failures here are logged,
// never propagated, since the commit itself already succeeded.
func (d *Driver) logChange(todoID, operation string, version int) {
	entry := &models.ChangeLog{
		TodoID:     models.UUID(todoID),
		DocumentID: models.UUID(d.documentID),
		Operation:  operation,
		Version:    version,
	}
	if err := d.repo.CreateChangeLog(entry); err != nil {
		logging.Warn("failed to write change log",
			map[string]interface{}{"todo_id": todoID, "error": err.Error()})
	}
}

// reportConflict persists a conflict log entry and decides whether the
// user needs to hear about it. Ownership and schema conflicts stay in
// the document until the user intervenes, so every sync pass re-detects
// them; they are logged and announced once per id per session.
func (d *Driver) reportConflict(c reconcile.Conflict) {
	if c.Resolution == "reported" {
		key := string(c.Kind) + ":" + c.TodoID
		if d.reported[key] {
			return
		}
		d.reported[key] = true
	}

	entry := &models.ConflictLog{
		TodoID:          models.UUID(c.TodoID),
		LocalTimestamp:  c.LocalTimestamp,
		RemoteTimestamp: c.RemoteTimestamp,
		Resolution:      c.Resolution,
	}
	if c.Kind == reconcile.ConflictOwnership {
		entry.Resolution = "ownership"
	}
	if err := d.repo.CreateConflictLog(entry); err != nil {
		logging.Warn("failed to write conflict log",
			map[string]interface{}{"todo_id": c.TodoID, "error": err.Error()})
	}

	switch {
	case c.Kind == reconcile.ConflictOwnership:
		d.notifier.Notify(notify.KindOwnership,
			fmt.Sprintf("task %s already belongs to another document", c.TodoID))
	case c.DiscardsLocal:
		// Resolution threw away unsaved local edits; that must be
		// surfaced. Conflicts resolved in favor of local edits are
		// only logged.
		d.notifier.Notify(notify.KindConflictResolved,
			fmt.Sprintf("a newer saved version of task %s replaced your local edits", c.TodoID))
	default:
		logging.Info("conflict resolved",
			map[string]interface{}{"todo_id": c.TodoID, "resolution": c.Resolution})
	}
}

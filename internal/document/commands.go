package document

import (
	"time"

	"github.com/notedeck/notedeck/internal/errors"
	"github.com/notedeck/notedeck/internal/uuid"
)

// ChangeKind classifies a todo-affecting transaction.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent is emitted after every todo-affecting command and
// consumed by the sync driver to schedule reconciliation.
type ChangeEvent struct {
	TodoID string
	Kind   ChangeKind
}

// undoEntry restores the document state prior to one command. Each
// command pushes exactly one entry, keeping commands atomic with
// respect to the undo history.
type undoEntry struct {
	todoID  string
	restore func()
}

// Editor is the command surface over one document. Commands addressing
// an id that no longer resolves return a TODO_NOT_FOUND error instead
// of panicking, to tolerate races with concurrent deletion.
type Editor struct {
	doc           *Document
	undo          []undoEntry
	deleteIntents map[string]bool
	onChange      func(ChangeEvent)
	now           func() int64
}

// NewEditor creates an editor bound to a document.
func NewEditor(doc *Document) *Editor {
	return &Editor{
		doc:           doc,
		deleteIntents: make(map[string]bool),
		now:           func() int64 { return time.Now().Unix() },
	}
}

// Document returns the underlying document.
func (e *Editor) Document() *Document {
	return e.doc
}

// OnChange registers the change event consumer. Only one consumer is
// supported; the sync driver owns the subscription.
func (e *Editor) OnChange(fn func(ChangeEvent)) {
	e.onChange = fn
}

func (e *Editor) emit(ev ChangeEvent) {
	if e.onChange != nil {
		e.onChange(ev)
	}
}

// DeleteIntents returns a copy of the ids removed by an explicit
// delete command since the intent was last cleared.
func (e *Editor) DeleteIntents() map[string]bool {
	intents := make(map[string]bool, len(e.deleteIntents))
	for id := range e.deleteIntents {
		intents[id] = true
	}
	return intents
}

// ClearDeleteIntent drops a delete intent once the store delete has
// been committed.
func (e *Editor) ClearDeleteIntent(id string) {
	delete(e.deleteIntents, id)
}

// InsertTodo creates a fresh todo node at the given block position.
// The position is clamped to the document bounds; inserting into a
// non-editable region fails without mutating the document.
func (e *Editor) InsertTodo(at int, content string) (*TodoNode, error) {
	if at < 0 {
		at = 0
	}
	if at > len(e.doc.Blocks) {
		at = len(e.doc.Blocks)
	}
	if at < len(e.doc.Blocks) && e.doc.Blocks[at].ReadOnly() {
		return nil, errors.New(errors.ErrNodeReadOnly, "cannot insert into a read-only region")
	}

	node := &TodoNode{
		ID:         uuid.New(),
		Content:    content,
		Version:    1,
		ModifiedAt: e.now(),
		SchemaTag:  SchemaVersion,
	}
	blk := &Block{Kind: KindTodo, Text: content, Todo: node}

	e.doc.Blocks = append(e.doc.Blocks, nil)
	copy(e.doc.Blocks[at+1:], e.doc.Blocks[at:])
	e.doc.Blocks[at] = blk

	id := node.ID
	e.pushUndo(id, func() {
		if i := e.doc.indexOfTodo(id); i >= 0 {
			e.doc.Blocks = append(e.doc.Blocks[:i], e.doc.Blocks[i+1:]...)
		}
	})

	e.emit(ChangeEvent{TodoID: id, Kind: ChangeInsert})
	return node, nil
}

// ToggleCompleted flips the completion state of a todo.
func (e *Editor) ToggleCompleted(id string) error {
	return e.mutate(id, func(n *TodoNode) {
		n.Completed = !n.Completed
	})
}

// SetAssignee assigns or clears (empty user id) the todo's assignee.
func (e *Editor) SetAssignee(id, userID string) error {
	return e.mutate(id, func(n *TodoNode) {
		n.AssignedTo = userID
	})
}

// SetDueDate sets or clears (zero) the todo's due date.
func (e *Editor) SetDueDate(id string, due int64) error {
	return e.mutate(id, func(n *TodoNode) {
		n.DueDate = due
	})
}

// SetContent replaces the todo's visible task text.
func (e *Editor) SetContent(id, content string) error {
	return e.mutate(id, func(n *TodoNode) {
		n.Content = content
	})
}

// AttachFile appends an attachment reference, preserving order. The
// upload itself is delegated to the storage collaborator; callers go
// through the attachment linker, which validates the id resolves.
func (e *Editor) AttachFile(id, attachmentID string) error {
	return e.mutate(id, func(n *TodoNode) {
		for _, existing := range n.AttachmentIDs {
			if existing == attachmentID {
				return
			}
		}
		n.AttachmentIDs = append(n.AttachmentIDs, attachmentID)
	})
}

// DetachFile removes an attachment reference, preserving the order of
// the remaining ones. The stored bytes are not touched.
func (e *Editor) DetachFile(id, attachmentID string) error {
	found := false
	err := e.mutate(id, func(n *TodoNode) {
		for i, existing := range n.AttachmentIDs {
			if existing == attachmentID {
				n.AttachmentIDs = append(n.AttachmentIDs[:i], n.AttachmentIDs[i+1:]...)
				found = true
				return
			}
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return errors.Newf(errors.ErrAttachmentNotFound, "attachment %s not linked to todo %s", attachmentID, id)
	}
	return nil
}

// DeleteTodo removes a todo with explicit intent: the store record is
// deleted on the next sync. Removing the node any other way detaches
// it instead, leaving the record recoverable.
func (e *Editor) DeleteTodo(id string) error {
	i := e.doc.indexOfTodo(id)
	if i < 0 {
		return errors.Newf(errors.ErrTodoNotFound, "todo %s does not exist", id)
	}
	blk := e.doc.Blocks[i]
	if blk.ReadOnly() {
		return errors.New(errors.ErrNodeReadOnly, "cannot delete a read-only node")
	}

	e.doc.Blocks = append(e.doc.Blocks[:i], e.doc.Blocks[i+1:]...)
	e.deleteIntents[id] = true

	e.pushUndo(id, func() {
		delete(e.deleteIntents, id)
		at := i
		if at > len(e.doc.Blocks) {
			at = len(e.doc.Blocks)
		}
		e.doc.Blocks = append(e.doc.Blocks, nil)
		copy(e.doc.Blocks[at+1:], e.doc.Blocks[at:])
		e.doc.Blocks[at] = blk
	})

	e.emit(ChangeEvent{TodoID: id, Kind: ChangeDelete})
	return nil
}

// RemoveBlock removes a block without delete intent, like a stray
// text-selection delete would. A removed todo becomes detached, not
// destroyed.
func (e *Editor) RemoveBlock(at int) error {
	if at < 0 || at >= len(e.doc.Blocks) {
		return errors.Newf(errors.ErrInvalid, "block index %d out of range", at)
	}
	blk := e.doc.Blocks[at]
	e.doc.Blocks = append(e.doc.Blocks[:at], e.doc.Blocks[at+1:]...)

	todoID := ""
	if blk.Kind == KindTodo && blk.Todo != nil {
		todoID = blk.Todo.ID
	}
	e.pushUndo(todoID, func() {
		i := at
		if i > len(e.doc.Blocks) {
			i = len(e.doc.Blocks)
		}
		e.doc.Blocks = append(e.doc.Blocks, nil)
		copy(e.doc.Blocks[i+1:], e.doc.Blocks[i:])
		e.doc.Blocks[i] = blk
	})

	if todoID != "" {
		e.emit(ChangeEvent{TodoID: todoID, Kind: ChangeDelete})
	}
	return nil
}

// Undo reverts the most recent command. Returns false when the undo
// history is empty.
func (e *Editor) Undo() bool {
	if len(e.undo) == 0 {
		return false
	}
	entry := e.undo[len(e.undo)-1]
	e.undo = e.undo[:len(e.undo)-1]
	entry.restore()
	if entry.todoID != "" {
		e.emit(ChangeEvent{TodoID: entry.todoID, Kind: ChangeUpdate})
	}
	return true
}

// TodoPatch is a merge-back payload: the full structured attribute
// state from a newer store record. Content text is deliberately
// absent; merge-back never overwrites user-authored prose.
type TodoPatch struct {
	Completed     bool
	AssignedTo    string
	DueDate       int64
	ProjectID     string
	AttachmentIDs []string
	Version       int
	SyncedAt      int64
}

// ApplyPatch overwrites a node's structured attributes from the store.
// It bypasses the undo history and emits no change event: after a
// merge-back the node matches the store, so there is nothing to sync.
func (e *Editor) ApplyPatch(id string, patch TodoPatch) error {
	node := e.doc.FindTodo(id)
	if node == nil {
		return errors.Newf(errors.ErrTodoNotFound, "todo %s does not exist", id)
	}
	if node.ReadOnly {
		return errors.New(errors.ErrNodeReadOnly, "cannot merge into a read-only node")
	}

	node.Completed = patch.Completed
	node.AssignedTo = patch.AssignedTo
	node.DueDate = patch.DueDate
	node.ProjectID = patch.ProjectID
	node.AttachmentIDs = append([]string(nil), patch.AttachmentIDs...)
	node.Version = patch.Version
	node.ModifiedAt = patch.SyncedAt
	return nil
}

// AppendRemote materializes a store-only record as a new todo node at
// the end of the document. Used when merge-back finds a record with no
// embedded counterpart.
func (e *Editor) AppendRemote(node TodoNode) *TodoNode {
	if node.SchemaTag == "" {
		node.SchemaTag = SchemaVersion
	}
	blk := &Block{Kind: KindTodo, Text: node.Content, Todo: &node}
	e.doc.Blocks = append(e.doc.Blocks, blk)
	return blk.Todo
}

// mutate applies fn to a resolvable, writable node, bumps its version
// and records one undo entry.
func (e *Editor) mutate(id string, fn func(*TodoNode)) error {
	node := e.doc.FindTodo(id)
	if node == nil {
		return errors.Newf(errors.ErrTodoNotFound, "todo %s does not exist", id)
	}
	if node.ReadOnly {
		return errors.New(errors.ErrNodeReadOnly, "node is read-only")
	}

	before := node.Clone()
	e.pushUndo(id, func() {
		if current := e.doc.FindTodo(id); current != nil {
			*current = before
		}
	})

	fn(node)
	node.Version++
	node.ModifiedAt = e.now()

	e.emit(ChangeEvent{TodoID: id, Kind: ChangeUpdate})
	return nil
}

func (e *Editor) pushUndo(todoID string, restore func()) {
	e.undo = append(e.undo, undoEntry{todoID: todoID, restore: restore})
}

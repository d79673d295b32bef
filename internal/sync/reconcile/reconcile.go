// Package reconcile computes the diff between the todos embedded in a
// document and the corresponding records in the backing store.
//
// Reconcile is a pure three-way diff: previous snapshot, current
// snapshot, store records. It is the only component that reads both
// sides, and it only ever produces decisions; applying them is the
// sync driver's job. Given the same inputs after the produced set has
// been applied, Reconcile returns an empty set.
package reconcile

import (
	"github.com/notedeck/notedeck/internal/document"
	"github.com/notedeck/notedeck/internal/logging"
	"github.com/notedeck/notedeck/internal/models"
)

// SyncMark is the last-synced state of one todo id: the node version
// committed to the store and the unix timestamp of that commit.
type SyncMark struct {
	Version  int
	SyncedAt int64
}

// ConflictKind classifies a reported conflict.
type ConflictKind string

const (
	// ConflictField is a same-window concurrent edit resolved by
	// last-write-wins.
	ConflictField ConflictKind = "field"
	// ConflictOwnership is an id already bound to a different
	// document. Never merged, only reported.
	ConflictOwnership ConflictKind = "ownership"
	// ConflictSchema is a node whose schema version cannot be safely
	// interpreted. The node stays read-only and untouched.
	ConflictSchema ConflictKind = "schema"
)

// Conflict is a reported reconciliation conflict.
type Conflict struct {
	TodoID          string
	Kind            ConflictKind
	LocalTimestamp  int64
	RemoteTimestamp int64
	Resolution      string // local_wins, remote_wins, reported
	// DiscardsLocal is true when resolution throws away unsaved local
	// edits; only those conflicts are surfaced to the user.
	DiscardsLocal bool
}

// MergeBack instructs the driver to overwrite a node's structured
// attributes from a newer store record. InDocument is false when the
// record has no embedded counterpart and a node must be created.
type MergeBack struct {
	Record     *models.TodoRecord
	InDocument bool
}

// OperationSet is the minimal set of operations that brings document
// and store into agreement.
type OperationSet struct {
	Inserts    []*models.TodoRecord
	Updates    []*models.TodoRecord
	Deletes    []string
	MergeBacks []MergeBack
	Detached   []string
	Conflicts  []Conflict
}

// Empty reports whether the set contains no work.
func (s *OperationSet) Empty() bool {
	return len(s.Inserts) == 0 && len(s.Updates) == 0 && len(s.Deletes) == 0 &&
		len(s.MergeBacks) == 0 && len(s.Detached) == 0 && len(s.Conflicts) == 0
}

// Input carries everything one reconciliation needs. Records must
// include every record of the document plus any foreign-document
// record whose id appears in the current snapshot.
type Input struct {
	DocumentID string
	UserID     string
	Prev       []document.TodoNode
	Curr       []document.TodoNode
	Records    []*models.TodoRecord
	// DeleteIntents flags ids removed by an explicit delete command.
	DeleteIntents map[string]bool
	// Marks holds the per-id last-synced state.
	Marks map[string]SyncMark
	Now   int64
}

// Reconcile performs the three-way diff. Operations appear in current
// snapshot order, so per-id ordering follows document order.
func Reconcile(in Input) *OperationSet {
	set := &OperationSet{}

	prev := indexNodes(in.Prev)
	curr := indexNodes(in.Curr)
	records := make(map[string]*models.TodoRecord, len(in.Records))
	for _, rec := range in.Records {
		records[string(rec.ID)] = rec
	}

	for i := range in.Curr {
		node := &in.Curr[i]
		rec := records[node.ID]

		if node.ReadOnly {
			// Schema mismatch: never write, never merge.
			set.Conflicts = append(set.Conflicts, Conflict{
				TodoID:     node.ID,
				Kind:       ConflictSchema,
				Resolution: "reported",
			})
			continue
		}

		if rec != nil && rec.DocumentID != models.UUID(in.DocumentID) {
			// A todo is owned by exactly one document at a time.
			set.Conflicts = append(set.Conflicts, Conflict{
				TodoID:          node.ID,
				Kind:            ConflictOwnership,
				LocalTimestamp:  node.ModifiedAt,
				RemoteTimestamp: rec.UpdatedAt,
				Resolution:      "reported",
			})
			continue
		}

		if rec == nil || rec.IsDeleted {
			// Local create, or a retried insert whose earlier commit
			// failed. Tombstoned records are recreated only under an
			// id still present in the document.
			set.Inserts = append(set.Inserts, recordFromNode(node, in))
			continue
		}

		mark := in.Marks[node.ID]
		localChanged := node.Version > mark.Version
		remoteChanged := rec.UpdatedAt > mark.SyncedAt

		switch {
		case localChanged && !remoteChanged:
			set.Updates = append(set.Updates, recordFromNode(node, in))
		case !localChanged && remoteChanged:
			set.MergeBacks = append(set.MergeBacks, MergeBack{Record: rec, InDocument: true})
		case localChanged && remoteChanged:
			// Field-coarse last-write-wins by timestamp.
			if rec.UpdatedAt > node.ModifiedAt {
				set.MergeBacks = append(set.MergeBacks, MergeBack{Record: rec, InDocument: true})
				set.Conflicts = append(set.Conflicts, Conflict{
					TodoID:          node.ID,
					Kind:            ConflictField,
					LocalTimestamp:  node.ModifiedAt,
					RemoteTimestamp: rec.UpdatedAt,
					Resolution:      "remote_wins",
					DiscardsLocal:   true,
				})
			} else {
				set.Updates = append(set.Updates, recordFromNode(node, in))
				set.Conflicts = append(set.Conflicts, Conflict{
					TodoID:          node.ID,
					Kind:            ConflictField,
					LocalTimestamp:  node.ModifiedAt,
					RemoteTimestamp: rec.UpdatedAt,
					Resolution:      "local_wins",
				})
			}
		}
	}

	// Ids present before, gone now: explicit delete versus detach.
	for i := range in.Prev {
		id := in.Prev[i].ID
		if _, ok := curr[id]; ok {
			continue
		}
		if in.DeleteIntents[id] {
			set.Deletes = append(set.Deletes, id)
		} else {
			// Detached: no destructive store operation. The record
			// stays orphaned-but-recoverable.
			set.Detached = append(set.Detached, id)
			logging.Debug("todo detached from document",
				map[string]interface{}{"todo_id": id, "document_id": in.DocumentID})
		}
	}

	// Store-only records are merged back as new nodes only when the
	// record changed after this session last synced it. A record the
	// session detached in an earlier pass keeps its sync mark, so it
	// stays orphaned-but-recoverable instead of being re-appended; it
	// surfaces only if modified from elsewhere.
	for _, rec := range in.Records {
		id := string(rec.ID)
		if rec.IsDeleted || rec.DocumentID != models.UUID(in.DocumentID) {
			continue
		}
		if _, ok := curr[id]; ok {
			continue
		}
		if _, ok := prev[id]; ok {
			continue
		}
		if in.DeleteIntents[id] {
			set.Deletes = append(set.Deletes, id)
			continue
		}
		if rec.UpdatedAt <= in.Marks[id].SyncedAt {
			continue
		}
		set.MergeBacks = append(set.MergeBacks, MergeBack{Record: rec, InDocument: false})
	}

	return set
}

// recordFromNode builds the desired store-side state of a node.
func recordFromNode(node *document.TodoNode, in Input) *models.TodoRecord {
	return &models.TodoRecord{
		ID:            models.UUID(node.ID),
		DocumentID:    models.UUID(in.DocumentID),
		Content:       node.Content,
		Completed:     node.Completed,
		AssignedTo:    node.AssignedTo,
		DueDate:       node.DueDate,
		ProjectID:     node.ProjectID,
		AttachmentIDs: append([]string(nil), node.AttachmentIDs...),
		Version:       node.Version,
		CreatedBy:     in.UserID,
	}
}

// PatchFromRecord converts a store record into the merge-back payload
// applied to the embedded node. Content is deliberately not part of
// the patch.
func PatchFromRecord(rec *models.TodoRecord) document.TodoPatch {
	return document.TodoPatch{
		Completed:     rec.Completed,
		AssignedTo:    rec.AssignedTo,
		DueDate:       rec.DueDate,
		ProjectID:     rec.ProjectID,
		AttachmentIDs: append([]string(nil), rec.AttachmentIDs...),
		Version:       rec.Version,
		SyncedAt:      rec.UpdatedAt,
	}
}

// NodeFromRecord materializes a store record as an embedded node, for
// merge-backs targeting a document that does not contain the id.
func NodeFromRecord(rec *models.TodoRecord) document.TodoNode {
	return document.TodoNode{
		ID:            string(rec.ID),
		Content:       rec.Content,
		Completed:     rec.Completed,
		AssignedTo:    rec.AssignedTo,
		DueDate:       rec.DueDate,
		ProjectID:     rec.ProjectID,
		AttachmentIDs: append([]string(nil), rec.AttachmentIDs...),
		Version:       rec.Version,
		ModifiedAt:    rec.UpdatedAt,
		SchemaTag:     document.SchemaVersion,
	}
}

func indexNodes(nodes []document.TodoNode) map[string]*document.TodoNode {
	m := make(map[string]*document.TodoNode, len(nodes))
	for i := range nodes {
		m[nodes[i].ID] = &nodes[i]
	}
	return m
}

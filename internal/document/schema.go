// Package document models the editable document tree and the todo node
// schema embedded in it.
//
// A document is markdown with inline todo nodes. A todo node serializes
// as a task-list line whose structured attributes travel in a trailing
// self-describing HTML comment, so the visible text can be edited
// freely without corrupting them:
//
//   - [x] Buy milk <!--todo:{"schema":"2.3","id":"...","version":3}-->
//
// Deserialization is defensive: externally authored documents and
// documents written by an older node family still load, with missing
// or malformed attributes replaced by defaults.
package document

import (
	"encoding/json"
	"strings"

	"github.com/notedeck/notedeck/internal/logging"
	"github.com/notedeck/notedeck/internal/uuid"
)

// SchemaVersion is the current todo node family tag. Nodes carrying an
// incompatible major version are flagged read-only rather than
// reinterpreted.
const SchemaVersion = "2.3"

// TodoNode is an inline structured entity embedded in a document.
// AttachmentIDs preserve insertion order, which is display order.
type TodoNode struct {
	ID            string
	Content       string
	Completed     bool
	AssignedTo    string
	DueDate       int64
	ProjectID     string
	AttachmentIDs []string
	// Version increases monotonically on every attribute mutation made
	// through the editor; ModifiedAt is the unix timestamp of the last
	// such mutation, used for last-write-wins comparison.
	Version    int
	ModifiedAt int64
	// SchemaTag is the node family the markup was written by.
	SchemaTag string
	// ReadOnly marks nodes whose schema version cannot be safely
	// interpreted. They render with their original metadata verbatim
	// and reject all commands.
	ReadOnly bool
	// RawMeta preserves the original metadata payload of a read-only
	// node so rendering never drops or guesses at it.
	RawMeta string
}

// Clone returns a deep copy of the node.
func (t *TodoNode) Clone() TodoNode {
	c := *t
	if t.AttachmentIDs != nil {
		c.AttachmentIDs = append([]string(nil), t.AttachmentIDs...)
	}
	return c
}

// AttrsEqual reports whether the structured attributes and content of
// two nodes are identical. Version and ModifiedAt are not compared.
func AttrsEqual(a, b *TodoNode) bool {
	if a.Content != b.Content ||
		a.Completed != b.Completed ||
		a.AssignedTo != b.AssignedTo ||
		a.DueDate != b.DueDate ||
		a.ProjectID != b.ProjectID ||
		len(a.AttachmentIDs) != len(b.AttachmentIDs) {
		return false
	}
	for i := range a.AttachmentIDs {
		if a.AttachmentIDs[i] != b.AttachmentIDs[i] {
			return false
		}
	}
	return true
}

// todoMeta is the wire form of a node's structured attributes.
type todoMeta struct {
	Schema      string   `json:"schema"`
	ID          string   `json:"id"`
	Version     int      `json:"version"`
	Completed   *bool    `json:"completed,omitempty"`
	AssignedTo  string   `json:"assigned_to,omitempty"`
	DueDate     int64    `json:"due_date,omitempty"`
	ProjectID   string   `json:"project_id,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	ModifiedAt  int64    `json:"modified_at,omitempty"`
}

// decodeTodoMeta builds a TodoNode from a metadata payload, the
// checkbox state and the visible content text. rawMeta may be empty
// for externally authored task lines.
func decodeTodoMeta(rawMeta string, checked bool, content string) TodoNode {
	node := TodoNode{
		Content:   content,
		Completed: checked,
		Version:   1,
		SchemaTag: SchemaVersion,
	}

	var meta todoMeta
	if rawMeta != "" {
		if err := json.Unmarshal([]byte(rawMeta), &meta); err != nil {
			// ValidationFailure: recovered locally by defaulting.
			logging.Warn("malformed todo metadata, using defaults",
				map[string]interface{}{"raw": rawMeta})
			meta = todoMeta{}
		}
	}

	if uuid.IsValid(meta.ID) {
		node.ID = meta.ID
	} else {
		node.ID = uuid.New()
	}

	if meta.Schema != "" {
		node.SchemaTag = meta.Schema
		if !schemaCompatible(meta.Schema) {
			node.ReadOnly = true
			node.RawMeta = rawMeta
			logging.Warn("incompatible todo schema version, node is read-only",
				map[string]interface{}{"id": node.ID, "schema": meta.Schema})
		}
	}

	if meta.Version > 0 {
		node.Version = meta.Version
	}
	if meta.Completed != nil {
		node.Completed = *meta.Completed
	}
	node.AssignedTo = meta.AssignedTo
	node.DueDate = meta.DueDate
	node.ProjectID = meta.ProjectID
	node.ModifiedAt = meta.ModifiedAt
	if len(meta.Attachments) > 0 {
		node.AttachmentIDs = append([]string(nil), meta.Attachments...)
	}

	return node
}

// encodeTodoMeta serializes a node's structured attributes. Read-only
// nodes emit their original payload untouched.
func encodeTodoMeta(node *TodoNode) string {
	if node.ReadOnly && node.RawMeta != "" {
		return node.RawMeta
	}

	completed := node.Completed
	meta := todoMeta{
		Schema:      node.SchemaTag,
		ID:          node.ID,
		Version:     node.Version,
		Completed:   &completed,
		AssignedTo:  node.AssignedTo,
		DueDate:     node.DueDate,
		ProjectID:   node.ProjectID,
		Attachments: node.AttachmentIDs,
		ModifiedAt:  node.ModifiedAt,
	}
	if meta.Schema == "" {
		meta.Schema = SchemaVersion
	}

	data, err := json.Marshal(meta)
	if err != nil {
		// Marshal of a plain struct cannot fail in practice.
		return "{}"
	}
	return string(data)
}

// schemaCompatible reports whether a schema tag belongs to the current
// node family. Compatibility is by major version.
func schemaCompatible(tag string) bool {
	major := tag
	if i := strings.IndexByte(tag, '.'); i >= 0 {
		major = tag[:i]
	}
	current := SchemaVersion
	if i := strings.IndexByte(current, '.'); i >= 0 {
		current = current[:i]
	}
	return major == current
}

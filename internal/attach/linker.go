// Package attach links uploaded attachment references to todo nodes.
//
// The linker wraps the editor's attach/detach commands with one extra
// guarantee: an attachment id must resolve in the storage collaborator
// before it may be linked, so documents never carry dangling
// references. It adds no retry or caching of its own; collaborator
// errors propagate as command failures.
package attach

import (
	"github.com/notedeck/notedeck/internal/blob"
	"github.com/notedeck/notedeck/internal/document"
	"github.com/notedeck/notedeck/internal/errors"
)

// Linker validates attachment references against the blob store.
type Linker struct {
	editor *document.Editor
	blobs  blob.Store
}

// NewLinker creates a Linker over an editor and a blob store.
func NewLinker(editor *document.Editor, blobs blob.Store) *Linker {
	return &Linker{editor: editor, blobs: blobs}
}

// Attach links an already uploaded attachment to a todo. Fails
// synchronously when the id does not resolve; the node is untouched.
func (l *Linker) Attach(todoID, attachmentID string) error {
	if _, err := l.blobs.Resolve(attachmentID); err != nil {
		if errors.Is(err, errors.ErrAttachmentNotFound) {
			return err
		}
		return errors.Wrap(errors.ErrAttachmentInvalid, "attachment could not be verified", err)
	}
	return l.editor.AttachFile(todoID, attachmentID)
}

// Detach removes an attachment reference from a todo. The stored
// bytes are left alone.
func (l *Linker) Detach(todoID, attachmentID string) error {
	return l.editor.DetachFile(todoID, attachmentID)
}

// Upload stores the payload with the collaborator and links the
// resulting id in one step.
func (l *Linker) Upload(todoID string, data []byte) (string, error) {
	id, err := l.blobs.Upload(data)
	if err != nil {
		return "", errors.Wrap(errors.ErrAttachmentInvalid, "attachment upload failed", err)
	}
	if err := l.editor.AttachFile(todoID, id); err != nil {
		return "", err
	}
	return id, nil
}

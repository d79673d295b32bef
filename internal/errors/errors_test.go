// Package errors tests for error code definitions and error handling.
package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

// TestErrorCodeValues verifies all error codes have non-empty values.
func TestErrorCodeValues(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
	}{
		{"internal", ErrInternal},
		{"invalid", ErrInvalid},
		{"not found", ErrNotFound},
		{"validation", ErrValidation},

		{"database", ErrDatabase},
		{"migration", ErrMigration},
		{"constraint", ErrConstraint},

		{"todo not found", ErrTodoNotFound},
		{"node read only", ErrNodeReadOnly},
		{"schema mismatch", ErrSchemaMismatch},

		{"store failed", ErrStoreFailed},
		{"sync failed", ErrSyncFailed},
		{"sync conflict", ErrSyncConflict},
		{"document ownership", ErrDocumentOwnership},
		{"driver bound", ErrDriverBound},

		{"attachment not found", ErrAttachmentNotFound},
		{"attachment invalid", ErrAttachmentInvalid},
	}

	seen := make(map[ErrorCode]string)
	for _, tt := range tests {
		if tt.code == "" {
			t.Errorf("%s: empty error code", tt.name)
		}
		if prior, ok := seen[tt.code]; ok {
			t.Errorf("%s: code %q duplicates %s", tt.name, tt.code, prior)
		}
		seen[tt.code] = tt.name
	}
}

// TestAppError_Error verifies the formatted message.
func TestAppError_Error(t *testing.T) {
	err := New(ErrTodoNotFound, "todo missing")
	if !strings.Contains(err.Error(), string(ErrTodoNotFound)) {
		t.Errorf("Error() = %q, want code included", err.Error())
	}

	wrapped := Wrap(ErrStoreFailed, "insert failed", stderrors.New("disk full"))
	msg := wrapped.Error()
	if !strings.Contains(msg, "disk full") {
		t.Errorf("Error() = %q, want cause included", msg)
	}
}

// TestAppError_Unwrap verifies errors.Is reaches the cause.
func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	wrapped := Wrap(ErrDatabase, "query failed", cause)

	if !stderrors.Is(wrapped, cause) {
		t.Error("wrapped error should unwrap to its cause")
	}
}

// TestIs verifies code matching.
func TestIs(t *testing.T) {
	err := Newf(ErrNodeReadOnly, "node %s is read-only", "x")

	if !Is(err, ErrNodeReadOnly) {
		t.Error("Is() should match the code")
	}
	if Is(err, ErrNotFound) {
		t.Error("Is() should not match a different code")
	}
	if Is(stderrors.New("plain"), ErrInternal) {
		t.Error("Is() should not match plain errors")
	}
	if Is(nil, ErrInternal) {
		t.Error("Is() should not match nil")
	}
}

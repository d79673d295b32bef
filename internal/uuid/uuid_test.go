// Package uuid provides unit tests for UUID generation and validation.
package uuid

import "testing"

// TestNew verifies generated ids pass our own validator.
func TestNew(t *testing.T) {
	id := New()
	if id == "" {
		t.Fatal("Expected non-empty UUID string")
	}
	if !IsValid(id) {
		t.Errorf("Generated UUID does not validate: %s", id)
	}
}

// TestNewUniqueness verifies ids do not repeat.
func TestNewUniqueness(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		if ids[id] {
			t.Errorf("Duplicate UUID generated: %s", id)
		}
		ids[id] = true
	}
}

// TestIsValid covers accepted and rejected forms.
func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		uuid string
		want bool
	}{
		{"valid lowercase", "a8098c1a-f86e-4da4-b7e9-0c8b3f6e1d2a", true},
		{"valid uppercase", "A8098C1A-F86E-4DA4-B7E9-0C8B3F6E1D2A", true},
		{"empty", "", false},
		{"no dashes", "a8098c1af86e4da4b7e90c8b3f6e1d2a", false},
		{"wrong version", "a8098c1a-f86e-1da4-b7e9-0c8b3f6e1d2a", false},
		{"wrong variant", "a8098c1a-f86e-4da4-17e9-0c8b3f6e1d2a", false},
		{"too short", "a8098c1a-f86e-4da4-b7e9", false},
		{"garbage", "not-a-uuid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.uuid); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.uuid, got, tt.want)
			}
		})
	}
}

// TestValidate verifies the error form of validation.
func TestValidate(t *testing.T) {
	if err := Validate(New()); err != nil {
		t.Errorf("Validate() on a generated id: %v", err)
	}
	if err := Validate("nope"); err == nil {
		t.Error("Validate() should reject a malformed id")
	}
}

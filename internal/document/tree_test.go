// Package document tests for markdown parsing and rendering.
package document

import (
	"strings"
	"testing"

	"github.com/notedeck/notedeck/internal/uuid"
)

const testDocID = "b3f1c2d4-0000-4000-8000-000000000001"

// TestParse_docID verifies the document id comment is consumed, not
// kept as a content block.
func TestParse_docID(t *testing.T) {
	src := "<!--doc:" + testDocID + "-->\n\n# Notes\n"
	doc, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if doc.ID != testDocID {
		t.Errorf("doc id = %q, want %q", doc.ID, testDocID)
	}
	if len(doc.Blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(doc.Blocks))
	}
	if doc.Blocks[0].Kind != KindHeading {
		t.Errorf("block kind = %q, want heading", doc.Blocks[0].Kind)
	}
}

// TestParse_generatesDocID verifies externally authored documents get
// a fresh id.
func TestParse_generatesDocID(t *testing.T) {
	doc, err := Parse([]byte("# Untitled\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if !uuid.IsValid(doc.ID) {
		t.Errorf("generated doc id %q is not a valid uuid", doc.ID)
	}
}

// TestParse_blocks verifies the block kinds a mixed document produces.
func TestParse_blocks(t *testing.T) {
	src := strings.Join([]string{
		"# Plan",
		"",
		"Intro paragraph.",
		"",
		"- plain item",
		"- [ ] Buy milk",
		"",
		"> a quote",
		"",
		"```go",
		"fmt.Println()",
		"```",
		"",
	}, "\n")

	doc, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	want := []NodeKind{KindHeading, KindParagraph, KindListItem, KindTodo, KindQuote, KindCode}
	if len(doc.Blocks) != len(want) {
		t.Fatalf("blocks = %d, want %d", len(doc.Blocks), len(want))
	}
	for i, kind := range want {
		if doc.Blocks[i].Kind != kind {
			t.Errorf("block %d kind = %q, want %q", i, doc.Blocks[i].Kind, kind)
		}
	}

	todo := doc.Blocks[3].Todo
	if todo == nil {
		t.Fatal("todo block has no node")
	}
	if todo.Content != "Buy milk" {
		t.Errorf("todo content = %q, want %q", todo.Content, "Buy milk")
	}
	if todo.Completed {
		t.Error("unchecked box should not be completed")
	}
}

// TestParse_todoMetadata verifies the trailing metadata comment is
// stripped from the visible text and decoded.
func TestParse_todoMetadata(t *testing.T) {
	id := uuid.New()
	src := "- [x] Ship release <!--todo:{\"schema\":\"2.3\",\"id\":\"" + id + "\",\"version\":3,\"assigned_to\":\"u1\"}-->\n"

	doc, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(doc.Blocks) != 1 || doc.Blocks[0].Kind != KindTodo {
		t.Fatalf("expected a single todo block, got %+v", doc.Blocks)
	}

	todo := doc.Blocks[0].Todo
	if todo.ID != id {
		t.Errorf("id = %q, want %q", todo.ID, id)
	}
	if todo.Content != "Ship release" {
		t.Errorf("content = %q, want %q", todo.Content, "Ship release")
	}
	if !todo.Completed {
		t.Error("checked box should be completed")
	}
	if todo.Version != 3 {
		t.Errorf("version = %d, want 3", todo.Version)
	}
	if todo.AssignedTo != "u1" {
		t.Errorf("assigned_to = %q, want %q", todo.AssignedTo, "u1")
	}
}

// TestParse_nestedList verifies nested list items are flattened in
// document order.
func TestParse_nestedList(t *testing.T) {
	src := strings.Join([]string{
		"- outer",
		"  - [ ] inner todo",
		"  - inner item",
		"",
	}, "\n")

	doc, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	want := []NodeKind{KindListItem, KindTodo, KindListItem}
	if len(doc.Blocks) != len(want) {
		t.Fatalf("blocks = %d, want %d: %+v", len(doc.Blocks), len(want), doc.Blocks)
	}
	for i, kind := range want {
		if doc.Blocks[i].Kind != kind {
			t.Errorf("block %d kind = %q, want %q", i, doc.Blocks[i].Kind, kind)
		}
	}
}

// TestRenderTodoLine verifies the task-line serialization format.
func TestRenderTodoLine(t *testing.T) {
	node := TodoNode{
		ID:        testDocID,
		Content:   "Buy milk",
		Completed: true,
		Version:   2,
		SchemaTag: SchemaVersion,
	}

	line := renderTodoLine(&node)
	if !strings.HasPrefix(line, "- [x] Buy milk <!--todo:{") {
		t.Errorf("unexpected line prefix: %q", line)
	}
	if !strings.HasSuffix(line, "}-->\n") {
		t.Errorf("unexpected line suffix: %q", line)
	}
}

// TestRenderParseRoundTrip verifies a rendered document parses back to
// an equivalent tree with todo attributes intact.
func TestRenderParseRoundTrip(t *testing.T) {
	id := uuid.New()
	orig := &Document{
		ID: testDocID,
		Blocks: []*Block{
			{Kind: KindHeading, Level: 2, Text: "Today"},
			{Kind: KindParagraph, Text: "Some context."},
			{Kind: KindTodo, Text: "Buy milk", Todo: &TodoNode{
				ID: id, Content: "Buy milk", Completed: true, AssignedTo: "u1",
				DueDate: 1756200000, Version: 4, ModifiedAt: 1756100000,
				SchemaTag: SchemaVersion, AttachmentIDs: []string{"att1"},
			}},
			{Kind: KindListItem, Text: "plain item"},
			{Kind: KindQuote, Text: "quoted"},
		},
	}

	parsed, err := Parse(orig.Render())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if parsed.ID != orig.ID {
		t.Errorf("doc id = %q, want %q", parsed.ID, orig.ID)
	}
	if len(parsed.Blocks) != len(orig.Blocks) {
		t.Fatalf("blocks = %d, want %d", len(parsed.Blocks), len(orig.Blocks))
	}
	for i := range orig.Blocks {
		if parsed.Blocks[i].Kind != orig.Blocks[i].Kind {
			t.Errorf("block %d kind = %q, want %q", i, parsed.Blocks[i].Kind, orig.Blocks[i].Kind)
		}
	}

	got := parsed.FindTodo(id)
	if got == nil {
		t.Fatal("todo lost in round trip")
	}
	want := orig.Blocks[2].Todo
	if !AttrsEqual(got, want) {
		t.Errorf("todo attributes changed: got %+v, want %+v", got, want)
	}
	if got.Version != want.Version {
		t.Errorf("version = %d, want %d", got.Version, want.Version)
	}
	if got.ModifiedAt != want.ModifiedAt {
		t.Errorf("modified_at = %d, want %d", got.ModifiedAt, want.ModifiedAt)
	}
}

// TestRenderParseRoundTrip_readOnly verifies read-only nodes keep
// their foreign metadata across a round trip.
func TestRenderParseRoundTrip_readOnly(t *testing.T) {
	id := uuid.New()
	raw := `{"schema":"3.0","id":"` + id + `","version":1,"future_field":"kept"}`
	orig := &Document{
		ID: testDocID,
		Blocks: []*Block{
			{Kind: KindTodo, Text: "Future task", Todo: &TodoNode{
				ID: id, Content: "Future task", SchemaTag: "3.0",
				ReadOnly: true, RawMeta: raw,
			}},
		},
	}

	parsed, err := Parse(orig.Render())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	got := parsed.FindTodo(id)
	if got == nil {
		t.Fatal("read-only todo lost in round trip")
	}
	if !got.ReadOnly {
		t.Error("node should still be read-only")
	}
	if got.RawMeta != raw {
		t.Errorf("raw metadata = %q, want %q", got.RawMeta, raw)
	}
}

// TestFindTodo verifies lookup by id.
func TestFindTodo(t *testing.T) {
	id := uuid.New()
	doc := &Document{Blocks: []*Block{
		{Kind: KindParagraph, Text: "text"},
		{Kind: KindTodo, Todo: &TodoNode{ID: id, Content: "t"}},
	}}

	if doc.FindTodo(id) == nil {
		t.Error("FindTodo should resolve an existing id")
	}
	if doc.FindTodo(uuid.New()) != nil {
		t.Error("FindTodo should return nil for unknown ids")
	}
}

package document

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/notedeck/notedeck/internal/uuid"
)

// NodeKind identifies a block in the document tree.
type NodeKind string

const (
	KindHeading   NodeKind = "heading"
	KindParagraph NodeKind = "paragraph"
	KindQuote     NodeKind = "quote"
	KindListItem  NodeKind = "list_item"
	KindCode      NodeKind = "code"
	KindTodo      NodeKind = "todo"
)

// Block is one structural node of a document. Todo blocks carry the
// structured node; for every other kind only the text is meaningful.
type Block struct {
	Kind  NodeKind
	Level int    // heading level
	Info  string // code fence info string
	Text  string
	Todo  *TodoNode
}

// ReadOnly reports whether the block rejects editor commands.
func (b *Block) ReadOnly() bool {
	return b.Kind == KindTodo && b.Todo != nil && b.Todo.ReadOnly
}

// Document is an ordered tree of blocks. The document owns its todo
// nodes by position; the backing store owns records by id. Nothing in
// the tree holds a live reference into the store, only id strings.
type Document struct {
	ID     string
	Blocks []*Block
}

var (
	docIDRe    = regexp.MustCompile(`^\s*<!--doc:([0-9a-fA-F-]+)-->\s*$`)
	todoLineRe = regexp.MustCompile(`^\[([ xX])\]\s?(.*)$`)
	todoMetaRe = regexp.MustCompile(`\s*<!--todo:(\{.*\})-->\s*$`)
)

// Parse deserializes markdown into a document tree. The document id
// travels in a leading `<!--doc:...-->` comment; when absent a fresh
// id is generated so externally authored documents still load.
func Parse(source []byte) (*Document, error) {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(source))

	doc := &Document{}

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		switch tn := n.(type) {
		case *ast.Heading:
			doc.Blocks = append(doc.Blocks, &Block{
				Kind:  KindHeading,
				Level: tn.Level,
				Text:  linesText(tn, source),
			})
		case *ast.Paragraph:
			doc.Blocks = append(doc.Blocks, &Block{
				Kind: KindParagraph,
				Text: linesText(tn, source),
			})
		case *ast.Blockquote:
			doc.Blocks = append(doc.Blocks, &Block{
				Kind: KindQuote,
				Text: containerText(tn, source),
			})
		case *ast.FencedCodeBlock:
			info := ""
			if tn.Info != nil {
				info = string(tn.Info.Segment.Value(source))
			}
			doc.Blocks = append(doc.Blocks, &Block{
				Kind: KindCode,
				Info: info,
				Text: linesText(tn, source),
			})
		case *ast.List:
			doc.parseList(tn, source)
		case *ast.HTMLBlock:
			raw := strings.TrimSpace(linesText(tn, source))
			if m := docIDRe.FindStringSubmatch(raw); m != nil {
				if doc.ID == "" {
					doc.ID = m[1]
				}
				continue
			}
			doc.Blocks = append(doc.Blocks, &Block{Kind: KindParagraph, Text: raw})
		default:
			txt := containerText(n, source)
			if strings.TrimSpace(txt) != "" {
				doc.Blocks = append(doc.Blocks, &Block{Kind: KindParagraph, Text: txt})
			}
		}
	}

	if doc.ID == "" {
		doc.ID = uuid.New()
	}
	return doc, nil
}

// parseList flattens a (possibly nested) markdown list into list-item
// and todo blocks, preserving document order.
func (d *Document) parseList(list *ast.List, source []byte) {
	for li := list.FirstChild(); li != nil; li = li.NextSibling() {
		for child := li.FirstChild(); child != nil; child = child.NextSibling() {
			switch cn := child.(type) {
			case *ast.List:
				d.parseList(cn, source)
			default:
				itemText := strings.TrimSpace(linesText(child, source))
				if itemText == "" {
					continue
				}
				d.Blocks = append(d.Blocks, parseItemLine(itemText))
			}
		}
	}
}

// parseItemLine turns one list-item line into a todo block when it
// carries a task checkbox, or a plain list item otherwise.
func parseItemLine(line string) *Block {
	m := todoLineRe.FindStringSubmatch(line)
	if m == nil {
		return &Block{Kind: KindListItem, Text: line}
	}

	checked := m[1] != " "
	rest := m[2]

	rawMeta := ""
	if mm := todoMetaRe.FindStringSubmatch(rest); mm != nil {
		rawMeta = mm[1]
		rest = strings.TrimRight(rest[:len(rest)-len(mm[0])], " ")
	}

	node := decodeTodoMeta(rawMeta, checked, rest)
	return &Block{Kind: KindTodo, Text: rest, Todo: &node}
}

// linesText joins a block node's raw source lines.
func linesText(n ast.Node, source []byte) string {
	lines := n.Lines()
	if lines == nil || lines.Len() == 0 {
		return ""
	}
	var parts []string
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		parts = append(parts, strings.TrimRight(string(seg.Value(source)), "\n"))
	}
	return strings.Join(parts, "\n")
}

// containerText joins the raw text of a container node's children.
func containerText(n ast.Node, source []byte) string {
	if txt := linesText(n, source); txt != "" {
		return txt
	}
	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if txt := containerText(c, source); txt != "" {
			parts = append(parts, txt)
		}
	}
	return strings.Join(parts, "\n")
}

// Render serializes the document back to markdown. The output parses
// back to an equivalent tree.
func (d *Document) Render() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "<!--doc:%s-->\n", d.ID)

	prevList := false
	for _, blk := range d.Blocks {
		isList := blk.Kind == KindListItem || blk.Kind == KindTodo
		if isList && prevList {
			// consecutive list items stay in one list
		} else {
			b.WriteString("\n")
		}
		prevList = isList

		switch blk.Kind {
		case KindHeading:
			level := blk.Level
			if level < 1 {
				level = 1
			}
			fmt.Fprintf(&b, "%s %s\n", strings.Repeat("#", level), blk.Text)
		case KindQuote:
			for _, line := range strings.Split(blk.Text, "\n") {
				fmt.Fprintf(&b, "> %s\n", line)
			}
		case KindCode:
			fmt.Fprintf(&b, "```%s\n%s\n```\n", blk.Info, blk.Text)
		case KindListItem:
			fmt.Fprintf(&b, "- %s\n", blk.Text)
		case KindTodo:
			b.WriteString(renderTodoLine(blk.Todo))
		default:
			fmt.Fprintf(&b, "%s\n", blk.Text)
		}
	}

	return []byte(b.String())
}

// renderTodoLine serializes one todo node to its task-list line.
func renderTodoLine(node *TodoNode) string {
	box := " "
	if node.Completed {
		box = "x"
	}
	content := node.Content
	if content != "" {
		content += " "
	}
	return fmt.Sprintf("- [%s] %s<!--todo:%s-->\n", box, content, encodeTodoMeta(node))
}

// FindTodo returns the todo node with the given id, or nil.
func (d *Document) FindTodo(id string) *TodoNode {
	for _, blk := range d.Blocks {
		if blk.Kind == KindTodo && blk.Todo != nil && blk.Todo.ID == id {
			return blk.Todo
		}
	}
	return nil
}

// indexOfTodo returns the block index of a todo node, or -1.
func (d *Document) indexOfTodo(id string) int {
	for i, blk := range d.Blocks {
		if blk.Kind == KindTodo && blk.Todo != nil && blk.Todo.ID == id {
			return i
		}
	}
	return -1
}

package document

// ExtractTodos walks the document tree in document order and collects
// every todo node as a detached copy. Pure: callers may mutate the
// result freely, and it is cheap enough to run on every transaction.
func ExtractTodos(d *Document) []TodoNode {
	var todos []TodoNode
	for _, blk := range d.Blocks {
		if blk.Kind == KindTodo && blk.Todo != nil {
			todos = append(todos, blk.Todo.Clone())
		}
	}
	return todos
}

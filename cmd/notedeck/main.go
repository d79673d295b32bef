// Command notedeck operates on todo-bearing markdown documents: it
// edits embedded todos, reconciles them with the local store, and can
// watch a document while serving sync notifications over a websocket.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/notedeck/notedeck/internal/attach"
	"github.com/notedeck/notedeck/internal/blob"
	"github.com/notedeck/notedeck/internal/config"
	"github.com/notedeck/notedeck/internal/document"
	"github.com/notedeck/notedeck/internal/logging"
	"github.com/notedeck/notedeck/internal/notify"
	"github.com/notedeck/notedeck/internal/store"
	nsync "github.com/notedeck/notedeck/internal/sync"
	"github.com/notedeck/notedeck/internal/uuid"
)

// Version is set at build time.
var Version = "0.1.0"

// CLI is the top-level command structure for notedeck.
type CLI struct {
	Config string `help:"Path to the configuration file." default:"notedeck.yaml" type:"path"`
	User   string `help:"Acting user id, recorded on todos this invocation creates." env:"NOTEDECK_USER" default:"local"`
	Debug  bool   `help:"Enable debug logging." env:"NOTEDECK_DEBUG"`

	Add     AddCmd     `cmd:"" help:"Insert a new todo into a document."`
	Toggle  ToggleCmd  `cmd:"" help:"Toggle a todo's completion state."`
	Assign  AssignCmd  `cmd:"" help:"Assign a todo to a user."`
	Due     DueCmd     `cmd:"" help:"Set or clear a todo's due date."`
	Edit    EditCmd    `cmd:"" help:"Rewrite a todo's text."`
	Delete  DeleteCmd  `cmd:"" help:"Delete a todo from document and store."`
	Attach  AttachCmd  `cmd:"" help:"Upload a file and link it to a todo."`
	Detach  DetachCmd  `cmd:"" help:"Unlink an attachment from a todo."`
	Sync    SyncCmd    `cmd:"" help:"Force an immediate sync of a document."`
	Todos   TodosCmd   `cmd:"" help:"List a document's todos from the store."`
	Changes ChangesCmd `cmd:"" help:"Show a document's change history."`
	Watch   WatchCmd   `cmd:"" help:"Keep a document synced and serve notifications."`
	Version VersionCmd `cmd:"" help:"Print the notedeck version."`
}

// appEnv carries the wired subsystems into command Run methods.
type appEnv struct {
	cfg      *config.Config
	user     string
	db       *store.DB
	repo     *store.Repository
	notifier notify.Notifier
	manager  *nsync.Manager
	blobs    *blob.FileStore
}

// open brings up the store and sync manager. Commands that only print
// static information never call it.
func (env *appEnv) open() error {
	db, err := store.Open(env.cfg.DataDir)
	if err != nil {
		return err
	}
	if err := store.NewMigrator(db.DB).Apply(); err != nil {
		db.Close()
		return err
	}
	env.db = db
	env.repo = store.NewRepository(db.DB)
	if env.notifier == nil {
		env.notifier = notify.LogNotifier{}
	}
	env.manager = nsync.NewManager(env.repo, env.notifier, env.cfg.Sync)
	env.blobs = blob.NewFileStore(env.cfg.AttachmentsDir)
	return nil
}

func (env *appEnv) close() {
	if env.repo != nil {
		env.repo.Close()
	}
	if env.db != nil {
		env.db.Close()
	}
}

// loadDocument parses a markdown file, assigning a fresh document id
// when the file has never been synced before.
func loadDocument(path string) (*document.Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := document.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.ID == "" {
		doc.ID = uuid.New()
	}
	return doc, nil
}

// saveDocument writes the rendered document back via a temp file so a
// crash mid-write never truncates the original.
func saveDocument(path string, doc *document.Document) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, doc.Render(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// withDocument runs fn against an editor bound to the sync manager,
// force-syncs, and writes the document back. This is the shared shape
// of every mutating command.
func withDocument(env *appEnv, path string, fn func(ed *document.Editor) error) error {
	if err := env.open(); err != nil {
		return err
	}
	defer env.close()

	doc, err := loadDocument(path)
	if err != nil {
		return err
	}
	editor := document.NewEditor(doc)
	handle, err := env.manager.OnReady(doc.ID, env.user, editor)
	if err != nil {
		return err
	}
	defer handle.Dispose()

	if err := fn(editor); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := env.manager.ForceSync(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	printResult(result)
	return saveDocument(path, doc)
}

func printResult(r *nsync.SyncResult) {
	fmt.Printf("synced in %s: %d inserted, %d updated, %d deleted, %d merged back",
		r.Duration.Round(time.Millisecond), r.Inserted, r.Updated, r.Deleted, r.MergedBack)
	if r.Detached > 0 {
		fmt.Printf(", %d detached", r.Detached)
	}
	if r.Conflicts > 0 {
		fmt.Printf(", %d conflicts", r.Conflicts)
	}
	if r.Failed > 0 {
		fmt.Printf(", %d FAILED", r.Failed)
	}
	fmt.Println()
}

// AddCmd inserts a new todo at the end of the document (or at --at).
type AddCmd struct {
	File string `arg:"" help:"Markdown document." type:"existingfile"`
	Text string `arg:"" help:"Todo text."`
	At   int    `help:"Block index to insert at; -1 appends." default:"-1"`
}

func (cmd *AddCmd) Run(env *appEnv) error {
	return withDocument(env, cmd.File, func(ed *document.Editor) error {
		at := cmd.At
		if at < 0 {
			at = len(ed.Document().Blocks)
		}
		node, err := ed.InsertTodo(at, cmd.Text)
		if err != nil {
			return err
		}
		fmt.Printf("added todo %s\n", node.ID)
		return nil
	})
}

// ToggleCmd flips a todo's completion state.
type ToggleCmd struct {
	File string `arg:"" help:"Markdown document." type:"existingfile"`
	ID   string `arg:"" help:"Todo id."`
}

func (cmd *ToggleCmd) Run(env *appEnv) error {
	return withDocument(env, cmd.File, func(ed *document.Editor) error {
		return ed.ToggleCompleted(cmd.ID)
	})
}

// AssignCmd sets or clears a todo's assignee.
type AssignCmd struct {
	File string `arg:"" help:"Markdown document." type:"existingfile"`
	ID   string `arg:"" help:"Todo id."`
	User string `arg:"" optional:"" help:"Assignee; omit to clear."`
}

func (cmd *AssignCmd) Run(env *appEnv) error {
	return withDocument(env, cmd.File, func(ed *document.Editor) error {
		return ed.SetAssignee(cmd.ID, cmd.User)
	})
}

// DueCmd sets or clears a todo's due date.
type DueCmd struct {
	File string `arg:"" help:"Markdown document." type:"existingfile"`
	ID   string `arg:"" help:"Todo id."`
	Date string `arg:"" optional:"" help:"Due date (YYYY-MM-DD or RFC 3339); omit to clear."`
}

func (cmd *DueCmd) Run(env *appEnv) error {
	var due int64
	if cmd.Date != "" {
		t, err := parseDate(cmd.Date)
		if err != nil {
			return err
		}
		due = t.Unix()
	}
	return withDocument(env, cmd.File, func(ed *document.Editor) error {
		return ed.SetDueDate(cmd.ID, due)
	})
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q (want YYYY-MM-DD or RFC 3339)", s)
	}
	return t, nil
}

// EditCmd rewrites a todo's text.
type EditCmd struct {
	File string `arg:"" help:"Markdown document." type:"existingfile"`
	ID   string `arg:"" help:"Todo id."`
	Text string `arg:"" help:"New todo text."`
}

func (cmd *EditCmd) Run(env *appEnv) error {
	return withDocument(env, cmd.File, func(ed *document.Editor) error {
		return ed.SetContent(cmd.ID, cmd.Text)
	})
}

// DeleteCmd removes a todo from the document and tombstones its record.
type DeleteCmd struct {
	File string `arg:"" help:"Markdown document." type:"existingfile"`
	ID   string `arg:"" help:"Todo id."`
}

func (cmd *DeleteCmd) Run(env *appEnv) error {
	return withDocument(env, cmd.File, func(ed *document.Editor) error {
		return ed.DeleteTodo(cmd.ID)
	})
}

// AttachCmd uploads a file into the blob store and links it.
type AttachCmd struct {
	File string `arg:"" help:"Markdown document." type:"existingfile"`
	ID   string `arg:"" help:"Todo id."`
	Path string `arg:"" help:"File to attach." type:"existingfile"`
}

func (cmd *AttachCmd) Run(env *appEnv) error {
	data, err := os.ReadFile(cmd.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", cmd.Path, err)
	}
	return withDocument(env, cmd.File, func(ed *document.Editor) error {
		linker := attach.NewLinker(ed, env.blobs)
		id, err := linker.Upload(cmd.ID, data)
		if err != nil {
			return err
		}
		fmt.Printf("attached %s as %s\n", filepath.Base(cmd.Path), id)
		return nil
	})
}

// DetachCmd unlinks an attachment from a todo. The blob itself stays
// in the store; other todos may still reference it.
type DetachCmd struct {
	File         string `arg:"" help:"Markdown document." type:"existingfile"`
	ID           string `arg:"" help:"Todo id."`
	AttachmentID string `arg:"" help:"Attachment id to unlink."`
}

func (cmd *DetachCmd) Run(env *appEnv) error {
	return withDocument(env, cmd.File, func(ed *document.Editor) error {
		linker := attach.NewLinker(ed, env.blobs)
		return linker.Detach(cmd.ID, cmd.AttachmentID)
	})
}

// SyncCmd force-syncs a document without editing it. Useful after the
// file was changed by another tool.
type SyncCmd struct {
	File string `arg:"" help:"Markdown document." type:"existingfile"`
}

func (cmd *SyncCmd) Run(env *appEnv) error {
	return withDocument(env, cmd.File, func(ed *document.Editor) error {
		return nil
	})
}

// TodosCmd lists a document's live todos straight from the store.
type TodosCmd struct {
	DocumentID string `arg:"" help:"Document id."`
}

func (cmd *TodosCmd) Run(env *appEnv) error {
	if err := env.open(); err != nil {
		return err
	}
	defer env.close()

	recs, err := env.repo.ListByDocument(cmd.DocumentID)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		mark := " "
		if rec.Completed {
			mark = "x"
		}
		fmt.Printf("[%s] %s  (id=%s v%d", mark, rec.Content, rec.ID, rec.Version)
		if rec.AssignedTo != "" {
			fmt.Printf(" @%s", rec.AssignedTo)
		}
		if rec.DueDate != 0 {
			fmt.Printf(" due %s", time.Unix(rec.DueDate, 0).UTC().Format("2006-01-02"))
		}
		fmt.Println(")")
	}
	fmt.Printf("%d todos\n", len(recs))
	return nil
}

// ChangesCmd prints a document's change history.
type ChangesCmd struct {
	DocumentID string `arg:"" help:"Document id."`
	Since      string `help:"Only show changes at or after this time (YYYY-MM-DD or RFC 3339)."`
}

func (cmd *ChangesCmd) Run(env *appEnv) error {
	var since int64
	if cmd.Since != "" {
		t, err := parseDate(cmd.Since)
		if err != nil {
			return err
		}
		since = t.Unix()
	}
	if err := env.open(); err != nil {
		return err
	}
	defer env.close()

	logs, err := env.repo.ListChangeLog(cmd.DocumentID, since)
	if err != nil {
		return err
	}
	for _, l := range logs {
		fmt.Printf("%s  %-7s todo=%s v%d\n",
			time.Unix(l.Timestamp, 0).UTC().Format(time.RFC3339), l.Operation, l.TodoID, l.Version)
	}
	return nil
}

// WatchCmd keeps a document synced until interrupted, broadcasting
// sync notifications to websocket subscribers on /ws.
type WatchCmd struct {
	File   string `arg:"" help:"Markdown document." type:"existingfile"`
	Listen string `help:"Address for the notification websocket." default:"127.0.0.1:8787"`
}

func (cmd *WatchCmd) Run(env *appEnv) error {
	hub := notify.NewHub()
	go hub.Run()
	defer hub.Stop()
	env.notifier = notify.Multi{notify.LogNotifier{}, hub}

	if err := env.open(); err != nil {
		return err
	}
	defer env.close()

	doc, err := loadDocument(cmd.File)
	if err != nil {
		return err
	}
	editor := document.NewEditor(doc)
	handle, err := env.manager.OnReady(doc.ID, env.user, editor)
	if err != nil {
		return err
	}
	defer handle.Dispose()

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	server := &http.Server{Addr: cmd.Listen, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("notification server stopped", err, nil)
		}
	}()
	fmt.Printf("watching %s (doc %s), notifications on ws://%s/ws\n", cmd.File, doc.ID, cmd.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutCtx)
	handle.Dispose()
	return saveDocument(cmd.File, doc)
}

// VersionCmd prints the notedeck version.
type VersionCmd struct{}

func (cmd *VersionCmd) Run() error {
	fmt.Printf("notedeck v%s\n", Version)
	return nil
}

func main() {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("notedeck"),
		kong.Description("Todo sync for markdown documents."),
		kong.UsageOnError(),
	)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	cfg, err := config.Load(cli.Config)
	ctx.FatalIfErrorf(err)
	level := logging.ParseLevel(cfg.LogLevel)
	if cli.Debug {
		level = logging.LevelDebug
	}
	logging.Init(os.Stderr, level)

	env := &appEnv{cfg: cfg, user: cli.User}
	err = ctx.Run(env)
	ctx.FatalIfErrorf(err)
}

package sync

import (
	"context"
	gosync "sync"

	"github.com/notedeck/notedeck/internal/config"
	"github.com/notedeck/notedeck/internal/document"
	"github.com/notedeck/notedeck/internal/errors"
	"github.com/notedeck/notedeck/internal/logging"
	"github.com/notedeck/notedeck/internal/notify"
	"github.com/notedeck/notedeck/internal/store"
)

// Manager owns the sync drivers of all open documents. No two drivers
// may be bound to the same document concurrently; rebinding requires
// disposing the previous handle first.
type Manager struct {
	repo     store.SyncRepository
	notifier notify.Notifier
	cfg      config.SyncConfig

	mu      gosync.Mutex
	drivers map[string]*Driver
}

// NewManager creates a Manager.
func NewManager(repo store.SyncRepository, notifier notify.Notifier, cfg config.SyncConfig) *Manager {
	return &Manager{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		drivers:  make(map[string]*Driver),
	}
}

// Handle is the disposable ownership token for one document's sync.
type Handle struct {
	driver  *Driver
	manager *Manager
	once    gosync.Once
}

// Driver exposes the bound driver for status queries.
func (h *Handle) Driver() *Driver {
	return h.driver
}

// Dispose stops sync for the document and makes one final force-sync
// attempt. Safe to call more than once.
func (h *Handle) Dispose() {
	h.once.Do(func() {
		h.manager.release(h.driver.documentID)
		h.driver.shutdown()
	})
}

// OnReady begins sync for an open document and returns its handle.
// Fails when a driver is already bound to the document.
func (m *Manager) OnReady(documentID, userID string, editor *document.Editor) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.drivers[documentID]; ok {
		return nil, errors.Newf(errors.ErrDriverBound,
			"a sync driver is already bound to document %s", documentID)
	}

	d := newDriver(documentID, userID, editor, m.repo, m.notifier, m.cfg)
	m.drivers[documentID] = d

	logging.Info("sync driver bound",
		map[string]interface{}{"document_id": documentID, "user_id": userID})

	return &Handle{driver: d, manager: m}, nil
}

// ForceSync runs an immediate sync for a bound document. Callable by
// the host UI before navigation.
func (m *Manager) ForceSync(ctx context.Context, documentID string) (*SyncResult, error) {
	m.mu.Lock()
	d, ok := m.drivers[documentID]
	m.mu.Unlock()

	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, "no sync driver bound to document %s", documentID)
	}
	return d.ForceSync(ctx)
}

func (m *Manager) release(documentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drivers, documentID)
}

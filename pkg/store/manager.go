package store

import (
	"container/list"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/vidqr/vidqr/pkg/vidqrerr"
)

// MaxStores bounds how many Store instances one Manager keeps open at
// once (DoS protection against unbounded directory creation), mirroring
// the teacher's MaxSessions cap on its session map.
const MaxStores = 10000

// DefaultIdleTTL is how long a Store may go untouched before the
// background sweep closes it.
const DefaultIdleTTL = 30 * time.Minute

var (
	ErrStoreNameRequired = errors.New("store name is required")
	ErrStoreNotFound     = errors.New("store not found")
)

type managedStore struct {
	name       string
	store      *Store
	lastAccess time.Time
}

// Manager is an LRU+TTL registry of named Store instances, so one
// process can host many corpora without holding every one open
// forever. Grounded on the teacher's engine.Engine session map
// (container/list + sync.RWMutex, a hard MaxSessions cap, and a
// StartSessionCleanup/StopSessionCleanup background sweep), generalized
// to also evict the least-recently-used store when the cap is reached
// rather than only refusing new entries.
type Manager struct {
	mu       sync.RWMutex
	baseDir  string
	cfg      func(dir string) Config
	embed    Embedder
	idleTTL  time.Duration
	items    map[string]*list.Element // name -> element holding *managedStore
	order    *list.List                // front = most recently used, back = least
	stopSweep chan struct{}
	sweepWg  sync.WaitGroup
}

// NewManager creates a Manager rooted at baseDir: each named store
// lives at filepath.Join(baseDir, name). cfgFor builds the Config for a
// freshly opened store given its data directory (so callers can vary
// dimension/kernel/etc. per store, or return a fixed Config).
func NewManager(baseDir string, cfgFor func(dir string) Config, embed Embedder) *Manager {
	return &Manager{
		baseDir:   baseDir,
		cfg:       cfgFor,
		embed:     embed,
		idleTTL:   DefaultIdleTTL,
		items:     make(map[string]*list.Element),
		order:     list.New(),
		stopSweep: make(chan struct{}),
	}
}

// SetIdleTTL overrides the idle-expiry duration used by the background
// sweep; each sweep applies the current value to every open store.
func (m *Manager) SetIdleTTL(ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleTTL = ttl
}

// Get returns the named store, opening it on first use. A Get counts
// as a touch, moving the store to the front of the LRU order.
func (m *Manager) Get(name string) (*Store, error) {
	if name == "" {
		return nil, ErrStoreNameRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[name]; ok {
		m.order.MoveToFront(el)
		ms := el.Value.(*managedStore)
		ms.lastAccess = time.Now()
		return ms.store, nil
	}

	if len(m.items) >= MaxStores {
		if !m.evictOldestLocked() {
			return nil, fmt.Errorf("max stores limit reached (%d)", MaxStores)
		}
	}

	dir := filepath.Join(m.baseDir, name)
	s, err := Open(dir, m.cfg(dir), m.embed)
	if err != nil {
		return nil, err
	}

	el := m.order.PushFront(&managedStore{name: name, store: s, lastAccess: time.Now()})
	m.items[name] = el
	return s, nil
}

// evictOldestLocked closes and drops the least-recently-used store.
// Callers must hold m.mu. Returns false if there was nothing to evict.
func (m *Manager) evictOldestLocked() bool {
	back := m.order.Back()
	if back == nil {
		return false
	}
	ms := back.Value.(*managedStore)
	_ = ms.store.Close()
	delete(m.items, ms.name)
	m.order.Remove(back)
	return true
}

// List returns the names of every currently open store.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.items))
	for name := range m.items {
		names = append(names, name)
	}
	return names
}

// Delete closes and drops the named store if it is open. It does not
// remove the store's data directory from disk — callers that want the
// corpus gone entirely must remove dir themselves.
func (m *Manager) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[name]
	if !ok {
		return vidqrerr.State("store.Manager.Delete", ErrStoreNotFound)
	}
	ms := el.Value.(*managedStore)
	err := ms.store.Close()
	delete(m.items, name)
	m.order.Remove(el)
	return err
}

// StartIdleSweep starts a background goroutine that closes any store
// untouched for longer than the configured idle TTL, checking at the
// given interval. Grounded on the teacher's StartSessionCleanup.
func (m *Manager) StartIdleSweep(interval time.Duration) {
	m.sweepWg.Add(1)
	go func() {
		defer m.sweepWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweepIdle()
			case <-m.stopSweep:
				return
			}
		}
	}()
}

// StopIdleSweep stops the background sweep started by StartIdleSweep
// and waits for it to exit.
func (m *Manager) StopIdleSweep() {
	close(m.stopSweep)
	m.sweepWg.Wait()
}

func (m *Manager) sweepIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ttl := m.idleTTL
	now := time.Now()
	// order is front=MRU, back=LRU; walk from the back so we stop at
	// the first entry that's still fresh.
	for el := m.order.Back(); el != nil; {
		ms := el.Value.(*managedStore)
		if now.Sub(ms.lastAccess) <= ttl {
			break
		}
		prev := el.Prev()
		_ = ms.store.Close()
		delete(m.items, ms.name)
		m.order.Remove(el)
		el = prev
	}
}

// Count returns the number of currently open stores.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// CloseAll closes every open store, e.g. at process shutdown.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, el := range m.items {
		ms := el.Value.(*managedStore)
		if err := ms.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.items, name)
	}
	m.order.Init()
	return firstErr
}

package state

import (
	"context"
	"sync"

	"modelwatch/internal/catalog"
	logx "modelwatch/pkg/logx"
)

// Manager is the single writer over the state aggregate.
//
// Pollers and the chat command surface complete concurrently; every mutation
// goes through the manager's lock and triggers a save, so persisted state is
// always a consistent aggregate. A failed save keeps the in-memory mutation
// (the next successful save catches up).
type Manager struct {
	mu    sync.Mutex
	store Store
	log   logx.Logger
	cur   *State
}

func NewManager(ctx context.Context, store Store, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{store: store, log: log}
	m.cur = store.Load(ctx)
	log.Info("state loaded",
		logx.Int("sources", len(m.cur.Snapshots)),
		logx.Int("chats", len(m.cur.Chats)),
		logx.Int("tags", len(m.cur.Tags)),
	)
	return m
}

// Snapshot returns the persisted model set of a source, in snapshot order.
// ok is false when the source was never successfully polled.
func (m *Manager) Snapshot(source string) (models []catalog.Model, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.cur.Snapshots[source]
	if !ok {
		return nil, false
	}
	return append([]catalog.Model(nil), snap.Models...), true
}

// SetSnapshot replaces a source's snapshot and persists.
func (m *Manager) SetSnapshot(ctx context.Context, source string, models []catalog.Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur.Snapshots[source] = Snapshot{Models: append([]catalog.Model(nil), models...)}
	return m.saveLocked(ctx)
}

// Subscribe adds a chat to the notification set. Idempotent.
func (m *Manager) Subscribe(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur.hasChat(chatID) {
		return nil
	}
	m.cur.Chats = append(m.cur.Chats, chatID)
	return m.saveLocked(ctx)
}

// Unsubscribe removes a chat. Reports whether it was subscribed.
func (m *Manager) Unsubscribe(ctx context.Context, chatID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range m.cur.Chats {
		if id == chatID {
			m.cur.Chats = append(m.cur.Chats[:i], m.cur.Chats[i+1:]...)
			return true, m.saveLocked(ctx)
		}
	}
	return false, nil
}

func (m *Manager) Chats() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.cur.Chats...)
}

// SetTag assigns tag text to a model id or display name. Idempotent.
func (m *Manager) SetTag(ctx context.Context, key, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur.Tags[key] == text {
		return nil
	}
	m.cur.Tags[key] = text
	return m.saveLocked(ctx)
}

// ClearTag removes an assignment. Reports whether it existed.
func (m *Manager) ClearTag(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cur.Tags[key]; !ok {
		return false, nil
	}
	delete(m.cur.Tags, key)
	return true, m.saveLocked(ctx)
}

func (m *Manager) Tags() catalog.Tags {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(catalog.Tags, len(m.cur.Tags))
	for k, v := range m.cur.Tags {
		out[k] = v
	}
	return out
}

func (m *Manager) saveLocked(ctx context.Context) error {
	m.cur.normalize()
	return m.store.Save(ctx, m.cur.clone())
}

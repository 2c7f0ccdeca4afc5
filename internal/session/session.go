// Package session stores flat string-map sessions in the key-value store
// with an index of currently live session keys. Expiry is an external
// convention: sessions age out when a reaper clears them, not here.
package session

import (
	"context"
	"time"

	"github.com/menuline/survey-platform/internal/kv"
)

// Manager loads and saves one flat field map per session key.
type Manager struct {
	store  kv.Store
	prefix string
}

// NewManager creates a session manager rooted at the given key prefix.
func NewManager(store kv.Store, prefix string) *Manager {
	return &Manager{store: store, prefix: prefix}
}

func (m *Manager) sessionKey(key string) string {
	return kv.Key(m.prefix, "session", key)
}

func (m *Manager) activeKey() string {
	return kv.Key(m.prefix, "active_sessions")
}

// Load returns the stored fields for a session key; an empty map means no
// session exists.
func (m *Manager) Load(ctx context.Context, key string) (map[string]string, error) {
	return m.store.HGetAll(ctx, m.sessionKey(key))
}

// Save overwrites the session's fields and records it in the active index.
func (m *Manager) Save(ctx context.Context, key string, fields map[string]string) error {
	sessionKey := m.sessionKey(key)
	if err := m.store.Del(ctx, sessionKey); err != nil {
		return err
	}
	if err := m.store.HSetMap(ctx, sessionKey, fields); err != nil {
		return err
	}
	score := float64(time.Now().UnixNano()) / float64(time.Second)
	return m.store.ZAdd(ctx, m.activeKey(), score, key)
}

// Clear deletes the session's stored fields. The active index entry remains;
// ActiveSessions filters out keys whose fields are gone.
func (m *Manager) Clear(ctx context.Context, key string) error {
	return m.store.Del(ctx, m.sessionKey(key))
}

// Exists reports whether a session has stored fields.
func (m *Manager) Exists(ctx context.Context, key string) (bool, error) {
	return m.store.Exists(ctx, m.sessionKey(key))
}

// Session is a live session key with its stored fields.
type Session struct {
	Key    string
	Fields map[string]string
}

// ActiveSessions enumerates sessions that are currently live, oldest first.
func (m *Manager) ActiveSessions(ctx context.Context) ([]Session, error) {
	keys, err := m.store.ZRange(ctx, m.activeKey(), 0, -1, false)
	if err != nil {
		return nil, err
	}
	sessions := make([]Session, 0, len(keys))
	for _, key := range keys {
		fields, err := m.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		sessions = append(sessions, Session{Key: key, Fields: fields})
	}
	return sessions, nil
}

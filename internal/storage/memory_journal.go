package storage

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/vec"
)

// MemoryJournal журнал в памяти для тестов и режима без хранилища
type MemoryJournal struct {
	mu     sync.RWMutex
	worlds map[string]map[string]Entry
}

// NewMemoryJournal создаёт пустой журнал
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{worlds: make(map[string]map[string]Entry)}
}

func (m *MemoryJournal) Record(ctx context.Context, world string, pos vec.Vec3, level light.Level, ch light.Channel) error {
	if level <= 0 {
		return m.Delete(ctx, world, pos, ch)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.worlds[world]
	if !ok {
		entries = make(map[string]Entry)
		m.worlds[world] = entries
	}
	now := time.Now()
	for _, single := range ch.Each() {
		entries[entryField(single, pos)] = Entry{World: world, Pos: pos, Channel: single, Level: level, UpdatedAt: now}
	}
	return nil
}

func (m *MemoryJournal) Delete(_ context.Context, world string, pos vec.Vec3, ch light.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, single := range ch.Each() {
		delete(m.worlds[world], entryField(single, pos))
	}
	return nil
}

func (m *MemoryJournal) Load(_ context.Context, world string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.worlds[world]))
	for _, e := range m.worlds[world] {
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func (m *MemoryJournal) Close() error { return nil }

package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemorySink struct {
	nowFunc func() time.Time

	mu      sync.RWMutex
	entries []Entry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{nowFunc: time.Now}
}

func (m *MemorySink) Append(_ context.Context, e Entry) (Entry, error) {
	e.ID = uuid.NewString()
	e.Timestamp = m.nowFunc().UTC()

	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return e, nil
}

func (m *MemorySink) List(_ context.Context, guildID string, limit int) ([]Entry, error) {
	limit = normalizeLimit(limit)

	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for i := len(m.entries) - 1; i >= 0; i-- {
		if guildID != "" && m.entries[i].GuildID != guildID {
			continue
		}
		out = append(out, m.entries[i])
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Entries returns every entry in append order.
func (m *MemorySink) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.entries...)
}

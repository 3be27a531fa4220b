package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileSink appends entries as JSON lines.
type FileSink struct {
	path    string
	nowFunc func() time.Time
	mu      sync.Mutex
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path, nowFunc: time.Now}
}

func (l *FileSink) Append(_ context.Context, e Entry) (Entry, error) {
	if l == nil || l.path == "" {
		return Entry{}, fmt.Errorf("audit log path is not configured")
	}
	e.ID = uuid.NewString()
	e.Timestamp = l.nowFunc().UTC()

	b, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return Entry{}, fmt.Errorf("mkdir audit log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return Entry{}, fmt.Errorf("open audit log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return Entry{}, fmt.Errorf("write audit log entry: %w", err)
	}
	return e, nil
}

func (l *FileSink) List(_ context.Context, guildID string, limit int) ([]Entry, error) {
	limit = normalizeLimit(limit)

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("open audit log file: %w", err)
	}
	defer f.Close()

	out := make([]Entry, 0)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if guildID != "" && e.GuildID != guildID {
			continue
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log file: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

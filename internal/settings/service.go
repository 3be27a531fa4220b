package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Service keeps settings in memory, optionally mirrored to a JSON state file.
type Service struct {
	nowFunc   func() time.Time
	stateFile string

	mu     sync.RWMutex
	guilds map[string]Config
}

func NewService() *Service {
	return &Service{
		nowFunc: time.Now,
		guilds:  make(map[string]Config),
	}
}

func NewServiceWithFile(stateFile string) (*Service, error) {
	s := &Service{
		nowFunc:   time.Now,
		stateFile: strings.TrimSpace(stateFile),
		guilds:    make(map[string]Config),
	}
	if s.stateFile == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	if err := s.loadState(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Get(_ context.Context, guildID string) (Config, error) {
	s.mu.RLock()
	c, ok := s.guilds[strings.TrimSpace(guildID)]
	s.mu.RUnlock()
	if !ok {
		return Config{}, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *Service) Create(_ context.Context, c Config) (Config, error) {
	c.GuildID = strings.TrimSpace(c.GuildID)
	c.EnabledRoles = normalizeRoles(c.EnabledRoles)
	if err := validate(c); err != nil {
		return Config{}, err
	}
	now := s.nowFunc().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.guilds[c.GuildID]; exists {
		return Config{}, ErrAlreadyExists
	}
	prev := cloneGuilds(s.guilds)
	s.guilds[c.GuildID] = c.Clone()
	if err := s.persistLocked(); err != nil {
		s.guilds = prev
		return Config{}, err
	}
	return c, nil
}

func (s *Service) Update(_ context.Context, guildID string, p Patch) (Config, error) {
	guildID = strings.TrimSpace(guildID)

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.guilds[guildID]
	if !ok {
		return Config{}, ErrNotFound
	}
	updated := p.Apply(existing)
	if err := validate(updated); err != nil {
		return Config{}, err
	}
	updated.UpdatedAt = s.nowFunc().UTC()

	prev := cloneGuilds(s.guilds)
	s.guilds[guildID] = updated.Clone()
	if err := s.persistLocked(); err != nil {
		s.guilds = prev
		return Config{}, err
	}
	return updated, nil
}

func (s *Service) loadState() error {
	b, err := os.ReadFile(s.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read settings state: %w", err)
	}
	if len(b) == 0 {
		return nil
	}
	var decoded []Config
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("decode settings state: %w", err)
	}
	for _, c := range decoded {
		if c.GuildID == "" {
			continue
		}
		s.guilds[c.GuildID] = c.Clone()
	}
	return nil
}

func (s *Service) persistLocked() error {
	if s.stateFile == "" {
		return nil
	}
	out := make([]Config, 0, len(s.guilds))
	for _, c := range s.guilds {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.stateFile), 0o755); err != nil {
		return fmt.Errorf("mkdir settings state dir: %w", err)
	}
	if err := os.WriteFile(s.stateFile, b, 0o644); err != nil {
		return fmt.Errorf("write settings state: %w", err)
	}
	return nil
}

func cloneGuilds(src map[string]Config) map[string]Config {
	out := make(map[string]Config, len(src))
	for k, v := range src {
		out[k] = v.Clone()
	}
	return out
}

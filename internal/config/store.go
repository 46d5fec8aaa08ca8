package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

var (
	// ErrInvalidKey is returned when a credential fails prefix validation.
	ErrInvalidKey = errors.New(`api key must start with "` + APIKeyPrefix + `"`)
	// ErrEmptyPrompt is returned when adding a blank exclusion prompt.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
	// ErrDuplicatePrompt is returned when adding a prompt that already exists.
	ErrDuplicatePrompt = errors.New("prompt already exists")
	// ErrPromptNotFound is returned when removing an unknown prompt.
	ErrPromptNotFound = errors.New("prompt not found")
)

// Snapshot is a point-in-time copy of the configuration the classification
// pipeline reads: the credential and the exclusion prompt set. Consumers get
// their own copy so a later config change can't tear an in-flight scan.
type Snapshot struct {
	APIKey  string
	Prompts []string
}

// Equal reports whether two snapshots carry the same credential and prompts.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.APIKey == other.APIKey && slices.Equal(s.Prompts, other.Prompts)
}

// ChangeFunc receives the snapshots from before and after a config change.
type ChangeFunc func(old, new Snapshot)

// Store owns the live configuration. All writes go through it: they are
// validated, persisted, and announced to subscribers synchronously. External
// edits to the config file are picked up by Watch and announced the same way,
// so every view of the system sees the same prompt set and credential.
type Store struct {
	mu   sync.RWMutex
	cfg  *Config
	subs []ChangeFunc

	path string // empty means in-memory only (tests)
	log  *slog.Logger
}

// NewStore creates a Store around cfg. path is the config file to persist
// writes to; an empty path keeps the store in-memory.
func NewStore(cfg *Config, path string, log *slog.Logger) *Store {
	return &Store{cfg: cfg, path: path, log: log}
}

// Subscribe registers fn to be called on every configuration change.
// Subscriptions cannot be removed; they live as long as the store.
func (s *Store) Subscribe(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Snapshot returns a copy of the pipeline-relevant configuration.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		APIKey:  s.cfg.Classifier.APIKey,
		Prompts: slices.Clone(s.cfg.Filter.ExclusionPrompts),
	}
}

// Config returns a copy of the full configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := *s.cfg
	cfg.Filter.ExclusionPrompts = slices.Clone(s.cfg.Filter.ExclusionPrompts)
	return cfg
}

// SetAPIKey validates and stores a new classifier credential.
func (s *Store) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if !ValidAPIKey(key) {
		return ErrInvalidKey
	}
	return s.update(func(c *Config) error {
		c.Classifier.APIKey = key
		return nil
	})
}

// ClearAPIKey removes the stored credential. Classification is disabled
// until a new key is configured.
func (s *Store) ClearAPIKey() error {
	return s.update(func(c *Config) error {
		c.Classifier.APIKey = ""
		return nil
	})
}

// AddPrompt appends a new exclusion prompt. Empty and duplicate prompts
// are rejected so the evaluator can trust the set.
func (s *Store) AddPrompt(prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ErrEmptyPrompt
	}
	return s.update(func(c *Config) error {
		if slices.Contains(c.Filter.ExclusionPrompts, prompt) {
			return ErrDuplicatePrompt
		}
		c.Filter.ExclusionPrompts = append(c.Filter.ExclusionPrompts, prompt)
		return nil
	})
}

// RemovePrompt deletes an exclusion prompt by exact text.
func (s *Store) RemovePrompt(prompt string) error {
	prompt = strings.TrimSpace(prompt)
	return s.update(func(c *Config) error {
		idx := slices.Index(c.Filter.ExclusionPrompts, prompt)
		if idx < 0 {
			return ErrPromptNotFound
		}
		c.Filter.ExclusionPrompts = slices.Delete(c.Filter.ExclusionPrompts, idx, idx+1)
		return nil
	})
}

// update applies a mutation under lock, persists it, and notifies
// subscribers with the before/after snapshots.
func (s *Store) update(mutate func(*Config) error) error {
	s.mu.Lock()
	old := s.snapshotLocked()
	if err := mutate(s.cfg); err != nil {
		s.mu.Unlock()
		return err
	}
	next := s.snapshotLocked()
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	if s.path != "" {
		if err := s.cfg.Save(); err != nil {
			return fmt.Errorf("failed to persist config: %w", err)
		}
	}

	s.notify(subs, old, next)
	return nil
}

func (s *Store) notify(subs []ChangeFunc, old, next Snapshot) {
	if old.Equal(next) {
		return
	}
	for _, fn := range subs {
		fn(old, next)
	}
}

// Watch reloads the config file when it changes on disk and announces the
// new snapshot to subscribers. It blocks until ctx is canceled. Stores
// without a backing file return immediately.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors and `cleanfeed key set` from another
	// process replace the file rather than writing in place.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("config watcher error", "error", err)
		}
	}
}

// reload re-reads the config file and notifies subscribers if the
// pipeline-relevant parts changed.
func (s *Store) reload() {
	cfg, err := Load()
	if err != nil {
		s.log.Warn("failed to reload config, keeping previous", "error", err)
		return
	}

	s.mu.Lock()
	old := s.snapshotLocked()
	s.cfg = cfg
	next := s.snapshotLocked()
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	if !old.Equal(next) {
		s.log.Info("configuration reloaded from disk", "prompts", len(next.Prompts))
	}
	s.notify(subs, old, next)
}

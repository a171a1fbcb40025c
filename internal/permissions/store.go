package permissions

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/captainphantasy/floyd-core/pkg/model"
)

// fileDocument is the on-disk shape of the permissions file (spec §6):
// `{version, decisions:{key: Rule}, rememberUntil, updatedAt}`.
type fileDocument struct {
	Version       int                             `json:"version"`
	Decisions     map[string]model.PermissionRule `json:"decisions"`
	RememberUntil *time.Time                      `json:"rememberUntil,omitempty"`
	UpdatedAt     time.Time                        `json:"updatedAt"`
}

// Store persists PermissionRules, keyed by exact tool name or pattern
// string. Implementations must tolerate a missing file (empty rule set)
// and a corrupted file (logged, treated as empty) without erroring, and
// must write atomically (spec §4.4's "Persistence format").
type Store interface {
	Load() (map[string]model.PermissionRule, error)
	Save(map[string]model.PermissionRule) error
}

// FileStore implements Store against `<workspace>/.floyd/permissions.json`
// with write-to-temp-then-rename atomicity, the standard Go idiom for
// crash-safe writes.
type FileStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

const currentVersion = 1

// NewFileStore returns a FileStore backed by <workspace>/.floyd/permissions.json.
func NewFileStore(workspace string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:   filepath.Join(workspace, ".floyd", "permissions.json"),
		logger: logger.With("component", "permissions.store"),
	}
}

// Path returns the on-disk location backing this store, used by Manager to
// watch for externally-made edits.
func (s *FileStore) Path() string { return s.path }

// Load reads and parses the permissions file. A missing file yields an
// empty map and no error. A corrupted file is logged and also yields an
// empty map and no error — the store never crashes the caller.
func (s *FileStore) Load() (map[string]model.PermissionRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]model.PermissionRule{}, nil
		}
		s.logger.Warn("failed to read permissions file, treating as empty", "error", err)
		return map[string]model.PermissionRule{}, nil
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("corrupted permissions file, treating as empty", "error", err, "path", s.path)
		return map[string]model.PermissionRule{}, nil
	}
	if doc.Decisions == nil {
		return map[string]model.PermissionRule{}, nil
	}
	return doc.Decisions, nil
}

// Save atomically writes rules to the permissions file by writing to a
// temp file in the same directory and renaming over the target.
func (s *FileStore) Save(rules map[string]model.PermissionRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create permissions dir: %w", err)
	}

	doc := fileDocument{
		Version:   currentVersion,
		Decisions: rules,
		UpdatedAt: time.Now(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".permissions-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp permissions file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp permissions file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp permissions file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename permissions file: %w", err)
	}
	return nil
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu    sync.Mutex
	rules map[string]model.PermissionRule
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: map[string]model.PermissionRule{}}
}

func (m *MemoryStore) Load() (map[string]model.PermissionRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.PermissionRule, len(m.rules))
	for k, v := range m.rules {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) Save(rules map[string]model.PermissionRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = make(map[string]model.PermissionRule, len(rules))
	for k, v := range rules {
		m.rules[k] = v
	}
	return nil
}

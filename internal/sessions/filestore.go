package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/captainphantasy/floyd-core/pkg/model"
	"github.com/google/uuid"
)

// FileStore implements Store against one JSON file per session under
// <workspace>/.floyd/sessions (spec §4.5/§6), with the same
// write-to-temp-then-rename atomicity as permissions.FileStore.
type FileStore struct {
	dir    string
	logger *slog.Logger

	initOnce sync.Once
	initErr  error

	mu sync.Mutex
}

// NewFileStore returns a FileStore rooted at <workspace>/.floyd/sessions.
func NewFileStore(workspace string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		dir:    filepath.Join(workspace, ".floyd", "sessions"),
		logger: logger.With("component", "sessions.store"),
	}
}

// ensureInit creates the sessions directory exactly once across however
// many goroutines call it concurrently (spec §4.5: "any call waits on a
// single initialization promise to avoid a start-up race").
func (s *FileStore) ensureInit() error {
	s.initOnce.Do(func() {
		s.initErr = os.MkdirAll(s.dir, 0o755)
	})
	return s.initErr
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Create starts a new session and persists it immediately.
func (s *FileStore) Create(ctx context.Context, cwd, title string) (*model.Session, error) {
	if err := s.ensureInit(); err != nil {
		return nil, fmt.Errorf("init sessions dir: %w", err)
	}
	now := time.Now()
	session := &model.Session{
		ID:               uuid.NewString(),
		Title:            title,
		WorkingDirectory: cwd,
		CreatedAt:        now,
		UpdatedAt:        now,
		Messages:         []model.Message{},
	}
	if err := s.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Save atomically writes session, bumping UpdatedAt first.
func (s *FileStore) Save(ctx context.Context, session *model.Session) error {
	if err := s.ensureInit(); err != nil {
		return fmt.Errorf("init sessions dir: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".session-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(session.ID)); err != nil {
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}

// Load reads and parses the session named id.
func (s *FileStore) Load(ctx context.Context, id string) (*model.Session, error) {
	if err := s.ensureInit(); err != nil {
		return nil, fmt.Errorf("init sessions dir: %w", err)
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &session, nil
}

// List returns every loadable session sorted by UpdatedAt descending;
// files that fail to parse are logged and skipped (spec §4.5).
func (s *FileStore) List(ctx context.Context) ([]*model.Session, error) {
	if err := s.ensureInit(); err != nil {
		return nil, fmt.Errorf("init sessions dir: %w", err)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	var out []*model.Session
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("failed to read session file, skipping", "file", entry.Name(), "error", err)
			continue
		}
		var session model.Session
		if err := json.Unmarshal(data, &session); err != nil {
			s.logger.Warn("corrupted session file, skipping", "file", entry.Name(), "error", err)
			continue
		}
		out = append(out, &session)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Delete removes the session file named id. Deleting a nonexistent
// session is not an error.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := s.ensureInit(); err != nil {
		return fmt.Errorf("init sessions dir: %w", err)
	}
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// UpdateTitle loads, renames, and re-saves a session.
func (s *FileStore) UpdateTitle(ctx context.Context, id, title string) error {
	session, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	session.Title = title
	return s.Save(ctx, session)
}

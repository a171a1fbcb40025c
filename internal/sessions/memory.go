package sessions

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/captainphantasy/floyd-core/pkg/model"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests, mirroring FileStore's
// clone-on-read/write semantics without touching disk.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]*model.Session{}}
}

func cloneSession(s *model.Session) *model.Session {
	clone := *s
	clone.Messages = append([]model.Message(nil), s.Messages...)
	return &clone
}

func (m *MemoryStore) Create(ctx context.Context, cwd, title string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	session := &model.Session{
		ID:               uuid.NewString(),
		Title:            title,
		WorkingDirectory: cwd,
		CreatedAt:        now,
		UpdatedAt:        now,
		Messages:         []model.Message{},
	}
	m.sessions[session.ID] = cloneSession(session)
	return cloneSession(session), nil
}

func (m *MemoryStore) Save(ctx context.Context, session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.UpdatedAt = time.Now()
	m.sessions[session.ID] = cloneSession(session)
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return cloneSession(session), nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) UpdateTitle(ctx context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	session.Title = title
	session.UpdatedAt = time.Now()
	return nil
}

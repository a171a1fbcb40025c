// Package sessions implements the Session Store (spec §4.5): one JSON
// file per session under a sessions directory, sorted listing, and
// crash-safe atomic writes.
package sessions

import (
	"context"

	"github.com/captainphantasy/floyd-core/pkg/model"
)

// Store persists and loads Sessions (spec §4.5).
type Store interface {
	// Create starts a new session rooted at cwd, persists it, and
	// returns it. title may be empty.
	Create(ctx context.Context, cwd, title string) (*model.Session, error)
	// Save persists session, updating its UpdatedAt.
	Save(ctx context.Context, session *model.Session) error
	// Load reads the session named id.
	Load(ctx context.Context, id string) (*model.Session, error)
	// List returns every loadable session sorted by UpdatedAt descending.
	// Corrupt session files are skipped rather than failing the call.
	List(ctx context.Context) ([]*model.Session, error)
	// Delete removes the session named id. Deleting a session that does
	// not exist is not an error.
	Delete(ctx context.Context, id string) error
	// UpdateTitle renames a session and persists the change.
	UpdateTitle(ctx context.Context, id, title string) error
}

package permissions

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/captainphantasy/floyd-core/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_StartWatching_NoopForNonFileStore(t *testing.T) {
	m := NewManager(NewMemoryStore(), "/workspace", nil)
	require.NoError(t, m.StartWatching(context.Background()))
	m.StopWatching() // must not panic on a watcher that was never created
}

func TestManager_StartWatching_ReloadsOnExternalEdit(t *testing.T) {
	workspace := t.TempDir()
	store := NewFileStore(workspace, nil)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o755))

	m := NewManager(store, workspace, nil)
	require.NoError(t, m.StartWatching(context.Background()))
	defer m.StopWatching()

	require.Equal(t, model.DecisionAsk, m.Check("delete_thing", nil))

	require.NoError(t, store.Save(map[string]model.PermissionRule{
		"delete_thing": {ToolNameOrPattern: "delete_thing", Decision: model.DecisionAllow, Scope: model.ScopePersistent},
	}))

	assert.Eventually(t, func() bool {
		return m.Check("delete_thing", nil) == model.DecisionAllow
	}, 2*time.Second, 10*time.Millisecond)
}

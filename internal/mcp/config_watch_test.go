package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMCPConfig(t *testing.T, workspace, doc string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(workspace, ".floyd"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, ".floyd", "mcp.json"), []byte(doc), 0o644))
}

func TestManager_StartWatching_ReconcilesOnConfigChange(t *testing.T) {
	workspace := t.TempDir()
	writeMCPConfig(t, workspace, `{"version":1,"servers":[{"id":"fs","type":"stdio","command":"nonexistent-mcp-fs"}]}`)

	m := NewManager()
	defer m.Close()

	ctx := context.Background()
	m.LoadAndConnect(ctx, workspace)

	m.mu.RLock()
	_, hasFS := m.connections["fs"]
	m.mu.RUnlock()
	require.True(t, hasFS)

	require.NoError(t, m.StartWatching(ctx))

	writeMCPConfig(t, workspace, `{"version":1,"servers":[{"id":"web","type":"stdio","command":"nonexistent-mcp-web"}]}`)

	assert.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		_, stillHasFS := m.connections["fs"]
		_, hasWeb := m.connections["web"]
		return !stillHasFS && hasWeb
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_StartWatching_NoErrorWithoutConfigDir(t *testing.T) {
	m := NewManager()
	defer m.Close()
	require.NoError(t, m.StartWatching(context.Background()))
}

package mcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FindsFirstSearchPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".floyd"), 0o755))
	doc := `{"version":1,"servers":[{"id":"fs","type":"stdio","command":"mcp-fs"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".floyd", "mcp.json"), []byte(doc), 0o644))

	servers := LoadConfig(dir)
	require.Len(t, servers, 1)
	assert.Equal(t, "fs", servers[0].ID)
}

func TestLoadConfig_SkipsDisabledServers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".floyd"), 0o755))
	doc := `{"version":1,"servers":[
		{"id":"fs","type":"stdio","command":"mcp-fs"},
		{"id":"legacy","type":"stdio","command":"mcp-legacy","enabled":false}
	]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".floyd", "mcp.json"), []byte(doc), 0o644))

	servers := LoadConfig(dir)
	require.Len(t, servers, 1)
	assert.Equal(t, "fs", servers[0].ID)
}

func TestLoadConfig_MissingFileDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, LoadConfig(dir))
}

func TestLoadConfig_CorruptFileDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".floyd"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".floyd", "mcp.json"), []byte("{not json"), 0o644))
	assert.Empty(t, LoadConfig(dir))
}

package permissions

import (
	"testing"
	"time"

	"github.com/captainphantasy/floyd-core/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSafeReadList(t *testing.T) {
	m := NewManager(NewMemoryStore(), "/workspace", nil)
	assert.Equal(t, model.DecisionAllow, m.Check("read_file", nil))
}

func TestCheckAlwaysPromptList(t *testing.T) {
	m := NewManager(NewMemoryStore(), "/workspace", nil)
	assert.Equal(t, model.DecisionAsk, m.Check("exec", nil))
}

func TestCheckRiskClassificationFallsThrough(t *testing.T) {
	m := NewManager(NewMemoryStore(), "/workspace", nil)
	assert.Equal(t, model.DecisionAsk, m.Check("delete_all_things", nil))
	assert.Equal(t, model.DecisionAllow, m.Check("describe_config", nil))
}

func TestRecordOnceExpiresAfterOneCheck(t *testing.T) {
	m := NewManager(NewMemoryStore(), "/workspace", nil)
	m.Record("custom_delete", model.DecisionAllow, model.ScopeOnce)

	assert.Equal(t, model.DecisionAllow, m.Check("custom_delete", nil))
	// Second check: the once-rule is gone, falls back to risk classification.
	assert.Equal(t, model.DecisionAsk, m.Check("custom_delete", nil))
}

func TestRecordSessionExpires(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, "/workspace", nil)
	m.Record("custom_delete", model.DecisionAllow, model.ScopeSession)
	m.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	assert.Equal(t, model.DecisionAsk, m.Check("custom_delete", nil))
}

func TestRecordPersistentWritesThrough(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, "/workspace", nil)
	m.Record("custom_tool", model.DecisionDeny, model.ScopePersistent)

	rules, err := store.Load()
	require.NoError(t, err)
	rule, ok := rules["custom_tool"]
	require.True(t, ok)
	assert.Equal(t, model.DecisionDeny, rule.Decision)
	assert.Nil(t, rule.ExpiresAt)
}

func TestPatternRuleMatchesBeforeDefault(t *testing.T) {
	m := NewManager(NewMemoryStore(), "/workspace", nil)
	m.Record("mcp:fs.*", model.DecisionDeny, model.ScopePersistent)

	assert.Equal(t, model.DecisionDeny, m.Check("mcp:fs.write", nil))
}

func TestExactRuleBeatsPatternRule(t *testing.T) {
	m := NewManager(NewMemoryStore(), "/workspace", nil)
	m.Record("mcp:fs.*", model.DecisionDeny, model.ScopePersistent)
	m.Record("mcp:fs.read", model.DecisionAllow, model.ScopePersistent)

	assert.Equal(t, model.DecisionAllow, m.Check("mcp:fs.read", nil))
	assert.Equal(t, model.DecisionDeny, m.Check("mcp:fs.write", nil))
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	logger := newTestLogger()
	store := NewFileStore(dir, logger)

	rules := map[string]model.PermissionRule{
		"read_file": {ToolNameOrPattern: "read_file", Decision: model.DecisionAllow, Scope: model.ScopePersistent, GrantedAt: time.Now()},
	}
	require.NoError(t, store.Save(rules))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Contains(t, loaded, "read_file")
	assert.Equal(t, model.DecisionAllow, loaded["read_file"].Decision)
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, newTestLogger())

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFileStoreCorruptFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, newTestLogger())

	require.NoError(t, writeRaw(store.path, []byte("{not json")))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

package sessions

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/captainphantasy/floyd-core/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_CreateSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir(), nil)

	session, err := store.Create(ctx, "/workspace/project", "my session")
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)

	session.Append(model.NewUserMessage("m1", "hello"))
	require.NoError(t, store.Save(ctx, session))

	loaded, err := store.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Title, loaded.Title)
	require.Len(t, loaded.Messages, 1)
	assert.Equal(t, "hello", loaded.Messages[0].Text())
}

func TestFileStore_List_SortsByUpdatedAtDescending(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir(), nil)

	_, err := store.Create(ctx, "/ws", "older")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	newer, err := store.Create(ctx, "/ws", "newer")
	require.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
}

func TestFileStore_List_SkipsCorruptFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(dir, nil)

	good, err := store.Create(ctx, "/ws", "good")
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".floyd", "sessions"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".floyd", "sessions", "corrupt.json"), []byte("{not json"), 0o644))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, good.ID, list[0].ID)
}

func TestFileStore_Delete_NonexistentIsNotError(t *testing.T) {
	store := NewFileStore(t.TempDir(), nil)
	assert.NoError(t, store.Delete(context.Background(), "does-not-exist"))
}

func TestFileStore_UpdateTitle(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir(), nil)
	session, err := store.Create(ctx, "/ws", "old title")
	require.NoError(t, err)

	require.NoError(t, store.UpdateTitle(ctx, session.ID, "new title"))

	loaded, err := store.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "new title", loaded.Title)
}

func TestFileStore_ConcurrentInitIsRaceFree(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, nil)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Create(context.Background(), "/ws", "concurrent")
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

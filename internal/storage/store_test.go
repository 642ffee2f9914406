package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "it-saved-me-ranger-story", Slugify("'IT SAVED ME' - Ranger Story"))
	assert.Equal(t, "hello-world", Slugify("  Hello,   World!  "))
	assert.Equal(t, "", Slugify("!!!"))
	assert.Equal(t, "a-b-c", Slugify("a--b---c"))
}

func TestWriteAndReadArtifact(t *testing.T) {
	store := NewStore(t.TempDir())

	path, base, err := store.WriteArtifact("paranormal", "night-watch", "job-abc", map[string]any{
		"title": "Night Watch",
		"meta":  map[string]any{"target_minutes": 10, "estimated_word_count": 1500},
	})
	require.NoError(t, err)
	assert.Equal(t, "night-watch", base)
	assert.FileExists(t, path)

	raw, err := store.Read("paranormal", "night-watch.json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Night Watch")
}

func TestWriteArtifactCollisionAppendsJobID(t *testing.T) {
	store := NewStore(t.TempDir())

	_, _, err := store.WriteArtifact("horror", "same-title", "aaaaaaaa-1111", map[string]string{"title": "first"})
	require.NoError(t, err)

	path, base, err := store.WriteArtifact("horror", "same-title", "bbbbbbbb-2222", map[string]string{"title": "second"})
	require.NoError(t, err)
	assert.Equal(t, "same-title-bbbbbbbb", base)
	assert.FileExists(t, path)

	// The first artifact was not overwritten.
	raw, err := store.Read("horror", "same-title.json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "first")
}

func TestListTree(t *testing.T) {
	store := NewStore(t.TempDir())

	_, base, err := store.WriteArtifact("paranormal", "night-watch", "job-1", map[string]any{
		"title": "Night Watch",
		"meta":  map[string]any{"target_minutes": 10, "estimated_word_count": 1500},
	})
	require.NoError(t, err)
	_, err = store.WriteRunLog("paranormal", base, map[string]any{"id": "job-1"})
	require.NoError(t, err)
	_, _, err = store.WriteArtifact("horror", "no-meta", "job-2", map[string]any{"title": "Bare"})
	require.NoError(t, err)

	tree, err := store.ListTree()
	require.NoError(t, err)
	require.Contains(t, tree, "paranormal")
	require.Contains(t, tree, "horror")

	items := tree["paranormal"].Items
	require.Len(t, items, 1, "sidecar log must not list as an artifact")
	assert.Equal(t, "night-watch.json", items[0].File)
	assert.Equal(t, "Night Watch", items[0].Title)
	require.NotNil(t, items[0].Minutes)
	assert.Equal(t, 10, *items[0].Minutes)
	require.NotNil(t, items[0].Words)
	assert.Equal(t, 1500, *items[0].Words)

	bare := tree["horror"].Items
	require.Len(t, bare, 1)
	assert.Equal(t, "Bare", bare[0].Title)
	assert.Nil(t, bare[0].Minutes)
}

func TestListTreeEmptyRoot(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "never-created"))
	tree, err := store.ListTree()
	require.NoError(t, err)
	assert.Empty(t, tree)
}

func TestDeleteRemovesSidecar(t *testing.T) {
	store := NewStore(t.TempDir())

	path, base, err := store.WriteArtifact("paranormal", "gone-soon", "job-3", map[string]string{"title": "Gone"})
	require.NoError(t, err)
	logPath, err := store.WriteRunLog("paranormal", base, map[string]string{"id": "job-3"})
	require.NoError(t, err)

	require.NoError(t, store.Delete("paranormal", "gone-soon.json"))
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, logPath)
}

func TestDeleteUnknownFile(t *testing.T) {
	store := NewStore(t.TempDir())
	err := store.Delete("paranormal", "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadUnknownFile(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Read("paranormal", "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPathEscapeRejected(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Read("../outside", "file.json")
	require.Error(t, err)

	_, err = store.Read("paranormal", "../../etc/passwd")
	require.Error(t, err)

	_, _, err = store.WriteArtifact("cat", ".hidden", "job", nil)
	require.Error(t, err)
}

func TestWriteRunLogPath(t *testing.T) {
	store := NewStore(t.TempDir())
	logPath, err := store.WriteRunLog("paranormal", "some-story", map[string]string{"id": "x"})
	require.NoError(t, err)
	assert.Equal(t, "some-story.log.json", filepath.Base(logPath))
	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"id"`)
}

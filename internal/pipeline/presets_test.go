package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPresets(t *testing.T) {
	presets := DefaultPresets()
	assert.NotEmpty(t, presets.Get("paranormal").Tone)
	assert.Empty(t, presets.Get("romance").Tone)
}

func TestLoadPresetsEmptyPath(t *testing.T) {
	presets, err := LoadPresets("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPresets(), presets)
}

func TestLoadPresetsOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
paranormal:
  tone: "clinical and detached"
  title_suffix: "Case File"
romance:
  tone: "warm, slow, hopeful"
`), 0o644))

	presets, err := LoadPresets(path)
	require.NoError(t, err)

	// File entries replace the default wholesale.
	assert.Equal(t, "clinical and detached", presets.Get("paranormal").Tone)
	assert.Equal(t, "Case File", presets.Get("paranormal").TitleSuffix)
	assert.Equal(t, "warm, slow, hopeful", presets.Get("romance").Tone)

	// Untouched defaults survive.
	assert.Equal(t, DefaultPresets().Get("horror"), presets.Get("horror"))
}

func TestLoadPresetsRejectsUnknownStoryType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("western:\n  tone: dusty\n"), 0o644))

	_, err := LoadPresets(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "western")
}

func TestLoadPresetsMissingFile(t *testing.T) {
	_, err := LoadPresets(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

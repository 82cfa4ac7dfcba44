package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsFirstRun(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	assert.Equal(t, State{}, st)
}

func TestLoadCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	want := State{
		LastHash:            "abc123",
		LastRenderedISO:     "2026-02-05T12:00:00-07:00",
		LastSleepBannerDate: "2026-02-05",
	}

	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSaveOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, Save(path, State{LastHash: "old"}))
	require.NoError(t, Save(path, State{LastHash: "new"}))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "new", got.LastHash)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

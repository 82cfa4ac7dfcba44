package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// State is the small persisted document that survives across runs. It is
// loaded once at run start and written once after a successful render; the
// external scheduler guarantees non-overlapping invocations, so there is
// no locking.
type State struct {
	// LastHash is the hex digest of the last rendered content signature.
	LastHash string `json:"last_hash"`
	// LastRenderedISO is the RFC3339 timestamp of the last physical render.
	LastRenderedISO string `json:"last_rendered_iso"`
	// LastSleepBannerDate is the YYYY-MM-DD day the sleep banner was last
	// applied; at most one banner application per calendar day.
	LastSleepBannerDate string `json:"last_sleep_banner_date"`
}

// Load reads the state document. A missing file is a first run and yields
// zero defaults. A present-but-unreadable or corrupt file is an error:
// silently resetting would also reset the banner ledger and could apply
// the sleep banner twice in one day.
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("state: read %s: %w", path, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("state: parse %s: %w", path, err)
	}
	return st, nil
}

// Save writes the state atomically: temp file in the same directory, fsync,
// rename over the target.
func Save(path string, st State) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(&st, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".inkycal-state-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

package session

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Store reads and writes storage-state files. It never fails a scrape:
// unusable files degrade to "no stored session".
type Store struct{}

// NewStore returns a Store.
func NewStore() *Store {
	return &Store{}
}

// Read loads the state at path. An empty or structurally invalid file is
// deleted. Any other I/O error leaves the file alone. ok is false whenever no
// usable state was found.
func (st *Store) Read(path string) (state *State, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("session: cannot read storage state, continuing without it",
				"path", path, "error", err)
		}
		return nil, false
	}

	if len(data) == 0 {
		slog.Warn("session: storage state file is empty, deleting", "path", path)
		st.discard(path)
		return nil, false
	}

	state, err = Parse(data)
	if err != nil {
		slog.Warn("session: storage state is invalid, deleting",
			"path", path, "code", "SESSION_STATE_INVALID", "error", err)
		st.discard(path)
		return nil, false
	}

	slog.Debug("session: loaded storage state",
		"path", path, "cookies", len(state.Cookies), "origins", len(state.Origins))
	return state, true
}

// Write replaces the file at path with state. The new content goes to a
// temporary file in the same directory which is then renamed over path, so a
// failed write leaves the previous file intact. Concurrent writers to the
// same path are last-writer-wins.
func (st *Store) Write(path string, state *State) error {
	data, err := state.Bytes()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}

	slog.Info("session: storage state saved", "path", path, "bytes", len(data))
	return nil
}

func (st *Store) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("session: failed to delete invalid storage state", "path", path, "error", err)
	}
}

package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/metal-stack/backup-rotator/cmd/internal/retention"
	"github.com/metal-stack/backup-rotator/pkg/constants"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// PersistenceError indicates that the rotation state could not be loaded or saved
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("unable to %s rotation state %s: %v", e.Op, e.Path, e.Err)
}

func (e PersistenceError) Unwrap() error {
	return e.Err
}

// Store persists the rotation state as a json file
type Store struct {
	fs   afero.Fs
	log  *zap.SugaredLogger
	path string
}

// Config provides configuration for the Store
type Config struct {
	Path string
	FS   afero.Fs
}

// New returns a state store
func New(log *zap.SugaredLogger, config *Config) *Store {
	if config == nil {
		config = &Config{}
	}
	if config.Path == "" {
		config.Path = constants.DefaultStateFile
	}
	if config.FS == nil {
		config.FS = afero.NewOsFs()
	}

	return &Store{
		fs:   config.FS,
		log:  log,
		path: config.Path,
	}
}

// Path returns the location of the state file
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted state. A missing state file results in an empty state.
// The order of the identifiers is kept as found in the file.
func (s *Store) Load(_ context.Context) (*retention.State, error) {
	raw, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Infow("no rotation state found, starting with empty state", "path", s.path)
		return retention.NewState(), nil
	}
	if err != nil {
		return nil, PersistenceError{Op: "read", Path: s.path, Err: err}
	}

	state := retention.NewState()
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, PersistenceError{Op: "decode", Path: s.path, Err: err}
	}

	// a key missing in the file or set to null decodes to nil
	if state.Daily == nil {
		state.Daily = []retention.Identifier{}
	}
	if state.Weekly == nil {
		state.Weekly = []retention.Identifier{}
	}
	if state.Monthly == nil {
		state.Monthly = []retention.Identifier{}
	}

	s.log.Debugw("loaded rotation state", "path", s.path, "daily", len(state.Daily), "weekly", len(state.Weekly), "monthly", len(state.Monthly))

	return state, nil
}

// Save writes the state to a temporary file next to the state file and renames it
// over the state file, so a subsequent Load never observes a partial write.
func (s *Store) Save(_ context.Context, state *retention.State) error {
	raw, err := json.Marshal(state.Clone())
	if err != nil {
		return PersistenceError{Op: "encode", Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return PersistenceError{Op: "write", Path: s.path, Err: err}
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(s.path)+"-*")
	if err != nil {
		return PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	defer func() {
		_ = s.fs.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return PersistenceError{Op: "write", Path: s.path, Err: err}
	}

	if err := s.fs.Rename(tmp.Name(), s.path); err != nil {
		return PersistenceError{Op: "write", Path: s.path, Err: err}
	}

	s.log.Debugw("saved rotation state", "path", s.path)

	return nil
}

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/metal-stack/backup-rotator/cmd/internal/retention"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const statePath = "/var/lib/backup-rotator/backup_status.json"

func TestStore(t *testing.T) {
	var (
		ctx = context.Background()
		log = zaptest.NewLogger(t).Sugar()
		fs  = afero.NewMemMapFs()
	)

	s := New(log, &Config{Path: statePath, FS: fs})

	t.Run("missing state file yields empty state", func(t *testing.T) {
		state, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, retention.NewState(), state)

		_, err = fs.Stat(statePath)
		require.ErrorIs(t, err, afero.ErrFileNotFound)
	})

	if t.Failed() {
		return
	}

	t.Run("save and load", func(t *testing.T) {
		state := &retention.State{
			Daily: []retention.Identifier{
				retention.MustParseIdentifier("2024-01-08_020000"),
				retention.MustParseIdentifier("2024-01-09_020000"),
			},
			Weekly:  []retention.Identifier{retention.MustParseIdentifier("2024-01-01_020000")},
			Monthly: []retention.Identifier{},
		}

		err := s.Save(ctx, state)
		require.NoError(t, err)

		raw, err := afero.ReadFile(fs, statePath)
		require.NoError(t, err)
		assert.JSONEq(t, `{"daily":["2024-01-08_020000","2024-01-09_020000"],"weekly":["2024-01-01_020000"],"monthly":[]}`, string(raw))

		loaded, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, state, loaded)

		entries, err := afero.ReadDir(fs, "/var/lib/backup-rotator")
		require.NoError(t, err)
		require.Len(t, entries, 1, "temporary files must not be left behind")
	})

	t.Run("on-disk order is preserved", func(t *testing.T) {
		err := afero.WriteFile(fs, statePath, []byte(`{"daily":["2024-01-09_020000","2024-01-08_020000"],"weekly":null}`), 0600)
		require.NoError(t, err)

		loaded, err := s.Load(ctx)
		require.NoError(t, err)

		require.Len(t, loaded.Daily, 2)
		assert.Equal(t, "2024-01-09_020000", loaded.Daily[0].String())
		assert.Equal(t, "2024-01-08_020000", loaded.Daily[1].String())
		assert.NotNil(t, loaded.Weekly)
		assert.NotNil(t, loaded.Monthly)
	})

	t.Run("corrupt state file", func(t *testing.T) {
		err := afero.WriteFile(fs, statePath, []byte(`{"daily":["yesterday"]}`), 0600)
		require.NoError(t, err)

		_, err = s.Load(ctx)
		require.Error(t, err)

		var perr PersistenceError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, "decode", perr.Op)
	})
}

func TestStoreSaveFailure(t *testing.T) {
	var (
		ctx = context.Background()
		log = zaptest.NewLogger(t).Sugar()
	)

	s := New(log, &Config{Path: statePath, FS: afero.NewReadOnlyFs(afero.NewMemMapFs())})

	err := s.Save(ctx, retention.NewState())
	require.Error(t, err)

	var perr PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "write", perr.Op)
	assert.Equal(t, statePath, perr.Path)
}

package local

import (
	"bytes"
	"context"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/metal-stack/backup-rotator/pkg/constants"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func Test_ArtifactStoreLocal(t *testing.T) {
	var (
		ctx = context.Background()
		log = zaptest.NewLogger(t).Sugar()
	)

	fs := afero.NewMemMapFs()

	p, err := New(log, &ArtifactStoreConfigLocal{
		FS: fs,
	})
	require.NoError(t, err)
	require.NotNil(t, p)

	t.Run("ensure backup bucket", func(t *testing.T) {
		err := p.EnsureBackupBucket(ctx)
		require.NoError(t, err)

		info, err := fs.Stat(constants.BackupDir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	if t.Failed() {
		return
	}

	t.Run("verify upload", func(t *testing.T) {
		for i := range 3 {
			name := fmt.Sprintf("daily-2024-01-0%d_020000.sql", i+1)
			err := p.UploadArtifact(ctx, name, bytes.NewBufferString(fmt.Sprintf("precious data %d", i)))
			require.NoError(t, err)

			content, err := afero.ReadFile(fs, constants.BackupDir+"/"+name)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("precious data %d", i), string(content))
		}
	})

	t.Run("list artifacts", func(t *testing.T) {
		artifacts, err := p.ListArtifacts(ctx)
		require.NoError(t, err)
		require.Len(t, artifacts, 3)

		a, err := artifacts.Get("daily-2024-01-02_020000.sql")
		require.NoError(t, err)
		assert.Equal(t, int64(len("precious data 1")), a.Size)

		_, err = artifacts.Get("foo")
		require.ErrorIs(t, err, iofs.ErrNotExist)
	})

	t.Run("rename artifact", func(t *testing.T) {
		err := p.RenameArtifact(ctx, "daily-2024-01-01_020000.sql", "weekly-2024-01-01_020000.sql")
		require.NoError(t, err)

		content, err := afero.ReadFile(fs, constants.BackupDir+"/weekly-2024-01-01_020000.sql")
		require.NoError(t, err)
		assert.Equal(t, "precious data 0", string(content))

		exists, err := afero.Exists(fs, constants.BackupDir+"/daily-2024-01-01_020000.sql")
		require.NoError(t, err)
		assert.False(t, exists)

		err = p.RenameArtifact(ctx, "daily-2024-01-01_020000.sql", "weekly-2024-01-01_020000.sql")
		require.ErrorIs(t, err, iofs.ErrNotExist)
	})

	t.Run("delete artifact", func(t *testing.T) {
		err := p.DeleteArtifact(ctx, "daily-2024-01-02_020000.sql")
		require.NoError(t, err)

		err = p.DeleteArtifact(ctx, "daily-2024-01-02_020000.sql")
		require.ErrorIs(t, err, iofs.ErrNotExist)
	})

	err = afero.Walk(fs, "/", func(path string, info iofs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasPrefix(path, constants.BackupDir) {
			return nil
		}

		return fmt.Errorf("artifact store messed around in the file system at: %s", path)
	})
	require.NoError(t, err)
}

func TestNewResolvesRelativePath(t *testing.T) {
	p, err := New(zaptest.NewLogger(t).Sugar(), &ArtifactStoreConfigLocal{LocalBackupPath: "backups", FS: afero.NewMemMapFs()})
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "backups"), p.config.LocalBackupPath)
}

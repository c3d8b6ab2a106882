package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/metal-stack/backup-rotator/cmd/internal/backup/providers"
	"github.com/metal-stack/backup-rotator/pkg/constants"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ArtifactStoreLocal implements the artifact store interface for a directory on the local filesystem
type ArtifactStoreLocal struct {
	fs     afero.Fs
	log    *zap.SugaredLogger
	config *ArtifactStoreConfigLocal
}

// ArtifactStoreConfigLocal provides configuration for the ArtifactStoreLocal
type ArtifactStoreConfigLocal struct {
	LocalBackupPath string
	FS              afero.Fs
}

// New returns a local artifact store
func New(log *zap.SugaredLogger, config *ArtifactStoreConfigLocal) (*ArtifactStoreLocal, error) {
	if config == nil {
		return nil, errors.New("local artifact store requires a config")
	}

	if config.LocalBackupPath == "" {
		config.LocalBackupPath = constants.BackupDir
	}
	if config.FS == nil {
		config.FS = afero.NewOsFs()
	}

	if !filepath.IsAbs(config.LocalBackupPath) {
		abs, err := filepath.Abs(config.LocalBackupPath)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve local backup path: %w", err)
		}
		config.LocalBackupPath = abs
	}

	return &ArtifactStoreLocal{
		config: config,
		log:    log,
		fs:     config.FS,
	}, nil
}

func (b *ArtifactStoreLocal) path(name string) string {
	return filepath.Join(b.config.LocalBackupPath, name)
}

// EnsureBackupBucket ensures the backup directory exists
func (b *ArtifactStoreLocal) EnsureBackupBucket(_ context.Context) error {
	if err := b.fs.MkdirAll(b.config.LocalBackupPath, 0755); err != nil {
		return fmt.Errorf("could not create local backup directory: %w", err)
	}

	return nil
}

// UploadArtifact writes an artifact into the backup directory
func (b *ArtifactStoreLocal) UploadArtifact(_ context.Context, name string, r io.Reader) error {
	b.log.Debugw("writing artifact", "name", name, "dir", b.config.LocalBackupPath)

	f, err := b.fs.Create(b.path(name))
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("error writing artifact %q: %w", name, err)
	}

	return f.Close()
}

// RenameArtifact renames an artifact within the backup directory
func (b *ArtifactStoreLocal) RenameArtifact(_ context.Context, from, to string) error {
	exists, err := afero.Exists(b.fs, b.path(from))
	if err != nil {
		return err
	}
	if !exists {
		return providers.NotFound(from)
	}

	return b.fs.Rename(b.path(from), b.path(to))
}

// DeleteArtifact removes an artifact from the backup directory
func (b *ArtifactStoreLocal) DeleteArtifact(_ context.Context, name string) error {
	exists, err := afero.Exists(b.fs, b.path(name))
	if err != nil {
		return err
	}
	if !exists {
		return providers.NotFound(name)
	}

	return b.fs.Remove(b.path(name))
}

// ListArtifacts lists the artifacts in the backup directory
func (b *ArtifactStoreLocal) ListArtifacts(_ context.Context) (providers.Artifacts, error) {
	infos, err := afero.ReadDir(b.fs, b.config.LocalBackupPath)
	if err != nil {
		return nil, err
	}

	var result providers.Artifacts
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		result = append(result, &providers.Artifact{
			Name: info.Name(),
			Size: info.Size(),
			Date: info.ModTime(),
		})
	}

	return result, nil
}

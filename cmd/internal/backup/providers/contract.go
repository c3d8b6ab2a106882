package providers

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"time"
)

// ArtifactStore keeps the backup artifacts of all tiers.
// Operations on missing artifacts return an error wrapping fs.ErrNotExist.
type ArtifactStore interface {
	// EnsureBackupBucket creates the location artifacts are stored in if it does not exist yet
	EnsureBackupBucket(ctx context.Context) error
	// ListArtifacts returns all stored artifacts
	ListArtifacts(ctx context.Context) (Artifacts, error)
	// UploadArtifact stores the content of r under the given name
	UploadArtifact(ctx context.Context, name string, r io.Reader) error
	// RenameArtifact moves an artifact to a new name
	RenameArtifact(ctx context.Context, from, to string) error
	// DeleteArtifact removes an artifact
	DeleteArtifact(ctx context.Context, name string) error
}

// Artifact is a stored backup artifact
type Artifact struct {
	Name string
	Size int64
	Date time.Time
}

// Artifacts is a list of stored artifacts
type Artifacts []*Artifact

// Get returns the artifact with the given name
func (a Artifacts) Get(name string) (*Artifact, error) {
	for _, artifact := range a {
		if artifact.Name == name {
			return artifact, nil
		}
	}
	return nil, NotFound(name)
}

// NotFound returns the error for a missing artifact
func NotFound(name string) error {
	return fmt.Errorf("artifact %q: %w", name, fs.ErrNotExist)
}

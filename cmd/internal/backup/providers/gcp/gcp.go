package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/metal-stack/backup-rotator/cmd/internal/backup/providers"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ArtifactStoreGCP implements the artifact store interface for GCS
type ArtifactStoreGCP struct {
	log    *zap.SugaredLogger
	c      *storage.Client
	config *ArtifactStoreConfigGCP
}

// ArtifactStoreConfigGCP provides configuration for the ArtifactStoreGCP
type ArtifactStoreConfigGCP struct {
	BucketName     string
	BucketLocation string
	ObjectPrefix   string
	ProjectID      string
	ClientOpts     []option.ClientOption
}

func (c *ArtifactStoreConfigGCP) validate() error {
	if c.BucketName == "" {
		return errors.New("gcp bucket name must not be empty")
	}
	if c.ProjectID == "" {
		return errors.New("gcp project id must not be empty")
	}
	for _, opt := range c.ClientOpts {
		if opt == nil {
			return errors.New("option can not be nil")
		}
	}

	return nil
}

// New returns a GCP artifact store
func New(ctx context.Context, log *zap.SugaredLogger, config *ArtifactStoreConfigGCP) (*ArtifactStoreGCP, error) {
	if config == nil {
		return nil, errors.New("gcp artifact store requires a config")
	}

	err := config.validate()
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx, config.ClientOpts...)
	if err != nil {
		return nil, err
	}

	return &ArtifactStoreGCP{
		c:      client,
		config: config,
		log:    log,
	}, nil
}

func (b *ArtifactStoreGCP) object(name string) *storage.ObjectHandle {
	key := name
	if b.config.ObjectPrefix != "" {
		key = b.config.ObjectPrefix + "/" + name
	}
	return b.c.Bucket(b.config.BucketName).Object(key)
}

// EnsureBackupBucket ensures a backup bucket at the backup provider
func (b *ArtifactStoreGCP) EnsureBackupBucket(ctx context.Context) error {
	bucket := b.c.Bucket(b.config.BucketName)

	attrs := &storage.BucketAttrs{
		Location: b.config.BucketLocation,
	}

	if err := bucket.Create(ctx, b.config.ProjectID, attrs); err != nil {
		var googleErr *googleapi.Error
		if errors.As(err, &googleErr) {
			if googleErr.Code != http.StatusConflict {
				return err
			}
		} else {
			return err
		}
	}

	return nil
}

// UploadArtifact uploads an artifact to the bucket
func (b *ArtifactStoreGCP) UploadArtifact(ctx context.Context, name string, r io.Reader) error {
	b.log.Debugw("uploading object", "bucket", b.config.BucketName, "name", name)

	w := b.object(name).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("unable to upload %q: %w", name, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("unable to upload %q: %w", name, err)
	}

	return nil
}

// RenameArtifact copies the artifact to its new name and deletes the old object
func (b *ArtifactStoreGCP) RenameArtifact(ctx context.Context, from, to string) error {
	src := b.object(from)

	if _, err := src.Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return providers.NotFound(from)
		}
		return fmt.Errorf("unable to look up %q: %w", from, err)
	}

	if _, err := b.object(to).CopierFrom(src).Run(ctx); err != nil {
		return fmt.Errorf("unable to copy %q to %q: %w", from, to, err)
	}

	return b.DeleteArtifact(ctx, from)
}

// DeleteArtifact deletes an artifact from the bucket
func (b *ArtifactStoreGCP) DeleteArtifact(ctx context.Context, name string) error {
	err := b.object(name).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return providers.NotFound(name)
	}
	if err != nil {
		return fmt.Errorf("unable to delete %q: %w", name, err)
	}
	return nil
}

// ListArtifacts lists the artifacts in the bucket
func (b *ArtifactStoreGCP) ListArtifacts(ctx context.Context) (providers.Artifacts, error) {
	query := &storage.Query{}
	if b.config.ObjectPrefix != "" {
		query.Prefix = b.config.ObjectPrefix + "/"
	}

	it := b.c.Bucket(b.config.BucketName).Objects(ctx, query)

	var result providers.Artifacts
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to list objects: %w", err)
		}

		result = append(result, &providers.Artifact{
			Name: strings.TrimPrefix(attrs.Name, query.Prefix),
			Size: attrs.Size,
			Date: attrs.Updated,
		})
	}

	return result, nil
}

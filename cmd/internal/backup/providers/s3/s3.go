package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/metal-stack/backup-rotator/cmd/internal/backup/providers"
	"go.uber.org/zap"
)

// ArtifactStoreS3 implements the artifact store interface for S3
type ArtifactStoreS3 struct {
	log    *zap.SugaredLogger
	c      *s3.Client
	config *ArtifactStoreConfigS3
}

// ArtifactStoreConfigS3 provides configuration for the ArtifactStoreS3
type ArtifactStoreConfigS3 struct {
	BucketName   string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	ObjectPrefix string
}

func (c *ArtifactStoreConfigS3) validate() error {
	if c.BucketName == "" {
		return errors.New("s3 bucket name must not be empty")
	}
	if c.Region == "" {
		return errors.New("s3 region must not be empty")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return errors.New("s3 access key and secret key must be given together")
	}

	return nil
}

// New returns a S3 artifact store
func New(ctx context.Context, log *zap.SugaredLogger, cfg *ArtifactStoreConfigS3) (*ArtifactStoreS3, error) {
	if cfg == nil {
		return nil, errors.New("s3 artifact store requires a config")
	}

	err := cfg.validate()
	if err != nil {
		return nil, err
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// required by most s3 compatible services
			o.UsePathStyle = true
		}
	})

	return &ArtifactStoreS3{
		c:      client,
		config: cfg,
		log:    log,
	}, nil
}

func (b *ArtifactStoreS3) key(name string) string {
	if b.config.ObjectPrefix == "" {
		return name
	}
	return b.config.ObjectPrefix + "/" + name
}

// EnsureBackupBucket ensures a backup bucket at the s3 endpoint
func (b *ArtifactStoreS3) EnsureBackupBucket(ctx context.Context) error {
	_, err := b.c.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(b.config.BucketName),
	})
	if err != nil {
		var (
			owned  *types.BucketAlreadyOwnedByYou
			exists *types.BucketAlreadyExists
		)
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("unable to create bucket %q: %w", b.config.BucketName, err)
	}

	b.log.Infow("created backup bucket", "bucket", b.config.BucketName)

	return nil
}

// UploadArtifact uploads an artifact to the bucket
func (b *ArtifactStoreS3) UploadArtifact(ctx context.Context, name string, r io.Reader) error {
	b.log.Debugw("uploading object", "bucket", b.config.BucketName, "key", b.key(name))

	uploader := manager.NewUploader(b.c)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.config.BucketName),
		Key:    aws.String(b.key(name)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("unable to upload %q: %w", name, err)
	}

	return nil
}

// RenameArtifact copies the artifact to its new key and deletes the old one
func (b *ArtifactStoreS3) RenameArtifact(ctx context.Context, from, to string) error {
	if err := b.exists(ctx, from); err != nil {
		return err
	}

	_, err := b.c.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.config.BucketName),
		CopySource: aws.String(b.config.BucketName + "/" + b.key(from)),
		Key:        aws.String(b.key(to)),
	})
	if err != nil {
		return fmt.Errorf("unable to copy %q to %q: %w", from, to, err)
	}

	return b.delete(ctx, from)
}

// DeleteArtifact deletes an artifact from the bucket
func (b *ArtifactStoreS3) DeleteArtifact(ctx context.Context, name string) error {
	// deleting a missing key succeeds in s3, so check for presence first to report it
	if err := b.exists(ctx, name); err != nil {
		return err
	}

	return b.delete(ctx, name)
}

func (b *ArtifactStoreS3) delete(ctx context.Context, name string) error {
	_, err := b.c.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.config.BucketName),
		Key:    aws.String(b.key(name)),
	})
	if err != nil {
		return fmt.Errorf("unable to delete %q: %w", name, err)
	}
	return nil
}

func (b *ArtifactStoreS3) exists(ctx context.Context, name string) error {
	_, err := b.c.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.config.BucketName),
		Key:    aws.String(b.key(name)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return providers.NotFound(name)
		}
		return fmt.Errorf("unable to look up %q: %w", name, err)
	}
	return nil
}

// ListArtifacts lists the artifacts in the bucket
func (b *ArtifactStoreS3) ListArtifacts(ctx context.Context) (providers.Artifacts, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.config.BucketName),
	}
	if b.config.ObjectPrefix != "" {
		input.Prefix = aws.String(b.config.ObjectPrefix + "/")
	}

	var result providers.Artifacts
	paginator := s3.NewListObjectsV2Paginator(b.c, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			name := aws.ToString(obj.Key)
			if b.config.ObjectPrefix != "" {
				name = strings.TrimPrefix(name, b.config.ObjectPrefix+"/")
			}
			result = append(result, &providers.Artifact{
				Name: name,
				Size: aws.ToInt64(obj.Size),
				Date: aws.ToTime(obj.LastModified),
			})
		}
	}

	return result, nil
}

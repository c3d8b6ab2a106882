//go:build integration

package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	iofs "io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

func Test_ArtifactStoreS3(t *testing.T) {
	var (
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Minute)
		log         = zaptest.NewLogger(t).Sugar()
	)

	defer cancel()

	c, conn := startMinioContainer(t, ctx)
	defer func() {
		if t.Failed() {
			r, err := c.Logs(ctx)
			require.NoError(t, err)

			if err == nil {
				logs, err := io.ReadAll(r)
				require.NoError(t, err)

				fmt.Println(string(logs))
			}
		}
		err := c.Terminate(ctx)
		require.NoError(t, err)
	}()

	p, err := New(ctx, log, &ArtifactStoreConfigS3{
		BucketName:   "test",
		Endpoint:     conn.Endpoint,
		Region:       "dummy",
		AccessKey:    "ACCESSKEY",
		SecretKey:    "SECRETKEY",
		ObjectPrefix: "postgres",
	})
	require.NoError(t, err)
	require.NotNil(t, p)

	t.Run("ensure backup bucket", func(t *testing.T) {
		err := p.EnsureBackupBucket(ctx)
		require.NoError(t, err)

		// second call must not fail on the existing bucket
		err = p.EnsureBackupBucket(ctx)
		require.NoError(t, err)
	})

	if t.Failed() {
		return
	}

	t.Run("verify upload", func(t *testing.T) {
		for i := range 3 {
			name := fmt.Sprintf("daily-2024-01-0%d_020000.sql", i+1)
			err := p.UploadArtifact(ctx, name, bytes.NewBufferString(fmt.Sprintf("precious data %d", i)))
			require.NoError(t, err)
		}

		artifacts, err := p.ListArtifacts(ctx)
		require.NoError(t, err)
		require.Len(t, artifacts, 3)

		a, err := artifacts.Get("daily-2024-01-03_020000.sql")
		require.NoError(t, err)
		assert.Equal(t, int64(len("precious data 2")), a.Size)
		assert.NotZero(t, a.Date)
	})

	t.Run("rename artifact", func(t *testing.T) {
		err := p.RenameArtifact(ctx, "daily-2024-01-01_020000.sql", "weekly-2024-01-01_020000.sql")
		require.NoError(t, err)

		artifacts, err := p.ListArtifacts(ctx)
		require.NoError(t, err)

		_, err = artifacts.Get("weekly-2024-01-01_020000.sql")
		require.NoError(t, err)
		_, err = artifacts.Get("daily-2024-01-01_020000.sql")
		require.ErrorIs(t, err, iofs.ErrNotExist)

		err = p.RenameArtifact(ctx, "daily-2024-01-01_020000.sql", "weekly-2024-01-01_020000.sql")
		require.ErrorIs(t, err, iofs.ErrNotExist)
	})

	t.Run("delete artifact", func(t *testing.T) {
		err := p.DeleteArtifact(ctx, "daily-2024-01-02_020000.sql")
		require.NoError(t, err)

		err = p.DeleteArtifact(ctx, "daily-2024-01-02_020000.sql")
		require.ErrorIs(t, err, iofs.ErrNotExist)

		artifacts, err := p.ListArtifacts(ctx)
		require.NoError(t, err)
		require.Len(t, artifacts, 2)
	})
}

type connectionDetails struct {
	Endpoint string
}

func startMinioContainer(t testing.TB, ctx context.Context) (testcontainers.Container, *connectionDetails) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "quay.io/minio/minio",
			ExposedPorts: []string{"9000"},
			Cmd:          []string{"server", "/data"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     "ACCESSKEY",
				"MINIO_ROOT_PASSWORD": "SECRETKEY",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("9000/tcp"),
			),
		},
		Started: true,
		Logger:  testcontainers.TestLogger(t),
	})
	require.NoError(t, err)

	host, err := c.Host(ctx)
	require.NoError(t, err)

	port, err := c.MappedPort(ctx, "9000")
	require.NoError(t, err)

	conn := &connectionDetails{
		Endpoint: "http://" + host + ":" + port.Port(),
	}

	return c, conn
}

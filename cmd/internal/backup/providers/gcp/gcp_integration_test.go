//go:build integration

package gcp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	iofs "io/fs"
	"net/http"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/option"
)

func Test_ArtifactStoreGCP(t *testing.T) {
	var (
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Minute)
		log         = zaptest.NewLogger(t).Sugar()
	)

	defer cancel()

	c, conn := startFakeGcsContainer(t, ctx)
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

	var (
		endpoint = conn.Endpoint + "/storage/v1/"

		transCfg = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
		httpClient = &http.Client{Transport: transCfg}
	)

	p, err := New(ctx, log, &ArtifactStoreConfigGCP{
		BucketName:     "test",
		BucketLocation: "europe-west3",
		ObjectPrefix:   "postgres",
		ProjectID:      "test-project-id",
		ClientOpts:     []option.ClientOption{option.WithEndpoint(endpoint), option.WithHTTPClient(httpClient)},
	})
	require.NoError(t, err)
	require.NotNil(t, p)

	t.Run("ensure backup bucket", func(t *testing.T) {
		err := p.EnsureBackupBucket(ctx)
		require.NoError(t, err)
	})

	if t.Failed() {
		return
	}

	t.Run("upload, rename and delete", func(t *testing.T) {
		err := p.UploadArtifact(ctx, "daily-2024-01-01_020000.sql", bytes.NewBufferString("precious data"))
		require.NoError(t, err)

		err = p.RenameArtifact(ctx, "daily-2024-01-01_020000.sql", "weekly-2024-01-01_020000.sql")
		require.NoError(t, err)

		artifacts, err := p.ListArtifacts(ctx)
		require.NoError(t, err)
		require.Len(t, artifacts, 1)
		require.Equal(t, "weekly-2024-01-01_020000.sql", artifacts[0].Name)

		err = p.DeleteArtifact(ctx, "weekly-2024-01-01_020000.sql")
		require.NoError(t, err)

		err = p.DeleteArtifact(ctx, "weekly-2024-01-01_020000.sql")
		require.ErrorIs(t, err, iofs.ErrNotExist)

		err = p.RenameArtifact(ctx, "daily-2024-01-01_020000.sql", "weekly-2024-01-01_020000.sql")
		require.ErrorIs(t, err, iofs.ErrNotExist)
	})
}

type connectionDetails struct {
	Endpoint string
}

func startFakeGcsContainer(t testing.TB, ctx context.Context) (testcontainers.Container, *connectionDetails) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "fsouza/fake-gcs-server",
			HostConfigModifier: func(hc *container.HostConfig) {
				// the public host must exactly match the client endpoint
				// see https://github.com/fsouza/fake-gcs-server/issues/196
				hc.NetworkMode = "host"
			},
			Cmd: []string{"-backend", "memory", "-log-level", "debug", "-public-host", "localhost:4443"},
			WaitingFor: wait.ForAll(
				wait.ForLog("server started"),
			),
		},
		Started: true,
		Logger:  testcontainers.TestLogger(t),
	})
	require.NoError(t, err)

	conn := &connectionDetails{
		Endpoint: "https://localhost:4443",
	}

	return c, conn
}

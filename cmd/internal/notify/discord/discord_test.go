package discord

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type request struct {
	method string
	path   string
	query  string
	msg    message
}

type webhook struct {
	mu       sync.Mutex
	requests []request
	statuses []int
}

func (w *webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	var msg message
	_ = json.Unmarshal(body, &msg)
	w.requests = append(w.requests, request{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, msg: msg})

	status := http.StatusOK
	if len(w.statuses) > 0 {
		status = w.statuses[0]
		w.statuses = w.statuses[1:]
	}

	rw.WriteHeader(status)
	if status == http.StatusOK {
		_, _ = rw.Write([]byte(`{"id":"1234","content":"ignored"}`))
	}
}

func newNotifier(t *testing.T, url string) *Notifier {
	n, err := New(zaptest.NewLogger(t).Sugar(), &Config{WebhookURL: url})
	require.NoError(t, err)
	n.retryDelay = time.Millisecond
	return n
}

func TestNotifier(t *testing.T) {
	ctx := context.Background()
	hook := &webhook{}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	n := newNotifier(t, srv.URL+"/api/webhooks/1/token")

	id, err := n.Started(ctx, "starting backup")
	require.NoError(t, err)
	assert.Equal(t, "1234", id)

	err = n.Succeeded(ctx, id, "backup done")
	require.NoError(t, err)

	err = n.Failed(ctx, id, errors.New("disk full"))
	require.NoError(t, err)

	require.Len(t, hook.requests, 3)

	assert.Equal(t, request{
		method: http.MethodPost,
		path:   "/api/webhooks/1/token",
		query:  "wait=true",
		msg:    message{Username: defaultUsername, Content: "starting backup"},
	}, hook.requests[0])
	assert.Equal(t, request{
		method: http.MethodPatch,
		path:   "/api/webhooks/1/token/messages/1234",
		msg:    message{Username: defaultUsername, Content: "backup done"},
	}, hook.requests[1])
	assert.Equal(t, request{
		method: http.MethodPost,
		path:   "/api/webhooks/1/token",
		msg:    message{Username: defaultUsername, Content: "@everyone backup failed: disk full"},
	}, hook.requests[2])
}

func TestNotifierRetries(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		wantRequests int
		wantCode     int
	}{
		{
			name:         "recovers from server error",
			statuses:     []int{http.StatusBadGateway, http.StatusTooManyRequests},
			wantRequests: 3,
		},
		{
			name:         "gives up after three attempts",
			statuses:     []int{http.StatusInternalServerError, http.StatusInternalServerError, http.StatusInternalServerError},
			wantRequests: 3,
			wantCode:     http.StatusInternalServerError,
		},
		{
			name:         "client errors are not retried",
			statuses:     []int{http.StatusNotFound},
			wantRequests: 1,
			wantCode:     http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook := &webhook{statuses: tt.statuses}
			srv := httptest.NewServer(hook)
			defer srv.Close()

			n := newNotifier(t, srv.URL)

			id, err := n.Started(context.Background(), "starting backup")
			assert.Len(t, hook.requests, tt.wantRequests)

			if tt.wantCode == 0 {
				require.NoError(t, err)
				assert.Equal(t, "1234", id)
				return
			}

			var statusErr StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.wantCode, statusErr.Code)
		})
	}
}

func TestFailedWithoutStartMessage(t *testing.T) {
	hook := &webhook{}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	n, err := New(zaptest.NewLogger(t).Sugar(), &Config{WebhookURL: srv.URL, Username: "db01", Mention: "<@&42>"})
	require.NoError(t, err)

	err = n.Failed(context.Background(), "", errors.New("ssh: handshake failed"))
	require.NoError(t, err)

	require.Len(t, hook.requests, 1)
	assert.Equal(t, message{Username: "db01", Content: "<@&42> backup failed: ssh: handshake failed"}, hook.requests[0].msg)
}

func TestNew(t *testing.T) {
	_, err := New(zaptest.NewLogger(t).Sugar(), &Config{})
	require.Error(t, err)
}

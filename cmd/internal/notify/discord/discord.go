package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	defaultUsername = "backup-rotator"
	defaultMention  = "@everyone"
	defaultTimeout  = 10 * time.Second
	attempts        = 3
)

// Notifier posts run status messages to a discord compatible webhook
type Notifier struct {
	log    *zap.SugaredLogger
	client *http.Client
	config *Config

	retryDelay time.Duration
}

// Config provides configuration for the discord Notifier
type Config struct {
	WebhookURL string
	Username   string
	// Mention is prepended to failure alerts
	Mention string
	Client  *http.Client
}

type message struct {
	Username string `json:"username,omitempty"`
	Content  string `json:"content"`
}

type messageResponse struct {
	ID string `json:"id"`
}

// StatusError is returned when the webhook answers with an unexpected status code
type StatusError struct {
	Method string
	Code   int
	Body   string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("webhook %s returned status %d: %s", e.Method, e.Code, e.Body)
}

// New returns a notifier for the given webhook
func New(log *zap.SugaredLogger, config *Config) (*Notifier, error) {
	if config == nil || config.WebhookURL == "" {
		return nil, errors.New("discord notifier requires a webhook url")
	}
	if _, err := url.Parse(config.WebhookURL); err != nil {
		return nil, fmt.Errorf("invalid webhook url: %w", err)
	}

	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Mention == "" {
		config.Mention = defaultMention
	}
	if config.Client == nil {
		config.Client = &http.Client{Timeout: defaultTimeout}
	}

	return &Notifier{
		log:        log,
		client:     config.Client,
		config:     config,
		retryDelay: time.Second,
	}, nil
}

// Started posts the start message and returns its message id
func (n *Notifier) Started(ctx context.Context, msg string) (string, error) {
	u, err := n.url("", true)
	if err != nil {
		return "", err
	}

	body, err := n.send(ctx, http.MethodPost, u, msg)
	if err != nil {
		return "", err
	}

	var resp messageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unable to decode webhook response: %w", err)
	}

	n.log.Debugw("posted start message", "id", resp.ID)

	return resp.ID, nil
}

// Succeeded edits the start message. Without an id a new message is posted.
func (n *Notifier) Succeeded(ctx context.Context, id, msg string) error {
	if id == "" {
		_, err := n.Started(ctx, msg)
		return err
	}

	u, err := n.url(id, false)
	if err != nil {
		return err
	}

	_, err = n.send(ctx, http.MethodPatch, u, msg)
	return err
}

// Failed posts a new alert message mentioning the configured audience
func (n *Notifier) Failed(ctx context.Context, id string, cause error) error {
	u, err := n.url("", false)
	if err != nil {
		return err
	}

	if id != "" {
		n.log.Debugw("reporting failure of announced run", "start-message", id)
	}

	_, err = n.send(ctx, http.MethodPost, u, fmt.Sprintf("%s backup failed: %v", n.config.Mention, cause))
	return err
}

func (n *Notifier) url(id string, wait bool) (string, error) {
	u, err := url.Parse(n.config.WebhookURL)
	if err != nil {
		return "", fmt.Errorf("invalid webhook url: %w", err)
	}
	if id != "" {
		u = u.JoinPath("messages", id)
	}
	if wait {
		q := u.Query()
		q.Set("wait", "true")
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// send delivers the message and returns the response body.
// Transport errors, 429 and 5xx responses are retried, other 4xx responses are not.
func (n *Notifier) send(ctx context.Context, method, u, content string) ([]byte, error) {
	payload, err := json.Marshal(message{Username: n.config.Username, Content: content})
	if err != nil {
		return nil, err
	}

	return retry.DoWithData(
		func() ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
			if err != nil {
				return nil, retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := n.client.Do(req)
			if err != nil {
				return nil, err
			}
			defer func() {
				_ = resp.Body.Close()
			}()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}

			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return body, nil
			case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
				return nil, StatusError{Method: method, Code: resp.StatusCode, Body: string(body)}
			default:
				return nil, retry.Unrecoverable(StatusError{Method: method, Code: resp.StatusCode, Body: string(body)})
			}
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(n.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			n.log.Warnw("webhook delivery failed, retrying", "attempt", attempt+1, "error", err)
		}),
	)
}

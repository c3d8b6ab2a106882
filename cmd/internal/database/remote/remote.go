package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	defaultSSHPort     = 22
	defaultDumpCommand = "pg_dump"
	defaultDatabase    = "postgres"
	defaultDialTimeout = 30 * time.Second
)

// Remote dumps a database by running the dump tool on the database host over ssh
type Remote struct {
	fs     afero.Fs
	log    *zap.SugaredLogger
	config *Config
}

// Config provides configuration for the Remote dumper
type Config struct {
	Host string
	Port int
	User string
	// KeyFile is the private key used to authenticate against the database host
	KeyFile string
	// KnownHostsFile verifies the host key of the database host
	KnownHostsFile string
	// HostKey pins the host key of the database host, in authorized_keys format
	HostKey     string
	DialTimeout time.Duration

	DumpCommand      string
	Database         string
	DatabaseUser     string
	DatabasePassword string

	FS afero.Fs
}

func (c *Config) validate() error {
	if c.Host == "" {
		return errors.New("ssh host must not be empty")
	}
	if c.User == "" {
		return errors.New("ssh user must not be empty")
	}
	if c.KeyFile == "" {
		return errors.New("ssh key file must not be empty")
	}
	if c.KnownHostsFile != "" && c.HostKey != "" {
		return errors.New("only one of known hosts file and host key can be given")
	}
	return nil
}

// New returns a dumper running the dump command on a remote host
func New(log *zap.SugaredLogger, config *Config) (*Remote, error) {
	if config == nil {
		return nil, errors.New("remote dumper requires a config")
	}

	if config.Port == 0 {
		config.Port = defaultSSHPort
	}
	if config.DumpCommand == "" {
		config.DumpCommand = defaultDumpCommand
	}
	if config.Database == "" {
		config.Database = defaultDatabase
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = defaultDialTimeout
	}
	if config.FS == nil {
		config.FS = afero.NewOsFs()
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &Remote{
		fs:     config.FS,
		log:    log,
		config: config,
	}, nil
}

// Probe checks that the database host is reachable over ssh
func (r *Remote) Probe(ctx context.Context) error {
	client, err := r.dial(ctx)
	if err != nil {
		return err
	}
	return client.Close()
}

// Dump runs the dump command on the database host and streams its output to w
func (r *Remote) Dump(ctx context.Context, w io.Writer) error {
	client, err := r.dial(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("unable to open ssh session: %w", err)
	}
	defer func() {
		_ = session.Close()
	}()

	var stderr bytes.Buffer
	session.Stdout = w
	session.Stderr = &stderr

	r.log.Infow("running remote dump command", "host", r.config.Host, "command", r.config.DumpCommand, "database", r.config.Database)

	done := make(chan error, 1)
	go func() {
		done <- session.Run(r.command())
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = client.Close()
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("remote dump command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
	}

	return nil
}

// command returns the shell command line executed on the database host
func (r *Remote) command() string {
	var parts []string
	if r.config.DatabasePassword != "" {
		parts = append(parts, "PGPASSWORD="+shellQuote(r.config.DatabasePassword))
	}
	parts = append(parts, r.config.DumpCommand)
	if r.config.DatabaseUser != "" {
		parts = append(parts, "--username="+shellQuote(r.config.DatabaseUser))
	}
	parts = append(parts, shellQuote(r.config.Database))
	return strings.Join(parts, " ")
}

func (r *Remote) dial(ctx context.Context) (*ssh.Client, error) {
	cfg, err := r.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(r.config.Host, strconv.Itoa(r.config.Port))

	dialer := net.Dialer{Timeout: r.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %w", addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}

	return ssh.NewClient(c, chans, reqs), nil
}

func (r *Remote) clientConfig() (*ssh.ClientConfig, error) {
	key, err := afero.ReadFile(r.fs, r.config.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read ssh key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("unable to parse ssh key: %w", err)
	}

	hostKeyCallback, err := r.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            r.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         r.config.DialTimeout,
	}, nil
}

func (r *Remote) hostKeyCallback() (ssh.HostKeyCallback, error) {
	switch {
	case r.config.HostKey != "":
		pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(r.config.HostKey))
		if err != nil {
			return nil, fmt.Errorf("unable to parse host key: %w", err)
		}
		return ssh.FixedHostKey(pub), nil
	case r.config.KnownHostsFile != "":
		cb, err := knownhosts.New(r.config.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read known hosts file: %w", err)
		}
		return cb, nil
	default:
		r.log.Warnw("host key of database host is not verified, configure a known hosts file or host key", "host", r.config.Host)
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec
	}
}

// shellQuote quotes s for a posix shell
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"

	"github.com/metal-stack/backup-rotator/cmd/internal/utils"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

const (
	postgresDumpCmd = "pg_dump"
)

// Postgres dumps a postgres database reachable from this host
type Postgres struct {
	host     string
	port     int
	user     string
	password string
	database string
	log      *zap.SugaredLogger
	executor *utils.CmdExecutor
}

// New instantiates a new postgres dumper
func New(log *zap.SugaredLogger, host string, port int, user string, password string, database string) *Postgres {
	if database == "" {
		database = "postgres"
	}
	return &Postgres{
		log:      log,
		host:     host,
		port:     port,
		user:     user,
		password: password,
		database: database,
		executor: utils.NewExecutor(log),
	}
}

func (db *Postgres) args() []string {
	var args []string
	if db.host != "" {
		args = append(args, "--host="+db.host)
	}
	if db.port != 0 {
		args = append(args, "--port="+strconv.Itoa(db.port))
	}
	if db.user != "" {
		args = append(args, "--username="+db.user)
	}
	return append(args, "--no-password", db.database)
}

func (db *Postgres) env() []string {
	if db.password == "" {
		return nil
	}
	return []string{"PGPASSWORD=" + db.password}
}

// Dump writes a plain sql dump of the database to w
func (db *Postgres) Dump(ctx context.Context, w io.Writer) error {
	err := db.executor.ExecuteCommandToWriter(ctx, w, postgresDumpCmd, db.env(), db.args()...)
	if err != nil {
		return fmt.Errorf("error running dump command: %w", err)
	}

	db.log.Debugw("successfully took dump of postgres database", "database", db.database)

	return nil
}

func (db *Postgres) connString() string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     db.host,
		Path:     "/" + db.database,
		RawQuery: "sslmode=disable",
	}
	if db.port != 0 {
		u.Host = net.JoinHostPort(db.host, strconv.Itoa(db.port))
	}
	if db.user != "" {
		u.User = url.UserPassword(db.user, db.password)
	}
	return u.String()
}

// Probe figures out if the database is running and available for taking dumps.
func (db *Postgres) Probe(ctx context.Context) error {
	dbc, err := sql.Open("postgres", db.connString())
	if err != nil {
		return fmt.Errorf("unable to open postgres connection %w", err)
	}
	defer dbc.Close()

	err = dbc.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("unable to ping postgres connection %w", err)
	}

	version, err := db.executor.ExecuteCommandWithOutput(ctx, postgresDumpCmd, nil, "--version")
	if err != nil {
		return fmt.Errorf("dump command not available: %w: %s", err, version)
	}
	db.log.Debugw("found dump command", "version", version)

	return nil
}

package database

import (
	"context"
	"io"
)

// Dumper produces a logical dump of a database
type Dumper interface {
	// Probe figures out if the database is reachable for taking a dump.
	Probe(ctx context.Context) error

	// Dump writes a dump of the database to w.
	Dump(ctx context.Context, w io.Writer) error
}

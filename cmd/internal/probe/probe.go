package probe

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

var (
	probeInterval = 3 * time.Second
)

// Prober checks whether a database can be backed up
type Prober interface {
	Probe(ctx context.Context) error
}

// Start blocks until the database is reachable or ctx is done
func Start(ctx context.Context, log *zap.SugaredLogger, db Prober) error {
	log.Info("start probing database")

	err := retry.Do(func() error {
		err := db.Probe(ctx)
		if err != nil {
			log.Errorw("database is not yet reachable, waiting and retrying...", "error", err)
			return err
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(probeInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return err
	}

	log.Info("database is reachable")

	return nil
}

package backup

import (
	"context"
	"errors"
	"io/fs"

	backuperrors "github.com/metal-stack/backup-rotator/cmd/internal/backup/errors"
	"github.com/metal-stack/backup-rotator/cmd/internal/backup/providers"
	"github.com/metal-stack/backup-rotator/cmd/internal/metrics"
	"github.com/metal-stack/backup-rotator/cmd/internal/retention"
	"go.uber.org/zap"
)

// Mover applies rotation actions to an artifact store
type Mover struct {
	log     *zap.SugaredLogger
	store   providers.ArtifactStore
	metrics *metrics.Metrics
}

// NewMover returns a mover for the given artifact store, metrics may be nil
func NewMover(log *zap.SugaredLogger, store providers.ArtifactStore, m *metrics.Metrics) *Mover {
	return &Mover{
		log:     log,
		store:   store,
		metrics: m,
	}
}

// Apply executes all actions in order. A failing action does not stop the remaining ones,
// all failures are returned joined as ArtifactOperationError.
func (m *Mover) Apply(ctx context.Context, actions []retention.Action) error {
	var errs []error

	for _, a := range actions {
		var err error
		switch a.Kind {
		case retention.Promote:
			err = m.store.RenameArtifact(ctx, a.Source(), a.Target())
		case retention.Delete:
			err = m.store.DeleteArtifact(ctx, a.Source())
		default:
			err = errors.New("unknown action kind")
		}

		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				m.log.Warnw("artifact is missing", "action", a.String(), "artifact", a.Source())
			} else {
				m.log.Errorw("unable to apply rotation action", "action", a.String(), "error", err)
			}
			if m.metrics != nil {
				m.metrics.CountError(string(a.Kind))
			}
			errs = append(errs, backuperrors.ArtifactOperationError{Action: a, Err: err})
			continue
		}

		m.log.Infow("applied rotation action", "action", a.String())
		if m.metrics != nil {
			m.metrics.CountAction(a)
		}
	}

	return errors.Join(errs...)
}

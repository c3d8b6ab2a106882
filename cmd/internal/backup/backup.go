package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	backuperrors "github.com/metal-stack/backup-rotator/cmd/internal/backup/errors"
	"github.com/metal-stack/backup-rotator/cmd/internal/backup/providers"
	"github.com/metal-stack/backup-rotator/cmd/internal/database"
	"github.com/metal-stack/backup-rotator/cmd/internal/metrics"
	"github.com/metal-stack/backup-rotator/cmd/internal/notify"
	"github.com/metal-stack/backup-rotator/cmd/internal/retention"
	"github.com/metal-stack/backup-rotator/pkg/constants"
	cron "github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// StateStore loads and persists the rotation state
type StateStore interface {
	Load(ctx context.Context) (*retention.State, error)
	Save(ctx context.Context, state *retention.State) error
}

// Backup takes a database dump and rotates the retained backups
type Backup struct {
	log       *zap.SugaredLogger
	fs        afero.Fs
	dumper    database.Dumper
	store     providers.ArtifactStore
	state     StateStore
	engine    *retention.Engine
	mover     *Mover
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	now       func() time.Time
	uploadDir string
}

// Config provides the collaborators of a backup run
type Config struct {
	// Dumper is only required for taking backups
	Dumper   database.Dumper
	Store    providers.ArtifactStore
	State    StateStore
	Engine   *retention.Engine
	Notifier notify.Notifier
	Metrics  *metrics.Metrics

	// UploadDir is where dumps are written to before they are uploaded
	UploadDir string
	FS        afero.Fs
	Now       func() time.Time
}

// New returns a backup component
func New(log *zap.SugaredLogger, config *Config) (*Backup, error) {
	if config == nil {
		return nil, errors.New("backup requires a config")
	}
	if config.Store == nil {
		return nil, errors.New("backup requires an artifact store")
	}
	if config.State == nil {
		return nil, errors.New("backup requires a state store")
	}

	if config.Engine == nil {
		engine, err := retention.New(retention.DefaultPolicy())
		if err != nil {
			return nil, err
		}
		config.Engine = engine
	}
	if config.Notifier == nil {
		config.Notifier = notify.Noop{}
	}
	if config.Metrics == nil {
		config.Metrics = metrics.New()
	}
	if config.UploadDir == "" {
		config.UploadDir = constants.UploadDir
	}
	if config.FS == nil {
		config.FS = afero.NewOsFs()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Backup{
		log:       log,
		fs:        config.FS,
		dumper:    config.Dumper,
		store:     config.Store,
		state:     config.State,
		engine:    config.Engine,
		mover:     NewMover(log.Named("mover"), config.Store, config.Metrics),
		notifier:  config.Notifier,
		metrics:   config.Metrics,
		now:       config.Now,
		uploadDir: config.UploadDir,
	}, nil
}

// Run performs a single backup cycle
func (b *Backup) Run(ctx context.Context) error {
	id := retention.NewIdentifier(b.now())
	log := b.log.With("backup", id.String())

	msgID, err := b.notifier.Started(ctx, fmt.Sprintf("starting backup %s", id))
	if err != nil {
		b.metrics.CountNotifyError()
		log.Warnw("unable to announce backup start", "error", err)
	}

	state, err := b.run(ctx, log, id)
	if err != nil {
		log.Errorw("backup failed", "error", err)
		if nerr := b.notifier.Failed(ctx, msgID, err); nerr != nil {
			b.metrics.CountNotifyError()
			log.Warnw("unable to report backup failure", "error", nerr)
		}
		return err
	}

	msg := fmt.Sprintf("backup %s finished, retaining %d daily, %d weekly and %d monthly backups", id, len(state.Daily), len(state.Weekly), len(state.Monthly))
	if err := b.notifier.Succeeded(ctx, msgID, msg); err != nil {
		b.metrics.CountNotifyError()
		log.Warnw("unable to report backup success", "error", err)
	}

	log.Info("backup finished")

	return nil
}

func (b *Backup) run(ctx context.Context, log *zap.SugaredLogger, id retention.Identifier) (*retention.State, error) {
	state, err := b.state.Load(ctx)
	if err != nil {
		b.metrics.CountError("load")
		return nil, err
	}

	next, actions, err := b.engine.Rotate(state, id)
	if err != nil {
		b.metrics.CountError("rotate")
		return nil, err
	}
	log.Infow("computed rotation", "actions", len(actions))

	if b.dumper == nil {
		return nil, backuperrors.StepError{Step: "probing database", Err: errors.New("no database dumper configured")}
	}
	if err := b.dumper.Probe(ctx); err != nil {
		b.metrics.CountError("probe")
		return nil, backuperrors.StepError{Step: "probing database", Err: err}
	}

	if err := b.store.EnsureBackupBucket(ctx); err != nil {
		b.metrics.CountError("ensure_bucket")
		return nil, backuperrors.StepError{Step: "preparing artifact store", Err: err}
	}

	size, err := b.dump(ctx, log, retention.Daily.ArtifactName(id))
	if err != nil {
		return nil, err
	}
	b.metrics.CountBackup(size)

	moveErr := b.mover.Apply(ctx, actions)

	if err := b.state.Save(ctx, next); err != nil {
		b.metrics.CountError("save")
		return nil, errors.Join(err, moveErr)
	}
	b.metrics.SetRetained(next)

	if moveErr != nil {
		return nil, moveErr
	}

	return next, nil
}

// dump writes the database dump to a temporary file and uploads it as artifact name
func (b *Backup) dump(ctx context.Context, log *zap.SugaredLogger, name string) (int64, error) {
	if err := b.fs.MkdirAll(b.uploadDir, 0755); err != nil {
		b.metrics.CountError("create")
		return 0, backuperrors.StepError{Step: "creating upload directory", Err: err}
	}

	f, err := afero.TempFile(b.fs, b.uploadDir, "dump-*.sql")
	if err != nil {
		b.metrics.CountError("create")
		return 0, backuperrors.StepError{Step: "creating dump file", Err: err}
	}
	defer func() {
		_ = f.Close()
		if err := b.fs.Remove(f.Name()); err != nil {
			log.Warnw("unable to remove dump file", "file", f.Name(), "error", err)
		}
	}()

	if err := b.dumper.Dump(ctx, f); err != nil {
		b.metrics.CountError("create")
		return 0, backuperrors.StepError{Step: "dumping database", Err: err}
	}

	size, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		b.metrics.CountError("create")
		return 0, backuperrors.StepError{Step: "reading dump file", Err: err}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		b.metrics.CountError("create")
		return 0, backuperrors.StepError{Step: "reading dump file", Err: err}
	}

	log.Infow("dumped database", "size", size)

	if err := b.store.UploadArtifact(ctx, name, f); err != nil {
		b.metrics.CountError("upload")
		return 0, backuperrors.StepError{Step: "uploading backup", Err: err}
	}

	log.Infow("uploaded backup", "artifact", name)

	return size, nil
}

// Plan returns the actions a backup taken now would perform
func (b *Backup) Plan(ctx context.Context) (retention.Identifier, []retention.Action, error) {
	state, err := b.state.Load(ctx)
	if err != nil {
		return retention.Identifier{}, nil, err
	}

	id := retention.NewIdentifier(b.now())
	actions, err := b.engine.Plan(state, id)
	if err != nil {
		return retention.Identifier{}, nil, err
	}

	return id, actions, nil
}

// Status returns the rotation state together with the stored artifacts
func (b *Backup) Status(ctx context.Context) (*retention.State, providers.Artifacts, error) {
	state, err := b.state.Load(ctx)
	if err != nil {
		return nil, nil, err
	}

	artifacts, err := b.store.ListArtifacts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to list artifacts: %w", err)
	}

	return state, artifacts, nil
}

// Start periodically runs backups until ctx is done. Runs never overlap.
func (b *Backup) Start(ctx context.Context, schedule string) error {
	b.log.Info("starting periodic backups")

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(zap.NewStdLog(b.log.Desugar())))))

	id, err := c.AddFunc(schedule, func() {
		if err := b.Run(ctx); err != nil {
			b.log.Errorw("backup run failed", "error", err)
		}
		for _, e := range c.Entries() {
			b.log.Infow("scheduling next backup", "at", e.Next.String())
		}
	})
	if err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", schedule, err)
	}

	c.Start()
	b.log.Infow("scheduling next backup", "at", c.Entry(id).Next.String())
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

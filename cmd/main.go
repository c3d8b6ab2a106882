package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/metal-stack/backup-rotator/cmd/internal/backup"
	"github.com/metal-stack/backup-rotator/cmd/internal/backup/providers"
	"github.com/metal-stack/backup-rotator/cmd/internal/backup/providers/common"
	"github.com/metal-stack/backup-rotator/cmd/internal/backup/providers/gcp"
	"github.com/metal-stack/backup-rotator/cmd/internal/backup/providers/local"
	"github.com/metal-stack/backup-rotator/cmd/internal/backup/providers/s3"
	"github.com/metal-stack/backup-rotator/cmd/internal/database"
	"github.com/metal-stack/backup-rotator/cmd/internal/database/postgres"
	"github.com/metal-stack/backup-rotator/cmd/internal/database/remote"
	"github.com/metal-stack/backup-rotator/cmd/internal/metrics"
	"github.com/metal-stack/backup-rotator/cmd/internal/notify"
	"github.com/metal-stack/backup-rotator/cmd/internal/notify/discord"
	"github.com/metal-stack/backup-rotator/cmd/internal/probe"
	"github.com/metal-stack/backup-rotator/cmd/internal/retention"
	"github.com/metal-stack/backup-rotator/cmd/internal/retention/store"
	"github.com/metal-stack/backup-rotator/cmd/internal/utils"
	"github.com/metal-stack/backup-rotator/pkg/constants"
	"github.com/metal-stack/v"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	moduleName  = "backup-rotator"
	cfgFileType = "yaml"

	// Flags
	logLevelFlg = "log-level"
	configFlg   = "config"

	stateFileFlg = "state-file"
	uploadDirFlg = "upload-dir"

	dailyBackupsFlg   = "daily-backups"
	weeklyBackupsFlg  = "weekly-backups"
	monthlyBackupsFlg = "monthly-backups"
	weeklyGapFlg      = "weekly-gap-days"
	monthlyGapFlg     = "monthly-gap-days"
	gapReferenceFlg   = "gap-reference"

	dumperFlg = "dumper"

	sshHostFlg           = "ssh-host"
	sshPortFlg           = "ssh-port"
	sshUserFlg           = "ssh-user"
	sshKeyFileFlg        = "ssh-key-file"
	sshKnownHostsFileFlg = "ssh-known-hosts-file"
	sshHostKeyFlg        = "ssh-host-key"
	dumpCommandFlg       = "dump-command"

	postgresUserFlg     = "postgres-user"
	postgresHostFlg     = "postgres-host"
	postgresPasswordFlg = "postgres-password"
	postgresPortFlg     = "postgres-port"
	postgresDatabaseFlg = "postgres-database"

	backupProviderFlg     = "backup-provider"
	backupCronScheduleFlg = "backup-cron-schedule"
	metricsAddrFlg        = "metrics-addr"

	objectPrefixFlg = "object-prefix"

	localBackupPathFlg = "local-provider-backup-path"

	gcpBucketNameFlg     = "gcp-bucket-name"
	gcpBucketLocationFlg = "gcp-bucket-location"
	gcpProjectFlg        = "gcp-project"

	s3BucketNameFlg = "s3-bucket-name"
	s3RegionFlg     = "s3-region"
	s3EndpointFlg   = "s3-endpoint"
	s3AccessKeyFlg  = "s3-access-key"
	//nolint
	s3SecretKeyFlg = "s3-secret-key"

	webhookURLFlg      = "webhook-url"
	webhookUsernameFlg = "webhook-username"
	webhookMentionFlg  = "webhook-mention"
)

var (
	cfgFile string
	logger  *zap.SugaredLogger
	dumper  database.Dumper
	bp      providers.ArtifactStore
	m       *metrics.Metrics
	stop    context.Context
)

var rootCmd = &cobra.Command{
	Use:          moduleName,
	Short:        "takes scheduled database backups and rotates them into daily, weekly and monthly backups",
	Version:      v.V.String(),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initLogging()
		initConfig()
		initSignalHandlers()
		m = metrics.New()
		return initArtifactStore()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "takes a single backup and rotates the retained backups",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return initDumper()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBackup()
		if err != nil {
			return err
		}
		return b.Run(stop)
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "starts taking backups periodically",
	Long:  "takes a backup on every tick of the cron schedule and rotates the retained backups. runs never overlap, a tick is skipped while the previous backup is still running.",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return initDumper()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Infow("starting backup-rotator", "version", v.V)

		if err := m.Start(logger.Named("metrics"), viper.GetString(metricsAddrFlg)); err != nil {
			return err
		}

		if err := probe.Start(stop, logger.Named("probe"), dumper); err != nil {
			return err
		}

		b, err := newBackup()
		if err != nil {
			return err
		}

		return b.Start(stop, viper.GetString(backupCronScheduleFlg))
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "lists the retained backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBackup()
		if err != nil {
			return err
		}

		state, artifacts, err := b.Status(stop)
		if err != nil {
			return err
		}

		missing := map[string]bool{}
		for tier, ids := range common.Missing(state, artifacts) {
			for _, id := range ids {
				missing[tier.ArtifactName(id)] = true
			}
		}

		var data [][]string
		for _, tier := range retention.Tiers {
			for _, id := range state.Tier(tier) {
				name := tier.ArtifactName(id)
				size := ""
				if a, err := artifacts.Get(name); err == nil {
					size = fmt.Sprintf("%d", a.Size)
				}
				status := "ok"
				if missing[name] {
					status = "missing"
				}
				data = append(data, []string{tier.String(), id.String(), name, size, status})
			}
		}

		common.Sort(artifacts)
		for _, a := range common.Orphans(state, artifacts) {
			tier, id, _ := common.ParseName(a.Name)
			data = append(data, []string{tier.String(), id.String(), a.Name, fmt.Sprintf("%d", a.Size), "untracked"})
		}

		return utils.NewTablePrinter().Print([]string{"Tier", "Backup", "Artifact", "Size", "Status"}, data)
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "shows the rotation actions the next backup would perform",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBackup()
		if err != nil {
			return err
		}

		id, actions, err := b.Plan(stop)
		if err != nil {
			return err
		}

		data := [][]string{{"create", retention.Daily.ArtifactName(id), ""}}
		for _, a := range actions {
			data = append(data, []string{string(a.Kind), a.Source(), a.Target()})
		}

		return utils.NewTablePrinter().Print([]string{"Action", "Artifact", "Target"}, data)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger == nil {
			panic(err)
		}
		logger.Fatalw("failed executing root command", "error", err)
	}
}

func init() {
	rootCmd.AddCommand(runCmd, startCmd, listCmd, planCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, configFlg, "", "path to the config file")
	rootCmd.PersistentFlags().StringP(logLevelFlg, "", "info", "sets the application log level")

	rootCmd.PersistentFlags().StringP(stateFileFlg, "", constants.RotatorBaseDir+"/"+constants.DefaultStateFile, "the file the rotation state is persisted in")
	rootCmd.PersistentFlags().StringP(uploadDirFlg, "", constants.UploadDir, "the directory dumps are written to before they are uploaded")

	rootCmd.PersistentFlags().IntP(dailyBackupsFlg, "", constants.DefaultDailyBackups, "the number of daily backups to keep")
	rootCmd.PersistentFlags().IntP(weeklyBackupsFlg, "", constants.DefaultWeeklyBackups, "the number of weekly backups to keep")
	rootCmd.PersistentFlags().IntP(monthlyBackupsFlg, "", constants.DefaultMonthlyBackups, "the number of monthly backups to keep")
	rootCmd.PersistentFlags().IntP(weeklyGapFlg, "", constants.DefaultWeeklyGapDays, "the minimum number of days between two weekly backups")
	rootCmd.PersistentFlags().IntP(monthlyGapFlg, "", constants.DefaultMonthlyGapDays, "the minimum number of days between two monthly backups")
	rootCmd.PersistentFlags().StringP(gapReferenceFlg, "", string(retention.GapReferenceSuccessor), "the backup the promotion gap is measured against [successor|candidate]")

	rootCmd.PersistentFlags().StringP(backupProviderFlg, "", "local", "the name of the backup provider [gcp|s3|local]")
	rootCmd.PersistentFlags().StringP(objectPrefixFlg, "", "", "the prefix to store the object in the cloud provider bucket")

	rootCmd.PersistentFlags().StringP(localBackupPathFlg, "", constants.BackupDir, "the directory the local provider stores the backups in")

	rootCmd.PersistentFlags().StringP(gcpBucketNameFlg, "", "", "the name of the gcp backup bucket")
	rootCmd.PersistentFlags().StringP(gcpBucketLocationFlg, "", "", "the location of the gcp backup bucket")
	rootCmd.PersistentFlags().StringP(gcpProjectFlg, "", "", "the project id to place the gcp backup bucket in")

	rootCmd.PersistentFlags().StringP(s3BucketNameFlg, "", "", "the name of the s3 backup bucket")
	rootCmd.PersistentFlags().StringP(s3RegionFlg, "", "", "the region of the s3 backup bucket")
	rootCmd.PersistentFlags().StringP(s3EndpointFlg, "", "", "the url to the s3 endpoint")
	rootCmd.PersistentFlags().StringP(s3AccessKeyFlg, "", "", "the s3 access-key-id")
	rootCmd.PersistentFlags().StringP(s3SecretKeyFlg, "", "", "the s3 secret-key-id")

	err := viper.BindPFlags(rootCmd.PersistentFlags())
	if err != nil {
		fmt.Printf("unable to construct root command: %v", err)
		os.Exit(1)
	}

	for _, c := range []*cobra.Command{runCmd, startCmd} {
		c.Flags().StringP(dumperFlg, "", "remote", "how the database dump is taken [remote|local]")

		c.Flags().StringP(sshHostFlg, "", "", "the database host to run the dump command on (will be used when dumper is remote)")
		c.Flags().IntP(sshPortFlg, "", 22, "the ssh port of the database host (will be used when dumper is remote)")
		c.Flags().StringP(sshUserFlg, "", "", "the ssh user (will be used when dumper is remote)")
		c.Flags().StringP(sshKeyFileFlg, "", "", "the private key to authenticate with (will be used when dumper is remote)")
		c.Flags().StringP(sshKnownHostsFileFlg, "", "", "the known hosts file to verify the database host with (will be used when dumper is remote)")
		c.Flags().StringP(sshHostKeyFlg, "", "", "the expected host key of the database host in authorized_keys format (will be used when dumper is remote)")
		c.Flags().StringP(dumpCommandFlg, "", "pg_dump", "the dump command to run on the database host (will be used when dumper is remote)")

		c.Flags().StringP(postgresUserFlg, "", "postgres", "the postgres database user")
		c.Flags().StringP(postgresHostFlg, "", "127.0.0.1", "the postgres database address (will be used when dumper is local)")
		c.Flags().IntP(postgresPortFlg, "", 5432, "the postgres database port (will be used when dumper is local)")
		c.Flags().StringP(postgresPasswordFlg, "", "", "the postgres database password")
		c.Flags().StringP(postgresDatabaseFlg, "", "postgres", "the postgres database to dump")

		c.Flags().StringP(webhookURLFlg, "", "", "the discord webhook to report backup runs to, reporting is disabled when empty")
		c.Flags().StringP(webhookUsernameFlg, "", moduleName, "the name the webhook messages are posted with")
		c.Flags().StringP(webhookMentionFlg, "", "@everyone", "the mention prepended to failure alerts")
	}

	startCmd.Flags().StringP(backupCronScheduleFlg, "", "0 2 * * *", "cron schedule for taking backups periodically")
	startCmd.Flags().StringP(metricsAddrFlg, "", ":2112", "the address the metrics server listens on")

	// run and start share flag names, only the flags of the executed command are bound
	for _, c := range []*cobra.Command{runCmd, startCmd} {
		c.PreRunE = bindFlags(c.PreRunE)
	}
}

func bindFlags(next func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return fmt.Errorf("unable to bind flags: %w", err)
		}
		return next(cmd, args)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BACKUP_ROTATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetConfigType(cfgFileType)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			logger.Fatalw("config file path set explicitly, but unreadable", "error", err)
		}
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath("/etc/" + moduleName)
		viper.AddConfigPath("$HOME/." + moduleName)
		viper.AddConfigPath(".")
		if err := viper.ReadInConfig(); err != nil {
			usedCfg := viper.ConfigFileUsed()
			if usedCfg != "" {
				logger.Fatalw("config file unreadable", "config-file", usedCfg, "error", err)
			}
		}
	}

	usedCfg := viper.ConfigFileUsed()
	if usedCfg != "" {
		logger.Infow("read config file", "config-file", usedCfg)
	}
}

func initLogging() {
	level := zap.InfoLevel

	var err error
	if viper.IsSet(logLevelFlg) {
		level, err = zapcore.ParseLevel(viper.GetString(logLevelFlg))
		if err != nil {
			log.Fatalf("can't initialize zap logger: %v", err)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}

	logger = l.Sugar()
}

func initSignalHandlers() {
	// don't need to store
	stop, _ = signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
}

func initDumper() error {
	dumperString := viper.GetString(dumperFlg)

	switch dumperString {
	case "remote":
		r, err := remote.New(logger.Named("remote"), &remote.Config{
			Host:             viper.GetString(sshHostFlg),
			Port:             viper.GetInt(sshPortFlg),
			User:             viper.GetString(sshUserFlg),
			KeyFile:          viper.GetString(sshKeyFileFlg),
			KnownHostsFile:   viper.GetString(sshKnownHostsFileFlg),
			HostKey:          viper.GetString(sshHostKeyFlg),
			DumpCommand:      viper.GetString(dumpCommandFlg),
			Database:         viper.GetString(postgresDatabaseFlg),
			DatabaseUser:     viper.GetString(postgresUserFlg),
			DatabasePassword: viper.GetString(postgresPasswordFlg),
		})
		if err != nil {
			return fmt.Errorf("error initializing remote dumper: %w", err)
		}
		dumper = r
	case "local":
		dumper = postgres.New(
			logger.Named("postgres"),
			viper.GetString(postgresHostFlg),
			viper.GetInt(postgresPortFlg),
			viper.GetString(postgresUserFlg),
			viper.GetString(postgresPasswordFlg),
			viper.GetString(postgresDatabaseFlg),
		)
	default:
		return fmt.Errorf("unsupported dumper type: %s", dumperString)
	}

	logger.Infow("initialized database dumper", "type", dumperString)

	return nil
}

func initArtifactStore() error {
	bpString := viper.GetString(backupProviderFlg)
	var err error
	switch bpString {
	case "gcp":
		bp, err = gcp.New(
			stop,
			logger.Named("backup"),
			&gcp.ArtifactStoreConfigGCP{
				ObjectPrefix:   viper.GetString(objectPrefixFlg),
				ProjectID:      viper.GetString(gcpProjectFlg),
				BucketName:     viper.GetString(gcpBucketNameFlg),
				BucketLocation: viper.GetString(gcpBucketLocationFlg),
			},
		)
	case "s3":
		bp, err = s3.New(
			stop,
			logger.Named("backup"),
			&s3.ArtifactStoreConfigS3{
				ObjectPrefix: viper.GetString(objectPrefixFlg),
				Region:       viper.GetString(s3RegionFlg),
				BucketName:   viper.GetString(s3BucketNameFlg),
				Endpoint:     viper.GetString(s3EndpointFlg),
				AccessKey:    viper.GetString(s3AccessKeyFlg),
				SecretKey:    viper.GetString(s3SecretKeyFlg),
			},
		)
	case "local":
		bp, err = local.New(
			logger.Named("backup"),
			&local.ArtifactStoreConfigLocal{
				LocalBackupPath: viper.GetString(localBackupPathFlg),
			},
		)
	default:
		return fmt.Errorf("unsupported backup provider type: %s", bpString)
	}
	if err != nil {
		return fmt.Errorf("error initializing backup provider: %w", err)
	}
	logger.Infow("initialized backup provider", "type", bpString)
	return nil
}

func initNotifier() (notify.Notifier, error) {
	url := viper.GetString(webhookURLFlg)
	if url == "" {
		logger.Info("no webhook configured, backup runs are not reported")
		return notify.Noop{}, nil
	}

	n, err := discord.New(logger.Named("notify"), &discord.Config{
		WebhookURL: url,
		Username:   viper.GetString(webhookUsernameFlg),
		Mention:    viper.GetString(webhookMentionFlg),
	})
	if err != nil {
		return nil, fmt.Errorf("error initializing notifier: %w", err)
	}
	return n, nil
}

func newBackup() (*backup.Backup, error) {
	engine, err := retention.New(retention.Policy{
		DailyCapacity:   viper.GetInt(dailyBackupsFlg),
		WeeklyCapacity:  viper.GetInt(weeklyBackupsFlg),
		MonthlyCapacity: viper.GetInt(monthlyBackupsFlg),
		WeeklyGapDays:   viper.GetInt(weeklyGapFlg),
		MonthlyGapDays:  viper.GetInt(monthlyGapFlg),
		GapReference:    retention.GapReference(viper.GetString(gapReferenceFlg)),
	})
	if err != nil {
		return nil, err
	}

	notifier, err := initNotifier()
	if err != nil {
		return nil, err
	}

	return backup.New(logger.Named("backup"), &backup.Config{
		Dumper:    dumper,
		Store:     bp,
		State:     store.New(logger.Named("state"), &store.Config{Path: viper.GetString(stateFileFlg)}),
		Engine:    engine,
		Notifier:  notifier,
		Metrics:   m,
		UploadDir: viper.GetString(uploadDirFlg),
	})
}

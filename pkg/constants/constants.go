package constants

const (
	// DefaultDailyBackups is the number of daily backups to keep
	DefaultDailyBackups = 7
	// DefaultWeeklyBackups is the number of weekly backups to keep
	DefaultWeeklyBackups = 4
	// DefaultMonthlyBackups is the number of monthly backups to keep
	DefaultMonthlyBackups = 12

	// DefaultWeeklyGapDays is the minimum age gap in days between two weekly backups
	DefaultWeeklyGapDays = 7
	// DefaultMonthlyGapDays is the minimum age gap in days between two monthly backups
	DefaultMonthlyGapDays = 30

	RotatorBaseDir = "/var/lib/backup-rotator"

	// DefaultStateFile is the file the rotation state is persisted in
	DefaultStateFile = "backup_status.json"
	// BackupDir is the default directory the local provider keeps the backup artifacts in
	BackupDir = RotatorBaseDir + "/backups"
	// UploadDir is the path where database dumps are written to before they are handed to the artifact store
	UploadDir = RotatorBaseDir + "/upload"
)

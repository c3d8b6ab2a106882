package retention

import "fmt"

// OutOfOrderBackupError indicates that a new daily backup is not newer than the latest retained backup
type OutOfOrderBackupError struct {
	New    Identifier
	Latest Identifier
}

func (e OutOfOrderBackupError) Error() string {
	return fmt.Sprintf("backup %s is not newer than latest retained backup %s", e.New, e.Latest)
}

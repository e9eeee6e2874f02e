package utils

import (
	"fmt"
	"os"
	"time"
)

// BackupTimeLayout is appended to a rotated file's name, e.g. "housedata.csv.2016-03-18T10.04.55".
const BackupTimeLayout = "2006-01-02T15.04.05"

// MoveOutOfTheWay renames an existing file to a timestamped backup so it is never silently overwritten.
// Returns the backup path, or "" when there was nothing to move.
func MoveOutOfTheWay(path string, now time.Time) (string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: stat '%s': %w", ErrFilesystem, path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: '%s' is a directory", ErrFilesystem, path)
	}

	backup := path + "." + now.Format(BackupTimeLayout)
	// Two rotations within one second would collide; keep the older backup intact.
	for i := 1; fileExists(backup); i++ {
		backup = fmt.Sprintf("%s.%s.%d", path, now.Format(BackupTimeLayout), i)
	}
	if err := os.Rename(path, backup); err != nil {
		return "", fmt.Errorf("%w: rename '%s' -> '%s': %w", ErrFilesystem, path, backup, err)
	}
	return backup, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

package admission

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"perch/internal/faults"
)

// ValidateStoragePath verifies that a storage directory exists, is a
// directory, is mounted when it lives under /mnt, and is writable.
func ValidateStoragePath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return faults.Wrap(faults.ErrValidation, "admission", "storage",
				fmt.Sprintf("storage path does not exist: %s", path), nil)
		}
		return fmt.Errorf("stat storage path: %w", err)
	}
	if !info.IsDir() {
		return faults.Wrap(faults.ErrValidation, "admission", "storage",
			fmt.Sprintf("storage path is not a directory: %s", path), nil)
	}

	// Paths under /mnt are expected to be mount points; an unmounted USB
	// drive would silently fill the root filesystem otherwise.
	if strings.HasPrefix(path, "/mnt/") {
		mounted, err := isMountPoint(path)
		if err != nil {
			return fmt.Errorf("check mount point: %w", err)
		}
		if !mounted {
			return faults.Wrap(faults.ErrValidation, "admission", "storage",
				fmt.Sprintf("drive not mounted at %s", path), nil)
		}
	}

	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return faults.Wrap(faults.ErrValidation, "admission", "storage",
			fmt.Sprintf("cannot write to storage path %s: %v", path, err), nil)
	}
	return nil
}

func isMountPoint(path string) (bool, error) {
	var self, parent unix.Stat_t
	if err := unix.Stat(path, &self); err != nil {
		return false, err
	}
	parentPath := filepath.Dir(path)
	if parentPath == path {
		return true, nil
	}
	if err := unix.Stat(parentPath, &parent); err != nil {
		return false, err
	}
	return self.Dev != parent.Dev, nil
}

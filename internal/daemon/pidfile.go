package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// WritePIDFile atomically writes pid to path with 0600 permissions,
// using a temp file and rename so a crash never leaves a partial file.
func WritePIDFile(path string, pid int) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, ".yinx.pid.tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp PID file: %w", err)
	}
	tempPath := tempFile.Name()

	if _, err := fmt.Fprintf(tempFile, "%d\n", pid); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write PID: %w", err)
	}
	if err := tempFile.Chmod(0o600); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to set PID file permissions: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp PID file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename PID file: %w", err)
	}
	return nil
}

// ReadPIDFile reads the PID from path. A missing file returns 0 with
// no error, meaning no daemon is running.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file %q: %w", path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid PID value %d in file %q", pid, path)
	}
	return pid, nil
}

// RemovePIDFile deletes the PID file. Removing a missing file is not
// an error.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// CheckPIDFile reports whether a daemon is running according to the
// PID file at path. A stale file (process gone) returns running=false
// with the stale pid so the caller can clean it up.
func CheckPIDFile(path string) (running bool, pid int, err error) {
	pid, err = ReadPIDFile(path)
	if err != nil {
		return false, 0, err
	}
	if pid == 0 {
		return false, 0, nil
	}

	// Signal 0 probes process existence without delivering anything.
	err = syscall.Kill(pid, 0)
	switch {
	case err == nil:
		return true, pid, nil
	case err == syscall.ESRCH:
		return false, pid, nil
	case err == syscall.EPERM:
		// Process exists under another user.
		return true, pid, nil
	default:
		return false, pid, fmt.Errorf("failed to check process %d: %w", pid, err)
	}
}

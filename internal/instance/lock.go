package instance

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// AcquireLock takes the single-instance lock, grounded on the teacher's
// lock_windows.go (CreateFile with an exclusive share mode, PID written for
// debugging). The portable equivalent is an atomically-created lock file:
// O_EXCL fails if the file already exists, which is the same "only one
// holder" guarantee without a Windows-only handle.
func (m *InstanceManager) AcquireLock() error {
	lockPath := m.lockPath()

	if err := createLockFile(lockPath); err == nil {
		m.acquiredLock = true
		return nil
	} else if !os.IsExist(err) {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	if m.lockIsStale(lockPath) {
		os.Remove(lockPath)
		if err := createLockFile(lockPath); err == nil {
			m.acquiredLock = true
			return nil
		}
	}

	return fmt.Errorf("failed to acquire lock: another instance is running")
}

// ReleaseLock drops the lock this manager holds. A no-op if it never
// acquired one.
func (m *InstanceManager) ReleaseLock() error {
	if !m.acquiredLock {
		return nil
	}
	if err := os.Remove(m.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	m.acquiredLock = false
	return nil
}

func (m *InstanceManager) lockPath() string {
	return m.pidFilePath + ".lock"
}

func createLockFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d", os.Getpid())
	return err
}

// lockIsStale reports whether the PID recorded in an existing lock file
// belongs to a process that is no longer running.
func (m *InstanceManager) lockIsStale(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false
	}
	running, _ := IsProcessRunning(pid)
	return !running
}

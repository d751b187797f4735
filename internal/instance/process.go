package instance

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"syscall"
)

// binaryName is what CheckExistingInstance expects to find running under a
// live PID, the portable replacement for the teacher's literal
// "cliaimonitor.exe" comparison.
const binaryName = "assistantd"

// IsProcessRunning reports whether pid is a live process. Grounded on the
// teacher's windows.go IsProcessRunning, replacing the OpenProcess/tasklist
// probe with signal(0), the POSIX liveness idiom os.FindProcess itself
// doesn't perform (FindProcess never fails on POSIX, even for dead PIDs).
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return false, nil
	}
	return true, nil
}

// GetProcessName returns the executable name for pid, used only to detect
// PID reuse by an unrelated process. Linux-only (reads /proc); other
// platforms return an error, which CheckExistingInstance already treats as a
// non-fatal warning rather than evidence of reuse.
func GetProcessName(pid int) (string, error) {
	if runtime.GOOS != "linux" {
		return "", fmt.Errorf("process name lookup not supported on %s", runtime.GOOS)
	}
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "", fmt.Errorf("read /proc/%d/comm: %w", pid, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// KillProcess terminates pid. os.Process.Kill maps to TerminateProcess on
// Windows and SIGKILL on POSIX, so this needs no per-OS branch.
func KillProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := process.Kill(); err != nil {
		return fmt.Errorf("kill process %d: %w", pid, err)
	}
	return nil
}

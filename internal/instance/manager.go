// Package instance implements single-instance enforcement for the
// assistant daemon: a PID file recording who is running where, and an
// exclusive lock so a second launch detects and defers to the first rather
// than racing it for the same SQLite database and listen port.
package instance

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// InstanceManager tracks and arbitrates a single running daemon instance.
type InstanceManager struct {
	pidFilePath  string
	statePath    string
	port         int
	acquiredLock bool
}

// InstanceInfo describes a running instance found via CheckExistingInstance.
type InstanceInfo struct {
	PID          int
	Port         int
	StartTime    time.Time
	IsRunning    bool
	IsResponding bool
	Version      string
	BasePath     string
}

// PIDFileData is the JSON structure persisted to the PID file.
type PIDFileData struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
	BasePath  string    `json:"base_path"`
	Hostname  string    `json:"hostname"`
}

// NewManager creates an instance manager rooted at pidFilePath.
func NewManager(pidFilePath, statePath string, port int) *InstanceManager {
	return &InstanceManager{
		pidFilePath: pidFilePath,
		statePath:   statePath,
		port:        port,
	}
}

// CheckExistingInstance reports whether another instance is already running,
// based on the PID file. A stale file (dead process, or a PID reused by an
// unrelated process) is treated as no instance and cleaned up.
func (m *InstanceManager) CheckExistingInstance() (*InstanceInfo, error) {
	pidData, err := m.ReadPIDFile()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read PID file: %w", err)
	}

	running, err := IsProcessRunning(pidData.PID)
	if err != nil {
		return nil, fmt.Errorf("failed to check process: %w", err)
	}
	if !running {
		fmt.Printf("detected stale PID file (process %d not running)\n", pidData.PID)
		m.RemovePIDFile()
		return nil, nil
	}

	if name, err := GetProcessName(pidData.PID); err != nil {
		fmt.Printf("warning: failed to get process name for PID %d: %v\n", pidData.PID, err)
	} else if name != binaryName {
		fmt.Printf("detected PID reuse (process %d is %s, not %s)\n", pidData.PID, name, binaryName)
		m.RemovePIDFile()
		return nil, nil
	}

	return &InstanceInfo{
		PID:          pidData.PID,
		Port:         pidData.Port,
		StartTime:    pidData.StartedAt,
		IsRunning:    true,
		IsResponding: healthCheck(pidData.Port) == nil,
		Version:      pidData.Version,
		BasePath:     pidData.BasePath,
	}, nil
}

// healthCheck probes a running instance's HTTP health endpoint.
func healthCheck(port int) error {
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/api/health", port))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// WritePIDFile persists this instance's identity so later launches can find
// and verify it.
func (m *InstanceManager) WritePIDFile(pid, port int, basePath string) error {
	hostname, _ := os.Hostname()

	data := PIDFileData{
		PID:       pid,
		Port:      port,
		StartedAt: time.Now(),
		Version:   "1.0.0",
		BasePath:  basePath,
		Hostname:  hostname,
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal PID data: %w", err)
	}
	if err := os.WriteFile(m.pidFilePath, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// ReadPIDFile reads and parses the PID file.
func (m *InstanceManager) ReadPIDFile() (*PIDFileData, error) {
	jsonData, err := os.ReadFile(m.pidFilePath)
	if err != nil {
		return nil, err
	}
	var data PIDFileData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse PID file: %w", err)
	}
	return &data, nil
}

// RemovePIDFile deletes the PID file, if any.
func (m *InstanceManager) RemovePIDFile() error {
	if err := os.Remove(m.pidFilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// GetPort returns the port this manager is configured for.
func (m *InstanceManager) GetPort() int {
	return m.port
}

// SetPort updates the configured port, e.g. after falling back to an
// alternate port at startup.
func (m *InstanceManager) SetPort(port int) {
	m.port = port
}

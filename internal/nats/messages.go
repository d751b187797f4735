package nats

import "time"

// Subject pattern constants for NATS messaging
const (
	// SubjectResourceHeartbeat carries periodic resource-sampler ticks
	SubjectResourceHeartbeat = "resource.heartbeat"

	// SubjectConsolidationHeartbeat is published after each memory
	// consolidation sweep
	SubjectConsolidationHeartbeat = "memory.consolidation.heartbeat"

	// SubjectSessionSweepHeartbeat is published after each session TTL sweep
	SubjectSessionSweepHeartbeat = "session.sweep.heartbeat"

	// SubjectModelState is the pattern for a single model's state changes
	// Use fmt.Sprintf(SubjectModelState, modelID) to create specific subjects
	SubjectModelState = "model.%s.state"

	// SubjectAllModelState subscribes to state changes for every model
	SubjectAllModelState = "model.*.state"

	// SubjectAlert carries threshold/alert notifications raised by the
	// resource monitor, model manager, or metrics alert checker
	SubjectAlert = "alert.raised"

	// SubjectSystemBroadcast is used for daemon-wide announcements
	// (shutdown, config reload)
	SubjectSystemBroadcast = "system.broadcast"
)

// ResourceHeartbeatMessage reports a resource-sampler tick
type ResourceHeartbeatMessage struct {
	CPUPercent       float64   `json:"cpu_percent"`
	MemoryUsedMB     uint64    `json:"memory_used_mb"`
	MemoryTotalMB    uint64    `json:"memory_total_mb"`
	GPUPercent       float64   `json:"gpu_percent,omitempty"`
	PerformanceLevel string    `json:"performance_level"`
	Timestamp        time.Time `json:"timestamp"`
}

// ConsolidationHeartbeatMessage reports the outcome of a memory
// consolidation sweep
type ConsolidationHeartbeatMessage struct {
	MemoriesScanned      int           `json:"memories_scanned"`
	MemoriesConsolidated int           `json:"memories_consolidated"`
	Duration             time.Duration `json:"duration"`
	Timestamp            time.Time     `json:"timestamp"`
}

// SessionSweepHeartbeatMessage reports the outcome of a session TTL sweep
type SessionSweepHeartbeatMessage struct {
	SessionsExpired   int       `json:"sessions_expired"`
	SessionsRemaining int       `json:"sessions_remaining"`
	Timestamp         time.Time `json:"timestamp"`
}

// ModelStateMessage announces a model transitioning between
// loading/ready/error/evicted
type ModelStateMessage struct {
	ModelID   string    `json:"model_id"`
	State     string    `json:"state"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertMessage carries a severity-tagged alert raised by any of the
// threshold-checking components
type AlertMessage struct {
	Severity  string    `json:"severity"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemBroadcastMessage represents daemon-wide announcements
type SystemBroadcastMessage struct {
	Type      string                 `json:"type"` // shutdown, config_reload
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ClientInfo represents a connected NATS client
type ClientInfo struct {
	ClientID    string    `json:"client_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

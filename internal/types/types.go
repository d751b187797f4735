// Package types holds the small wire-level DTOs the out-of-scope UI/RPC
// surface stand-ins (internal/server, internal/mcp) use to talk to a
// connected client. Core domain types live in their owning package
// (classifier.TaskComplexity, selector.Decision, models.Descriptor,
// session.Session, memory.Memory, ...).
package types

import "time"

// WSMessage is the envelope used by the optional WebSocket façade
// (internal/server) to push pipeline events to a connected UI.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	WSTypeGenerationStarted  = "generation_started"
	WSTypeGenerationChunk    = "generation_chunk"
	WSTypeGenerationComplete = "generation_complete"
	WSTypeAlert              = "alert"
	WSTypeResourceSnapshot   = "resource_snapshot"
)

// MCPToolCall represents an incoming tool call on the (out-of-scope) MCP
// surface named in spec.md §1/§6.
type MCPToolCall struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params"`
}

// MCPRequest is a JSON-RPC 2.0 request envelope.
type MCPRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// MCPResponse is a JSON-RPC 2.0 response envelope.
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError is a JSON-RPC 2.0 error object.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Alert is a generic operational alert raised by the Resource Monitor or
// Model Manager and routed through internal/notifications.
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"` // "resource_monitor", "model_manager", "backend"
	Message   string    `json:"message"`
	Severity  string    `json:"severity"` // "info", "warning", "critical"
	CreatedAt time.Time `json:"created_at"`
}

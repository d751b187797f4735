// Package mcp describes the tool-call contract a future UI/RPC surface
// would implement against. The surface itself — the JSON-RPC transport,
// the dashboard of connected clients — is out of scope; this package keeps
// only the capability shape: what a tool call into a session looks like.
package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/localmind/assistant/internal/types"
)

// Standard JSON-RPC 2.0 error codes, per the spec's Method-not-found and
// Invalid-params cases.
const (
	errCodeMethodNotFound = -32601
	errCodeInvalidParams  = -32602
	errCodeInternal       = -32603
)

// ToolHandler processes a tool call scoped to a session and returns a
// result or an error.
type ToolHandler func(sessionID string, params map[string]interface{}) (interface{}, error)

// ToolDefinition describes a single callable tool.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]ParameterDef
	Handler     ToolHandler
}

// ParameterDef describes one parameter of a tool's input schema.
type ParameterDef struct {
	Type        string
	Description string
	Required    bool
}

// Registry holds the tools a session is allowed to call. It is the
// capability contract named in §6 — intentionally thin, since file/
// clipboard tools and knowledge export/import packaging are named-
// interface-only for this repo.
type Registry struct {
	tools map[string]ToolDefinition
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolDefinition)}
}

// Register adds or replaces a tool definition.
func (r *Registry) Register(tool ToolDefinition) {
	r.tools[tool.Name] = tool
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (ToolDefinition, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns every registered tool in the MCP tools/list schema shape.
func (r *Registry) List() []map[string]interface{} {
	var tools []map[string]interface{}
	for _, tool := range r.tools {
		params := make(map[string]interface{})
		required := []string{}

		for name, def := range tool.Parameters {
			params[name] = map[string]interface{}{
				"type":        def.Type,
				"description": def.Description,
			}
			if def.Required {
				required = append(required, name)
			}
		}

		tools = append(tools, map[string]interface{}{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": map[string]interface{}{
				"type":       "object",
				"properties": params,
				"required":   required,
			},
		})
	}
	return tools
}

// Execute runs a named tool against a session.
func (r *Registry) Execute(name, sessionID string, params map[string]interface{}) (interface{}, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	return tool.Handler(sessionID, params)
}

// Dispatch handles a single JSON-RPC 2.0 request against the registry's
// tools. The only method it understands is "tools/call", whose params
// decode into a MCPToolCall; everything else comes back as
// method-not-found. The session a tool call runs against is threaded in
// by the transport, since the JSON-RPC envelope itself carries none.
func (r *Registry) Dispatch(sessionID string, req types.MCPRequest) types.MCPResponse {
	if req.Method != "tools/call" {
		return types.MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &types.MCPError{Code: errCodeMethodNotFound, Message: "method not found: " + req.Method},
		}
	}

	raw, err := json.Marshal(req.Params)
	if err != nil {
		return types.MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &types.MCPError{Code: errCodeInvalidParams, Message: err.Error()},
		}
	}
	var call types.MCPToolCall
	if err := json.Unmarshal(raw, &call); err != nil {
		return types.MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &types.MCPError{Code: errCodeInvalidParams, Message: err.Error()},
		}
	}

	result, err := r.Execute(call.Name, sessionID, call.Params)
	if err != nil {
		return types.MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &types.MCPError{Code: errCodeInternal, Message: err.Error()},
		}
	}
	return types.MCPResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

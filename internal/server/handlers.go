package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/localmind/assistant/internal/inference"
	"github.com/localmind/assistant/internal/types"
)

// MaxPayloadSize bounds a generate request body to guard against DoS via
// oversized payloads.
const MaxPayloadSize = 1 * 1024 * 1024 // 1MB

// allowedOrigins is the WebSocket CSRF allowlist. Defaults cover local
// development; ASSISTANTD_ALLOWED_ORIGINS adds more, comma-separated.
var allowedOrigins = initAllowedOrigins()

func initAllowedOrigins() []string {
	defaults := []string{
		"http://localhost:3000",
		"http://localhost:8085",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8085",
	}

	if env := os.Getenv("ASSISTANTD_ALLOWED_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				defaults = append(defaults, origin)
			}
		}
	}
	return defaults
}

// checkWebSocketOrigin validates the Origin header to prevent CSRF-style
// cross-site WebSocket hijacking. Localhost is always allowed.
func checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	if host := originURL.Hostname(); host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return true
		}
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Hostname() != allowedURL.Hostname() {
			continue
		}
		if allowedURL.Port() == "" || originURL.Port() == allowedURL.Port() {
			if originURL.Scheme == allowedURL.Scheme {
				return true
			}
		}
	}
	return false
}

var upgrader = websocket.Upgrader{
	CheckOrigin: checkWebSocketOrigin,
}

// generateRequest is the wire shape of a POST /api/generate call.
type generateRequest struct {
	SessionID   string   `json:"session_id,omitempty"`
	AgentID     string   `json:"agent_id,omitempty"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	ForcedModel string   `json:"forced_model,omitempty"`
}

// handleGenerate runs one request through the inference engine and
// broadcasts its lifecycle to connected WebSocket clients.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxPayloadSize)

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Prompt == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	s.hub.BroadcastJSON(types.WSMessage{
		Type: types.WSTypeGenerationStarted,
		Data: map[string]string{"session_id": req.SessionID, "prompt": req.Prompt},
	})

	result, err := s.engine.Generate(r.Context(), inference.Request{
		SessionID:   req.SessionID,
		AgentID:     req.AgentID,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
		ForcedModel: req.ForcedModel,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.hub.BroadcastJSON(types.WSMessage{
		Type: types.WSTypeGenerationComplete,
		Data: result,
	})

	s.respondJSON(w, result)
}

// handleGetSession returns a snapshot of a live session by id.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, ok := s.sessions.Get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.respondJSON(w, sess)
}

// handleHealth reports liveness and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"ws_clients":     s.hub.ClientCount(),
	})
}

// handleWebSocket upgrades the connection and registers it with the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, WebSocketBufferSize),
	}
	s.hub.Register(client)

	go client.readPump()
	go client.writePump()
}

func (s *Server) respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

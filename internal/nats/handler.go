package nats

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/nats-io/nats.go"
)

// HandlerCallbacks defines callbacks the handler uses to communicate with the server
type HandlerCallbacks struct {
	OnResourceHeartbeat      func(msg ResourceHeartbeatMessage) error
	OnConsolidationHeartbeat func(msg ConsolidationHeartbeatMessage) error
	OnSessionSweepHeartbeat  func(msg SessionSweepHeartbeatMessage) error
	OnModelState             func(msg ModelStateMessage) error
	OnAlert                  func(msg AlertMessage) error
	OnSystemBroadcast        func(msgType, message string, data map[string]interface{}) error
}

// Handler processes NATS messages and delegates to callbacks
type Handler struct {
	client    *Client
	callbacks HandlerCallbacks

	// Track subscriptions for cleanup
	subs   []*nats.Subscription
	subsMu sync.Mutex

	// Running state
	running bool
	stopCh  chan struct{}
}

// NewHandler creates a new NATS message handler
func NewHandler(client *Client, callbacks HandlerCallbacks) *Handler {
	return &Handler{
		client:    client,
		callbacks: callbacks,
		subs:      make([]*nats.Subscription, 0),
		stopCh:    make(chan struct{}),
	}
}

// Start begins processing NATS messages
func (h *Handler) Start() error {
	if h.running {
		return fmt.Errorf("handler already running")
	}

	h.running = true

	// Subscribe to the resource sampler's heartbeat
	sub, err := h.client.Subscribe(SubjectResourceHeartbeat, h.handleResourceHeartbeat)
	if err != nil {
		return fmt.Errorf("failed to subscribe to resource heartbeat: %w", err)
	}
	h.addSub(sub)

	// Subscribe to the memory consolidation sweep's heartbeat
	sub, err = h.client.Subscribe(SubjectConsolidationHeartbeat, h.handleConsolidationHeartbeat)
	if err != nil {
		return fmt.Errorf("failed to subscribe to consolidation heartbeat: %w", err)
	}
	h.addSub(sub)

	// Subscribe to the session TTL sweeper's heartbeat
	sub, err = h.client.Subscribe(SubjectSessionSweepHeartbeat, h.handleSessionSweepHeartbeat)
	if err != nil {
		return fmt.Errorf("failed to subscribe to session sweep heartbeat: %w", err)
	}
	h.addSub(sub)

	// Subscribe to model state transitions from every model
	sub, err = h.client.Subscribe(SubjectAllModelState, h.handleModelState)
	if err != nil {
		return fmt.Errorf("failed to subscribe to model state: %w", err)
	}
	h.addSub(sub)

	// Subscribe to alerts
	sub, err = h.client.Subscribe(SubjectAlert, h.handleAlert)
	if err != nil {
		return fmt.Errorf("failed to subscribe to alerts: %w", err)
	}
	h.addSub(sub)

	// Subscribe to system broadcasts
	sub, err = h.client.Subscribe(SubjectSystemBroadcast, h.handleSystemBroadcast)
	if err != nil {
		return fmt.Errorf("failed to subscribe to system broadcasts: %w", err)
	}
	h.addSub(sub)

	log.Printf("[NATS-HANDLER] Started, subscribed to %d subjects", len(h.subs))
	return nil
}

// Stop terminates message processing
func (h *Handler) Stop() {
	if !h.running {
		return
	}

	close(h.stopCh)

	h.subsMu.Lock()
	for _, sub := range h.subs {
		sub.Unsubscribe()
	}
	h.subs = nil
	h.subsMu.Unlock()

	h.running = false
	log.Printf("[NATS-HANDLER] Stopped")
}

func (h *Handler) addSub(sub *nats.Subscription) {
	h.subsMu.Lock()
	h.subs = append(h.subs, sub)
	h.subsMu.Unlock()
}

// handleResourceHeartbeat processes resource-sampler heartbeats
func (h *Handler) handleResourceHeartbeat(msg *Message) {
	var hb ResourceHeartbeatMessage
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		log.Printf("[NATS-HANDLER] Invalid resource heartbeat: %v", err)
		return
	}

	if h.callbacks.OnResourceHeartbeat != nil {
		if err := h.callbacks.OnResourceHeartbeat(hb); err != nil {
			log.Printf("[NATS-HANDLER] Resource heartbeat callback error: %v", err)
		}
	}
}

// handleConsolidationHeartbeat processes memory consolidation sweep heartbeats
func (h *Handler) handleConsolidationHeartbeat(msg *Message) {
	var hb ConsolidationHeartbeatMessage
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		log.Printf("[NATS-HANDLER] Invalid consolidation heartbeat: %v", err)
		return
	}

	if h.callbacks.OnConsolidationHeartbeat != nil {
		if err := h.callbacks.OnConsolidationHeartbeat(hb); err != nil {
			log.Printf("[NATS-HANDLER] Consolidation heartbeat callback error: %v", err)
		}
	}
}

// handleSessionSweepHeartbeat processes session TTL sweep heartbeats
func (h *Handler) handleSessionSweepHeartbeat(msg *Message) {
	var hb SessionSweepHeartbeatMessage
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		log.Printf("[NATS-HANDLER] Invalid session sweep heartbeat: %v", err)
		return
	}

	if h.callbacks.OnSessionSweepHeartbeat != nil {
		if err := h.callbacks.OnSessionSweepHeartbeat(hb); err != nil {
			log.Printf("[NATS-HANDLER] Session sweep heartbeat callback error: %v", err)
		}
	}
}

// handleModelState processes model state transition messages
func (h *Handler) handleModelState(msg *Message) {
	var state ModelStateMessage
	if err := json.Unmarshal(msg.Data, &state); err != nil {
		log.Printf("[NATS-HANDLER] Invalid model state message: %v", err)
		return
	}

	if h.callbacks.OnModelState != nil {
		if err := h.callbacks.OnModelState(state); err != nil {
			log.Printf("[NATS-HANDLER] Model state callback error: %v", err)
		}
	}
}

// handleAlert processes alert messages
func (h *Handler) handleAlert(msg *Message) {
	var alert AlertMessage
	if err := json.Unmarshal(msg.Data, &alert); err != nil {
		log.Printf("[NATS-HANDLER] Invalid alert message: %v", err)
		return
	}

	if h.callbacks.OnAlert != nil {
		if err := h.callbacks.OnAlert(alert); err != nil {
			log.Printf("[NATS-HANDLER] Alert callback error: %v", err)
		}
	}
}

// handleSystemBroadcast processes system broadcast messages
func (h *Handler) handleSystemBroadcast(msg *Message) {
	var broadcast SystemBroadcastMessage
	if err := json.Unmarshal(msg.Data, &broadcast); err != nil {
		log.Printf("[NATS-HANDLER] Invalid system broadcast message: %v", err)
		return
	}

	if h.callbacks.OnSystemBroadcast != nil {
		if err := h.callbacks.OnSystemBroadcast(broadcast.Type, broadcast.Message, broadcast.Data); err != nil {
			log.Printf("[NATS-HANDLER] System broadcast callback error: %v", err)
		}
	}
}

package services

import (
	"sync"
)

// Assembly event types
const (
	EventAssemblyStatus = "assembly_status"
	EventQuorumChanged  = "quorum_changed"
	EventVotingOpened   = "voting_opened"
	EventVotingClosed   = "voting_closed"
	EventBallotCast     = "ballot_cast"
	EventOTPRotated     = "otp_rotated"
	EventResultRecorded = "result_recorded"
)

// AssemblyEvent is a live update pushed to screens following an assembly.
// It never carries an OTP code, only its expiry.
type AssemblyEvent struct {
	AssemblyID   uint           `json:"assembly_id"`
	Type         string         `json:"type"`
	Status       string         `json:"status,omitempty"`
	AgendaItemID uint           `json:"agenda_item_id,omitempty"`
	Quorum       *QuorumReport  `json:"quorum,omitempty"`
	Summary      *VoteSummary   `json:"summary,omitempty"`
	OTPExpiresAt *string        `json:"otp_expires_at,omitempty"`
	Scope        string         `json:"scope,omitempty"` // checkin, voting
	Extra        map[string]any `json:"extra,omitempty"`
}

type subscriber struct {
	assemblyID uint
	ch         chan AssemblyEvent
}

// EventHub fans assembly events out to SSE clients of that assembly
type EventHub struct {
	clients map[string]subscriber
	mu      sync.RWMutex
}

// NewEventHub creates a new event hub instance
func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[string]subscriber),
	}
}

// Subscribe registers a client for one assembly's events
func (h *EventHub) Subscribe(clientID string, assemblyID uint) <-chan AssemblyEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan AssemblyEvent, 100)
	h.clients[clientID] = subscriber{assemblyID: assemblyID, ch: ch}
	return ch
}

// Unsubscribe removes a client from the hub
func (h *EventHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.clients[clientID]; ok {
		close(sub.ch)
		delete(h.clients, clientID)
	}
}

// Publish delivers event to every client following its assembly. Slow
// clients miss events rather than block the caller; polling endpoints
// remain the source of truth. A nil hub drops the event.
func (h *EventHub) Publish(event AssemblyEvent) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.clients {
		if sub.assemblyID != event.AssemblyID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Close disconnects every client. Their streams end once the events already
// buffered for them are written.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.clients {
		close(sub.ch)
		delete(h.clients, id)
	}
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var globalEventHub *EventHub
var eventHubOnce sync.Once

// GetEventHub returns the process-wide event hub
func GetEventHub() *EventHub {
	eventHubOnce.Do(func() {
		globalEventHub = NewEventHub()
	})
	return globalEventHub
}

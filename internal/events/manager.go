package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	TradeSyncStart EventType = "TRADE_SYNC_START"
	TradesSynced   EventType = "TRADES_SYNCED"
	TradeDaySynced EventType = "TRADE_DAY_SYNCED"
	ErrorOccurred  EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	Module    string      `json:"module"`
}

// Manager handles event emission and logging. It remembers the most recent
// event of each type so the status endpoint can report sync activity.
type Manager struct {
	log    zerolog.Logger
	mu     sync.RWMutex
	last   map[EventType]Event
	counts map[EventType]int
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:    log.With().Str("service", "events").Logger(),
		last:   make(map[EventType]Event),
		counts: make(map[EventType]int),
	}
}

// Emit records and logs an event
func (m *Manager) Emit(eventType EventType, module string, data interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Module:    module,
	}

	m.mu.Lock()
	m.last[eventType] = event
	m.counts[eventType]++
	m.mu.Unlock()

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	m.Emit(ErrorOccurred, module, data)
}

// Last returns the most recent event of the given type.
func (m *Manager) Last(eventType EventType) (Event, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	event, ok := m.last[eventType]
	return event, ok
}

// Counts returns per-type emission counts since startup.
func (m *Manager) Counts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int, len(m.counts))
	for t, n := range m.counts {
		counts[string(t)] = n
	}
	return counts
}

// Package events fans live state changes out to connected observers.
package events

import "time"

// EventType identifies the kind of a broadcast event
type EventType string

const (
	AgentStatus     EventType = "agent_status"
	Trade           EventType = "trade"
	Log             EventType = "log"
	PortfolioUpdate EventType = "portfolio_update"
	ChatMessage     EventType = "chat_message"
	Reflection      EventType = "reflection"
	MarketStatus    EventType = "market_status"
	ModeChange      EventType = "mode_change"
	SchedulerStatus EventType = "scheduler_status"
)

// Event is a single message delivered to every subscriber
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent stamps typed event data with the current time
func NewEvent(data EventData) Event {
	return Event{
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

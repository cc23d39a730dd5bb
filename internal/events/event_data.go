package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// Agent status values carried by AgentStatusData
const (
	StatusIdle      = "IDLE"
	StatusAnalyzing = "ANALYZING"
	StatusTrading   = "TRADING"
	StatusReflect   = "REFLECTING"
	StatusError     = "ERROR"
)

// AgentStatusData reports what the decision loop is doing
type AgentStatusData struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// EventType returns the event type for AgentStatusData
func (d *AgentStatusData) EventType() EventType {
	return AgentStatus
}

// TradeData describes one order outcome
type TradeData struct {
	Success       bool    `json:"success"`
	OrderID       string  `json:"order_id,omitempty"`
	Symbol        string  `json:"symbol"`
	Action        string  `json:"action"`
	Quantity      float64 `json:"quantity"`
	ExecutedPrice float64 `json:"executed_price,omitempty"`
	TotalValue    float64 `json:"total_value,omitempty"`
	Fee           float64 `json:"fee,omitempty"`
	CashAfter     float64 `json:"cash_after,omitempty"`
	Reasoning     string  `json:"reasoning,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// EventType returns the event type for TradeData
func (d *TradeData) EventType() EventType {
	return Trade
}

// LogData mirrors a persisted system log entry
type LogData struct {
	Level     string                 `json:"level"`
	Component string                 `json:"component"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// EventType returns the event type for LogData
func (d *LogData) EventType() EventType {
	return Log
}

// PositionData is one holding inside a portfolio update
type PositionData struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgPrice      float64 `json:"avg_price"`
	CurrentPrice  float64 `json:"current_price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// PortfolioUpdateData is a point-in-time portfolio valuation
type PortfolioUpdateData struct {
	Cash          float64        `json:"cash"`
	TotalValue    float64        `json:"total_value"`
	HoldingsValue float64        `json:"holdings_value"`
	PnL           float64        `json:"pnl"`
	PnLPercent    float64        `json:"pnl_percent"`
	Positions     []PositionData `json:"positions"`
}

// EventType returns the event type for PortfolioUpdateData
func (d *PortfolioUpdateData) EventType() EventType {
	return PortfolioUpdate
}

// ChatMessageData is a message exchanged with the decision model
type ChatMessageData struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EventType returns the event type for ChatMessageData
func (d *ChatMessageData) EventType() EventType {
	return ChatMessage
}

// ReflectionData summarizes a completed reflection
type ReflectionData struct {
	ID             int64   `json:"id"`
	PeriodStart    string  `json:"period_start"`
	PeriodEnd      string  `json:"period_end"`
	TradesAnalyzed int     `json:"trades_analyzed"`
	TotalFees      float64 `json:"total_fees"`
	Content        string  `json:"content"`
}

// EventType returns the event type for ReflectionData
func (d *ReflectionData) EventType() EventType {
	return Reflection
}

// MarketStatusData announces a session transition
type MarketStatusData struct {
	Session  string `json:"session"`
	Previous string `json:"previous,omitempty"`
	IsOpen   bool   `json:"is_open"`
}

// EventType returns the event type for MarketStatusData
func (d *MarketStatusData) EventType() EventType {
	return MarketStatus
}

// ModeChangeData announces a run mode transition
type ModeChangeData struct {
	Mode     string `json:"mode"`
	Previous string `json:"previous"`
}

// EventType returns the event type for ModeChangeData
func (d *ModeChangeData) EventType() EventType {
	return ModeChange
}

// SchedulerStatusData carries a scheduler status snapshot
type SchedulerStatusData struct {
	Status interface{} `json:"status"`
}

// EventType returns the event type for SchedulerStatusData
func (d *SchedulerStatusData) EventType() EventType {
	return SchedulerStatus
}

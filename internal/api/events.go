package api

import (
	"time"
)

// EventType tags outbound events for observers.
type EventType string

const (
	EventCycleBegin     EventType = "CYCLE_BEGIN"
	EventCycleEnd       EventType = "CYCLE_END"
	EventPortfolio      EventType = "UPDATE_PORTFOLIO"
	EventOpportunities  EventType = "OPPORTUNITIES"
	EventExecution      EventType = "EXECUTION"
	EventRiskBlocked    EventType = "RISK_BLOCKED"
	EventDecision       EventType = "AUTONOMOUS_DECISION"
	EventError          EventType = "ERROR"
)

// Error severities.
const (
	SeverityWarn     = "warn"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Event is the wrapper for all events sent to observers.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Essential reports whether an event must survive backpressure. Trade and
// error events are never dropped; everything else may be shed when the
// outbound channel is full.
func (e Event) Essential() bool {
	switch e.Type {
	case EventExecution, EventError:
		return true
	}
	return false
}

// CyclePayload accompanies CYCLE_BEGIN and CYCLE_END.
type CyclePayload struct {
	CycleIndex uint64 `json:"cycle_index"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// ExecutionPayload reports a fill.
type ExecutionPayload struct {
	OrderID     string  `json:"order_id"`
	Ticker      string  `json:"ticker"`
	Side        string  `json:"side"`
	Qty         int     `json:"qty"`
	FillPrice   int     `json:"fill_price"`
	LatencyMS   int64   `json:"latency_ms"`
	SlippagePct float64 `json:"slippage_pct"`
}

// RiskBlockedPayload reports a gate rejection. Not an error.
type RiskBlockedPayload struct {
	Reason string `json:"reason"`
	Ticker string `json:"ticker,omitempty"`
}

// DecisionPayload reports an autonomous risk-parameter adjustment.
type DecisionPayload struct {
	Param     string  `json:"param"`
	Before    float64 `json:"before"`
	After     float64 `json:"after"`
	Reason    string  `json:"reason"`
	Reasoning string  `json:"reasoning,omitempty"`
}

// ErrorPayload reports a pipeline error.
type ErrorPayload struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, data interface{}) Event {
	return Event{Type: t, Timestamp: time.Now(), Data: data}
}

package api

import (
	"time"

	"github.com/Snapwave333/klashibot-sub000/internal/perf"
	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

// SnapshotProvider exposes current engine state to the API. The engine
// implements it; snapshots are copies, never live references.
type SnapshotProvider interface {
	StateSnapshot() Snapshot
}

// Snapshot is the aggregated state served on /api/snapshot and as the first
// message to every WebSocket client.
type Snapshot struct {
	Timestamp     time.Time                  `json:"timestamp"`
	Mode          string                     `json:"mode"`
	CycleIndex    uint64                     `json:"cycle_index"`
	Halted        bool                       `json:"halted"`
	Portfolio     types.PortfolioSnapshot    `json:"portfolio"`
	Opportunities []types.MarketOpportunity  `json:"opportunities"`
	RiskParams    types.RiskParams           `json:"risk_params"`
	Performance   perf.State                 `json:"performance"`
	Feedback      perf.FeedbackMetrics       `json:"feedback"`
}

package coordinator

import "time"

// State is the coordinator's session state.
type State string

const (
	StateDisabled   State = "DISABLED"
	StatePaused     State = "PAUSED"
	StateWaiting    State = "WAITING"
	StateOptimizing State = "OPTIMIZING"
	StateAdvancing  State = "ADVANCING"
)

// IsActive reports whether the state runs at the active loop cadence.
func (s State) IsActive() bool {
	switch s {
	case StateWaiting, StateOptimizing, StateAdvancing:
		return true
	default:
		return false
	}
}

// Status is an immutable snapshot published after every tick. Observers
// read it without touching session state.
type Status struct {
	SessionID          string             `json:"session_id"`
	State              State              `json:"state"`
	PausedReason       string             `json:"paused_reason,omitempty"`
	CurrentCoefficient string             `json:"current_coefficient"`
	Index              int                `json:"index"`
	Total              int                `json:"total"`
	ShotCount          int                `json:"shot_count"`
	Threshold          int                `json:"threshold"`
	AutotuneEnabled    bool               `json:"autotune_enabled"`
	Streak             int                `json:"streak"`
	Optimizations      int                `json:"optimizations"`
	OptimizationBudget int                `json:"optimization_budget,omitempty"`
	Rejections         int                `json:"consecutive_rejections"`
	Connected          bool               `json:"connected"`
	ChannelConnected   bool               `json:"channel_connected"`
	PeerConnected      bool               `json:"peer_connected"`
	InterlockAllowed   bool               `json:"interlock_allowed"`
	LastError          string             `json:"last_error,omitempty"`
	Coefficients       map[string]float64 `json:"coefficients"`
	Tuned              []string           `json:"tuned"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Control is the operator input read from the channel each tick.
type Control struct {
	Enabled          bool
	RunOptimization  bool
	Skip             bool
	TriggerBacktrack bool
	BacktrackTarget  int
	ManualOverrides  map[string]float64
}

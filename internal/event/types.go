package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "shot.accepted", "optimization.failed")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeStateChanged        = "coordinator.state_changed"
	TypeShotAccepted        = "shot.accepted"
	TypeShotRejected        = "shot.rejected"
	TypeShotFault           = "shot.fault"
	TypeOptimizationApplied = "optimization.applied"
	TypeOptimizationFailed  = "optimization.failed"
	TypeManualChange        = "coefficient.manual_change"
	TypeAdvanced            = "coefficient.advanced"
	TypeBacktracked         = "coefficient.backtracked"
	TypeConnectivity        = "link.connectivity"
	TypeInterlockReset      = "interlock.reset"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent stamps an event with at, which callers take from their own
// (possibly injected) clock.
func newBaseEvent(eventType string, at time.Time) baseEvent {
	return baseEvent{eventType: eventType, timestamp: at}
}

// -----------------------------------------------------------------------------
// Coordinator Events
// -----------------------------------------------------------------------------

// StateChangedEvent is emitted on every coordinator state transition.
type StateChangedEvent struct {
	baseEvent
	SessionID string
	From      string
	To        string
	Reason    string
}

// NewStateChangedEvent creates a StateChangedEvent.
func NewStateChangedEvent(at time.Time, sessionID, from, to, reason string) StateChangedEvent {
	return StateChangedEvent{
		baseEvent: newBaseEvent(TypeStateChanged, at),
		SessionID: sessionID,
		From:      from,
		To:        to,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Shot Events
// -----------------------------------------------------------------------------

// ShotAcceptedEvent is emitted when a validated shot joins a buffer.
type ShotAcceptedEvent struct {
	baseEvent
	Coefficient string
	Hit         bool
	BufferSize  int
	Streak      int
}

// NewShotAcceptedEvent creates a ShotAcceptedEvent.
func NewShotAcceptedEvent(at time.Time, coefficient string, hit bool, bufferSize, streak int) ShotAcceptedEvent {
	return ShotAcceptedEvent{
		baseEvent:   newBaseEvent(TypeShotAccepted, at),
		Coefficient: coefficient,
		Hit:         hit,
		BufferSize:  bufferSize,
		Streak:      streak,
	}
}

// ShotRejectedEvent is emitted when a remote payload fails validation.
type ShotRejectedEvent struct {
	baseEvent
	Field  string
	Reason string
}

// NewShotRejectedEvent creates a ShotRejectedEvent.
func NewShotRejectedEvent(at time.Time, field, reason string) ShotRejectedEvent {
	return ShotRejectedEvent{
		baseEvent: newBaseEvent(TypeShotRejected, at),
		Field:     field,
		Reason:    reason,
	}
}

// ShotFaultEvent is emitted once when consecutive rejections reach the
// configured limit.
type ShotFaultEvent struct {
	baseEvent
	Coefficient string
	Rejections  int
	LastReason  string
}

// NewShotFaultEvent creates a ShotFaultEvent.
func NewShotFaultEvent(at time.Time, coefficient string, rejections int, lastReason string) ShotFaultEvent {
	return ShotFaultEvent{
		baseEvent:   newBaseEvent(TypeShotFault, at),
		Coefficient: coefficient,
		Rejections:  rejections,
		LastReason:  lastReason,
	}
}

// -----------------------------------------------------------------------------
// Coefficient Events
// -----------------------------------------------------------------------------

// OptimizationAppliedEvent is emitted after a suggested value is published.
type OptimizationAppliedEvent struct {
	baseEvent
	Coefficient  string
	Previous     float64
	Value        float64
	Observations int
	Duration     time.Duration
}

// NewOptimizationAppliedEvent creates an OptimizationAppliedEvent.
func NewOptimizationAppliedEvent(at time.Time, coefficient string, previous, value float64, observations int, took time.Duration) OptimizationAppliedEvent {
	return OptimizationAppliedEvent{
		baseEvent:    newBaseEvent(TypeOptimizationApplied, at),
		Coefficient:  coefficient,
		Previous:     previous,
		Value:        value,
		Observations: observations,
		Duration:     took,
	}
}

// OptimizationFailedEvent is emitted when the optimizer call fails. The
// buffer is kept for the next trigger.
type OptimizationFailedEvent struct {
	baseEvent
	Coefficient string
	Err         string
	Duration    time.Duration
}

// NewOptimizationFailedEvent creates an OptimizationFailedEvent.
func NewOptimizationFailedEvent(at time.Time, coefficient string, err error, took time.Duration) OptimizationFailedEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return OptimizationFailedEvent{
		baseEvent:   newBaseEvent(TypeOptimizationFailed, at),
		Coefficient: coefficient,
		Err:         msg,
		Duration:    took,
	}
}

// ManualChangeEvent is emitted when an operator override is applied.
type ManualChangeEvent struct {
	baseEvent
	Coefficient string
	Previous    float64
	Value       float64
}

// NewManualChangeEvent creates a ManualChangeEvent.
func NewManualChangeEvent(at time.Time, coefficient string, previous, value float64) ManualChangeEvent {
	return ManualChangeEvent{
		baseEvent:   newBaseEvent(TypeManualChange, at),
		Coefficient: coefficient,
		Previous:    previous,
		Value:       value,
	}
}

// AdvancedEvent is emitted when a coefficient is marked tuned. Next is
// empty when the sequence is exhausted.
type AdvancedEvent struct {
	baseEvent
	Tuned  string
	Next   string
	Manual bool
}

// NewAdvancedEvent creates an AdvancedEvent.
func NewAdvancedEvent(at time.Time, tuned, next string, manual bool) AdvancedEvent {
	return AdvancedEvent{
		baseEvent: newBaseEvent(TypeAdvanced, at),
		Tuned:     tuned,
		Next:      next,
		Manual:    manual,
	}
}

// BacktrackedEvent is emitted when the tuning order is rewound.
type BacktrackedEvent struct {
	baseEvent
	From        int
	To          int
	Coefficient string
}

// NewBacktrackedEvent creates a BacktrackedEvent.
func NewBacktrackedEvent(at time.Time, from, to int, coefficient string) BacktrackedEvent {
	return BacktrackedEvent{
		baseEvent:   newBaseEvent(TypeBacktracked, at),
		From:        from,
		To:          to,
		Coefficient: coefficient,
	}
}

// -----------------------------------------------------------------------------
// Link Events
// -----------------------------------------------------------------------------

// ConnectivityEvent is emitted when the store link or the peer heartbeat
// changes reachability. Source is "channel" or "peer".
type ConnectivityEvent struct {
	baseEvent
	Source    string
	Connected bool
}

// NewConnectivityEvent creates a ConnectivityEvent.
func NewConnectivityEvent(at time.Time, source string, connected bool) ConnectivityEvent {
	return ConnectivityEvent{
		baseEvent: newBaseEvent(TypeConnectivity, at),
		Source:    source,
		Connected: connected,
	}
}

// InterlockResetEvent is emitted when a stale gate is re-satisfied by timeout.
type InterlockResetEvent struct {
	baseEvent
	Gate       string
	ClearedFor time.Duration
}

// NewInterlockResetEvent creates an InterlockResetEvent.
func NewInterlockResetEvent(at time.Time, gate string, clearedFor time.Duration) InterlockResetEvent {
	return InterlockResetEvent{
		baseEvent:  newBaseEvent(TypeInterlockReset, at),
		Gate:       gate,
		ClearedFor: clearedFor,
	}
}

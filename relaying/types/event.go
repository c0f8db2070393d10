package types

import "time"

// Actor identifies which side of the bridge emitted a lifecycle event.
type Actor string

// Event actors.
const (
	ActorSource      Actor = "source"
	ActorRelayer     Actor = "relayer"
	ActorDestination Actor = "destination"
	ActorDashboard   Actor = "dashboard"
)

// Step is the lifecycle step an event records.
type Step string

// Lifecycle steps.
const (
	StepLocked   Step = "locked"
	StepObserved Step = "observed"
	StepVerified Step = "verified"
	StepExecuted Step = "executed"
	StepMinted   Step = "minted"
	StepBurned   Step = "burned"
	StepRollback Step = "rollback"
	StepSettled  Step = "settled"
)

// Status is the outcome recorded by an event.
type Status string

// Event statuses.
const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusRetry   Status = "retry"
)

// Event is one append-only lifecycle record. Events are never updated or
// deleted; per-nonce insertion order is the canonical lifecycle order.
type Event struct {
	TraceID   string `json:"trace_id"`
	Nonce     uint64 `json:"nonce"`
	Actor     Actor  `json:"actor"`
	Step      Step   `json:"step"`
	Status    Status `json:"status"`
	Timestamp string `json:"timestamp"`
	Detail    string `json:"detail,omitempty"`
}

// NewEvent builds an event stamped with the current UTC time in RFC 3339.
func NewEvent(traceID string, nonce uint64, actor Actor, step Step, status Status) *Event {
	return &Event{
		TraceID:   traceID,
		Nonce:     nonce,
		Actor:     actor,
		Step:      step,
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// WithDetail attaches a free-form detail string and returns the event.
func (e *Event) WithDetail(detail string) *Event {
	e.Detail = detail
	return e
}

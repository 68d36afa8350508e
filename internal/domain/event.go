package domain

import "time"

// EventStatus represents the lifecycle state of an event. The only legal
// transition is Pending -> Resolved; it happens exactly once and is never
// reversed.
type EventStatus string

const (
	EventStatusPending  EventStatus = "pending"
	EventStatusResolved EventStatus = "resolved"
)

// Event is a named real-world proposition with a boolean outcome. The
// outcome is supplied by the resolver authority, which is either a directly
// trusted address or the oracle engine's own identity; the registry does not
// distinguish between the two beyond identity comparison.
type Event struct {
	ID          int64
	Description string
	Resolver    Address // authorized to call resolve
	CreatedBy   Address // may expedite oracle resolution
	Status      EventStatus
	Outcome     bool // meaningful only once Status is resolved
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// Resolved reports whether the event has reached its terminal state.
func (e Event) Resolved() bool {
	return e.Status == EventStatusResolved
}

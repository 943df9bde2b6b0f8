package types

import "time"

// Entity carries the audit timestamps of a persisted record. Timestamps
// come from the invocation clock, never from the wall clock directly, so a
// record's times agree with the expiry and rolling-window decisions made in
// the same call.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates an Entity stamped at now.
func NewEntity(now time.Time) Entity {
	now = now.UTC()
	return Entity{
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch sets UpdatedAt to now.
func (e *Entity) Touch(now time.Time) {
	e.UpdatedAt = now.UTC()
}

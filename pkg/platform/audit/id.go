package audit

import "github.com/google/uuid"

// NewEventID returns a time-ordered UUID (v7). Callers that must know the ID
// before the write, like the async worker, use it to pre-assign one.
func NewEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

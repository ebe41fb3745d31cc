package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, the audit logger and the
// export layer return these (wrapped with %w) so callers and the HTTP layer
// can branch on errors.Is without knowing which backend produced them.
//
// Audit pipeline taxonomy:
// - ErrStorageUnavailable: backing file/database cannot be opened or written
// - ErrWriteConflict: writer contention that survived the store's retries
// - ErrMalformedFilter: query filter is self-contradictory or out of bounds
// - ErrExportIO: export destination cannot be written
// - ErrExportExists: export destination already holds a file
// - ErrDuplicateEvent: an event ID was reused
// - ErrInvalidEvent: an entry has an unknown type or severity
var (
	ErrStorageUnavailable = errors.New("audit storage unavailable")
	ErrWriteConflict      = errors.New("audit write conflict")
	ErrMalformedFilter    = errors.New("malformed audit filter")
	ErrExportIO           = errors.New("audit export destination not writable")
	ErrExportExists       = errors.New("audit export destination already exists")
	ErrDuplicateEvent     = errors.New("duplicate audit event id")
	ErrInvalidEvent       = errors.New("invalid audit event")

	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrQueueFull    = errors.New("queue full")
	ErrRateLimited  = errors.New("rate limited")
)

package audit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"clinicaudit/pkg/platform/sentinel"
)

const (
	// DefaultPageSize bounds Query when the caller does not set a limit.
	DefaultPageSize = 1000
	// MaxPageSize is the largest limit a single Query may request.
	MaxPageSize = 10000
)

// Filter selects events. All set predicates are AND-ed; the zero Filter
// matches everything (bounded by the page size on Query).
type Filter struct {
	EventTypes []EventType `validate:"dive,required"`
	Severities []Severity  `validate:"dive,oneof=INFO WARNING CRITICAL"`
	// From and To are inclusive; the zero time leaves that side open.
	From       time.Time
	To         time.Time
	ResourceID string `validate:"max=256"`
	UserID     string `validate:"max=256"`
	Username   string `validate:"max=256"`
	Limit      int    `validate:"gte=0,lte=10000"`
	Offset     int    `validate:"gte=0"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func filterValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate rejects contradictory or out-of-range filters with
// sentinel.ErrMalformedFilter.
func (f Filter) Validate() error {
	if err := filterValidator().Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", sentinel.ErrMalformedFilter, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", sentinel.ErrMalformedFilter, err)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return fmt.Errorf("%w: end %s is before start %s", sentinel.ErrMalformedFilter,
			FormatTimestamp(f.To), FormatTimestamp(f.From))
	}
	return nil
}

// PageSize is the effective limit for Query.
func (f Filter) PageSize() int {
	if f.Limit <= 0 {
		return DefaultPageSize
	}
	return f.Limit
}

// Matches evaluates the predicates in memory. SQL stores push the same
// predicates into the WHERE clause instead.
func (f Filter) Matches(e Event) bool {
	if len(f.EventTypes) > 0 && !contains(f.EventTypes, e.EventType) {
		return false
	}
	if len(f.Severities) > 0 && !contains(f.Severities, e.Severity) {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if f.UserID != "" && e.Actor.UserID != f.UserID {
		return false
	}
	if f.Username != "" && e.Actor.Username != f.Username {
		return false
	}
	return true
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

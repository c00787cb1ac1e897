package scheduler

import (
	"errors"
	"fmt"
)

// SkipReason classifies why a slot did not produce a trip.
type SkipReason string

const (
	ReasonNoBus        SkipReason = "NO_BUS"
	ReasonCapacity     SkipReason = "CAPACITY"
	ReasonNoDriver     SkipReason = "NO_DRIVER"
	ReasonNoConductor  SkipReason = "NO_CONDUCTOR"
	ReasonWraparound   SkipReason = "WRAPAROUND"
	ReasonInvalidRoute SkipReason = "INVALID_ROUTE"
	ReasonWriteError   SkipReason = "WRITE_ERROR"
	ReasonCancelled    SkipReason = "CANCELLED"
)

// maxDetail bounds upstream messages copied into skip details.
const maxDetail = 160

var (
	// ErrRunInProgress is returned when a run is requested while another one
	// has not finished.
	ErrRunInProgress = errors.New("scheduler: a run is already in progress")
	// ErrInvalidOptions wraps every options validation failure.
	ErrInvalidOptions = errors.New("scheduler: invalid options")
)

// AuthError reports a failed admin login. It aborts the run.
type AuthError struct {
	Status int
	Msg    string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("auth failed (status %d): %s", e.Status, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("auth failed: %s: %v", e.Msg, e.Err)
	}
	return "auth failed: " + e.Msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError reports a resource listing that could not be completed. It
// aborts the run.
type FetchError struct {
	Resource string
	Page     int
	Status   int
	Msg      string
	Err      error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s page %d: %s", e.Resource, e.Page, e.Msg)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError reports a trip the backend refused or never acknowledged.
type WriteError struct {
	Status int
	Msg    string
	Err    error
}

func (e *WriteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("create trip (status %d): %s", e.Status, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("create trip: %v", e.Err)
	}
	return "create trip: " + e.Msg
}

func (e *WriteError) Unwrap() error { return e.Err }

// AllocationSkip is returned by the allocator when no valid combination of
// resources exists for a slot.
type AllocationSkip struct {
	Reason SkipReason
	Detail string
}

func (e *AllocationSkip) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Detail
}

// ErrorClass names the class of a run failure for logs and monitoring tags.
func ErrorClass(err error) string {
	var ae *AuthError
	var fe *FetchError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ae):
		return "auth"
	case errors.As(err, &fe):
		return "fetch"
	case errors.Is(err, ErrInvalidOptions):
		return "options"
	default:
		return "internal"
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

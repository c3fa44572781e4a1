package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the stores and the booking ledger.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrAlreadyCancelled  = errors.New("booking already cancelled")
	ErrDuplicatePNR      = errors.New("booking reference collision")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
)

// ValidationError reports bad input.  Field names the first offending
// field; the client can always fix it without retrying as-is.
type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Field != "":
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

// SeatConflictError means one or more requested seats are already sold,
// or the trip does not have enough seats left.  Seats lists exactly the
// conflicting labels; it is empty when the failure is capacity.
type SeatConflictError struct {
	Seats     []string
	Available int
}

func (e SeatConflictError) Error() string {
	if len(e.Seats) == 0 {
		return fmt.Sprintf("not enough seats left (%d available)", e.Available)
	}
	return "seats already booked: " + strings.Join(e.Seats, ",")
}

// TripUnavailableError means the trip cannot be booked: missing,
// cancelled, completed or already departed.
type TripUnavailableError struct {
	TripID uint64
	Reason string
}

func (e TripUnavailableError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("trip %d unavailable", e.TripID)
	}
	return fmt.Sprintf("trip %d unavailable: %s", e.TripID, e.Reason)
}

// TransientError wraps a storage timeout or outage.  Retrying the whole
// operation is safe.
type TransientError struct {
	Op  string
	Err error
}

func (e TransientError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("temporary storage failure: %v", e.Err)
	}
	return fmt.Sprintf("%s: temporary storage failure: %v", e.Op, e.Err)
}

func (e TransientError) Unwrap() error { return e.Err }

// FatalInconsistencyError means a compensating action failed and state
// needs manual reconciliation.  Detail carries ids and amounts.
type FatalInconsistencyError struct {
	Op     string
	Detail string
	Err    error
}

func (e FatalInconsistencyError) Error() string {
	return fmt.Sprintf("inconsistent state after %s (%s): %v", e.Op, e.Detail, e.Err)
}

func (e FatalInconsistencyError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsSeatConflict(err error) bool {
	var target SeatConflictError
	return errors.As(err, &target)
}

func IsTripUnavailable(err error) bool {
	var target TripUnavailableError
	return errors.As(err, &target)
}

func IsTransient(err error) bool {
	var target TransientError
	return errors.As(err, &target)
}

func IsFatal(err error) bool {
	var target FatalInconsistencyError
	return errors.As(err, &target)
}

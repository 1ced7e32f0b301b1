package model

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by the ledger, the booking state machine and the
// waiting list. Handlers translate these into HTTP statuses; background
// passes log them and move on to the next entity.
var (
	// ErrValidation reports malformed input such as a quantity/seat count
	// mismatch. Nothing is written when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrCapacity means the pool does not have enough units left.
	ErrCapacity = errors.New("not enough capacity")

	// ErrSeatConflict means at least one requested seat is disabled or
	// already covered by an unexpired hold. Use *SeatConflictError to learn
	// which seats.
	ErrSeatConflict = errors.New("seat conflict")

	// ErrWindowExpired reports that a confirmation, payment or waiting-list
	// response window has elapsed.
	ErrWindowExpired = errors.New("window expired")

	// ErrUnauthorized means the caller does not own the booking, hold or
	// waiting-list entry.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned when a pool, booking or entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when the requested transition is not
	// allowed from the entity's current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrHoldInvalid is returned by a claim whose token no longer names a
	// matching set of live holds.
	ErrHoldInvalid = fmt.Errorf("%w: seat hold expired or invalid", ErrWindowExpired)
)

// SeatConflictError lists the seats that could not be acquired.
type SeatConflictError struct {
	SeatIDs []uint64
	Reason  string
}

func (e *SeatConflictError) Error() string {
	ids := make([]string, len(e.SeatIDs))
	for i, id := range e.SeatIDs {
		ids[i] = fmt.Sprint(id)
	}
	reason := e.Reason
	if reason == "" {
		reason = "already held"
	}
	return fmt.Sprintf("seat conflict: seats [%s] %s", strings.Join(ids, ","), reason)
}

// Is lets errors.Is(err, ErrSeatConflict) match.
func (e *SeatConflictError) Is(target error) bool { return target == ErrSeatConflict }

// Validationf builds an ErrValidation with a message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// InvalidStatef builds an ErrInvalidState with a message.
func InvalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether the caller may retry with different input,
// for example by choosing other seats.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSeatConflict) || errors.Is(err, ErrCapacity)
}

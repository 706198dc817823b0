package channels

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIndex is returned when a slot index is outside the table.
	ErrInvalidIndex = errors.New("channels: invalid index")

	// ErrValidationFailed is returned when proposed settings cannot be repaired.
	ErrValidationFailed = errors.New("channels: validation failed")

	// ErrNoCryptoCandidate is returned when no slot can decrypt a received hash.
	ErrNoCryptoCandidate = errors.New("channels: no crypto candidate")

	// ErrPersistence is returned when the channel file could not be read or written.
	ErrPersistence = errors.New("channels: persistence failure")

	// ErrNoKey is returned when a slot has no usable key (disabled or unresolvable).
	ErrNoKey = errors.New("channels: no usable key")

	// ErrNoValidFile is returned by a Persister when nothing usable is stored.
	ErrNoValidFile = errors.New("channels: no valid channel file")
)

// ValidationError describes why a proposed channel was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrValidationFailed, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// PersistError carries the storage error behind a persistence failure.
// The in-memory table is not rolled back when it is returned.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// IsInvalidIndex returns true if the error is or wraps ErrInvalidIndex.
func IsInvalidIndex(err error) bool {
	return errors.Is(err, ErrInvalidIndex)
}

// IsValidationFailed returns true if the error is or wraps ErrValidationFailed.
func IsValidationFailed(err error) bool {
	return errors.Is(err, ErrValidationFailed)
}

// IsNoCryptoCandidate returns true if the error is or wraps ErrNoCryptoCandidate.
func IsNoCryptoCandidate(err error) bool {
	return errors.Is(err, ErrNoCryptoCandidate)
}

// IsPersistence returns true if the error is or wraps ErrPersistence.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDonorData means no usable donor day exists, or the donor's hours
	// are missing from the source table.
	ErrNoDonorData = errors.New("no donor data")

	// ErrMissingCohortTable means date cohort classification is unavailable.
	ErrMissingCohortTable = errors.New("cohort table unavailable")

	// ErrEmptyAggregateInput means no POSTED observations fell in the range.
	ErrEmptyAggregateInput = errors.New("no posted observations in range")

	// ErrMalformedRow marks a persisted row that failed validation on load.
	ErrMalformedRow = errors.New("malformed row")

	// ErrWriteFailure marks a failed artifact save. The previous artifact is intact.
	ErrWriteFailure = errors.New("write failure")

	// ErrOfficialExists rejects a prediction for a park day that already has
	// official hours.
	ErrOfficialExists = errors.New("official version exists")

	// ErrVersionExists rejects a second predicted row for the same park day.
	ErrVersionExists = errors.New("predicted version exists")

	// ErrUnparseable marks input that matched none of the accepted formats.
	ErrUnparseable = errors.New("unparseable value")
)

// ParseError reports which value failed and which kind of format was expected.
type ParseError struct {
	Kind  string
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Kind, e.Value, ErrUnparseable)
}

func (e *ParseError) Unwrap() error { return ErrUnparseable }

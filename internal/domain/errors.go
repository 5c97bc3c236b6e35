package domain

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError is a per-record format or invariant failure. It never
// aborts a batch on its own.
type ValidationError interface {
	error
	Code() string
}

// IsValidationError reports whether err (or anything it wraps) is a
// ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

type codedError struct {
	code string
	msg  string
}

func (e *codedError) Error() string { return e.msg }
func (e *codedError) Code() string  { return e.code }

var (
	ErrEmptyTitle    = &codedError{code: "empty_event_title", msg: "the event title cannot be empty"}
	ErrEmptyZoneName = &codedError{code: "empty_zone_name", msg: "the zone name cannot be empty"}
)

// FieldMissingError is returned when a required raw field is absent.
type FieldMissingError struct {
	Field string
}

func (e *FieldMissingError) Error() string {
	return fmt.Sprintf("format error: %s field is missing", e.Field)
}
func (e *FieldMissingError) Code() string { return "field_missing" }

type InvalidSellModeError struct {
	Value string
}

func (e *InvalidSellModeError) Error() string {
	return fmt.Sprintf("invalid sell mode: %q", e.Value)
}
func (e *InvalidSellModeError) Code() string { return "invalid_sell_mode" }

type InvalidDateFormatError struct {
	Field string
	Value string
}

func (e *InvalidDateFormatError) Error() string {
	return fmt.Sprintf("format error: invalid date format %q for %s", e.Value, e.Field)
}
func (e *InvalidDateFormatError) Code() string { return "invalid_date_format" }

// InvalidNumberError is returned for a numeric field that does not parse.
type InvalidNumberError struct {
	Field string
	Value string
}

func (e *InvalidNumberError) Error() string {
	return fmt.Sprintf("format error: %s must be numeric, got %q", e.Field, e.Value)
}
func (e *InvalidNumberError) Code() string { return "invalid_number" }

type NegativeNumberError struct {
	Field string
	Value int64
}

func (e *NegativeNumberError) Error() string {
	return fmt.Sprintf("the number %d is negative (%s)", e.Value, e.Field)
}
func (e *NegativeNumberError) Code() string { return "number_is_negative" }

const (
	PeriodEvent = "event"
	PeriodSell  = "sell"
)

// InvalidPeriodError carries both boundaries of an inverted period.
type InvalidPeriodError struct {
	Period string
	Start  time.Time
	End    time.Time
}

func (e *InvalidPeriodError) Error() string {
	const layout = "2006-01-02 15:04:05"
	if e.Period == PeriodSell {
		return fmt.Sprintf("sale end date (%s) cannot be before sale start date (%s)",
			e.End.Format(layout), e.Start.Format(layout))
	}
	return fmt.Sprintf("the event start date %q must be before the end date %q",
		e.Start.Format(layout), e.End.Format(layout))
}

func (e *InvalidPeriodError) Code() string {
	if e.Period == PeriodSell {
		return "invalid_sell_date_period"
	}
	return "invalid_event_date_period"
}

package model

import "errors"

// ErrorKind классифицирует доменные ошибки для вызывающей стороны
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindConflict   ErrorKind = "conflict"
	KindPolicy     ErrorKind = "policy"
	KindNotFound   ErrorKind = "not_found"
	KindInternal   ErrorKind = "internal"
)

// Error is a typed domain error. Sentinels below are compared by Code, so a
// wrapped copy still matches errors.Is.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidTimezone  = newError(KindValidation, "invalid_timezone", "timezone is not a recognized IANA zone")
	ErrInvalidStartTime = newError(KindValidation, "invalid_start_time", "start time is not a valid ISO-8601 instant")
	ErrPastStartTime    = newError(KindValidation, "past_start_time", "start time is in the past")
	ErrInvalidDuration  = newError(KindValidation, "invalid_duration", "duration must be a multiple of 30 minutes between 30 and 240")
	ErrInvalidSlot      = newError(KindValidation, "invalid_slot", "slot index must be between 0 and 47")
	ErrInvalidStatus    = newError(KindValidation, "invalid_status", "status is not allowed here")
	ErrInvalidQuantity  = newError(KindValidation, "invalid_quantity", "quantity must be positive")
	ErrInvalidCardType  = newError(KindValidation, "invalid_card_type", "unknown card type")
	ErrInvalidDate      = newError(KindValidation, "invalid_date", "date must be formatted as YYYY-MM-DD")
	ErrInvalidCause     = newError(KindValidation, "invalid_cause", "unknown cancellation cause")

	ErrSlotConflict       = newError(KindConflict, "slot_conflict", "one or more slots are no longer available")
	ErrOverlappingBooking = newError(KindConflict, "overlapping_booking", "an overlapping booking already exists")

	ErrTeacherNotAvailable      = newError(KindPolicy, "teacher_not_available", "teacher is not available for the requested time")
	ErrInsufficientBalance      = newError(KindPolicy, "insufficient_balance", "not enough credits")
	ErrCancellationWindowClosed = newError(KindPolicy, "cancellation_window_closed", "booking can no longer be canceled")
	ErrNotReschedulable         = newError(KindPolicy, "not_reschedulable", "booking cannot be rescheduled")
	ErrInvalidTransition        = newError(KindPolicy, "invalid_transition", "booking status does not allow this action")
	ErrAlreadyActivated         = newError(KindPolicy, "already_activated", "credit batch is already activated")
	ErrForbidden                = newError(KindPolicy, "forbidden", "actor is not allowed to perform this action")

	ErrBookingNotFound = newError(KindNotFound, "booking_not_found", "booking not found")
	ErrBatchNotFound   = newError(KindNotFound, "batch_not_found", "credit batch not found")
	ErrTeacherNotFound = newError(KindNotFound, "teacher_not_found", "teacher not found")
)

// KindOf возвращает класс ошибки; всё нераспознанное считается внутренней ошибкой
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the domain error code, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return string(KindInternal)
}

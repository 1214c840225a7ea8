package services

import (
	"errors"
	"fmt"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
)

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorConflict     ErrorCode = "conflict"
	ErrorUnauthorized ErrorCode = "unauthorized"
	ErrorBadGateway   ErrorCode = "bad_gateway"
)

// ServiceError carries a code the HTTP layer maps to a status. Key names a
// message in the utils translation table; Field and ExpectedDay add detail.
type ServiceError struct {
	Code        ErrorCode
	Message     string
	Key         string
	Field       string
	ExpectedDay int
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func NewBadGatewayError(msg string) error { return &ServiceError{Code: ErrorBadGateway, Message: msg} }

// NewFieldError reports a rejected request field.
func NewFieldError(field, msg string) error {
	return &ServiceError{Code: ErrorInvalid, Message: field + ": " + msg, Key: "error.invalid_field", Field: field}
}

func newAlreadySubmittedError(day, expected int) error {
	return &ServiceError{
		Code:        ErrorConflict,
		Message:     fmt.Sprintf("day %d already submitted, expected day %d", day, expected),
		Key:         "error.already_submitted",
		ExpectedDay: expected,
	}
}

func newWrongDayError(expected, got int) error {
	return &ServiceError{
		Code:        ErrorConflict,
		Message:     fmt.Sprintf("wrong test day %d, expected day %d", got, expected),
		Key:         "error.wrong_day",
		ExpectedDay: expected,
	}
}

func newTestEndedError() error {
	return &ServiceError{Code: ErrorConflict, Message: "test has ended", Key: "error.test_ended"}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// translateLedgerError maps engine sequencing errors onto service errors.
func translateLedgerError(err error) error {
	var wrong *questionnaire.WrongDayError
	switch {
	case errors.As(err, &wrong):
		return newWrongDayError(wrong.Expected, wrong.Got)
	case errors.Is(err, questionnaire.ErrTestEnded):
		return newTestEndedError()
	}
	return err
}

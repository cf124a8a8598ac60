package spreadsheet

import (
	"errors"
	"fmt"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/engine"
	"github.com/vogtb/go-spreadsheet/packages/workbook"
)

// AppErrorCode represents gRPC-style error codes for application-level errors.
// note that we are skipping error codes that don't make sense for our use-case,
// like unauthenticated, or permission denied.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// Unknown error. Errors raised by APIs that do not return enough error
	// information may be converted to this error.
	Unknown AppErrorCode = 2

	// InvalidArgument indicates client specified an invalid argument, such
	// as a malformed address or formula.
	InvalidArgument AppErrorCode = 3

	// NotFound means some requested entity (e.g., worksheet, table or
	// defined name) was not found.
	NotFound AppErrorCode = 5

	// AlreadyExists means an attempt to create an entity failed because one
	// already exists.
	AlreadyExists AppErrorCode = 6

	// FailedPrecondition indicates operation was rejected because the
	// system is not in a state required for the operation's execution.
	FailedPrecondition AppErrorCode = 9

	// OutOfRange means operation was attempted past the valid range.
	OutOfRange AppErrorCode = 11

	// Internal errors. Means some invariants expected by underlying
	// system has been broken.
	Internal AppErrorCode = 13
)

func (c AppErrorCode) String() string {
	switch c {
	case OK:
		return "OK"
	case Unknown:
		return "Unknown"
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case FailedPrecondition:
		return "FailedPrecondition"
	case OutOfRange:
		return "OutOfRange"
	case Internal:
		return "Internal"
	}
	return fmt.Sprintf("AppErrorCode(%d)", int(c))
}

// AppError represents errors at the application level (not
// spreadsheet formula errors)
type AppError struct {
	Code    AppErrorCode
	Message string
	cause   error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error { return e.cause }

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// wrap classifies an error from the layers below. nil stays nil.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	var parseErr *ast.ParseError
	code := Unknown
	switch {
	case errors.As(err, &parseErr),
		errors.Is(err, workbook.ErrInvalidName),
		errors.Is(err, workbook.ErrInvalidTable),
		errors.Is(err, engine.ErrInvalidEdit):
		code = InvalidArgument
	case errors.Is(err, engine.ErrSheetNotFound),
		errors.Is(err, workbook.ErrSheetNotFound),
		errors.Is(err, workbook.ErrTableNotFound),
		errors.Is(err, workbook.ErrColumnNotFound):
		code = NotFound
	case errors.Is(err, workbook.ErrDuplicateSheet),
		errors.Is(err, workbook.ErrDuplicateTable):
		code = AlreadyExists
	case errors.Is(err, engine.ErrInvalidCell):
		code = OutOfRange
	}
	return &AppError{Code: code, Message: err.Error(), cause: err}
}

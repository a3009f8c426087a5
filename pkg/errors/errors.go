package errors

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedPath        = errors.New("malformed field path")
	ErrUnknownField         = errors.New("unknown field")
	ErrDerivedField         = errors.New("derived field cannot be edited")
	ErrInvalidValue         = errors.New("invalid field value")
	ErrRowNotFound          = errors.New("row not found")
	ErrDraftNotFound        = errors.New("draft not found")
	ErrImportNotFound       = errors.New("import not found")
	ErrSaveRunNotFound      = errors.New("save run not found")
	ErrNoActiveCommentBank  = errors.New("no active comment bank")
	ErrUnknownBankComment   = errors.New("comment is not in the active comment bank")
	ErrExclusionFailed      = errors.New("exclusion update failed")
	ErrSaveFailed           = errors.New("saving results failed")
	ErrInvalidFileFormat    = errors.New("invalid file format")
	ErrSchemaValidation     = errors.New("schema validation failed")
	ErrExternalAPIError     = errors.New("external API error")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

type RetryableError struct {
	Err     error
	Message string
}

func (e RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %s - %s", e.Message, e.Err.Error())
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error, message string) error {
	return RetryableError{
		Err:     err,
		Message: message,
	}
}

// IsRetryable reports whether err, or anything it wraps, is a RetryableError.
func IsRetryable(err error) bool {
	var re RetryableError
	return errors.As(err, &re)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

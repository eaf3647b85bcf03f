package intake

import (
	"fmt"
	"net/http"
)

// Stable public error codes of the submission endpoint.
const (
	CodeRateLimitExceeded   = "rate_limit_exceeded"
	CodeCaptchaFailed       = "captcha_failed"
	CodeValidationError     = "validation_error"
	CodeNoEvidence          = "no_evidence"
	CodeDuplicateSubmission = "duplicate_submission"
	CodeServerError         = "server_error"
)

const serverErrorMessage = "An unexpected error occurred. Please try again later."

// Error is a submission failure safe to show to the submitter.
// Err holds the internal cause and is never rendered.
type Error struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func RateLimitError(max int) *Error {
	return &Error{
		Code:       CodeRateLimitExceeded,
		Message:    fmt.Sprintf("You have reached the maximum number of anonymous reports (%d) for today. Please try again in 24 hours.", max),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

func CaptchaError() *Error {
	return &Error{
		Code:       CodeCaptchaFailed,
		Message:    "Incorrect CAPTCHA answer. Please try again.",
		HTTPStatus: http.StatusBadRequest,
	}
}

func ValidationError(message string) *Error {
	return &Error{
		Code:       CodeValidationError,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func NoEvidenceError() *Error {
	return &Error{
		Code:       CodeNoEvidence,
		Message:    "At least one evidence file is required for anonymous reports",
		HTTPStatus: http.StatusBadRequest,
	}
}

func DuplicateError() *Error {
	return &Error{
		Code:       CodeDuplicateSubmission,
		Message:    "A similar report has already been submitted from your location. If this is a new incident, please provide more details.",
		HTTPStatus: http.StatusBadRequest,
	}
}

// ServerError hides cause behind the generic message.
func ServerError(cause error) *Error {
	return &Error{
		Code:       CodeServerError,
		Message:    serverErrorMessage,
		HTTPStatus: http.StatusInternalServerError,
		Err:        cause,
	}
}

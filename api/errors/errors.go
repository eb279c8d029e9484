package api_errors

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"

	sqerrors "github.com/h2linker/sendqueue/internal/errors"
)

const (
	CodeNotFound     = "NOT_FOUND"
	CodeForbidden    = "FORBIDDEN"
	CodeBadInput     = "BAD_USER_INPUT"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
)

type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    string              `json:"code"`
	Details map[string][]string `json:"details,omitempty"`
}

// NewError creates a standardized error body
func NewError(message, code string, details *MultiErrors) ErrorResponse {
	response := ErrorResponse{
		Error: message,
		Code:  code,
	}
	if details != nil && details.HasErrors() {
		response.Details = details.Messages()
	}
	return response
}

// FromError maps domain errors onto a status code and body. Unknown errors are internal.
func FromError(err error) (int, ErrorResponse) {
	var multi *MultiErrors
	switch {
	case errors.As(err, &multi):
		return http.StatusBadRequest, NewError("validation failed", CodeBadInput, multi)
	case errors.Is(err, sqerrors.ErrUserIdNotSet):
		return http.StatusUnauthorized, NewError(sqerrors.ErrUserIdNotSet.Error(), CodeUnauthorized, nil)
	case errors.Is(err, sqerrors.ErrProfileNotFound),
		errors.Is(err, sqerrors.ErrQueueItemNotFound),
		errors.Is(err, sqerrors.ErrJobNotFound),
		errors.Is(err, sqerrors.ErrCredentialNotFound):
		return http.StatusNotFound, NewError(errors.Cause(err).Error(), CodeNotFound, nil)
	case errors.Is(err, sqerrors.ErrJobAlreadyQueued),
		errors.Is(err, sqerrors.ErrQueueItemNotRetried),
		errors.Is(err, sqerrors.ErrDrainLocked):
		return http.StatusConflict, NewError(errors.Cause(err).Error(), CodeConflict, nil)
	case errors.Is(err, sqerrors.ErrQueueLimitReached),
		errors.Is(err, sqerrors.ErrInvalidJobReference),
		errors.Is(err, sqerrors.ErrInvalidRiskProfile),
		errors.Is(err, sqerrors.ErrInvalidRecipient):
		return http.StatusBadRequest, NewError(errors.Cause(err).Error(), CodeBadInput, nil)
	default:
		return http.StatusInternalServerError, NewError(err.Error(), CodeInternal, nil)
	}
}

type MultiErrors struct {
	Errors map[string][]ErrorInfo
}

type ErrorInfo struct {
	Message  string
	RawError error
}

func NewMultiErrors() *MultiErrors {
	return &MultiErrors{
		Errors: make(map[string][]ErrorInfo),
	}
}

func (e *MultiErrors) Add(key, message string, err error) {
	e.Errors[key] = append(e.Errors[key], ErrorInfo{
		Message:  message,
		RawError: err,
	})
}

func (e *MultiErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *MultiErrors) Messages() map[string][]string {
	messages := make(map[string][]string, len(e.Errors))
	for field, infos := range e.Errors {
		for _, info := range infos {
			messages[field] = append(messages[field], info.Message)
		}
	}
	return messages
}

func (e *MultiErrors) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var parts []string
	for _, field := range fields {
		for _, err := range e.Errors[field] {
			parts = append(parts, fmt.Sprintf("%s: %s", field, err.Message))
		}
	}
	return strings.Join(parts, " | ")
}

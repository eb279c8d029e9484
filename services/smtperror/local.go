package smtperror

import (
	"github.com/pkg/errors"

	"github.com/h2linker/sendqueue/internal/enum"
)

// LocalError is a validation failure raised before any transport call.
type LocalError struct {
	Category enum.SmtpErrorCategory
	Message  string
}

func NewLocalError(category enum.SmtpErrorCategory, message string) *LocalError {
	return &LocalError{Category: category, Message: message}
}

func (e *LocalError) Error() string {
	return e.Message
}

func LocalCategory(err error) (enum.SmtpErrorCategory, bool) {
	var local *LocalError
	if errors.As(err, &local) {
		return local.Category, true
	}
	return "", false
}

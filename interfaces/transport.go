package interfaces

import (
	"context"

	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/internal/models"
)

// Transport delivers one message through the user's mailbox. Errors keep the server text.
type Transport interface {
	Send(ctx context.Context, credential *models.SmtpCredential, email *dto.OutgoingEmail) error
}

type Composer interface {
	Compose(ctx context.Context, input dto.ComposeInput) (*dto.OutgoingEmail, error)
}

type DomainValidator interface {
	Validate(ctx context.Context, email string) dto.DomainCheckResult
}

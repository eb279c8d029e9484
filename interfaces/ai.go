package interfaces

import (
	"context"

	"github.com/h2linker/sendqueue/dto"
)

type BodyGenerator interface {
	Generate(ctx context.Context, request dto.GenerateEmailRequest) (*dto.GeneratedEmail, error)
	Enabled() bool
}

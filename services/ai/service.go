package ai

import (
	"context"
	"strings"

	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/interfaces"
	sqerrors "github.com/h2linker/sendqueue/internal/errors"
	"github.com/h2linker/sendqueue/internal/logger"
)

const (
	ProviderGateway   = "gateway"
	ProviderAnthropic = "anthropic"
)

// NewBodyGenerator picks the configured provider. Without an api key the
// returned generator is disabled and callers fall back to templates.
func NewBodyGenerator(cfg *config.AIConfig, log logger.Logger) interfaces.BodyGenerator {
	if cfg == nil || strings.TrimSpace(cfg.APIKey) == "" {
		log.Warn("AI_API_KEY not set, dynamic email bodies disabled")
		return disabledGenerator{}
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderAnthropic:
		return newAnthropicGenerator(cfg, log)
	case ProviderGateway, "":
		return newGatewayGenerator(cfg, log)
	default:
		log.Warnf("unknown AI_PROVIDER %q, using gateway", cfg.Provider)
		return newGatewayGenerator(cfg, log)
	}
}

type disabledGenerator struct{}

func (disabledGenerator) Enabled() bool {
	return false
}

func (disabledGenerator) Generate(context.Context, dto.GenerateEmailRequest) (*dto.GeneratedEmail, error) {
	return nil, sqerrors.ErrAINotConfigured
}

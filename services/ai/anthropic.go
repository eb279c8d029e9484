package ai

import (
	"context"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/tracing"
)

type anthropicGenerator struct {
	cfg     *config.AIConfig
	log     logger.Logger
	client  anthropic.Client
	limiter *rate.Limiter
}

func newAnthropicGenerator(cfg *config.AIConfig, log logger.Logger, opts ...option.RequestOption) *anthropicGenerator {
	opts = append([]option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout(cfg)}),
	}, opts...)
	return &anthropicGenerator{
		cfg:     cfg,
		log:     log,
		client:  anthropic.NewClient(opts...),
		limiter: newLimiter(cfg),
	}
}

func (g *anthropicGenerator) Enabled() bool {
	return true
}

func (g *anthropicGenerator) Generate(ctx context.Context, request dto.GenerateEmailRequest) (*dto.GeneratedEmail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AnthropicGenerator.Generate")
	defer span.Finish()
	tracing.SetDefaultExternalClientSpanTags(ctx, span)
	span.SetTag("ai.model", g.cfg.AnthropicModel)
	span.SetTag("job.company", request.Company)

	if err := g.limiter.Wait(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "rate limiter")
	}

	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.cfg.AnthropicModel),
		MaxTokens:   maxOutputTokens,
		Temperature: anthropic.Float(temperature),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(request))),
		},
		Tools: []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        toolName,
				Description: anthropic.String(toolDescription),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: toolSchema(),
					Required:   []string{"subject", "body"},
				},
			},
		}},
		ToolChoice: anthropic.ToolChoiceParamOfTool(toolName),
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "anthropic request failed")
	}

	var raw []byte
	for _, block := range message.Content {
		if block.Type == "tool_use" && block.Name == toolName {
			raw = block.Input
			break
		}
		if block.Type == "text" && raw == nil {
			raw = []byte(stripFences(block.Text))
		}
	}

	email, err := normalize(raw)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return email, nil
}

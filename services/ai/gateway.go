package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/tracing"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools"`
	ToolChoice  chatTool      `json:"tool_choice"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// gatewayGenerator talks to an OpenAI compatible chat completions endpoint.
type gatewayGenerator struct {
	cfg     *config.AIConfig
	log     logger.Logger
	client  *http.Client
	limiter *rate.Limiter
}

func newGatewayGenerator(cfg *config.AIConfig, log logger.Logger) *gatewayGenerator {
	return &gatewayGenerator{
		cfg:     cfg,
		log:     log,
		client:  &http.Client{Timeout: timeout(cfg)},
		limiter: newLimiter(cfg),
	}
}

func (g *gatewayGenerator) Enabled() bool {
	return true
}

func (g *gatewayGenerator) Generate(ctx context.Context, request dto.GenerateEmailRequest) (*dto.GeneratedEmail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GatewayGenerator.Generate")
	defer span.Finish()
	tracing.SetDefaultExternalClientSpanTags(ctx, span)
	span.SetTag("ai.model", g.cfg.Model)
	span.SetTag("job.company", request.Company)

	if err := g.limiter.Wait(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "rate limiter")
	}

	tool := chatTool{
		Type: "function",
		Function: chatFunction{
			Name:        toolName,
			Description: toolDescription,
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": toolSchema(),
				"required":   []string{"subject", "body"},
			},
		},
	}
	payload, err := json.Marshal(chatRequest{
		Model:       g.cfg.Model,
		Temperature: temperature,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(request)},
		},
		Tools:      []chatTool{tool},
		ToolChoice: chatTool{Type: "function", Function: chatFunction{Name: toolName}},
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.GatewayURL, bytes.NewBuffer(payload))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "unable to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("ai error (%d)", resp.StatusCode)
		tracing.TraceErr(span, err)
		return nil, err
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}
	if len(response.Choices) == 0 {
		err = errors.New("ai response has no choices")
		tracing.TraceErr(span, err)
		return nil, err
	}

	message := response.Choices[0].Message
	var raw []byte
	if len(message.ToolCalls) > 0 && message.ToolCalls[0].Function.Name == toolName {
		raw = []byte(message.ToolCalls[0].Function.Arguments)
	} else {
		raw = []byte(stripFences(message.Content))
	}

	email, err := normalize(raw)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	tracing.LogObjectAsJson(span, "email.subject", email.Subject)
	return email, nil
}

func timeout(cfg *config.AIConfig) time.Duration {
	if cfg.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}

func newLimiter(cfg *config.AIConfig) *rate.Limiter {
	if cfg.RatePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
}

package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/dto"
	sqerrors "github.com/h2linker/sendqueue/internal/errors"
	"github.com/h2linker/sendqueue/internal/testutil"
)

func testRequest() dto.GenerateEmailRequest {
	return dto.GenerateEmailRequest{
		ResumeData:   map[string]interface{}{"name": "Joao", "skills": []string{"tractor"}},
		Company:      "Sunny Farms",
		JobTitle:     "Farmworker",
		VisaType:     "H-2A",
		Description:  "Harvest apples",
		Requirements: "Lift 50 lbs",
	}
}

func gatewayServer(t *testing.T, status int, response string, captured *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if captured != nil {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, captured)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func gatewayConfig(url string) *config.AIConfig {
	return &config.AIConfig{Provider: ProviderGateway, GatewayURL: url, APIKey: "secret", Model: "test-model", TimeoutSeconds: 5}
}

func TestGateway_ParsesToolCall(t *testing.T) {
	var captured chatRequest
	args, _ := json.Marshal(map[string]string{
		"subject": " Application for Farmworker ",
		"body":    "Hello,\r\n\r\n\r\n\r\nI am **strong** and _reliable_.\n- I can lift 50 lbs\n# Closing\nBest regards,",
	})
	response := `{"choices":[{"message":{"content":"","tool_calls":[{"function":{"name":"generate_email","arguments":` + string(mustJSON(t, string(args))) + `}}]}}]}`
	srv := gatewayServer(t, http.StatusOK, response, &captured)

	gen := NewBodyGenerator(gatewayConfig(srv.URL), testutil.NewTestLogger())
	require.True(t, gen.Enabled())

	email, err := gen.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Application for Farmworker", email.Subject)
	assert.Equal(t, "Hello,\n\nI am strong and reliable.\nI can lift 50 lbs\nClosing\nBest regards,", email.Body)

	assert.Equal(t, "test-model", captured.Model)
	assert.InDelta(t, 0.3, captured.Temperature, 0.0001)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[1].Content, "Visa type: H-2A")
	assert.Contains(t, captured.Messages[1].Content, "JOB REQUIREMENTS (ADDRESS THESE):\nLift 50 lbs")
	assert.Contains(t, captured.Messages[1].Content, `"name":"Joao"`)
	assert.Equal(t, "generate_email", captured.ToolChoice.Function.Name)
}

func TestGateway_FallsBackToFencedContent(t *testing.T) {
	content := "```json\n{\"subject\":\"Hi\",\"body\":\"Plain body\"}\n```"
	response := `{"choices":[{"message":{"content":` + string(mustJSON(t, content)) + `}}]}`
	srv := gatewayServer(t, http.StatusOK, response, nil)

	email, err := NewBodyGenerator(gatewayConfig(srv.URL), testutil.NewTestLogger()).Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Hi", email.Subject)
	assert.Equal(t, "Plain body", email.Body)
}

func TestGateway_MissingBodyIsMalformed(t *testing.T) {
	response := `{"choices":[{"message":{"content":"{\"subject\":\"Hi\"}"}}]}`
	srv := gatewayServer(t, http.StatusOK, response, nil)

	_, err := NewBodyGenerator(gatewayConfig(srv.URL), testutil.NewTestLogger()).Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, sqerrors.ErrAIMalformedOutput)
}

func TestGateway_NonJsonContentIsMalformed(t *testing.T) {
	response := `{"choices":[{"message":{"content":"Sorry, I cannot help"}}]}`
	srv := gatewayServer(t, http.StatusOK, response, nil)

	_, err := NewBodyGenerator(gatewayConfig(srv.URL), testutil.NewTestLogger()).Generate(context.Background(), testRequest())
	assert.ErrorIs(t, err, sqerrors.ErrAIMalformedOutput)
}

func TestGateway_HttpErrorStatus(t *testing.T) {
	srv := gatewayServer(t, http.StatusTooManyRequests, `{"error":"slow down"}`, nil)

	_, err := NewBodyGenerator(gatewayConfig(srv.URL), testutil.NewTestLogger()).Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ai error (429)")
}

func TestNewBodyGenerator_DisabledWithoutKey(t *testing.T) {
	gen := NewBodyGenerator(&config.AIConfig{Provider: ProviderGateway}, testutil.NewTestLogger())
	assert.False(t, gen.Enabled())

	_, err := gen.Generate(context.Background(), testRequest())
	assert.ErrorIs(t, err, sqerrors.ErrAINotConfigured)
}

func TestAnthropic_ParsesToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "tool_use", "id": "tu_1", "name": "generate_email", "input": {"subject": "Farm job", "body": "Hello,\n\nI am ready."}}],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 10, "output_tokens": 10}
		}`))
	}))
	defer srv.Close()

	cfg := &config.AIConfig{Provider: ProviderAnthropic, APIKey: "secret", AnthropicModel: "claude-test", TimeoutSeconds: 5}
	gen := newAnthropicGenerator(cfg, testutil.NewTestLogger(), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	email, err := gen.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Farm job", email.Subject)
	assert.Equal(t, "Hello,\n\nI am ready.", email.Body)
}

func TestStripMarkdown(t *testing.T) {
	assert.Equal(t, "bold and italic", StripMarkdown("**bold** and *italic*"))
	assert.Equal(t, "Header\nitem", StripMarkdown("## Header\n* item"))
	assert.Equal(t, "no change", StripMarkdown("no change"))
}

func mustJSON(t *testing.T, v string) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

package ai

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/h2linker/sendqueue/dto"
	sqerrors "github.com/h2linker/sendqueue/internal/errors"
)

var (
	fenceOpen   = regexp.MustCompile("^```(?:json)?\\s*")
	fenceClose  = regexp.MustCompile("\\s*```$")
	extraBreaks = regexp.MustCompile(`\n{3,}`)
	bold        = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italic      = regexp.MustCompile(`\*([^*]+)\*`)
	underline   = regexp.MustCompile(`__([^_]+)__`)
	underscore  = regexp.MustCompile(`_([^_]+)_`)
	headers     = regexp.MustCompile(`(?m)^#+\s*`)
	bullets     = regexp.MustCompile(`(?m)^[ \t]*[-*][ \t]+`)
)

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// StripMarkdown removes the markdown a model may add to a plain-text body.
func StripMarkdown(body string) string {
	body = bold.ReplaceAllString(body, "$1")
	body = italic.ReplaceAllString(body, "$1")
	body = underline.ReplaceAllString(body, "$1")
	body = underscore.ReplaceAllString(body, "$1")
	body = headers.ReplaceAllString(body, "")
	body = bullets.ReplaceAllString(body, "")
	return body
}

func normalize(raw []byte) (*dto.GeneratedEmail, error) {
	var parsed dto.GeneratedEmail
	if err := json.Unmarshal(raw, &parsed); err != nil {
		preview := string(raw)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return nil, errors.Wrapf(sqerrors.ErrAIMalformedOutput, "invalid json: %s", preview)
	}

	subject := strings.TrimSpace(parsed.Subject)
	body := strings.TrimSpace(parsed.Body)
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = extraBreaks.ReplaceAllString(body, "\n\n")
	body = StripMarkdown(body)

	if subject == "" || body == "" {
		return nil, errors.Wrap(sqerrors.ErrAIMalformedOutput, "missing subject or body")
	}
	return &dto.GeneratedEmail{Subject: subject, Body: body}, nil
}

package smtp

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"

	"github.com/h2linker/sendqueue/dto"
)

// buildMessage renders the outgoing email as a MIME message.
func buildMessage(email *dto.OutgoingEmail, now time.Time) ([]byte, error) {
	builder := enmime.Builder().
		From(email.FromName, email.FromAddress).
		To("", email.ToAddress).
		Subject(email.Subject).
		Date(now)

	if email.BodyText != "" {
		builder = builder.Text([]byte(email.BodyText))
	}
	if email.BodyHTML != "" {
		builder = builder.HTML([]byte(email.BodyHTML))
	}
	if email.MessageID != "" {
		builder = builder.Header("Message-Id", email.MessageID)
	}

	keys := make([]string, 0, len(email.Headers))
	for k := range email.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		builder = builder.Header(k, email.Headers[k])
	}

	for _, attachment := range email.Attachments {
		builder = builder.AddAttachment(attachment.Content, attachment.ContentType, attachment.Filename)
	}

	part, err := builder.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build message")
	}

	buffer := bytes.NewBuffer(nil)
	if err := part.Encode(buffer); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return buffer.Bytes(), nil
}

package template

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/jaytaylor/html2text"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/interfaces"
	"github.com/h2linker/sendqueue/internal/enum"
	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/plans"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/internal/utils"
	"github.com/h2linker/sendqueue/services/smtperror"
)

const maxResumeBytes = 5 << 20

type composer struct {
	log         logger.Logger
	ai          interfaces.BodyGenerator
	trackingUrl string
	httpClient  *http.Client

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewComposer(log logger.Logger, ai interfaces.BodyGenerator, trackingUrl string) interfaces.Composer {
	return newComposer(log, ai, trackingUrl, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func newComposer(log logger.Logger, ai interfaces.BodyGenerator, trackingUrl string, rng *rand.Rand) *composer {
	return &composer{
		log:         log,
		ai:          ai,
		trackingUrl: strings.TrimRight(trackingUrl, "/"),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		rng:         rng,
	}
}

func (c *composer) Compose(ctx context.Context, input dto.ComposeInput) (*dto.OutgoingEmail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Composer.Compose")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("plan.tier", string(input.Tier))
	span.SetTag("tracking.id", input.SendTrackingId)

	if input.Recipient == nil {
		err := smtperror.NewLocalError(enum.SmtpErrorMissingEmail, "recipient missing")
		tracing.TraceErr(span, err)
		return nil, err
	}

	vars := Variables(input.Profile, input.Recipient)

	var subject, body string
	if len(input.Templates) > 0 {
		tpl := input.Templates[HashToIndex(input.QueueTrackingId, len(input.Templates))]
		subject = Apply(tpl.Subject, vars)
		body = Apply(tpl.Body, vars)
	}

	if c.useAI(input) {
		generated, err := c.generate(ctx, input)
		switch {
		case err == nil:
			subject, body = generated.Subject, generated.Body
			span.LogFields(tracingLog.Bool("ai.used", true))
		case len(input.Templates) == 0:
			tracing.TraceErr(span, err)
			return nil, smtperror.NewLocalError(enum.SmtpErrorNoTemplate, "no email content: "+err.Error())
		default:
			c.log.Warnf("ai body generation failed for job %s, falling back to template: %v", input.Recipient.JobId, err)
			span.LogFields(tracingLog.String("ai.fallback", err.Error()))
		}
	}

	if strings.TrimSpace(subject) == "" || strings.TrimSpace(body) == "" {
		err := smtperror.NewLocalError(enum.SmtpErrorNoTemplate, "no email content")
		tracing.TraceErr(span, err)
		return nil, err
	}

	html := strings.ReplaceAll(body, "\n", "<br>")
	if c.trackingUrl != "" && input.SendTrackingId != "" {
		html += fmt.Sprintf(`<img src="%s/open?id=%s" width="1" height="1" style="display:none;" alt="" />`,
			c.trackingUrl, url.QueryEscape(input.SendTrackingId))
	}

	c.rngMu.Lock()
	sendProfile := PickSendProfile(input.Tier, c.rng)
	c.rngMu.Unlock()
	if sendProfile.DedupeId != "" {
		html += `<div style="display:none; opacity:0; height:0; width:0; overflow:hidden;">` + sendProfile.DedupeId + `</div>`
	}

	text, err := html2text.FromString(html, html2text.Options{OmitLinks: true})
	if err != nil {
		c.log.Warnf("unable to derive text part: %v", err)
		text = body
	}

	email := &dto.OutgoingEmail{
		FromAddress: input.FromAddress,
		ToAddress:   input.Recipient.Email,
		Subject:     subject,
		BodyHTML:    `<div style="font-family: Calibri, sans-serif; font-size: 14px;">` + html + `</div>`,
		BodyText:    strings.TrimSpace(text),
		MessageID:   messageId(input.FromAddress, input.SendTrackingId),
		Headers:     sendProfile.Headers(),
	}
	if input.Profile != nil {
		email.FromName = input.Profile.FullName
		if attachment := c.fetchResume(ctx, input.Profile.ResumeUrl); attachment != nil {
			email.Attachments = append(email.Attachments, *attachment)
		}
	}
	return email, nil
}

func (c *composer) useAI(input dto.ComposeInput) bool {
	return c.ai != nil &&
		c.ai.Enabled() &&
		plans.SendingMethodFor(input.Tier) == enum.SendingMethodDynamic &&
		!input.Recipient.IsManual
}

func (c *composer) generate(ctx context.Context, input dto.ComposeInput) (*dto.GeneratedEmail, error) {
	if input.Profile == nil || len(input.Profile.ResumeData) == 0 {
		return nil, errors.New("resume_data missing")
	}
	return c.ai.Generate(ctx, dto.GenerateEmailRequest{
		ResumeData:   input.Profile.ResumeData,
		Company:      input.Recipient.Company,
		JobTitle:     input.Recipient.JobTitle,
		VisaType:     VisaTypeFor(input.Recipient),
		Description:  input.Recipient.Description,
		Requirements: input.Recipient.Requirements,
	})
}

// fetchResume is best effort. A resume that cannot be downloaded never blocks a send.
func (c *composer) fetchResume(ctx context.Context, resumeUrl string) *dto.Attachment {
	if strings.TrimSpace(resumeUrl) == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resumeUrl, nil)
	if err != nil {
		c.log.Warnf("invalid resume url %s: %v", resumeUrl, err)
		return nil
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warnf("unable to download resume: %v", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Warnf("unable to download resume: status %d", resp.StatusCode)
		return nil
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxResumeBytes+1))
	if err != nil || len(content) == 0 || len(content) > maxResumeBytes {
		c.log.Warnf("resume skipped, %d bytes read, err: %v", len(content), err)
		return nil
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(content)
	}

	filename := "resume.pdf"
	if parsed, err := url.Parse(resumeUrl); err == nil {
		if base := path.Base(parsed.Path); base != "" && base != "/" && base != "." {
			filename = base
		}
	}
	return &dto.Attachment{Filename: filename, ContentType: contentType, Content: content}
}

func messageId(from, trackingId string) string {
	domain := utils.ExtractDomainFromEmail(from)
	if domain == "" {
		domain = "sendqueue.local"
	}
	return utils.GenerateMessageID(domain, trackingId)
}

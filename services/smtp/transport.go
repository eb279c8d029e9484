package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"

	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/interfaces"
	"github.com/h2linker/sendqueue/internal/enum"
	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/internal/utils"
	"github.com/h2linker/sendqueue/services/smtperror"
)

const dialTimeout = 30 * time.Second

type transport struct {
	log       logger.Logger
	providers map[enum.EmailProvider]ProviderConfig
}

func NewTransport(log logger.Logger) interfaces.Transport {
	return &transport{
		log:       log,
		providers: defaultProviders,
	}
}

func (t *transport) Send(ctx context.Context, credential *models.SmtpCredential, email *dto.OutgoingEmail) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Transport.Send")
	defer span.Finish()
	tracing.SetDefaultExternalClientSpanTags(ctx, span)

	if err := t.validate(credential, email); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	provider, ok := t.providers[credential.Provider]
	if !ok {
		provider = ProviderFor(credential.Provider)
	}
	span.LogKV("smtp_server", provider.Host, "smtp_port", provider.Port, "from_address", credential.Email)

	message, err := buildMessage(email, utils.Now())
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	addr := net.JoinHostPort(provider.Host, strconv.Itoa(provider.Port))
	auth := smtp.PlainAuth("", credential.Email, credential.Password, provider.Host)

	switch provider.Security {
	case enum.EmailSecurityStartTLS:
		err = t.sendWithSTARTTLS(ctx, provider, addr, auth, credential.Email, email.ToAddress, message)
	case enum.EmailSecurityTLS:
		err = t.sendWithImplicitTLS(ctx, provider, addr, auth, credential.Email, email.ToAddress, message)
	default:
		err = t.sendPlain(ctx, provider, addr, auth, credential.Email, email.ToAddress, message)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (t *transport) validate(credential *models.SmtpCredential, email *dto.OutgoingEmail) error {
	if !credential.IsConfigured() {
		return smtperror.NewLocalError(enum.SmtpErrorSmtpNotConfigured, "smtp password not found")
	}
	if email == nil || email.ToAddress == "" {
		return smtperror.NewLocalError(enum.SmtpErrorMissingEmail, "recipient missing")
	}
	if validation := mailvalidate.ValidateEmailSyntax(email.ToAddress); !validation.IsValid {
		return smtperror.NewLocalError(enum.SmtpErrorInvalidDomain, fmt.Sprintf("invalid domain: recipient %s is not a valid address", email.ToAddress))
	}
	if email.Subject == "" || (email.BodyHTML == "" && email.BodyText == "") {
		return smtperror.NewLocalError(enum.SmtpErrorNoTemplate, "no email content")
	}
	return nil
}

func (t *transport) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	setDeadline(ctx, conn)
	return conn, nil
}

func setDeadline(ctx context.Context, conn net.Conn) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(2 * dialTimeout)
	}
	_ = conn.SetDeadline(deadline)
}

func (t *transport) sendWithSTARTTLS(ctx context.Context, provider ProviderConfig, addr string, auth smtp.Auth, from, to string, message []byte) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Transport.sendWithSTARTTLS")
	defer span.Finish()

	conn, err := t.dial(ctx, addr)
	if err != nil {
		err = fmt.Errorf("failed to connect to SMTP server: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, provider.Host)
	if err != nil {
		err = fmt.Errorf("failed to create SMTP client: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	if err = client.StartTLS(&tls.Config{ServerName: provider.Host}); err != nil {
		err = fmt.Errorf("failed to start TLS: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return t.deliver(span, client, auth, from, to, message)
}

func (t *transport) sendWithImplicitTLS(ctx context.Context, provider ProviderConfig, addr string, auth smtp.Auth, from, to string, message []byte) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Transport.sendWithImplicitTLS")
	defer span.Finish()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: dialTimeout},
		Config:    &tls.Config{ServerName: provider.Host},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		err = fmt.Errorf("failed to connect to SMTP server: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer conn.Close()
	setDeadline(ctx, conn)

	client, err := smtp.NewClient(conn, provider.Host)
	if err != nil {
		err = fmt.Errorf("failed to create SMTP client: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	return t.deliver(span, client, auth, from, to, message)
}

func (t *transport) sendPlain(ctx context.Context, provider ProviderConfig, addr string, auth smtp.Auth, from, to string, message []byte) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Transport.sendPlain")
	defer span.Finish()

	conn, err := t.dial(ctx, addr)
	if err != nil {
		err = fmt.Errorf("failed to connect to SMTP server: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, provider.Host)
	if err != nil {
		err = fmt.Errorf("failed to create SMTP client: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	return t.deliver(span, client, auth, from, to, message)
}

// deliver runs AUTH, MAIL, RCPT and DATA. Wrapped errors keep the server reply text and add nothing the classifier matches on.
func (t *transport) deliver(span opentracing.Span, client *smtp.Client, auth smtp.Auth, from, to string, message []byte) error {
	if err := client.Auth(auth); err != nil {
		err = fmt.Errorf("smtp AUTH: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err := client.Mail(from); err != nil {
		err = fmt.Errorf("SMTP MAIL command failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err := client.Rcpt(to); err != nil {
		err = fmt.Errorf("SMTP RCPT command failed for %s: %w", to, err)
		tracing.TraceErr(span, err)
		return err
	}

	dataWriter, err := client.Data()
	if err != nil {
		err = fmt.Errorf("SMTP DATA command failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if _, err = dataWriter.Write(message); err != nil {
		err = fmt.Errorf("failed to write email data: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err = dataWriter.Close(); err != nil {
		err = fmt.Errorf("failed to close data writer: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	// the message is accepted once DATA is closed
	if err = client.Quit(); err != nil {
		t.log.Warnf("SMTP QUIT failed after the message was accepted: %v", err)
	}
	return nil
}

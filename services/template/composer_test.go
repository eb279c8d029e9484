package template

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/internal/enum"
	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/testutil"
	"github.com/h2linker/sendqueue/services/smtperror"
)

type stubGenerator struct {
	enabled bool
	email   *dto.GeneratedEmail
	err     error
	calls   int
}

func (s *stubGenerator) Enabled() bool { return s.enabled }

func (s *stubGenerator) Generate(context.Context, dto.GenerateEmailRequest) (*dto.GeneratedEmail, error) {
	s.calls++
	return s.email, s.err
}

func testProfile() *models.Profile {
	age := 29
	return &models.Profile{
		ID:           "user_1",
		FullName:     "Joao Silva",
		Age:          &age,
		PhoneE164:    "+5511999999999",
		ContactEmail: "joao@example.com",
		ResumeData:   models.JSONMap{"experience": "farm"},
	}
}

func publicRecipient() *dto.Recipient {
	return &dto.Recipient{
		JobId:    "job_1",
		Email:    "hr@sunnyfarms.com",
		Company:  "Sunny Farms",
		JobTitle: "Farmworker",
		VisaType: "H-2A",
		Phone:    "555-0100",
	}
}

func testTemplates() []*models.EmailTemplate {
	return []*models.EmailTemplate{
		{ID: "tpl_1", Subject: "{{position}} at {{ company }}", Body: "Hello,\nI am {{ name }}, {{age}} years old.\nVisa {{visa_type}}. Call {{ phone }}."},
	}
}

func TestHashToIndex(t *testing.T) {
	assert.Equal(t, 0, HashToIndex("anything", 1))
	assert.Equal(t, 0, HashToIndex("anything", 0))
	// "ab" = 97*31 + 98 = 3105
	assert.Equal(t, 3105%7, HashToIndex("ab", 7))
	assert.Equal(t, HashToIndex("q_123", 5), HashToIndex("q_123", 5))
}

func TestHashToIndex_WrapsAsUint32(t *testing.T) {
	s := "a-very-long-tracking-identifier-that-overflows-32-bits"
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	assert.Equal(t, int(h%3), HashToIndex(s, 3))
}

func TestApply_ToleratesWhitespaceAndKeepsUnknown(t *testing.T) {
	vars := map[string]string{"name": "Ana"}
	assert.Equal(t, "Hi Ana / Ana / {{ unknown }}", Apply("Hi {{name}} / {{   name   }} / {{ unknown }}", vars))
}

func TestVisaTypeFor(t *testing.T) {
	assert.Equal(t, VisaTypeH2A, VisaTypeFor(&dto.Recipient{VisaType: "H-2A"}))
	assert.Equal(t, VisaTypeH2B, VisaTypeFor(&dto.Recipient{VisaType: "H-2B"}))
	assert.Equal(t, VisaTypeH2B, VisaTypeFor(&dto.Recipient{IsManual: true}))
	assert.Equal(t, VisaTypeH2B, VisaTypeFor(nil))
}

func TestCompose_StaticTemplate(t *testing.T) {
	c := newComposer(testutil.NewTestLogger(), nil, "https://track.example.com/", rand.New(rand.NewSource(1)))

	email, err := c.Compose(context.Background(), dto.ComposeInput{
		Tier:            enum.PlanFree,
		Profile:         testProfile(),
		Recipient:       publicRecipient(),
		Templates:       testTemplates(),
		FromAddress:     "joao@gmail.com",
		QueueTrackingId: "q_1",
		SendTrackingId:  "send-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "Farmworker at Sunny Farms", email.Subject)
	assert.Contains(t, email.BodyHTML, "Hello,<br>I am Joao Silva, 29 years old.<br>Visa H-2A. Call +5511999999999.")
	assert.Contains(t, email.BodyHTML, `<img src="https://track.example.com/open?id=send-1"`)
	assert.Contains(t, email.BodyText, "I am Joao Silva")
	assert.NotContains(t, email.BodyText, "<br>")
	assert.Equal(t, "hr@sunnyfarms.com", email.ToAddress)
	assert.Equal(t, "Joao Silva", email.FromName)
	assert.Contains(t, email.MessageID, "@gmail.com>")
	assert.Empty(t, email.Headers)
}

func TestCompose_GoldUsesOutlookHeaders(t *testing.T) {
	c := newComposer(testutil.NewTestLogger(), nil, "", rand.New(rand.NewSource(1)))

	email, err := c.Compose(context.Background(), dto.ComposeInput{
		Tier:      enum.PlanGold,
		Profile:   testProfile(),
		Recipient: publicRecipient(),
		Templates: testTemplates(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Microsoft Outlook 16.0", email.Headers["X-Mailer"])
	assert.Equal(t, "Microsoft Outlook 16.0", email.Headers["User-Agent"])
	assert.NotContains(t, email.BodyHTML, "display:none; opacity:0")
}

func TestCompose_DiamondAddsDedupeDiv(t *testing.T) {
	c := newComposer(testutil.NewTestLogger(), nil, "", rand.New(rand.NewSource(1)))

	email, err := c.Compose(context.Background(), dto.ComposeInput{
		Tier:      enum.PlanDiamond,
		Profile:   testProfile(),
		Recipient: publicRecipient(),
		Templates: testTemplates(),
	})
	require.NoError(t, err)
	assert.Contains(t, clientPool, email.Headers["X-Mailer"])
	assert.Contains(t, email.BodyHTML, "display:none; opacity:0")
}

func TestCompose_ManualJobIsH2B(t *testing.T) {
	c := newComposer(testutil.NewTestLogger(), nil, "", rand.New(rand.NewSource(1)))
	recipient := &dto.Recipient{JobId: "mjob_1", IsManual: true, Email: "boss@ranch.com", Company: "Ranch", JobTitle: "Hand", EtaNumber: "H-300-1"}
	templates := []*models.EmailTemplate{{Subject: "{{visa_type}} {{eta_number}}", Body: "body"}}

	email, err := c.Compose(context.Background(), dto.ComposeInput{Tier: enum.PlanFree, Profile: testProfile(), Recipient: recipient, Templates: templates})
	require.NoError(t, err)
	assert.Equal(t, "H-2B H-300-1", email.Subject)
}

func TestCompose_BlackUsesAI(t *testing.T) {
	gen := &stubGenerator{enabled: true, email: &dto.GeneratedEmail{Subject: "AI subject", Body: "Para one\n\nPara two"}}
	c := newComposer(testutil.NewTestLogger(), gen, "", rand.New(rand.NewSource(1)))

	email, err := c.Compose(context.Background(), dto.ComposeInput{
		Tier:      enum.PlanBlack,
		Profile:   testProfile(),
		Recipient: publicRecipient(),
		Templates: testTemplates(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, "AI subject", email.Subject)
	assert.Contains(t, email.BodyHTML, "Para one<br><br>Para two")
}

func TestCompose_BlackFallsBackToTemplate(t *testing.T) {
	gen := &stubGenerator{enabled: true, err: errors.New("ai error (500)")}
	c := newComposer(testutil.NewTestLogger(), gen, "", rand.New(rand.NewSource(1)))

	email, err := c.Compose(context.Background(), dto.ComposeInput{
		Tier:      enum.PlanBlack,
		Profile:   testProfile(),
		Recipient: publicRecipient(),
		Templates: testTemplates(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Farmworker at Sunny Farms", email.Subject)
}

func TestCompose_BlackWithoutTemplateFailsWhenAIFails(t *testing.T) {
	gen := &stubGenerator{enabled: true, err: errors.New("ai error (500)")}
	c := newComposer(testutil.NewTestLogger(), gen, "", rand.New(rand.NewSource(1)))

	_, err := c.Compose(context.Background(), dto.ComposeInput{
		Tier:      enum.PlanBlack,
		Profile:   testProfile(),
		Recipient: publicRecipient(),
	})
	require.Error(t, err)
	category, ok := smtperror.LocalCategory(err)
	require.True(t, ok)
	assert.Equal(t, enum.SmtpErrorNoTemplate, category)
}

func TestCompose_AISkippedForManualJobs(t *testing.T) {
	gen := &stubGenerator{enabled: true, email: &dto.GeneratedEmail{Subject: "AI", Body: "AI"}}
	c := newComposer(testutil.NewTestLogger(), gen, "", rand.New(rand.NewSource(1)))
	recipient := publicRecipient()
	recipient.IsManual = true

	email, err := c.Compose(context.Background(), dto.ComposeInput{Tier: enum.PlanBlack, Profile: testProfile(), Recipient: recipient, Templates: testTemplates()})
	require.NoError(t, err)
	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, "Farmworker at Sunny Farms", email.Subject)
}

func TestCompose_NoTemplateNoContent(t *testing.T) {
	c := newComposer(testutil.NewTestLogger(), nil, "", rand.New(rand.NewSource(1)))

	_, err := c.Compose(context.Background(), dto.ComposeInput{Tier: enum.PlanGold, Profile: testProfile(), Recipient: publicRecipient()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no email content")
}

func TestCompose_AttachesResume(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 resume"))
	}))
	defer srv.Close()

	profile := testProfile()
	profile.ResumeUrl = srv.URL + "/files/joao-cv.pdf"
	c := newComposer(testutil.NewTestLogger(), nil, "", rand.New(rand.NewSource(1)))

	email, err := c.Compose(context.Background(), dto.ComposeInput{Tier: enum.PlanFree, Profile: profile, Recipient: publicRecipient(), Templates: testTemplates()})
	require.NoError(t, err)
	require.Len(t, email.Attachments, 1)
	assert.Equal(t, "joao-cv.pdf", email.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", email.Attachments[0].ContentType)
}

func TestCompose_ResumeDownloadFailureIsIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	profile := testProfile()
	profile.ResumeUrl = srv.URL + "/missing.pdf"
	c := newComposer(testutil.NewTestLogger(), nil, "", rand.New(rand.NewSource(1)))

	email, err := c.Compose(context.Background(), dto.ComposeInput{Tier: enum.PlanFree, Profile: profile, Recipient: publicRecipient(), Templates: testTemplates()})
	require.NoError(t, err)
	assert.Empty(t, email.Attachments)
}

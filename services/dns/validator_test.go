package dns

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/internal/testutil"
)

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func newTestValidator(t *testing.T, lookup LookupFunc) (*validator, *recordingSleeper) {
	sleeper := &recordingSleeper{}
	v := newValidator(&config.DNSConfig{Attempts: 3, BaseBackoffMillis: 500, NegativeCacheSecs: 300}, testutil.NewTestLogger(), lookup, sleeper.sleep)
	t.Cleanup(v.Stop)
	return v, sleeper
}

func TestValidate_ValidDomainIsCached(t *testing.T) {
	var calls int32
	v, _ := newTestValidator(t, func(ctx context.Context, domain string) ([]string, time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "acme.com", domain)
		return []string{"mx1.acme.com", "mx2.acme.com"}, time.Hour, nil
	})

	result := v.Validate(context.Background(), "HR@Acme.com")
	assert.True(t, result.Valid)
	assert.Equal(t, "acme.com", result.Domain)
	assert.Equal(t, 2, result.MxCount)

	result = v.Validate(context.Background(), "jobs@acme.com")
	assert.True(t, result.Valid)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestValidate_NoMailServerIsNotRetried(t *testing.T) {
	var calls int32
	v, sleeper := newTestValidator(t, func(ctx context.Context, domain string) ([]string, time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		return nil, 0, errors.Wrap(ErrNoMailServer, "nxdomain")
	})

	result := v.Validate(context.Background(), "hr@closed-farm.com")
	assert.False(t, result.Valid)
	assert.Contains(t, result.Reason, "no mx")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, sleeper.waits)
}

func TestValidate_TransientErrorsBackOff(t *testing.T) {
	var calls int32
	v, sleeper := newTestValidator(t, func(ctx context.Context, domain string) ([]string, time.Duration, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, 0, errors.New("i/o timeout")
		}
		return []string{"mx.acme.com"}, 10 * time.Second, nil
	})

	result := v.Validate(context.Background(), "hr@acme.com")
	require.True(t, result.Valid)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, sleeper.waits)
}

func TestValidate_GivesUpAfterAttempts(t *testing.T) {
	var calls int32
	v, sleeper := newTestValidator(t, func(ctx context.Context, domain string) ([]string, time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		return nil, 0, errors.New("SERVFAIL")
	})

	result := v.Validate(context.Background(), "hr@flaky-farm.com")
	assert.False(t, result.Valid)
	assert.Contains(t, result.Reason, "dns resolution failed")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Len(t, sleeper.waits, 2)
}

func TestValidate_BadSyntax(t *testing.T) {
	v, _ := newTestValidator(t, func(ctx context.Context, domain string) ([]string, time.Duration, error) {
		t.Fatal("lookup must not run for malformed addresses")
		return nil, 0, nil
	})

	result := v.Validate(context.Background(), "not an email")
	assert.False(t, result.Valid)
	assert.Equal(t, "invalid email syntax", result.Reason)
}

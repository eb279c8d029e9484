package dns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/jellydator/ttlcache/v3"
	"github.com/jpillora/backoff"
	mdns "github.com/miekg/dns"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/interfaces"
	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/internal/utils"
)

// ErrNoMailServer marks an authoritative answer without MX records. It is never retried.
var ErrNoMailServer = errors.New("domain has no mail server")

const minPositiveTTL = time.Minute

// LookupFunc resolves the MX hosts of a domain together with the smallest record TTL.
type LookupFunc func(ctx context.Context, domain string) ([]string, time.Duration, error)

type SleepFunc func(ctx context.Context, d time.Duration) error

type validator struct {
	cfg    *config.DNSConfig
	log    logger.Logger
	cache  *ttlcache.Cache[string, dto.DomainCheckResult]
	mu     *utils.KeyedMutex
	lookup LookupFunc
	sleep  SleepFunc
}

type Validator interface {
	interfaces.DomainValidator
	Stop()
}

func NewValidator(cfg *config.DNSConfig, log logger.Logger) Validator {
	v := newValidator(cfg, log, nil, nil)
	v.lookup = v.exchangeMX
	return v
}

func newValidator(cfg *config.DNSConfig, log logger.Logger, lookup LookupFunc, sleep SleepFunc) *validator {
	if cfg == nil {
		cfg = &config.DNSConfig{}
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseBackoffMillis <= 0 {
		cfg.BaseBackoffMillis = 500
	}
	if cfg.NegativeCacheSecs <= 0 {
		cfg.NegativeCacheSecs = 300
	}
	if sleep == nil {
		sleep = contextSleep
	}

	v := &validator{
		cfg:    cfg,
		log:    log,
		cache:  ttlcache.New[string, dto.DomainCheckResult](ttlcache.WithDisableTouchOnHit[string, dto.DomainCheckResult]()),
		mu:     utils.NewKeyedMutex(),
		lookup: lookup,
		sleep:  sleep,
	}
	go v.cache.Start()
	return v
}

func (v *validator) Stop() {
	v.cache.Stop()
}

// Validate checks syntax and that the recipient domain publishes at least one MX record.
func (v *validator) Validate(ctx context.Context, email string) dto.DomainCheckResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainValidator.Validate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("email", email)

	syntax := mailvalidate.ValidateEmailSyntax(strings.TrimSpace(email))
	if !syntax.IsValid {
		return dto.DomainCheckResult{Valid: false, Reason: "invalid email syntax"}
	}

	domain := strings.ToLower(utils.ExtractDomainFromEmail(email))
	if len(domain) < 3 {
		return dto.DomainCheckResult{Valid: false, Domain: domain, Reason: "invalid domain"}
	}

	v.mu.Lock(domain)
	defer v.mu.Unlock(domain)

	if item := v.cache.Get(domain); item != nil {
		span.LogFields(tracingLog.Bool("cache.hit", true))
		return item.Value()
	}

	result, ttl := v.resolve(ctx, domain)
	v.cache.Set(domain, result, ttl)

	span.LogFields(tracingLog.Bool("result.valid", result.Valid), tracingLog.Int("result.mxCount", result.MxCount))
	return result
}

func (v *validator) resolve(ctx context.Context, domain string) (dto.DomainCheckResult, time.Duration) {
	negativeTTL := time.Duration(v.cfg.NegativeCacheSecs) * time.Second
	b := &backoff.Backoff{
		Min:    time.Duration(v.cfg.BaseBackoffMillis) * time.Millisecond,
		Max:    time.Duration(v.cfg.BaseBackoffMillis) * time.Millisecond * (1 << uint(v.cfg.Attempts)),
		Factor: 2,
	}

	var lastErr error
	for attempt := 1; attempt <= v.cfg.Attempts; attempt++ {
		hosts, ttl, err := v.lookup(ctx, domain)
		if err == nil && len(hosts) > 0 {
			if ttl < minPositiveTTL {
				ttl = minPositiveTTL
			}
			return dto.DomainCheckResult{Valid: true, Domain: domain, MxCount: len(hosts)}, ttl
		}
		if err == nil || errors.Is(err, ErrNoMailServer) {
			return dto.DomainCheckResult{Valid: false, Domain: domain, Reason: fmt.Sprintf("no mx records for %s", domain)}, negativeTTL
		}

		lastErr = err
		v.log.Warnf("mx lookup for %s failed on attempt %d/%d: %v", domain, attempt, v.cfg.Attempts, err)
		if attempt < v.cfg.Attempts {
			if sleepErr := v.sleep(ctx, b.Duration()); sleepErr != nil {
				lastErr = sleepErr
				break
			}
		}
	}

	// resolver trouble is not proof the domain is dead, so keep it only briefly
	return dto.DomainCheckResult{
		Valid:  false,
		Domain: domain,
		Reason: fmt.Sprintf("dns resolution failed for %s: %v", domain, lastErr),
	}, negativeTTL / 10
}

func (v *validator) exchangeMX(ctx context.Context, domain string) ([]string, time.Duration, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainValidator.exchangeMX")
	defer span.Finish()
	tracing.SetDefaultExternalClientSpanTags(ctx, span)
	span.LogKV("domain", domain, "resolver", v.cfg.Resolver)

	host, port, err := net.SplitHostPort(v.cfg.Resolver)
	if err != nil {
		host, port = "1.1.1.1", "53"
	}

	cli := mdns.Client{Timeout: 5 * time.Second}
	m := &mdns.Msg{}
	m.SetQuestion(mdns.Fqdn(domain), mdns.TypeMX)
	m.RecursionDesired = true

	r, _, err := cli.ExchangeContext(ctx, m, net.JoinHostPort(host, port))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, errors.Wrapf(err, "mx query for %s", domain)
	}

	switch r.Rcode {
	case mdns.RcodeSuccess:
	case mdns.RcodeNameError:
		return nil, 0, errors.Wrapf(ErrNoMailServer, "nxdomain %s", domain)
	default:
		err = fmt.Errorf("mx query for %s returned %s", domain, mdns.RcodeToString[r.Rcode])
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	var (
		hosts  []string
		minTTL uint32
	)
	for _, rr := range r.Answer {
		mx, ok := rr.(*mdns.MX)
		if !ok || mx.Mx == "" || mx.Mx == "." {
			continue
		}
		hosts = append(hosts, strings.TrimRight(mx.Mx, "."))
		if minTTL == 0 || mx.Hdr.Ttl < minTTL {
			minTTL = mx.Hdr.Ttl
		}
	}
	if len(hosts) == 0 {
		return nil, 0, errors.Wrapf(ErrNoMailServer, "empty mx answer for %s", domain)
	}
	return hosts, time.Duration(minTTL) * time.Second, nil
}

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

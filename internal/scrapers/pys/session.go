package pys

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"pys-backend/internal/components/assert"
	"pys-backend/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_session_open     = "session.open"
	report_session_postback = "session.postback"
)

type SessionOptions struct {
	// FormUrl defaults to DefaultFormUrl.
	FormUrl string
	// Timeout of a single request, defaults to 30 seconds.
	Timeout   time.Duration
	UserAgent string
	// CloudflareBypass wraps the transport with cloudflare-bp.
	CloudflareBypass bool
	// RequestsPerSecond limits the request rate, 0 disables the limit.
	RequestsPerSecond float64
}

// Session holds the cookie jar and the last form state of one conversation
// with the form. Requests on a session are serialized, the cascade still
// assumes a single caller drives it.
type Session struct {
	formUrl string
	http    *resty.Client
	tel     telemetry.API

	mu   sync.Mutex
	last *FormSnapshot
}

func NewSession(opts SessionOptions, tel telemetry.API) (*Session, error) {
	assert.NotNil(tel, "telemetry")
	tel = telemetry.NewScopedAPI("pys_scraper", tel)

	if opts.FormUrl == "" {
		opts.FormUrl = DefaultFormUrl
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 30
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	parsed, err := url.Parse(opts.FormUrl)
	if err != nil {
		return nil, fmt.Errorf("parse form url: %w", err)
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	client.SetHeader("user-agent", opts.UserAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsed.Hostname()))
	client.SetTimeout(opts.Timeout)

	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(client, tel)

	return &Session{
		formUrl: opts.FormUrl,
		http:    client,
		tel:     tel,
	}, nil
}

// Open loads the form and retains its state. It may be called again to
// restart the conversation.
func (s *Session) Open(ctx context.Context) (FormSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.http.R().
		SetContext(ctx).
		Get(s.formUrl)
	if err != nil {
		s.tel.ReportBroken(report_session_open, err)
		return FormSnapshot{}, &TransportError{Method: http.MethodGet, Url: s.formUrl, Err: err}
	}
	if !res.IsSuccess() {
		err := &TransportError{
			Method: http.MethodGet,
			Url:    s.formUrl,
			Status: res.StatusCode(),
			Err:    fmt.Errorf("unexpected status %s", res.Status()),
		}
		s.tel.ReportBroken(report_session_open, err)
		return FormSnapshot{}, err
	}

	snapshot, err := parseSnapshot(res.Body())
	if err != nil {
		s.tel.ReportBroken(report_session_open, err)
		return FormSnapshot{}, &TransportError{Method: http.MethodGet, Url: s.formUrl, Status: res.StatusCode(), Err: err}
	}
	if !snapshot.hasForm {
		err := &TransportError{Method: http.MethodGet, Url: s.formUrl, Status: res.StatusCode(), Err: ErrFormMissing}
		s.tel.ReportBroken(report_session_open, err)
		return FormSnapshot{}, err
	}

	s.last = &snapshot
	return snapshot, nil
}

// Postback replays the last form state with overrides applied, simulating a
// change of the select named by eventTarget.
func (s *Session) Postback(ctx context.Context, eventTarget string, overrides map[string]string) (FormSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		return FormSnapshot{}, fmt.Errorf("postback %s: %w", eventTarget, ErrSequence)
	}

	body := s.last.FormState()
	for k, v := range overrides {
		body[k] = v
	}
	body[FieldEventTarget] = eventTarget
	body[FieldAsyncPost] = AsyncPostValue

	res, err := s.http.R().
		SetContext(ctx).
		SetHeader(HeaderReferer, s.formUrl).
		SetHeader(HeaderRequestedWith, RequestedWithValue).
		SetHeader(HeaderMicrosoftAjax, MicrosoftAjaxValue).
		SetFormData(body).
		Post(s.formUrl)
	if err != nil {
		s.tel.ReportBroken(report_session_postback, err, eventTarget)
		return FormSnapshot{}, &TransportError{Method: http.MethodPost, Url: s.formUrl, Err: err}
	}
	if !res.IsSuccess() {
		err := &TransportError{
			Method: http.MethodPost,
			Url:    s.formUrl,
			Status: res.StatusCode(),
			Err:    fmt.Errorf("unexpected status %s", res.Status()),
		}
		s.tel.ReportBroken(report_session_postback, err, eventTarget)
		return FormSnapshot{}, err
	}

	snapshot, err := parseSnapshot(res.Body())
	if err != nil {
		s.tel.ReportBroken(report_session_postback, err, eventTarget)
		return FormSnapshot{}, &TransportError{Method: http.MethodPost, Url: s.formUrl, Status: res.StatusCode(), Err: err}
	}
	if !snapshot.hasForm {
		// the next postback will carry an empty state, which usually means
		// empty option lists further down the cascade
		s.tel.ReportWarning(report_session_postback, ErrFormMissing, eventTarget)
	}

	s.last = &snapshot
	return snapshot, nil
}

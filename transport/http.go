package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/pollsock/errors"
	"github.com/vinayprograms/pollsock/logging"
)

// TracerName is the instrumentation name used for request spans.
const TracerName = "github.com/vinayprograms/pollsock/transport"

// HTTPConfig holds HTTP requester configuration.
type HTTPConfig struct {
	// Timeout bounds a single request, long polls included (0 = no timeout).
	Timeout time.Duration

	// MaxResponseBytes limits a response body. Longer bodies fail the
	// request with TOO_LARGE.
	// Default: 1MB
	MaxResponseBytes int64

	// UserAgent is sent with every request when non-empty.
	UserAgent string

	// Header is added to every request.
	Header http.Header

	// Client overrides the HTTP client. Its Jar is left alone.
	Client *http.Client

	// Tracer overrides the global OpenTelemetry tracer.
	Tracer trace.Tracer

	// Logger receives per-request debug lines.
	Logger *logging.Logger
}

// DefaultHTTPConfig returns configuration with sensible defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:          60 * time.Second,
		MaxResponseBytes: 1024 * 1024, // 1MB
		UserAgent:        "pollsock/1",
	}
}

// HTTPRequester implements Requester over net/http.
type HTTPRequester struct {
	client *http.Client
	config HTTPConfig
	tracer trace.Tracer
	log    *logging.Logger
}

// NewHTTPRequester creates a requester. Without an explicit client it keeps
// cookies across requests so sticky load balancers route every poll of a
// session to the same backend.
func NewHTTPRequester(cfg HTTPConfig) *HTTPRequester {
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultHTTPConfig().MaxResponseBytes
	}

	client := cfg.Client
	if client == nil {
		jar, _ := cookiejar.New(nil) // only fails with a bad PublicSuffixList
		client = &http.Client{Jar: jar, Timeout: cfg.Timeout}
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}

	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}

	return &HTTPRequester{
		client: client,
		config: cfg,
		tracer: tracer,
		log:    log.WithComponent("transport"),
	}
}

// Request performs one HTTP request and returns the body text.
func (r *HTTPRequester) Request(ctx context.Context, method, url, body string) (string, error) {
	ctx, span := r.tracer.Start(ctx, "pollsock "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
			attribute.Int("http.request.body.size", len(body)),
		),
	)
	defer span.End()

	start := time.Now()
	text, status, err := r.do(ctx, method, url, body)
	r.log.Request(method, url, time.Since(start), err)

	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetStatus(codes.Ok, "")
	return text, nil
}

func (r *HTTPRequester) do(ctx context.Context, method, url, body string) (string, int, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return "", 0, errors.WrapWithCode(err, errors.ErrCodeSyntax, "build request", errors.WithRequest(method, url))
	}
	for k, vs := range r.config.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.config.UserAgent != "" {
		req.Header.Set("User-Agent", r.config.UserAgent)
	}
	if body != "" {
		req.Header.Set("Content-Type", "text/plain; charset=UTF-8")
	}
	// polls must never be answered from a cache
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return "", 0, errors.Wrap(err, "request failed", errors.WithRequest(method, url))
	}
	defer resp.Body.Close()

	limit := r.config.MaxResponseBytes
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", resp.StatusCode, errors.Wrap(err, "read response",
			errors.WithRequest(method, url), errors.WithStatus(resp.StatusCode))
	}

	if !IsSuccess(resp.StatusCode) {
		return "", resp.StatusCode, &StatusError{
			Method: method,
			URL:    url,
			Status: resp.StatusCode,
			Text:   http.StatusText(resp.StatusCode),
		}
	}
	if int64(len(data)) > limit {
		return "", resp.StatusCode, errors.TooLarge(limit,
			errors.WithRequest(method, url), errors.WithStatus(resp.StatusCode))
	}
	return string(data), resp.StatusCode, nil
}

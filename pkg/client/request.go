package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies the client's spans.
const tracerName = "roomsync"

// Requester performs the one-shot calls against the coordination server:
// connect, create-room, get-room-list. Implementations return the response
// body on success and an error otherwise.
type Requester interface {
	PostForm(ctx context.Context, url string, form url.Values) ([]byte, error)
	Get(ctx context.Context, url string) ([]byte, error)
}

// httpRequester is the net/http implementation. Each request runs inside an
// OpenTelemetry span named after the route.
type httpRequester struct {
	client *http.Client
	tracer trace.Tracer
}

func newHTTPRequester(client *http.Client) *httpRequester {
	return &httpRequester{
		client: client,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *httpRequester) PostForm(ctx context.Context, target string, form url.Values) ([]byte, error) {
	ctx, span := r.startSpan(ctx, http.MethodPost, target)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, r.fail(span, fmt.Errorf("client: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return r.do(span, req)
}

func (r *httpRequester) Get(ctx context.Context, target string) ([]byte, error) {
	ctx, span := r.startSpan(ctx, http.MethodGet, target)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, r.fail(span, fmt.Errorf("client: build request: %w", err))
	}

	return r.do(span, req)
}

func (r *httpRequester) startSpan(ctx context.Context, method, target string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "roomsync.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", target),
		))
}

func (r *httpRequester) do(span trace.Span, req *http.Request) ([]byte, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, r.fail(span, fmt.Errorf("client: request %s: %w", req.URL.Path, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, r.fail(span, fmt.Errorf("client: read response: %w", err))
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, r.fail(span, fmt.Errorf("client: request %s: status %d", req.URL.Path, resp.StatusCode))
	}

	span.SetStatus(codes.Ok, "")
	return body, nil
}

func (r *httpRequester) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

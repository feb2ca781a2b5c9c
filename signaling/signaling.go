// Package signaling talks to the backend that brokers realtime sessions: it
// trades a local SDP offer for the remote answer, or fetches a short-lived
// token for a websocket session.
package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Client is the signaling collaborator of a transport.
type Client interface {
	ExchangeSDP(ctx context.Context, offer string) (answer string, err error)
	Token(ctx context.Context) (string, error)
}

// SessionCreationError reports a failed exchange with the signaling backend.
type SessionCreationError struct {
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *SessionCreationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session creation failed: %v", e.Err)
	}
	return fmt.Sprintf("session creation failed: %s", e.Status)
}

func (e *SessionCreationError) Unwrap() error { return e.Err }

type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

type Option func(*HTTPClient)

func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		c.client = client
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(operationName string, r *http.Request) string {
					return operationName + " " + r.URL.Path
				}),
			),
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExchangeSDP posts the offer to <base>/session and returns the answer SDP.
func (c *HTTPClient) ExchangeSDP(ctx context.Context, offer string) (string, error) {
	ctx, span := tracer.Start(ctx, "exchange sdp")
	defer span.End()

	body, err := c.post(ctx, span, "/session", "application/sdp", []byte(offer))
	if err != nil {
		return "", err
	}

	answer := string(body)
	if strings.TrimSpace(answer) == "" {
		return "", c.fail(span, &SessionCreationError{Err: fmt.Errorf("empty answer")})
	}

	c.logger.Debug("received sdp answer", slog.Int("len", len(answer)))
	return answer, nil
}

// Token posts to <base>/token and returns the ephemeral token.
func (c *HTTPClient) Token(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "fetch token")
	defer span.End()

	body, err := c.post(ctx, span, "/token", "application/json", []byte("{}"))
	if err != nil {
		return "", err
	}

	var res struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", c.fail(span, &SessionCreationError{Err: fmt.Errorf("decode token: %w", err)})
	}
	if res.Token == "" {
		return "", c.fail(span, &SessionCreationError{Err: fmt.Errorf("empty token")})
	}

	return res.Token, nil
}

func (c *HTTPClient) post(ctx context.Context, span trace.Span, path, contentType string, payload []byte) ([]byte, error) {
	url := c.baseURL + path
	span.SetAttributes(attribute.String("request.url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, c.fail(span, &SessionCreationError{Err: fmt.Errorf("create request: %w", err)})
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.fail(span, &SessionCreationError{Err: fmt.Errorf("send request: %w", err)})
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(span, &SessionCreationError{StatusCode: resp.StatusCode, Status: resp.Status, Err: fmt.Errorf("read body: %w", err)})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(span, &SessionCreationError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		})
	}

	return body, nil
}

func (c *HTTPClient) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Error("signaling failed", slog.Any("err", err))
	return err
}

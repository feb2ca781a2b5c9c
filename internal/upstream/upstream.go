// Package upstream creates realtime sessions with the OpenAI API on behalf of
// clients that must not hold the API key.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/codewandler/pharmacyrt-go/events"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultBaseURL = "https://api.openai.com/v1"

var ErrMissingAPIKey = errors.New("missing api key")

// APIError is a non-success answer from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai api error: %d - %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession trades an SDP offer for the answer of a new realtime call
// configured with session.
func (c *Client) CreateSession(ctx context.Context, offer string, session events.SessionUpdate) (string, error) {
	ctx, span := tracer.Start(ctx, "create realtime session", trace.WithAttributes(
		attribute.String("model", session.Model),
		attribute.Int("tools", len(session.Tools)),
	))
	defer span.End()

	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return "", c.fail(span, fmt.Errorf("encode session: %w", err))
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if err := writePart(mw, "sdp", "application/sdp", []byte(offer)); err != nil {
		return "", c.fail(span, err)
	}
	if err := writePart(mw, "session", "application/json", sessionJSON); err != nil {
		return "", c.fail(span, err)
	}
	if err := mw.Close(); err != nil {
		return "", c.fail(span, fmt.Errorf("close multipart body: %w", err))
	}

	answer, err := c.do(ctx, span, "/realtime", mw.FormDataContentType(), body)
	if err != nil {
		return "", err
	}

	c.logger.Info("created realtime session", slog.String("model", session.Model), slog.Int("tools", len(session.Tools)))
	return string(answer), nil
}

func writePart(mw *multipart.Writer, name, contentType string, data []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, name))
	h.Set("Content-Type", contentType)
	w, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create %s part: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s part: %w", name, err)
	}
	return nil
}

// ClientSecret is a short-lived token for a websocket session.
type ClientSecret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

// CreateClientSecret creates a session configured with session and returns
// its ephemeral client secret.
func (c *Client) CreateClientSecret(ctx context.Context, session events.SessionUpdate) (ClientSecret, error) {
	ctx, span := tracer.Start(ctx, "create client secret", trace.WithAttributes(
		attribute.String("model", session.Model),
	))
	defer span.End()

	payload, err := json.Marshal(session)
	if err != nil {
		return ClientSecret{}, c.fail(span, fmt.Errorf("encode session: %w", err))
	}

	data, err := c.do(ctx, span, "/realtime/sessions", "application/json", bytes.NewReader(payload))
	if err != nil {
		return ClientSecret{}, err
	}

	var res struct {
		ClientSecret ClientSecret `json:"client_secret"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return ClientSecret{}, c.fail(span, fmt.Errorf("decode client secret: %w", err))
	}
	if res.ClientSecret.Value == "" {
		return ClientSecret{}, c.fail(span, errors.New("empty client secret"))
	}
	return res.ClientSecret, nil
}

func (c *Client) do(ctx context.Context, span trace.Span, path, contentType string, body io.Reader) ([]byte, error) {
	if c.apiKey == "" {
		return nil, c.fail(span, ErrMissingAPIKey)
	}

	requestID := uuid.NewString()
	span.SetAttributes(attribute.String("request.id", requestID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Client-Request-Id", requestID)

	c.logger.Debug("calling openai", slog.String("path", path), slog.String("request_id", requestID))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.fail(span, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))})
	}
	return data, nil
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Error("openai request failed", slog.Any("err", err))
	return err
}

package tool

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
)

// Executor runs a named tool with parsed arguments.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) (any, error)
}

type ExecutorFunc func(ctx context.Context, name string, args map[string]any) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	return f(ctx, name, args)
}

// ExecutionError is returned when a tool could not be executed or its result
// could not be read.
type ExecutionError struct {
	Name       string
	StatusCode int
	Err        error
}

func (e *ExecutionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("tool %q failed with status %d: %v", e.Name, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("tool %q failed: %v", e.Name, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

type executeRequest struct {
	FunctionName string         `json:"function_name"`
	Arguments    map[string]any `json:"arguments"`
}

// HTTPExecutor posts tool calls to a backend endpoint.
type HTTPExecutor struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

type HTTPOption func(*HTTPExecutor)

func WithHTTPClient(client *http.Client) HTTPOption {
	return func(e *HTTPExecutor) {
		e.client = client
	}
}

func WithLogger(logger *slog.Logger) HTTPOption {
	return func(e *HTTPExecutor) {
		e.logger = logger
	}
}

// NewHTTPExecutor creates an executor posting to <baseURL>/execute-function.
func NewHTTPExecutor(baseURL string, opts ...HTTPOption) *HTTPExecutor {
	e := &HTTPExecutor{
		url: strings.TrimRight(baseURL, "/") + "/execute-function",
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *HTTPExecutor) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	fail := func(status int, err error) (any, error) {
		err = &ExecutionError{Name: name, StatusCode: status, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(executeRequest{FunctionName: name, Arguments: args})
	if err != nil {
		return fail(0, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fail(0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fail(0, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fail(resp.StatusCode, fmt.Errorf("non-OK HTTP status: %s: %s", resp.Status, strings.TrimSpace(string(msg))))
	}

	var result any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("decode result: %w", err))
	}

	e.logger.Debug("tool executed", slog.String("name", name), slog.Any("args", args))
	return result, nil
}

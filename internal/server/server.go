// Package server is the backend the assistant client talks to: it brokers
// realtime sessions so the client never sees the API key, and runs the
// pharmacy functions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codewandler/pharmacyrt-go/events"
	"github.com/codewandler/pharmacyrt-go/internal/upstream"
	"github.com/codewandler/pharmacyrt-go/tool"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxOfferSize = 1 << 20

// SessionCreator creates realtime sessions upstream.
type SessionCreator interface {
	CreateSession(ctx context.Context, offer string, session events.SessionUpdate) (string, error)
	CreateClientSecret(ctx context.Context, session events.SessionUpdate) (upstream.ClientSecret, error)
}

type Options struct {
	Sessions SessionCreator
	Executor tool.Executor
	// Session is the configuration every upstream session is created with.
	Session events.SessionUpdate
	Logger  *slog.Logger
}

type handler struct {
	sessions SessionCreator
	executor tool.Executor
	session  events.SessionUpdate
	logger   *slog.Logger
}

func Handler(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &handler{
		sessions: opts.Sessions,
		executor: opts.Executor,
		session:  opts.Session,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", h.createSession)
	mux.HandleFunc("POST /token", h.createToken)
	mux.HandleFunc("POST /execute-function", h.executeFunction)
	mux.HandleFunc("POST /execute-tool", h.executeFunction)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /api", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"name":    "Pharmacy Assistant Realtime API",
			"version": "2.0.0",
			"status":  "running",
			"endpoints": map[string]string{
				"/session":          "POST - Create WebRTC session with OpenAI Realtime API",
				"/token":            "POST - Create ephemeral token for a websocket session",
				"/execute-function": "POST - Execute pharmacy functions",
				"/health":           "GET - Health check",
			},
		})
	})

	return otelhttp.NewHandler(withRequestID(withCORS(mux), logger), "pharmacyrt",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Serve runs the handler on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("backend listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type requestIDKey struct{}

func withRequestID(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		logger.Debug("request", slog.String("request_id", id), slog.String("method", r.Method), slog.String("path", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("request_id", requestID(r.Context())))

	offer, err := io.ReadAll(io.LimitReader(r.Body, maxOfferSize))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "read offer: "+err.Error())
		return
	}
	if strings.TrimSpace(string(offer)) == "" {
		writeFailure(w, http.StatusBadRequest, "No SDP offer provided")
		return
	}

	logger.Info("creating realtime session", slog.Int("tools", len(h.session.Tools)), slog.String("language", transcriptionLanguage(h.session)))
	answer, err := h.sessions.CreateSession(r.Context(), string(offer), h.session)
	if err != nil {
		logger.Error("session creation failed", slog.Any("err", err))
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/sdp")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, answer)
}

func (h *handler) createToken(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("request_id", requestID(r.Context())))

	secret, err := h.sessions.CreateClientSecret(r.Context(), h.session)
	if err != nil {
		logger.Error("token creation failed", slog.Any("err", err))
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      secret.Value,
		"expires_at": secret.ExpiresAt,
	})
}

func (h *handler) executeFunction(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("request_id", requestID(r.Context())))

	var req struct {
		FunctionName string         `json:"function_name"`
		Arguments    map[string]any `json:"arguments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	logger = logger.With(slog.String("function", req.FunctionName))
	res, err := h.executor.Execute(r.Context(), req.FunctionName, req.Arguments)
	if err != nil {
		logger.Error("function failed", slog.Any("err", err))
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Debug("function executed", slog.Any("arguments", req.Arguments))
	writeJSON(w, http.StatusOK, res)
}

func transcriptionLanguage(s events.SessionUpdate) string {
	if s.InputAudioTranscription == nil {
		return ""
	}
	return s.InputAudioTranscription.Language
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

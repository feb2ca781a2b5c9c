package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codewandler/pharmacyrt-go/events"
	"github.com/codewandler/pharmacyrt-go/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession() events.SessionUpdate {
	return events.SessionUpdate{
		Model:        "gpt-4o-realtime-preview-2024-12-17",
		Instructions: "be helpful",
		Voice:        "alloy",
		InputAudioTranscription: &events.InputAudioTranscription{
			Model:    "whisper-1",
			Language: "he",
		},
		Tools:      []tool.Tool{{Type: "function", Name: "lookup"}},
		ToolChoice: tool.ChoiceAuto,
	}
}

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realtime", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Client-Request-Id"))

		mr, err := r.MultipartReader()
		if !assert.NoError(t, err) {
			return
		}

		parts := map[string]string{}
		types := map[string]string{}
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if !assert.NoError(t, err) {
				return
			}
			data, _ := io.ReadAll(p)
			parts[p.FormName()] = string(data)
			types[p.FormName()] = p.Header.Get("Content-Type")
		}

		assert.Equal(t, "v=0 offer", parts["sdp"])
		assert.Equal(t, "application/sdp", types["sdp"])
		assert.Equal(t, "application/json", types["session"])

		var session map[string]any
		assert.NoError(t, json.Unmarshal([]byte(parts["session"]), &session))
		assert.Equal(t, "auto", session["tool_choice"])
		assert.Equal(t, "he", session["input_audio_transcription"].(map[string]any)["language"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("v=0 answer"))
	}))
	defer srv.Close()

	c := New("sk-test", WithBaseURL(srv.URL+"/"))
	answer, err := c.CreateSession(context.Background(), "v=0 offer", testSession())
	require.NoError(t, err)
	require.Equal(t, "v=0 answer", answer)
}

func TestCreateSession_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid model"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New("sk-test", WithBaseURL(srv.URL))
	_, err := c.CreateSession(context.Background(), "offer", testSession())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Contains(t, apiErr.Body, "invalid model")
}

func TestCreateSession_MissingKey(t *testing.T) {
	c := New("", WithBaseURL("http://127.0.0.1:1"))
	_, err := c.CreateSession(context.Background(), "offer", testSession())
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestCreateClientSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realtime/sessions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var session map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&session))
		assert.Equal(t, "alloy", session["voice"])

		_, _ = w.Write([]byte(`{"id":"sess_1","client_secret":{"value":"ek_123","expires_at":1700000000}}`))
	}))
	defer srv.Close()

	c := New("sk-test", WithBaseURL(srv.URL))
	secret, err := c.CreateClientSecret(context.Background(), testSession())
	require.NoError(t, err)
	require.Equal(t, "ek_123", secret.Value)
	require.Equal(t, int64(1700000000), secret.ExpiresAt)
}

func TestCreateClientSecret_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"client_secret":{}}`))
	}))
	defer srv.Close()

	c := New("sk-test", WithBaseURL(srv.URL))
	_, err := c.CreateClientSecret(context.Background(), testSession())
	require.Error(t, err)
}

package signaling

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExchangeSDP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/session", r.URL.Path)
		require.Equal(t, "application/sdp", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, "v=0 offer", string(body))

		w.Header().Set("Content-Type", "application/sdp")
		_, _ = w.Write([]byte("v=0 answer"))
	}))
	defer srv.Close()

	answer, err := NewHTTPClient(srv.URL).ExchangeSDP(context.Background(), "v=0 offer")
	require.NoError(t, err)
	require.Equal(t, "v=0 answer", answer)
}

func TestExchangeSDPNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"success":false}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).ExchangeSDP(context.Background(), "v=0")

	var sessErr *SessionCreationError
	require.True(t, errors.As(err, &sessErr))
	require.Equal(t, http.StatusBadGateway, sessErr.StatusCode)
	require.Equal(t, "502 Bad Gateway", sessErr.Status)
	require.Equal(t, "session creation failed: 502 Bad Gateway", err.Error())
}

func TestExchangeSDPEmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).ExchangeSDP(context.Background(), "v=0")
	var sessErr *SessionCreationError
	require.ErrorAs(t, err, &sessErr)
}

func TestToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token", r.URL.Path)
		_, _ = w.Write([]byte(`{"token":"ek_123"}`))
	}))
	defer srv.Close()

	token, err := NewHTTPClient(srv.URL + "/").Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ek_123", token)
}

func TestTokenMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).Token(context.Background())
	var sessErr *SessionCreationError
	require.ErrorAs(t, err, &sessErr)
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url).Token(context.Background())
	var sessErr *SessionCreationError
	require.ErrorAs(t, err, &sessErr)
	require.NotNil(t, sessErr.Err)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codewandler/pharmacyrt-go/events"
	"github.com/codewandler/pharmacyrt-go/internal/pharmacy"
	"github.com/codewandler/pharmacyrt-go/internal/upstream"
	"github.com/codewandler/pharmacyrt-go/signaling"
	"github.com/codewandler/pharmacyrt-go/tool"
	"github.com/stretchr/testify/require"
)

type sessionStub struct {
	offer   string
	session events.SessionUpdate
	err     error
}

func (s *sessionStub) CreateSession(_ context.Context, offer string, session events.SessionUpdate) (string, error) {
	s.offer = offer
	s.session = session
	if s.err != nil {
		return "", s.err
	}
	return "v=0 answer", nil
}

func (s *sessionStub) CreateClientSecret(_ context.Context, session events.SessionUpdate) (upstream.ClientSecret, error) {
	s.session = session
	if s.err != nil {
		return upstream.ClientSecret{}, s.err
	}
	return upstream.ClientSecret{Value: "ek_1", ExpiresAt: 42}, nil
}

func newTestServer(t *testing.T, stub *sessionStub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(Handler(Options{
		Sessions: stub,
		Executor: pharmacy.NewCatalog(),
		Session: events.SessionUpdate{
			Model: "gpt-4o-realtime-preview-2024-12-17",
			Tools: pharmacy.Tools(),
		},
	}))
	t.Cleanup(srv.Close)
	return srv
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return m
}

func TestCreateSession(t *testing.T) {
	stub := &sessionStub{}
	srv := newTestServer(t, stub)

	resp, err := http.Post(srv.URL+"/session", "application/sdp", strings.NewReader("v=0 offer"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/sdp", resp.Header.Get("Content-Type"))
	require.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	require.Equal(t, "v=0 offer", stub.offer)
	require.Len(t, stub.session.Tools, 4)
}

func TestCreateSession_EmptyOffer(t *testing.T) {
	srv := newTestServer(t, &sessionStub{})

	resp, err := http.Post(srv.URL+"/session", "application/sdp", strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	require.Equal(t, false, body["success"])
	require.Equal(t, "No SDP offer provided", body["error"])
}

func TestCreateSession_UpstreamFailure(t *testing.T) {
	srv := newTestServer(t, &sessionStub{err: &upstream.APIError{StatusCode: 401, Body: "bad key"}})

	resp, err := http.Post(srv.URL+"/session", "application/sdp", strings.NewReader("v=0 offer"))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body := decodeBody(t, resp)
	require.Contains(t, body["error"], "bad key")
}

func TestToken(t *testing.T) {
	srv := newTestServer(t, &sessionStub{})

	resp, err := http.Post(srv.URL+"/token", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ek_1", decodeBody(t, resp)["token"])
}

func TestExecuteFunction(t *testing.T) {
	srv := newTestServer(t, &sessionStub{})

	for _, path := range []string{"/execute-function", "/execute-tool"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Post(srv.URL+path, "application/json",
				strings.NewReader(`{"function_name":"check_prescription_requirement","arguments":{"name":"Ventolin"}}`))
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			body := decodeBody(t, resp)
			require.Equal(t, true, body["success"])
			require.Equal(t, true, body["requires_prescription"])
		})
	}
}

func TestExecuteFunction_Unknown(t *testing.T) {
	srv := newTestServer(t, &sessionStub{})

	resp, err := http.Post(srv.URL+"/execute-function", "application/json",
		strings.NewReader(`{"function_name":"order_pizza"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	require.Equal(t, false, body["success"])
	require.Equal(t, "unknown_function", body["error"])
}

func TestExecuteFunction_Errors(t *testing.T) {
	srv := newTestServer(t, &sessionStub{})

	resp, err := http.Post(srv.URL+"/execute-function", "application/json", strings.NewReader(`{not json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Post(srv.URL+"/execute-function", "application/json",
		strings.NewReader(`{"function_name":"get_alternative_medications","arguments":{}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, false, decodeBody(t, resp)["success"])
}

func TestHealthAndAPI(t *testing.T) {
	srv := newTestServer(t, &sessionStub{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, "ok", decodeBody(t, resp)["status"])

	resp, err = http.Get(srv.URL + "/api")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	require.Equal(t, "running", body["status"])
	require.Contains(t, body["endpoints"], "/session")
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &sessionStub{})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/session", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

// The client-side collaborators speak the same protocol as the handlers.
func TestClientsAgainstHandler(t *testing.T) {
	stub := &sessionStub{}
	srv := newTestServer(t, stub)
	ctx := context.Background()

	sig := signaling.NewHTTPClient(srv.URL)
	answer, err := sig.ExchangeSDP(ctx, "v=0 offer")
	require.NoError(t, err)
	require.Equal(t, "v=0 answer", answer)

	token, err := sig.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "ek_1", token)

	exec := tool.NewHTTPExecutor(srv.URL)
	res, err := exec.Execute(ctx, pharmacy.FuncGetMedicationByName, map[string]any{"name": "אקמול"})
	require.NoError(t, err)
	require.Equal(t, "Acamol", res.(map[string]any)["name_en"])

	_, err = exec.Execute(ctx, pharmacy.FuncGetMedicationByName, map[string]any{})
	var execErr *tool.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, http.StatusInternalServerError, execErr.StatusCode)

	stub.err = errors.New("upstream down")
	_, err = sig.ExchangeSDP(ctx, "v=0 offer")
	var sErr *signaling.SessionCreationError
	require.ErrorAs(t, err, &sErr)
	require.Equal(t, http.StatusInternalServerError, sErr.StatusCode)
}

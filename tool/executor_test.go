package tool

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPExecutor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/execute-function", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req executeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "get_medication_by_name", req.FunctionName)
		require.Equal(t, "אקמול", req.Arguments["name"])

		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "strength_mg": 500})
	}))
	defer srv.Close()

	res, err := NewHTTPExecutor(srv.URL+"/").Execute(context.Background(), "get_medication_by_name", map[string]any{"name": "אקמול"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"success": true, "strength_mg": float64(500)}, res)
}

func TestHTTPExecutorNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPExecutor(srv.URL).Execute(context.Background(), "x", nil)
	require.Error(t, err)

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	require.Equal(t, http.StatusInternalServerError, execErr.StatusCode)
	require.Equal(t, "x", execErr.Name)
}

func TestHTTPExecutorInvalidBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := NewHTTPExecutor(srv.URL).Execute(context.Background(), "x", map[string]any{})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
}

func TestReflect(t *testing.T) {
	type args struct {
		Name       string `json:"name" jsonschema:"description=Medication name"`
		StrengthMG int    `json:"strength_mg,omitempty"`
	}

	tl := Reflect[args]("get_medication_by_name", "Look up a medication")
	data, err := json.Marshal(tl)
	require.NoError(t, err)

	var decoded struct {
		Type       string `json:"type"`
		Name       string `json:"name"`
		Parameters struct {
			Type       string                    `json:"type"`
			Properties map[string]map[string]any `json:"properties"`
			Required   []string                  `json:"required"`
		} `json:"parameters"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "function", decoded.Type)
	require.Equal(t, "get_medication_by_name", decoded.Name)
	require.Equal(t, "object", decoded.Parameters.Type)
	require.Equal(t, []string{"name"}, decoded.Parameters.Required)
	require.Equal(t, "integer", decoded.Parameters.Properties["strength_mg"]["type"])
	require.Equal(t, "Medication name", decoded.Parameters.Properties["name"]["description"])
}

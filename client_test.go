package pharmacyrt

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codewandler/pharmacyrt-go/channel"
	"github.com/codewandler/pharmacyrt-go/events"
	"github.com/codewandler/pharmacyrt-go/processor"
	"github.com/codewandler/pharmacyrt-go/tool"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu     sync.Mutex
	params channel.TransportParams
	sent   [][]byte
	ready  atomic.Bool
}

func (f *fakeTransport) Connect(_ context.Context, params channel.TransportParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = params
	f.ready.Store(true)
	return nil
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeTransport) Ready() bool { return f.ready.Load() }

func (f *fakeTransport) Close() error {
	f.ready.Store(false)
	return nil
}

func (f *fakeTransport) receive(t *testing.T, evt map[string]any) {
	t.Helper()
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	f.mu.Lock()
	onMessage := f.params.OnMessage
	f.mu.Unlock()
	onMessage(data)
}

func (f *fakeTransport) sentTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, 0, len(f.sent))
	for _, data := range f.sent {
		var m struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(data, &m)
		types = append(types, m.Type)
	}
	return types
}

func (f *fakeTransport) sentEvent(t *testing.T, i int) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Less(t, i, len(f.sent))
	var m map[string]any
	require.NoError(t, json.Unmarshal(f.sent[i], &m))
	return m
}

func (f *fakeTransport) countItems(itemType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, data := range f.sent {
		var m struct {
			Item struct {
				Type string `json:"type"`
			} `json:"item"`
		}
		_ = json.Unmarshal(data, &m)
		if m.Item.Type == itemType {
			n++
		}
	}
	return n
}

func TestClient_OpenSendsSessionUpdate(t *testing.T) {
	tr := &fakeTransport{}
	client := New(
		WithTransport(tr),
		WithInstruction("answer in Hebrew"),
		WithTools(tool.Tool{Type: "function", Name: "get_medication_by_name"}),
	)
	require.NoError(t, client.Open(context.Background()))
	defer client.Close()

	require.True(t, client.IsConnected())
	require.True(t, client.IsMuted(), "no microphone")
	require.Equal(t, []string{events.TypeSessionUpdate}, tr.sentTypes())

	session := tr.sentEvent(t, 0)["session"].(map[string]any)
	require.Equal(t, "answer in Hebrew", session["instructions"])
	require.Equal(t, "auto", session["tool_choice"])
	require.Equal(t, "he", session["input_audio_transcription"].(map[string]any)["language"])
	require.Len(t, session["tools"], 1)
}

func TestClient_InitialMessage(t *testing.T) {
	tr := &fakeTransport{}
	var sessionID atomic.Value
	client := New(
		WithTransport(tr),
		WithInitialMessage("שלום"),
		WithHandlers(processor.Handlers{
			OnSessionCreated: func(s events.Session) { sessionID.Store(s.ID) },
		}),
	)
	require.NoError(t, client.Open(context.Background()))
	defer client.Close()

	tr.receive(t, map[string]any{"type": events.TypeSessionCreated, "session": map[string]any{"id": "sess_1"}})

	require.Eventually(t, func() bool { return len(tr.sentTypes()) == 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "sess_1", sessionID.Load())
	require.Equal(t, []string{
		events.TypeSessionUpdate,
		events.TypeConversationItemCreate,
		events.TypeResponseCreate,
	}, tr.sentTypes())

	item := tr.sentEvent(t, 1)["item"].(map[string]any)
	content := item["content"].([]any)[0].(map[string]any)
	require.Equal(t, "שלום", content["text"])
}

func TestClient_FunctionCallRoundTrip(t *testing.T) {
	tr := &fakeTransport{}
	results := make(chan any, 1)
	client := New(
		WithTransport(tr),
		WithExecutor(tool.ExecutorFunc(func(_ context.Context, name string, args map[string]any) (any, error) {
			return map[string]any{"success": true, "name": args["name"]}, nil
		})),
		WithHandlers(processor.Handlers{
			OnFunctionResult: func(name string, args map[string]any, result any) { results <- result },
		}),
	)
	require.NoError(t, client.Open(context.Background()))
	defer client.Close()

	tr.receive(t, map[string]any{
		"type":    events.TypeFunctionCallArgumentsDelta,
		"call_id": "call_1",
		"name":    "get_medication_by_name",
		"delta":   `{"name":"Aca`,
	})
	tr.receive(t, map[string]any{
		"type":    events.TypeFunctionCallArgumentsDelta,
		"call_id": "call_1",
		"delta":   `mol"}`,
	})
	tr.receive(t, map[string]any{
		"type":      events.TypeFunctionCallArgumentsDone,
		"call_id":   "call_1",
		"name":      "get_medication_by_name",
		"arguments": `{"name":"Acamol"}`,
	})

	select {
	case res := <-results:
		require.Equal(t, "Acamol", res.(map[string]any)["name"])
	case <-time.After(time.Second):
		t.Fatal("no function result")
	}

	require.Eventually(t, func() bool { return tr.countItems(events.ItemTypeFunctionCallOutput) == 1 }, time.Second, 5*time.Millisecond)
	types := tr.sentTypes()
	require.Equal(t, events.TypeResponseCreate, types[len(types)-1])
}

func TestClient_CloseDropsResultsOfOldSession(t *testing.T) {
	tr := &fakeTransport{}
	started := make(chan struct{})
	release := make(chan struct{})
	client := New(
		WithTransport(tr),
		WithExecutor(tool.ExecutorFunc(func(context.Context, string, map[string]any) (any, error) {
			close(started)
			<-release
			return "late", nil
		})),
	)
	require.NoError(t, client.Open(context.Background()))

	tr.receive(t, map[string]any{
		"type":      events.TypeFunctionCallArgumentsDone,
		"call_id":   "call_old",
		"name":      "get_medication_by_name",
		"arguments": `{}`,
	})
	<-started

	client.Close()
	require.False(t, client.IsConnected())
	require.False(t, client.SendText("hello"))

	require.NoError(t, client.Open(context.Background()))
	defer client.Close()
	close(release)

	require.Never(t, func() bool { return tr.countItems(events.ItemTypeFunctionCallOutput) > 0 },
		200*time.Millisecond, 10*time.Millisecond)
}

func TestClient_SecondOpenKeepsLiveSession(t *testing.T) {
	tr := &fakeTransport{}
	client := New(
		WithTransport(tr),
		WithExecutor(tool.ExecutorFunc(func(context.Context, string, map[string]any) (any, error) {
			return map[string]any{"success": true}, nil
		})),
	)
	require.NoError(t, client.Open(context.Background()))
	defer client.Close()

	require.ErrorIs(t, client.Open(context.Background()), channel.ErrAlreadyConnected)
	require.True(t, client.IsConnected())

	tr.receive(t, map[string]any{
		"type":      events.TypeFunctionCallArgumentsDone,
		"call_id":   "call_1",
		"name":      "check_prescription_requirement",
		"arguments": `{"name":"Ventolin"}`,
	})

	require.Eventually(t, func() bool { return tr.countItems(events.ItemTypeFunctionCallOutput) == 1 },
		time.Second, 5*time.Millisecond)
}

func TestClient_NoHandlersAfterClose(t *testing.T) {
	tr := &fakeTransport{}
	started := make(chan struct{})
	release := make(chan struct{})
	var fired atomic.Bool
	client := New(
		WithTransport(tr),
		WithExecutor(tool.ExecutorFunc(func(context.Context, string, map[string]any) (any, error) {
			close(started)
			<-release
			return "late", nil
		})),
		WithHandlers(processor.Handlers{
			OnFunctionResult: func(string, map[string]any, any) { fired.Store(true) },
		}),
	)
	require.NoError(t, client.Open(context.Background()))

	tr.receive(t, map[string]any{
		"type":      events.TypeFunctionCallArgumentsDone,
		"call_id":   "call_1",
		"name":      "get_medication_by_name",
		"arguments": `{}`,
	})
	<-started

	client.Close()
	close(release)

	require.Never(t, fired.Load, 200*time.Millisecond, 10*time.Millisecond)
	require.Zero(t, tr.countItems(events.ItemTypeFunctionCallOutput))
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	client := New(WithTransport(&fakeTransport{}))
	client.Close()

	require.NoError(t, client.Open(context.Background()))
	client.Close()
	client.Close()
	require.False(t, client.IsConnected())
}

func TestClient_Defaults(t *testing.T) {
	t.Setenv(BackendURLEnvVarName, "http://backend.test")

	config := &clientConfig{}
	withDefaults()(config)

	require.Equal(t, "http://backend.test", config.backendURL)
	require.Equal(t, TransportWebRTC, config.transportKind)
	require.True(t, config.startMuted)
	require.Equal(t, 24_000, config.playbackRate)
	require.Equal(t, tool.ChoiceNone, config.session().ToolChoice)
}

// Package processor routes inbound realtime events, reassembles streamed
// transcripts and function call arguments, tracks the response turn and runs
// the tool call round trip.
//
// A Processor is not safe for concurrent use. All calls to Handle and Reset
// must come from one goroutine, normally the session's event loop. Tool
// execution is the only work that leaves that goroutine; its continuation is
// handed back through the Dispatcher.
package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codewandler/pharmacyrt-go/events"
	"github.com/codewandler/pharmacyrt-go/tool"
)

// Sender closes a function call on the remote side: it sends the output item
// followed by a response trigger.
type Sender interface {
	SendFunctionResult(callID string, result any) bool
}

// Dispatcher runs f on the processor's goroutine. It returns false if f could
// not be scheduled.
type Dispatcher func(f func()) bool

type ResponseState int

const (
	ResponseIdle ResponseState = iota
	ResponseActive
)

func (s ResponseState) String() string {
	switch s {
	case ResponseIdle:
		return "idle"
	case ResponseActive:
		return "active"
	default:
		return "unknown"
	}
}

type pendingCall struct {
	name    string
	args    strings.Builder
	touched time.Time
}

type Processor struct {
	sender   Sender
	executor tool.Executor
	handlers Handlers
	dispatch Dispatcher
	logger   *slog.Logger
	callTTL  time.Duration
	now      func() time.Time

	input  transcripts
	output transcripts
	calls  map[string]*pendingCall

	sessionID     string
	responseID    string
	responseState ResponseState

	// generation changes on Reset so that tool results started before a
	// reset don't reach the handlers.
	generation uint64
	inflight   sync.WaitGroup
}

type Option func(*Processor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithDispatcher sets how tool results re-enter the processor's goroutine.
// Without one, continuations run on the tool's goroutine.
func WithDispatcher(d Dispatcher) Option {
	return func(p *Processor) {
		p.dispatch = d
	}
}

// WithCallTTL drops function call accumulators that saw no event for longer
// than ttl. Zero disables eviction.
func WithCallTTL(ttl time.Duration) Option {
	return func(p *Processor) {
		p.callTTL = ttl
	}
}

func withClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

func New(sender Sender, executor tool.Executor, handlers Handlers, opts ...Option) *Processor {
	p := &Processor{
		sender:   sender,
		executor: executor,
		handlers: handlers,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
		dispatch: func(f func()) bool {
			f()
			return true
		},
		input:  transcripts{},
		output: transcripts{},
		calls:  map[string]*pendingCall{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) SessionID() string { return p.sessionID }

func (p *Processor) ResponseID() string { return p.responseID }

func (p *Processor) ResponseState() ResponseState { return p.responseState }

// Pending reports the number of open accumulators.
func (p *Processor) Pending() (input, output, calls int) {
	return len(p.input), len(p.output), len(p.calls)
}

// Wait blocks until all running tool executions have handed off their
// results. It must not be called from the dispatcher's goroutine while that
// dispatcher queues work.
func (p *Processor) Wait() {
	p.inflight.Wait()
}

// Reset forgets all accumulated state and tracked identifiers.
func (p *Processor) Reset() {
	p.input = transcripts{}
	p.output = transcripts{}
	p.calls = map[string]*pendingCall{}
	p.sessionID = ""
	p.responseID = ""
	p.responseState = ResponseIdle
	p.generation++
}

func dispatchEvent[T any](p *Processor, env events.Envelope, h func(*T)) {
	evt, err := events.Into[T](env)
	if err != nil {
		p.logger.Error("failed to parse event", slog.String("type", env.Type), slog.Any("err", err))
		return
	}
	h(evt)
}

// Handle processes one inbound event.
func (p *Processor) Handle(ctx context.Context, env events.Envelope) {
	p.evictStaleCalls()

	switch env.Type {
	case events.TypeSessionCreated:
		dispatchEvent(p, env, p.handleSessionCreated)
	case events.TypeSessionUpdated:
		p.logger.Debug("session updated")
	case events.TypeConversationItemCreated:
		dispatchEvent(p, env, func(evt *events.ConversationItemCreatedEvent) {
			p.logger.Debug("conversation item created", slog.String("item_id", evt.Item.ID), slog.String("item_type", evt.Item.Type))
		})

	case events.TypeInputAudioTranscriptionDelta:
		dispatchEvent(p, env, func(evt *events.TranscriptDeltaEvent) {
			text := p.input.add(evt.ItemID, evt.ContentIndex, evt.Delta)
			if p.handlers.OnUserSpeechInterim != nil {
				p.handlers.OnUserSpeechInterim(evt.ItemID, text)
			}
		})
	case events.TypeInputAudioTranscriptionComplete:
		dispatchEvent(p, env, func(evt *events.TranscriptDoneEvent) {
			text := p.input.finish(evt.ItemID, evt.Transcript)
			p.logger.Debug("user speech transcribed", slog.String("item_id", evt.ItemID), slog.String("transcript", text))
			if p.handlers.OnUserMessage != nil {
				p.handlers.OnUserMessage(evt.ItemID, text)
			}
		})

	case events.TypeResponseCreated:
		dispatchEvent(p, env, func(evt *events.ResponseCreatedEvent) {
			if p.responseState == ResponseActive {
				p.logger.Warn("response created while another is active",
					slog.String("previous", p.responseID), slog.String("response_id", evt.Response.ID))
			}
			p.responseID = evt.Response.ID
			p.responseState = ResponseActive
			if p.handlers.OnAIThinking != nil {
				p.handlers.OnAIThinking(true)
			}
		})
	case events.TypeResponseDone:
		dispatchEvent(p, env, func(evt *events.ResponseDoneEvent) {
			p.logger.Debug("response done", slog.String("response_id", evt.Response.ID), slog.String("status", evt.Response.Status))
			p.responseID = ""
			p.responseState = ResponseIdle
			if p.handlers.OnAIThinking != nil {
				p.handlers.OnAIThinking(false)
			}
		})

	case events.TypeResponseAudioTranscriptDelta:
		dispatchEvent(p, env, func(evt *events.TranscriptDeltaEvent) {
			text := p.output.add(evt.ItemID, evt.ContentIndex, evt.Delta)
			if p.handlers.OnAIMessageInterim != nil {
				p.handlers.OnAIMessageInterim(evt.ItemID, text)
			}
		})
	case events.TypeResponseAudioTranscriptDone:
		dispatchEvent(p, env, func(evt *events.TranscriptDoneEvent) {
			text := p.output.finish(evt.ItemID, evt.Transcript)
			p.logger.Debug("ai speech transcribed", slog.String("item_id", evt.ItemID), slog.String("transcript", text))
			if p.handlers.OnAIMessage != nil {
				p.handlers.OnAIMessage(evt.ItemID, text)
			}
		})

	case events.TypeFunctionCallArgumentsDelta:
		dispatchEvent(p, env, p.handleArgumentsDelta)
	case events.TypeFunctionCallArgumentsDone:
		evt, err := events.Into[events.FunctionCallArgumentsDoneEvent](env)
		if err != nil {
			p.closeUndecodableCall(env, err)
			return
		}
		p.handleArgumentsDone(ctx, evt)

	case events.TypeResponseAudioDelta, events.TypeResponseAudioDone:
		// audio travels on the media path

	case events.TypeError:
		dispatchEvent(p, env, func(evt *events.ErrorEvent) {
			p.logger.Error("realtime error event", slog.Any("err", evt))
			if p.handlers.OnError != nil {
				p.handlers.OnError(evt)
			}
		})

	default:
		p.logger.Debug("unhandled event", slog.String("type", env.Type))
	}
}

func (p *Processor) handleSessionCreated(evt *events.SessionCreatedEvent) {
	p.logger.Info("session created", slog.String("session_id", evt.Session.ID))
	p.sessionID = evt.Session.ID
	if p.handlers.OnSessionCreated != nil {
		p.handlers.OnSessionCreated(evt.Session)
	}
}

func (p *Processor) handleArgumentsDelta(evt *events.FunctionCallArgumentsDeltaEvent) {
	call, ok := p.calls[evt.CallID]
	if !ok {
		call = &pendingCall{name: evt.Name}
		p.calls[evt.CallID] = call
	}
	call.args.WriteString(evt.Delta)
	call.touched = p.now()
}

func (p *Processor) handleArgumentsDone(ctx context.Context, evt *events.FunctionCallArgumentsDoneEvent) {
	name := evt.Name
	rawArgs := evt.Arguments
	if call, ok := p.calls[evt.CallID]; ok {
		if name == "" {
			name = call.name
		}
		if call.args.Len() > 0 {
			rawArgs = call.args.String()
		}
		delete(p.calls, evt.CallID)
	}

	logger := p.logger.With(slog.String("call_id", evt.CallID), slog.String("name", name))
	logger.Debug("function call", slog.String("arguments", rawArgs))

	args, err := parseArguments(rawArgs)
	if err != nil {
		err = &ArgumentParseError{CallID: evt.CallID, Name: name, Arguments: rawArgs, Err: err}
		logger.Error("function call arguments invalid", slog.Any("err", err))
		p.sender.SendFunctionResult(evt.CallID, errorResult(err))
		return
	}

	if p.handlers.OnFunctionCall != nil {
		p.handlers.OnFunctionCall(name, args)
	}

	generation := p.generation
	ctx = context.WithoutCancel(ctx)

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()

		res, err := p.execute(ctx, name, args)
		// onLoop is false when the dispatcher refused the continuation. The
		// processor's state is then off limits and only the closing message
		// is sent.
		finish := func(onLoop bool) {
			if err != nil {
				logger.Error("function call failed", slog.Any("err", err))
				p.sender.SendFunctionResult(evt.CallID, errorResult(err))
				return
			}
			logger.Debug("function result", slog.Any("result", res))
			if onLoop && generation == p.generation && p.handlers.OnFunctionResult != nil {
				p.handlers.OnFunctionResult(name, args, res)
			}
			p.sender.SendFunctionResult(evt.CallID, res)
		}

		if !p.dispatch(func() { finish(true) }) {
			finish(false)
		}
	}()
}

// closeUndecodableCall answers a done event whose body does not match the
// expected shape, so the remote side is not left waiting for an output.
func (p *Processor) closeUndecodableCall(env events.Envelope, err error) {
	var ids struct {
		CallID string `json:"call_id"`
		Name   string `json:"name"`
	}
	if jErr := json.Unmarshal(env.Raw, &ids); jErr != nil || ids.CallID == "" {
		p.logger.Error("failed to parse event", slog.String("type", env.Type), slog.Any("err", err))
		return
	}

	name := ids.Name
	var rawArgs string
	if call, ok := p.calls[ids.CallID]; ok {
		if name == "" {
			name = call.name
		}
		rawArgs = call.args.String()
		delete(p.calls, ids.CallID)
	}

	err = &ArgumentParseError{CallID: ids.CallID, Name: name, Arguments: rawArgs, Err: err}
	p.logger.Error("function call event invalid", slog.String("call_id", ids.CallID), slog.Any("err", err))
	p.sender.SendFunctionResult(ids.CallID, errorResult(err))
}

func (p *Processor) execute(ctx context.Context, name string, args map[string]any) (res any, err error) {
	if p.executor == nil {
		return nil, &tool.ExecutionError{Name: name, Err: errNoExecutor}
	}
	defer func() {
		if r := recover(); r != nil {
			err = &tool.ExecutionError{Name: name, Err: panicError{r}}
		}
	}()
	return p.executor.Execute(ctx, name, args)
}

func (p *Processor) evictStaleCalls() {
	if p.callTTL <= 0 || len(p.calls) == 0 {
		return
	}
	cutoff := p.now().Add(-p.callTTL)
	for id, call := range p.calls {
		if call.touched.Before(cutoff) {
			p.logger.Warn("evicting orphaned function call", slog.String("call_id", id), slog.String("name", call.name))
			delete(p.calls, id)
		}
	}
}

func parseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errEmptyArguments
	}
	args := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func errorResult(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

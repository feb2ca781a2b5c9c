package processor

import (
	"github.com/codewandler/pharmacyrt-go/events"
)

// Handlers receives the processor's output. Every field is optional; a nil
// handler is skipped.
type Handlers struct {
	// OnSessionCreated fires once the remote session exists.
	OnSessionCreated func(session events.Session)

	// OnUserSpeechInterim receives the accumulated user transcript after
	// every delta.
	OnUserSpeechInterim func(itemID, transcript string)
	// OnUserMessage receives the final user transcript of an item.
	OnUserMessage func(itemID, transcript string)

	// OnAIThinking is true while a response turn is active.
	OnAIThinking func(thinking bool)

	OnAIMessageInterim func(itemID, transcript string)
	OnAIMessage        func(itemID, transcript string)

	// OnFunctionCall fires before a tool is executed.
	OnFunctionCall func(name string, args map[string]any)
	// OnFunctionResult fires after a tool succeeded and before the result is
	// sent back.
	OnFunctionResult func(name string, args map[string]any, result any)

	// OnError receives error events from the realtime service.
	OnError func(err *events.ErrorEvent)
}

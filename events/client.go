package events

// Outbound event types.
const (
	TypeSessionUpdate          = "session.update"
	TypeConversationItemCreate = "conversation.item.create"
	TypeResponseCreate         = "response.create"
	TypeInputAudioBufferAppend = "input_audio_buffer.append"
)

// Conversation item types.
const (
	ItemTypeMessage            = "message"
	ItemTypeFunctionCallOutput = "function_call_output"
)

type SessionUpdateEvent struct {
	BaseEvent
	Session SessionUpdate `json:"session"`
}

func NewSessionUpdate(session SessionUpdate) SessionUpdateEvent {
	return SessionUpdateEvent{
		BaseEvent: NewBaseEvent(TypeSessionUpdate),
		Session:   session,
	}
}

type ConversationItemCreateEvent struct {
	BaseEvent
	Item ConversationItem `json:"item"`
}

// ConversationItem is the inner “item” object.
type ConversationItem struct {
	ID      string                    `json:"id,omitempty"`
	Type    string                    `json:"type"`
	Role    string                    `json:"role,omitempty"`
	Content []ConversationItemContent `json:"content,omitempty"`
	CallID  string                    `json:"call_id,omitempty"`
	Output  string                    `json:"output,omitempty"`
}

type ConversationItemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewUserText builds a user text message item.
func NewUserText(text string) ConversationItemCreateEvent {
	return ConversationItemCreateEvent{
		BaseEvent: NewBaseEvent(TypeConversationItemCreate),
		Item: ConversationItem{
			Type: ItemTypeMessage,
			Role: "user",
			Content: []ConversationItemContent{
				{Type: "input_text", Text: text},
			},
		},
	}
}

// NewFunctionCallOutput builds the item that closes a function call. output
// must already be JSON-encoded.
func NewFunctionCallOutput(callID, output string) ConversationItemCreateEvent {
	return ConversationItemCreateEvent{
		BaseEvent: NewBaseEvent(TypeConversationItemCreate),
		Item: ConversationItem{
			Type:   ItemTypeFunctionCallOutput,
			CallID: callID,
			Output: output,
		},
	}
}

type ResponseCreateEvent struct {
	BaseEvent
	Response *ResponseCreatePayload `json:"response,omitempty"`
}

func NewResponseCreate() ResponseCreateEvent {
	return ResponseCreateEvent{BaseEvent: NewBaseEvent(TypeResponseCreate)}
}

type ResponseCreatePayload struct {
	Modalities        []string    `json:"modalities,omitempty"`
	Instructions      string      `json:"instructions,omitempty"`
	Voice             string      `json:"voice,omitempty"`
	OutputAudioFormat AudioFormat `json:"output_audio_format,omitempty"`
	ToolChoice        string      `json:"tool_choice,omitempty"`
	Temperature       float64     `json:"temperature,omitempty"`
	MaxOutputTokens   int         `json:"max_output_tokens,omitempty"`
}

type InputAudioBufferAppendEvent struct {
	BaseEvent
	Audio string `json:"audio"`
}

func NewInputAudioBufferAppend(audioB64 string) InputAudioBufferAppendEvent {
	return InputAudioBufferAppendEvent{
		BaseEvent: NewBaseEvent(TypeInputAudioBufferAppend),
		Audio:     audioB64,
	}
}

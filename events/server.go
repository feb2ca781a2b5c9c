package events

import "fmt"

// Inbound event types handled by the processor.
const (
	TypeError                           = "error"
	TypeSessionCreated                  = "session.created"
	TypeSessionUpdated                  = "session.updated"
	TypeConversationItemCreated         = "conversation.item.created"
	TypeInputAudioTranscriptionDelta    = "conversation.item.input_audio_transcription.delta"
	TypeInputAudioTranscriptionComplete = "conversation.item.input_audio_transcription.completed"
	TypeResponseCreated                 = "response.created"
	TypeResponseDone                    = "response.done"
	TypeResponseAudioDelta              = "response.audio.delta"
	TypeResponseAudioDone               = "response.audio.done"
	TypeResponseAudioTranscriptDelta    = "response.audio_transcript.delta"
	TypeResponseAudioTranscriptDone     = "response.audio_transcript.done"
	TypeFunctionCallArgumentsDelta      = "response.function_call_arguments.delta"
	TypeFunctionCallArgumentsDone       = "response.function_call_arguments.done"
	TypeSpeechStarted                   = "input_audio_buffer.speech_started"
	TypeSpeechStopped                   = "input_audio_buffer.speech_stopped"
)

type AudioFormat string

const (
	AudioFormatPCM16 AudioFormat = "pcm16"
	AudioFormatULaw  AudioFormat = "g711_ulaw"
)

type ErrorEvent struct {
	BaseEvent
	ErrorDetail ErrorDetail `json:"error"`
}

func (e *ErrorEvent) Error() string {
	return e.ErrorDetail.Error()
}

// ErrorDetail holds the details of the error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
	EventID string `json:"event_id"`
}

func (e *ErrorDetail) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type SessionCreatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type SessionUpdatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type ConversationItemCreatedEvent struct {
	BaseEvent
	Item ConversationItem `json:"item"`
}

// TranscriptDeltaEvent covers both input transcription deltas and audio
// transcript deltas. ContentIndex is used as the ordering hint.
type TranscriptDeltaEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id,omitempty"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index,omitempty"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

// TranscriptDoneEvent covers input transcription completion and audio
// transcript completion. An empty Transcript means none was carried.
type TranscriptDoneEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id,omitempty"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index,omitempty"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

type ResponseCreatedEvent struct {
	BaseEvent
	Response Response `json:"response"`
}

type ResponseDoneEvent struct {
	BaseEvent
	Response Response `json:"response"`
}

type Response struct {
	ID     string           `json:"id"`
	Status string           `json:"status,omitempty"`
	Output []ResponseOutput `json:"output,omitempty"`
}

type ResponseOutput struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Name      string `json:"name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type ResponseAudioDeltaEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type FunctionCallArgumentsDeltaEvent struct {
	BaseEvent
	ResponseID string `json:"response_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	CallID     string `json:"call_id"`
	Name       string `json:"name,omitempty"`
	Delta      string `json:"delta"`
}

type FunctionCallArgumentsDoneEvent struct {
	BaseEvent
	ResponseID string `json:"response_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	CallID     string `json:"call_id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
}

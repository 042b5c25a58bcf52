// Package voicelive implements a websocket client for the Azure Voice Live
// streaming protocol. The connection is an opaque collaborator from the
// bridge's point of view: it accepts session configuration, audio, and
// conversation items, and yields a stream of typed server events.
package voicelive

import (
	"encoding/base64"
	"encoding/json"
)

// EventType discriminates server events.
type EventType string

const (
	EventSessionUpdated               EventType = "session.updated"
	EventSpeechStarted                EventType = "input_audio_buffer.speech_started"
	EventSpeechStopped                EventType = "input_audio_buffer.speech_stopped"
	EventResponseCreated              EventType = "response.created"
	EventResponseTextDelta            EventType = "response.text.delta"
	EventResponseAudioDelta           EventType = "response.audio.delta"
	EventResponseAudioDone            EventType = "response.audio.done"
	EventResponseDone                 EventType = "response.done"
	EventInputTranscriptionCompleted  EventType = "conversation.item.input_audio_transcription.completed"
	EventInputTranscriptionFailed     EventType = "conversation.item.input_audio_transcription.failed"
	EventResponseAudioTranscriptDelta EventType = "response.audio_transcript.delta"
	EventResponseAudioTranscriptDone  EventType = "response.audio_transcript.done"
	EventConversationItemCreated      EventType = "conversation.item.created"
	EventFunctionCallArgumentsDone    EventType = "response.function_call_arguments.done"
	EventError                        EventType = "error"
)

// ItemType categorizes conversation items.
type ItemType string

const (
	ItemMessage            ItemType = "message"
	ItemFunctionCall       ItemType = "function_call"
	ItemFunctionCallOutput ItemType = "function_call_output"
)

// ServerEvent is the envelope for every event the remote service emits.
// Decoding is tolerant: unknown event types and fields pass through without
// error so new server event kinds never break the receive loop.
type ServerEvent struct {
	Type    EventType `json:"type"`
	EventID string    `json:"event_id,omitempty"`

	ResponseID  string `json:"response_id,omitempty"`
	ItemID      string `json:"item_id,omitempty"`
	OutputIndex *int   `json:"output_index,omitempty"`
	CallID      string `json:"call_id,omitempty"`

	// Delta carries streamed text, or base64 PCM for audio deltas.
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Arguments  string `json:"arguments,omitempty"`

	Session  *SessionInfo      `json:"session,omitempty"`
	Response *ResponseInfo     `json:"response,omitempty"`
	Item     *ConversationItem `json:"item,omitempty"`
	Error    *ErrorDetail      `json:"error,omitempty"`
}

// AudioDelta decodes the base64 audio payload of an audio delta event.
func (e *ServerEvent) AudioDelta() ([]byte, error) {
	return base64.StdEncoding.DecodeString(e.Delta)
}

// OutputIndexOrDefault returns the event's output index, or -1 when absent.
func (e *ServerEvent) OutputIndexOrDefault() int {
	if e.OutputIndex == nil {
		return -1
	}
	return *e.OutputIndex
}

// ResponseIdentifier returns the response id the event refers to, whether it
// arrived as a top-level field or inside the response object.
func (e *ServerEvent) ResponseIdentifier() string {
	if e.ResponseID != "" {
		return e.ResponseID
	}
	if e.Response != nil {
		return e.Response.ID
	}
	return ""
}

// IsFunctionCallItem reports whether this is a conversation-item-created
// event whose item is a function call.
func (e *ServerEvent) IsFunctionCallItem() bool {
	return e.Type == EventConversationItemCreated &&
		e.Item != nil && e.Item.Type == ItemFunctionCall
}

// SessionInfo identifies the configured remote session.
type SessionInfo struct {
	ID    string `json:"id,omitempty"`
	Model string `json:"model,omitempty"`
}

// ResponseInfo identifies a response lifecycle event's subject.
type ResponseInfo struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
}

// ConversationItem is a conversation entry: a message, a function call, or a
// function call output.
type ConversationItem struct {
	ID        string   `json:"id,omitempty"`
	Type      ItemType `json:"type"`
	Name      string   `json:"name,omitempty"`
	CallID    string   `json:"call_id,omitempty"`
	Arguments string   `json:"arguments,omitempty"`
	Output    string   `json:"output,omitempty"`
}

// ErrorDetail carries the remote service's error payload.
type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ParseServerEvent decodes one wire message into a ServerEvent.
func ParseServerEvent(data []byte) (*ServerEvent, error) {
	var evt ServerEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

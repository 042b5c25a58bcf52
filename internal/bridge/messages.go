package bridge

import "sync"

// Assistant states surfaced to the client through assistant_state messages.
const (
	StateReady        = "ready"
	StateListening    = "listening"
	StateProcessing   = "processing"
	StateSpeaking     = "speaking"
	StateIdle         = "idle"
	StateFunctionCall = "function_call"
)

// clientMessage is the transport-agnostic envelope for every message sent to
// the client. The Type discriminator selects which fields are meaningful.
type clientMessage struct {
	Type       string `json:"type"`
	Message    string `json:"message,omitempty"`
	Text       string `json:"text,omitempty"`
	State      string `json:"state,omitempty"`
	Function   string `json:"function,omitempty"`
	Audio      string `json:"audio,omitempty"`
	Format     string `json:"format,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	ResponseID string `json:"response_id,omitempty"`
}

// ackMessage acknowledges one audio chunk. Sequence is echoed verbatim,
// including when the client did not supply one.
type ackMessage struct {
	Type     string `json:"type"`
	Sequence *int64 `json:"sequence"`
}

// clientFrame is the decoded shape of every inbound client frame. Binary
// audio frames are normalized into the audio_chunk shape before handling.
type clientFrame struct {
	Type              string `json:"type"`
	Audio             string `json:"audio,omitempty"`
	Sequence          *int64 `json:"sequence,omitempty"`
	VoiceID           string `json:"voice_id,omitempty"`
	ProactiveGreeting bool   `json:"proactive_greeting,omitempty"`
}

// clientWriter serializes writes to the client transport. Both pumps emit
// client messages concurrently and websocket connections permit only one
// writer at a time.
type clientWriter struct {
	mu   sync.Mutex
	conn ClientConn
}

func (w *clientWriter) send(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

func (w *clientWriter) sendState(state string) error {
	return w.send(clientMessage{Type: "assistant_state", State: state})
}

func (w *clientWriter) sendError(message string) error {
	return w.send(clientMessage{Type: "error", Message: message})
}

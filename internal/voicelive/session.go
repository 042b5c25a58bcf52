package voicelive

import "encoding/json"

// Modality selects a response channel for the remote session.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityAudio Modality = "audio"
)

// SessionConfig is the one-shot session configuration submitted after
// connecting, declaring modalities, voice, audio formats, turn detection,
// and the function tools the assistant may call.
type SessionConfig struct {
	Modalities              []Modality           `json:"modalities,omitempty"`
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   *Voice               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string               `json:"output_audio_format,omitempty"`
	InputAudioEchoCancel    *EchoCancellation    `json:"input_audio_echo_cancellation,omitempty"`
	TurnDetection           *ServerVAD           `json:"turn_detection,omitempty"`
	Tools                   []Tool               `json:"tools,omitempty"`
	ToolChoice              string               `json:"tool_choice,omitempty"`
	InputAudioTranscription *InputToTextSettings `json:"input_audio_transcription,omitempty"`
}

// Voice selects the synthesis voice.
type Voice struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Locale string `json:"locale,omitempty"`
}

// StandardVoice builds a standard neural voice selection.
func StandardVoice(name string) *Voice {
	return &Voice{Type: "azure-standard", Name: name}
}

// EchoCancellation enables server-side echo cancellation on input audio.
type EchoCancellation struct {
	Type string `json:"type,omitempty"`
}

// ServerVAD configures server-side voice activity detection for turn taking.
type ServerVAD struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMS int     `json:"silence_duration_ms,omitempty"`
}

// DefaultServerVAD returns the turn-detection thresholds used by the bridge.
func DefaultServerVAD() *ServerVAD {
	return &ServerVAD{
		Type:              "server_vad",
		Threshold:         0.5,
		PrefixPaddingMS:   300,
		SilenceDurationMS: 500,
	}
}

// Tool declares a function tool to the remote service.
type Tool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// InputToTextSettings enables transcription of user audio.
type InputToTextSettings struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

// clientEvent is the envelope for every message sent to the remote service.
type clientEvent struct {
	Type           string            `json:"type"`
	Session        *SessionConfig    `json:"session,omitempty"`
	Audio          string            `json:"audio,omitempty"`
	PreviousItemID string            `json:"previous_item_id,omitempty"`
	Item           *ConversationItem `json:"item,omitempty"`
	Response       *responseParams   `json:"response,omitempty"`
}

// responseParams carries optional parameters for response.create.
type responseParams struct {
	Instructions string `json:"instructions,omitempty"`
}

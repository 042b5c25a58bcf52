package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/michalmar/azure-ai-voicelive/internal/assistant"
	"github.com/michalmar/azure-ai-voicelive/internal/bridge"
	"github.com/michalmar/azure-ai-voicelive/internal/voicelive"
)

// DialFunc opens the upstream connection for one voice session.
type DialFunc func(ctx context.Context) (bridge.RemoteConn, error)

// greetingInstructions steers the proactive greeting turn when a client asks
// for one during the init handshake.
const greetingInstructions = "Greet the user warmly in one short sentence and offer to help."

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(*http.Request) bool {
		// Browser clients connect from arbitrary origins during development.
		return true
	},
}

func (s *Server) dialVoiceLive(ctx context.Context) (bridge.RemoteConn, error) {
	return voicelive.Dial(ctx, voicelive.Config{
		Endpoint: s.cfg.VoiceLive.Endpoint,
		Model:    s.cfg.VoiceLive.Model,
		APIKey:   s.cfg.VoiceLive.APIKey,
		Logger:   s.logger,
	})
}

// handleVoiceWS upgrades the request and bridges the client to a dedicated
// Voice Live connection for the lifetime of the socket.
func (s *Server) handleVoiceWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	if s.needsAPIKey && strings.TrimSpace(s.cfg.VoiceLive.APIKey) == "" {
		s.logger.Error("voice live API key is not configured")
		s.metrics.Error("gateway", "missing_credentials")
		conn.WriteJSON(map[string]string{
			"type":    "error",
			"message": "Voice service credentials are not configured",
		})
		conn.Close()
		return
	}

	ctx := r.Context()
	remote, err := s.dial(ctx)
	if err != nil {
		s.logger.Error("voice live dial failed", "error", err)
		s.metrics.Error("gateway", "dial_failed")
		conn.WriteJSON(map[string]string{
			"type":    "error",
			"message": "Unable to reach the voice service",
		})
		conn.Close()
		return
	}

	sess, err := bridge.NewSession(bridge.Options{
		Client:              conn,
		Remote:              remote,
		Registry:            s.registry,
		Logger:              s.logger,
		Metrics:             s.metrics,
		Voice:               s.cfg.VoiceLive.Voice,
		Instructions:        s.cfg.VoiceLive.Instructions,
		ShowTranscriptions:  s.cfg.VoiceLive.ShowTranscriptions,
		SampleRateHz:        s.cfg.VoiceLive.SampleRateHz,
		TranscriptionModel:  s.cfg.VoiceLive.InputTranscriptionModel,
		FunctionCallTimeout: s.cfg.FunctionCall.Timeout(),
		Greeting:            greetingInstructions,
	})
	if err != nil {
		s.logger.Error("session setup failed", "error", err)
		remote.Close()
		conn.Close()
		return
	}

	if err := sess.Run(ctx); err != nil {
		s.logger.Error("session ended with error", "session_id", sess.ID(), "error", err)
	}
}

// mockFrame is the inbound shape accepted by the mock session.
type mockFrame struct {
	Type     string `json:"type"`
	Audio    string `json:"audio"`
	Sequence *int64 `json:"sequence"`
}

// handleMockWS runs a self-contained session against the rule-based
// assistant. It speaks the same client protocol as /ws/voice but needs no
// upstream connection or credentials.
func (s *Server) handleMockWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	mock := assistant.NewMock(time.Now().UnixNano())
	conn.WriteJSON(map[string]string{"type": "ready", "message": "Voice assistant ready"})
	conn.WriteJSON(map[string]string{"type": "system_message", "message": mock.Greeting()})
	conn.WriteJSON(map[string]string{"type": "assistant_state", "state": bridge.StateReady})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame mockFrame
		switch msgType {
		case websocket.BinaryMessage:
			frame.Type = "audio_chunk"
			frame.Audio = base64.StdEncoding.EncodeToString(data)
		case websocket.TextMessage:
			if err := json.Unmarshal(data, &frame); err != nil {
				conn.WriteJSON(map[string]string{"type": "error", "message": "Invalid payload received"})
				continue
			}
		default:
			continue
		}

		switch frame.Type {
		case "ping":
			conn.WriteJSON(map[string]string{"type": "pong"})
		case "stop":
			return
		case "audio_chunk":
			payload, err := base64.StdEncoding.DecodeString(frame.Audio)
			if err != nil || len(payload) == 0 {
				conn.WriteJSON(map[string]string{"type": "error", "message": "Audio payload missing or invalid"})
				continue
			}
			conn.WriteJSON(struct {
				Type     string `json:"type"`
				Sequence *int64 `json:"sequence"`
			}{"ack", frame.Sequence})
			if turn := mock.OnAudioChunk(payload); turn != nil {
				s.sendMockTurn(conn, turn)
			}
		default:
			conn.WriteJSON(map[string]string{"type": "error", "message": "Unsupported message type: " + frame.Type})
		}
	}
}

func (s *Server) sendMockTurn(conn *websocket.Conn, turn *assistant.Turn) {
	conn.WriteJSON(map[string]string{"type": "assistant_state", "state": bridge.StateProcessing})
	conn.WriteJSON(map[string]string{
		"type":    "user_transcript",
		"text":    turn.Transcript,
		"item_id": "mock",
	})
	conn.WriteJSON(map[string]string{"type": "assistant_state", "state": bridge.StateSpeaking})
	for _, wav := range turn.AudioChunks {
		conn.WriteJSON(map[string]string{
			"type":   "assistant_audio",
			"audio":  base64.StdEncoding.EncodeToString(wav),
			"format": "audio/wav",
		})
	}
	conn.WriteJSON(map[string]string{
		"type":       "assistant_message",
		"text":       turn.Response,
		"transcript": turn.Transcript,
	})
	conn.WriteJSON(map[string]string{"type": "assistant_state", "state": bridge.StateIdle})
}

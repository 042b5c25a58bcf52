package bridge

import (
	"context"

	"github.com/michalmar/azure-ai-voicelive/internal/voicelive"
)

// responseDoneFallback is sent when a turn completes without any text or
// transcript, which is the normal shape for audio-only responses.
const responseDoneFallback = "Assistant response completed."

// handleEvent translates one remote event into client messages and state
// updates. Unknown event types are logged and skipped; only client transport
// failures return an error.
func (s *Session) handleEvent(ctx context.Context, evt *voicelive.ServerEvent) error {
	s.metrics.RemoteEvent(string(evt.Type))

	switch evt.Type {
	case voicelive.EventSessionUpdated:
		s.sessionReady.Store(true)
		s.logger.Info("remote session ready")
		return s.client.sendState(StateReady)

	case voicelive.EventSpeechStarted:
		// The user barged in; stop any response currently playing.
		if err := s.remote.CancelResponse(ctx); err != nil {
			s.logger.Debug("barge-in cancel failed", "error", err)
		}
		return s.client.sendState(StateListening)

	case voicelive.EventSpeechStopped:
		return s.client.sendState(StateProcessing)

	case voicelive.EventResponseCreated:
		s.acc.StartResponse(evt.ResponseIdentifier())
		return nil

	case voicelive.EventResponseTextDelta:
		s.acc.AppendResponseDelta(evt.ResponseIdentifier(), evt.Delta)
		return nil

	case voicelive.EventResponseAudioDelta:
		return s.handleAudioDelta(evt)

	case voicelive.EventResponseAudioDone:
		return s.client.sendState(StateProcessing)

	case voicelive.EventResponseDone:
		return s.handleResponseDone(evt)

	case voicelive.EventInputTranscriptionCompleted:
		if !s.opts.ShowTranscriptions || evt.ItemID == "" || evt.Transcript == "" {
			return nil
		}
		return s.client.send(clientMessage{
			Type:   "user_transcript",
			Text:   evt.Transcript,
			ItemID: evt.ItemID,
		})

	case voicelive.EventInputTranscriptionFailed:
		msg := "Unable to transcribe your last utterance."
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		s.logger.Warn("input transcription failed", "reason", msg)
		return s.client.sendError(msg)

	case voicelive.EventResponseAudioTranscriptDelta:
		if !s.opts.ShowTranscriptions {
			return nil
		}
		key, ok := transcriptKey(evt)
		if !ok {
			s.logger.Debug("transcript delta missing identifiers")
			return nil
		}
		s.acc.AppendTranscriptDelta(key, evt.Delta)
		return nil

	case voicelive.EventResponseAudioTranscriptDone:
		return s.handleTranscriptDone(evt)

	case voicelive.EventConversationItemCreated:
		if !evt.IsFunctionCallItem() {
			return nil
		}
		return s.handleFunctionCall(ctx, evt)

	case voicelive.EventError:
		msg := "Voice assistant error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		s.logger.Error("remote error event", "message", msg)
		s.metrics.Error("remote", "server_error")
		return s.client.sendError(msg)

	default:
		s.logger.Debug("unhandled remote event", "type", evt.Type)
		return nil
	}
}

func (s *Session) handleAudioDelta(evt *voicelive.ServerEvent) error {
	audio, err := evt.AudioDelta()
	if err != nil {
		s.logger.Warn("undecodable audio delta", "error", err)
		return nil
	}
	if len(audio) == 0 {
		return nil
	}
	s.metrics.AudioForwarded("outbound", len(audio))
	if err := s.client.send(clientMessage{
		Type:       "assistant_audio",
		Audio:      evt.Delta,
		Format:     "pcm16",
		SampleRate: s.opts.SampleRateHz,
	}); err != nil {
		return err
	}
	return s.client.sendState(StateSpeaking)
}

func (s *Session) handleResponseDone(evt *voicelive.ServerEvent) error {
	text := s.acc.FinishResponse(evt.ResponseIdentifier())
	if text == "" {
		text = evt.Transcript
	}
	if text == "" {
		text = responseDoneFallback
	}
	if err := s.client.send(clientMessage{
		Type:       "assistant_message",
		Text:       text,
		Transcript: evt.Transcript,
	}); err != nil {
		return err
	}
	// The turn is over, so any in-flight function call bookkeeping is stale.
	s.functionCallInProgress = false
	s.activeCallID = ""
	return s.client.sendState(StateIdle)
}

func (s *Session) handleTranscriptDone(evt *voicelive.ServerEvent) error {
	if !s.opts.ShowTranscriptions {
		return nil
	}
	key, ok := transcriptKey(evt)
	if !ok {
		return nil
	}
	text := s.acc.FinishTranscript(key)
	if text == "" {
		text = evt.Transcript
	}
	if text == "" {
		return nil
	}
	return s.client.send(clientMessage{
		Type:       "assistant_transcript",
		Text:       text,
		ResponseID: key.ResponseID,
	})
}

func transcriptKey(evt *voicelive.ServerEvent) (SegmentKey, bool) {
	responseID := evt.ResponseIdentifier()
	if responseID == "" || evt.ItemID == "" || evt.OutputIndex == nil {
		return SegmentKey{}, false
	}
	return SegmentKey{
		ResponseID:  responseID,
		ItemID:      evt.ItemID,
		OutputIndex: *evt.OutputIndex,
	}, true
}

package bridge

import (
	"encoding/base64"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/michalmar/azure-ai-voicelive/internal/voicelive"
)

func intPtr(v int) *int { return &v }

func TestSessionHandshakeConfiguresRemote(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	sessions, _, _, _, _ := h.remote.snapshot()
	if len(sessions) != 1 {
		t.Fatalf("UpdateSession calls = %d, want 1", len(sessions))
	}
	cfg := sessions[0]
	if cfg.Instructions != "be brief" {
		t.Errorf("instructions = %q", cfg.Instructions)
	}
	if cfg.Voice == nil || cfg.Voice.Name != "en-US-AvaNeural" || cfg.Voice.Type != "azure-standard" {
		t.Errorf("voice = %+v", cfg.Voice)
	}
	if cfg.TurnDetection == nil || cfg.TurnDetection.Type != "server_vad" {
		t.Errorf("turn detection = %+v", cfg.TurnDetection)
	}
	if cfg.InputAudioTranscription == nil {
		t.Error("input transcription not enabled")
	}
	if len(cfg.Tools) == 0 {
		t.Fatal("no tools registered")
	}
	names := map[string]bool{}
	for _, tool := range cfg.Tools {
		if tool.Type != "function" {
			t.Errorf("tool type = %q", tool.Type)
		}
		names[tool.Name] = true
	}
	if !names["get_current_time"] || !names["get_current_weather"] {
		t.Errorf("builtin tools missing: %v", names)
	}

	h.remote.push(t, &voicelive.ServerEvent{Type: voicelive.EventSessionUpdated})
	h.waitForState(StateReady)
}

func TestInitFrameSelectsVoiceAndGreeting(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Greeting = "Greet the user warmly."
	})
	h.client.pushText(t, `{"type":"init","voice_id":"en-US-JennyNeural","proactive_greeting":true}`)
	h.waitFor("ready")

	deadline := time.Now().Add(2 * time.Second)
	for {
		sessions, _, _, responses, _ := h.remote.snapshot()
		if len(sessions) == 1 && len(responses) == 1 {
			if sessions[0].Voice.Name != "en-US-JennyNeural" {
				t.Fatalf("voice = %q", sessions[0].Voice.Name)
			}
			if responses[0] != "Greet the user warmly." {
				t.Fatalf("greeting instructions = %q", responses[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("configure/greeting not observed: %d sessions, %d responses",
				len(sessions), len(responses))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAudioChunkForwardedAndAcked(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	payload := base64.StdEncoding.EncodeToString([]byte("pcm-bytes"))
	h.client.pushText(t, `{"type":"audio_chunk","audio":"`+payload+`","sequence":7}`)

	ack := h.waitFor("ack")
	if seq, ok := ack["sequence"].(float64); !ok || seq != 7 {
		t.Fatalf("ack sequence = %v", ack["sequence"])
	}

	_, audio, _, _, _ := h.remote.snapshot()
	if len(audio) != 1 || audio[0] != payload {
		t.Fatalf("forwarded audio = %v", audio)
	}
}

func TestAudioChunkWithoutSequenceAcksNull(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	payload := base64.StdEncoding.EncodeToString([]byte("x"))
	h.client.pushText(t, `{"type":"audio_chunk","audio":"`+payload+`"}`)

	ack := h.waitFor("ack")
	if _, present := ack["sequence"]; !present {
		t.Fatal("ack must carry a sequence field even when null")
	}
	if ack["sequence"] != nil {
		t.Fatalf("ack sequence = %v, want null", ack["sequence"])
	}
}

func TestAudioForwardFailureReportedAndSessionContinues(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.remote.mu.Lock()
	h.remote.appendErr = errors.New("upstream buffer rejected")
	h.remote.mu.Unlock()

	payload := base64.StdEncoding.EncodeToString([]byte("pcm"))
	h.client.pushText(t, `{"type":"audio_chunk","audio":"`+payload+`","sequence":1}`)

	msg := h.waitFor("error")
	if msg["message"] != "Unable to forward audio to assistant" {
		t.Fatalf("error message = %v", msg["message"])
	}
	if n := h.countMessages("ack"); n != 0 {
		t.Fatalf("acks after failed forward = %d, want 0", n)
	}

	// The pump keeps running and recovers once forwarding works again.
	h.client.pushText(t, `{"type":"ping"}`)
	h.waitFor("pong")

	h.remote.mu.Lock()
	h.remote.appendErr = nil
	h.remote.mu.Unlock()
	h.client.pushText(t, `{"type":"audio_chunk","audio":"`+payload+`","sequence":2}`)
	ack := h.waitFor("ack")
	if seq, ok := ack["sequence"].(float64); !ok || seq != 2 {
		t.Fatalf("ack sequence = %v", ack["sequence"])
	}
}

func TestMissingAudioPayloadRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.client.pushText(t, `{"type":"audio_chunk"}`)
	msg := h.waitFor("error")
	if msg["message"] != "Audio payload missing or invalid" {
		t.Fatalf("error message = %v", msg["message"])
	}
	if _, audio, _, _, _ := h.remote.snapshot(); len(audio) != 0 {
		t.Fatal("audio forwarded despite missing payload")
	}
}

func TestMalformedFrameReportsInvalidPayload(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.client.pushText(t, `{not json`)
	msg := h.waitFor("error")
	if msg["message"] != "Invalid payload received" {
		t.Fatalf("error message = %v", msg["message"])
	}

	// The session survives a bad frame.
	h.client.pushText(t, `{"type":"ping"}`)
	h.waitFor("pong")
}

func TestUnsupportedFrameType(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.client.pushText(t, `{"type":"teleport"}`)
	msg := h.waitFor("error")
	if msg["message"] != "Unsupported message type: teleport" {
		t.Fatalf("error message = %v", msg["message"])
	}
}

func TestStopEndsSessionAndCancelsResponse(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	h.remote.push(t, &voicelive.ServerEvent{Type: voicelive.EventSessionUpdated})
	h.waitForState(StateReady)

	h.client.pushText(t, `{"type":"stop"}`)
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end on stop")
	}
	if _, _, _, _, cancels := h.remote.snapshot(); cancels != 1 {
		t.Fatalf("cancels = %d, want 1", cancels)
	}
}

func TestOrdinaryTurn(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.remote.push(t, &voicelive.ServerEvent{Type: voicelive.EventSpeechStarted})
	h.waitForState(StateListening)
	h.remote.push(t, &voicelive.ServerEvent{Type: voicelive.EventSpeechStopped})
	h.waitForState(StateProcessing)

	h.remote.push(t, &voicelive.ServerEvent{
		Type:     voicelive.EventResponseCreated,
		Response: &voicelive.ResponseInfo{ID: "resp_1"},
	})
	for _, delta := range []string{"Hel", "lo ", "there"} {
		h.remote.push(t, &voicelive.ServerEvent{
			Type:       voicelive.EventResponseTextDelta,
			ResponseID: "resp_1",
			Delta:      delta,
		})
	}
	audio := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03, 0x04})
	h.remote.push(t, &voicelive.ServerEvent{
		Type:       voicelive.EventResponseAudioDelta,
		ResponseID: "resp_1",
		Delta:      audio,
	})

	msg := h.waitFor("assistant_audio")
	if msg["audio"] != audio {
		t.Fatalf("assistant_audio payload = %v", msg["audio"])
	}
	if msg["format"] != "pcm16" || msg["sampleRate"] != float64(24000) {
		t.Fatalf("assistant_audio framing = %v", msg)
	}
	h.waitForState(StateSpeaking)

	h.remote.push(t, &voicelive.ServerEvent{
		Type:     voicelive.EventResponseDone,
		Response: &voicelive.ResponseInfo{ID: "resp_1"},
	})
	final := h.waitFor("assistant_message")
	if final["text"] != "Hello there" {
		t.Fatalf("assistant_message text = %v", final["text"])
	}
	h.waitForState(StateIdle)
}

func TestResponseDoneWithoutTextUsesFallback(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.remote.push(t, &voicelive.ServerEvent{
		Type:     voicelive.EventResponseDone,
		Response: &voicelive.ResponseInfo{ID: "resp_silent"},
	})
	msg := h.waitFor("assistant_message")
	if msg["text"] != responseDoneFallback {
		t.Fatalf("fallback text = %v", msg["text"])
	}
}

func TestBargeInCancelsActiveResponse(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.remote.push(t, &voicelive.ServerEvent{Type: voicelive.EventSpeechStarted})
	h.waitForState(StateListening)
	if _, _, _, _, cancels := h.remote.snapshot(); cancels != 1 {
		t.Fatalf("cancels = %d, want 1", cancels)
	}
}

func TestUserTranscriptForwarded(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.remote.push(t, &voicelive.ServerEvent{
		Type:       voicelive.EventInputTranscriptionCompleted,
		ItemID:     "item_7",
		Transcript: "hello assistant",
	})
	msg := h.waitFor("user_transcript")
	if msg["text"] != "hello assistant" || msg["item_id"] != "item_7" {
		t.Fatalf("user_transcript = %v", msg)
	}
}

func TestTranscriptionFailureReported(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.remote.push(t, &voicelive.ServerEvent{
		Type:  voicelive.EventInputTranscriptionFailed,
		Error: &voicelive.ErrorDetail{Message: "audio too short"},
	})
	msg := h.waitFor("error")
	if msg["message"] != "audio too short" {
		t.Fatalf("error message = %v", msg["message"])
	}
}

func TestAssistantTranscriptAccumulated(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	for _, delta := range []string{"spoken ", "words"} {
		h.remote.push(t, &voicelive.ServerEvent{
			Type:        voicelive.EventResponseAudioTranscriptDelta,
			ResponseID:  "resp_1",
			ItemID:      "item_1",
			OutputIndex: intPtr(0),
			Delta:       delta,
		})
	}
	h.remote.push(t, &voicelive.ServerEvent{
		Type:        voicelive.EventResponseAudioTranscriptDone,
		ResponseID:  "resp_1",
		ItemID:      "item_1",
		OutputIndex: intPtr(0),
	})
	msg := h.waitFor("assistant_transcript")
	if msg["text"] != "spoken words" || msg["response_id"] != "resp_1" {
		t.Fatalf("assistant_transcript = %v", msg)
	}
}

func TestAssistantTranscriptDoneFallsBackToEventText(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.remote.push(t, &voicelive.ServerEvent{
		Type:        voicelive.EventResponseAudioTranscriptDone,
		ResponseID:  "resp_1",
		ItemID:      "item_1",
		OutputIndex: intPtr(0),
		Transcript:  "full transcript",
	})
	msg := h.waitFor("assistant_transcript")
	if msg["text"] != "full transcript" {
		t.Fatalf("assistant_transcript = %v", msg)
	}
}

func TestTranscriptsSuppressedWhenDisabled(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.ShowTranscriptions = false })
	h.start()

	h.remote.push(t, &voicelive.ServerEvent{
		Type:       voicelive.EventInputTranscriptionCompleted,
		ItemID:     "item_1",
		Transcript: "hidden",
	})
	h.remote.push(t, &voicelive.ServerEvent{Type: voicelive.EventSpeechStarted})
	h.waitForState(StateListening)

	if n := h.countMessages("user_transcript"); n != 0 {
		t.Fatalf("user_transcript count = %d, want 0", n)
	}
}

func TestRemoteErrorEventForwarded(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.remote.push(t, &voicelive.ServerEvent{
		Type:  voicelive.EventError,
		Error: &voicelive.ErrorDetail{Message: "rate limited"},
	})
	msg := h.waitFor("error")
	if msg["message"] != "rate limited" {
		t.Fatalf("error message = %v", msg["message"])
	}
}

func TestUnknownRemoteEventIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.remote.push(t, &voicelive.ServerEvent{Type: "response.something_new"})
	h.remote.push(t, &voicelive.ServerEvent{Type: voicelive.EventSpeechStarted})
	h.waitForState(StateListening)
}

func TestRemoteStreamFailureEndsSession(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.remote.Close()
	select {
	case err := <-h.done:
		if err == nil {
			t.Fatal("Run returned nil after remote failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after remote failure")
	}
	msg := h.waitFor("error")
	if msg["message"] != "Azure Voice Live connection ended unexpectedly" {
		t.Fatalf("error message = %v", msg["message"])
	}
}

func TestClientWriteFailureEndsSessionBeforePumping(t *testing.T) {
	h := newHarness(t, nil)
	h.client.mu.Lock()
	h.client.writeErr = net.ErrClosed
	h.client.mu.Unlock()

	h.client.pushText(t, `{"type":"ping"}`)
	select {
	case err := <-h.done:
		if !errors.Is(err, net.ErrClosed) {
			t.Fatalf("Run error = %v, want wrapped %v", err, net.ErrClosed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session kept running after the first client write failed")
	}
	if n := h.countMessages("ready"); n != 0 {
		t.Fatalf("ready frames recorded = %d, want 0", n)
	}
}

func TestNoInitFrameFallsBackToDefaults(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.InitWait = 50 * time.Millisecond })
	// No frames at all: the init window expires and the session configures
	// itself with defaults.
	h.waitFor("ready")
	sessions, _, _, _, _ := h.remote.snapshot()
	if len(sessions) != 1 || sessions[0].Voice.Name != "en-US-AvaNeural" {
		t.Fatalf("sessions = %+v", sessions)
	}
}

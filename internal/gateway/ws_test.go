package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/michalmar/azure-ai-voicelive/internal/bridge"
	"github.com/michalmar/azure-ai-voicelive/internal/voicelive"
)

// stubRemote acknowledges session configuration and otherwise idles.
type stubRemote struct {
	mu       sync.Mutex
	events   chan *voicelive.ServerEvent
	sessions int
	closed   chan struct{}
	once     sync.Once
}

func newStubRemote() *stubRemote {
	return &stubRemote{
		events: make(chan *voicelive.ServerEvent, 8),
		closed: make(chan struct{}),
	}
}

func (r *stubRemote) UpdateSession(context.Context, voicelive.SessionConfig) error {
	r.mu.Lock()
	r.sessions++
	r.mu.Unlock()
	r.events <- &voicelive.ServerEvent{Type: voicelive.EventSessionUpdated}
	return nil
}

func (r *stubRemote) AppendInputAudio(context.Context, string) error { return nil }
func (r *stubRemote) CancelResponse(context.Context) error           { return nil }
func (r *stubRemote) CreateResponse(context.Context, string) error   { return nil }
func (r *stubRemote) CreateItem(context.Context, string, voicelive.ConversationItem) error {
	return nil
}

func (r *stubRemote) Recv(ctx context.Context) (*voicelive.ServerEvent, error) {
	select {
	case evt := <-r.events:
		return evt, nil
	case <-r.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *stubRemote) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func dialWS(t *testing.T, httpURL, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(httpURL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", msgType, err)
		}
		if msg["type"] == msgType {
			return msg
		}
	}
}

func TestVoiceWSRunsBridgeSession(t *testing.T) {
	remote := newStubRemote()
	srv := newTestServer(t, func(context.Context) (bridge.RemoteConn, error) {
		return remote, nil
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts.URL, "/ws/voice")
	// A first ping closes the init window immediately.
	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	readUntil(t, conn, "ready")
	readUntil(t, conn, "system_message")
	state := readUntil(t, conn, "assistant_state")
	if state["state"] != "ready" {
		t.Fatalf("state = %v", state["state"])
	}

	remote.mu.Lock()
	sessions := remote.sessions
	remote.mu.Unlock()
	if sessions != 1 {
		t.Fatalf("UpdateSession calls = %d, want 1", sessions)
	}

	if err := conn.WriteJSON(map[string]string{"type": "stop"}); err != nil {
		t.Fatalf("write stop: %v", err)
	}
	// The server closes both sides after stop.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	select {
	case <-remote.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("remote connection not closed after stop")
	}
}

func TestVoiceWSDialFailureSendsErrorFrame(t *testing.T) {
	srv := newTestServer(t, func(context.Context) (bridge.RemoteConn, error) {
		return nil, errors.New("no credentials")
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts.URL, "/ws/voice")
	msg := readUntil(t, conn, "error")
	if msg["message"] != "Unable to reach the voice service" {
		t.Fatalf("error message = %v", msg["message"])
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection left open after dial failure")
	}
}

func TestVoiceWSWithoutAPIKeyRejectsBeforeDialing(t *testing.T) {
	// nil dial means the real endpoint would be used, so the missing key
	// must be caught before any dial attempt.
	srv := newTestServer(t, nil)
	srv.cfg.VoiceLive.APIKey = ""
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts.URL, "/ws/voice")
	msg := readUntil(t, conn, "error")
	if msg["message"] != "Voice service credentials are not configured" {
		t.Fatalf("error message = %v", msg["message"])
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection left open after credential rejection")
	}
}

func TestMockWSSessionTurns(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts.URL, "/ws/mock")
	readUntil(t, conn, "ready")
	readUntil(t, conn, "system_message")

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	readUntil(t, conn, "pong")

	chunk := base64.StdEncoding.EncodeToString([]byte("pcm"))
	for i := 0; i < 3; i++ {
		err := conn.WriteJSON(map[string]any{"type": "audio_chunk", "audio": chunk, "sequence": i})
		if err != nil {
			t.Fatalf("write chunk %d: %v", i, err)
		}
		readUntil(t, conn, "ack")
	}

	transcript := readUntil(t, conn, "user_transcript")
	if transcript["text"] == "" {
		t.Fatal("empty user_transcript after third chunk")
	}
	audio := readUntil(t, conn, "assistant_audio")
	if audio["format"] != "audio/wav" || audio["audio"] == "" {
		t.Fatalf("assistant_audio = %v", audio)
	}
	msg := readUntil(t, conn, "assistant_message")
	if msg["text"] == "" {
		t.Fatal("empty assistant_message after third chunk")
	}

	if err := conn.WriteJSON(map[string]string{"type": "stop"}); err != nil {
		t.Fatalf("write stop: %v", err)
	}
}

func TestMockWSRejectsMalformedFrames(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts.URL, "/ws/mock")
	readUntil(t, conn, "ready")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{bad")); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readUntil(t, conn, "error")
	if msg["message"] != "Invalid payload received" {
		t.Fatalf("error message = %v", msg["message"])
	}

	if err := conn.WriteJSON(map[string]string{"type": "warp"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = readUntil(t, conn, "error")
	if msg["message"] != "Unsupported message type: warp" {
		t.Fatalf("error message = %v", msg["message"])
	}
}

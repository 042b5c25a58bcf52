package bridge

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/michalmar/azure-ai-voicelive/internal/functions"
	"github.com/michalmar/azure-ai-voicelive/internal/voicelive"
)

type wsFrame struct {
	msgType int
	data    []byte
}

// fakeClient scripts inbound client frames and records everything the bridge
// sends back, decoded into generic maps for assertions.
type fakeClient struct {
	mu        sync.Mutex
	frames    chan wsFrame
	sent      []map[string]any
	writeErr  error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		frames: make(chan wsFrame, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeClient) ReadMessage() (int, []byte, error) {
	select {
	case fr := <-f.frames:
		return fr.msgType, fr.data, nil
	case <-f.closed:
		return 0, nil, net.ErrClosed
	}
}

func (f *fakeClient) WriteJSON(v any) error {
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	f.mu.Lock()
	if f.writeErr != nil {
		err := f.writeErr
		f.mu.Unlock()
		return err
	}
	f.sent = append(f.sent, m)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeClient) pushText(t *testing.T, payload string) {
	t.Helper()
	select {
	case f.frames <- wsFrame{msgType: textMessage, data: []byte(payload)}:
	case <-time.After(time.Second):
		t.Fatal("client frame buffer full")
	}
}

func (f *fakeClient) messages() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeRemote scripts server events and records every upstream operation.
type fakeRemote struct {
	mu        sync.Mutex
	events    chan *voicelive.ServerEvent
	sessions  []voicelive.SessionConfig
	audio     []string
	items     []voicelive.ConversationItem
	itemPrevs []string
	responses []string
	cancels   int
	appendErr error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		events: make(chan *voicelive.ServerEvent, 32),
		closed: make(chan struct{}),
	}
}

func (r *fakeRemote) UpdateSession(_ context.Context, session voicelive.SessionConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, session)
	return nil
}

func (r *fakeRemote) AppendInputAudio(_ context.Context, audioB64 string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.audio = append(r.audio, audioB64)
	return nil
}

func (r *fakeRemote) CancelResponse(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels++
	return nil
}

func (r *fakeRemote) CreateResponse(_ context.Context, instructions string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, instructions)
	return nil
}

func (r *fakeRemote) CreateItem(_ context.Context, previousItemID string, item voicelive.ConversationItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	r.itemPrevs = append(r.itemPrevs, previousItemID)
	return nil
}

func (r *fakeRemote) Recv(ctx context.Context) (*voicelive.ServerEvent, error) {
	select {
	case evt := <-r.events:
		return evt, nil
	case <-r.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *fakeRemote) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}

func (r *fakeRemote) push(t *testing.T, evt *voicelive.ServerEvent) {
	t.Helper()
	select {
	case r.events <- evt:
	case <-time.After(time.Second):
		t.Fatal("remote event buffer full")
	}
}

func (r *fakeRemote) snapshot() (sessions []voicelive.SessionConfig, audio []string, items []voicelive.ConversationItem, responses []string, cancels int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]voicelive.SessionConfig(nil), r.sessions...),
		append([]string(nil), r.audio...),
		append([]voicelive.ConversationItem(nil), r.items...),
		append([]string(nil), r.responses...),
		r.cancels
}

type harness struct {
	t        *testing.T
	client   *fakeClient
	remote   *fakeRemote
	done     chan error
	finished chan struct{}
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	registry, err := functions.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	client := newFakeClient()
	remote := newFakeRemote()
	opts := Options{
		Client:              client,
		Remote:              remote,
		Registry:            registry,
		Voice:               "en-US-AvaNeural",
		Instructions:        "be brief",
		ShowTranscriptions:  true,
		SampleRateHz:        24000,
		FunctionCallTimeout: 200 * time.Millisecond,
		InitWait:            100 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	sess, err := NewSession(opts)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	h := &harness{
		t:        t,
		client:   client,
		remote:   remote,
		done:     make(chan error, 1),
		finished: make(chan struct{}),
	}
	go func() {
		h.done <- sess.Run(context.Background())
		close(h.finished)
	}()
	t.Cleanup(func() {
		client.Close()
		remote.Close()
		select {
		case <-h.finished:
		case <-time.After(2 * time.Second):
			t.Error("session did not shut down")
		}
	})
	return h
}

// start scripts a first ping frame so the init window closes immediately,
// then waits for the handshake messages.
func (h *harness) start() {
	h.t.Helper()
	h.client.pushText(h.t, `{"type":"ping"}`)
	h.waitFor("ready")
	h.waitFor("system_message")
}

func (h *harness) waitFor(msgType string) map[string]any {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range h.client.messages() {
			if m["type"] == msgType {
				return m
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatalf("no %q message received; got %v", msgType, h.client.messages())
	return nil
}

func (h *harness) waitForState(state string) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range h.client.messages() {
			if m["type"] == "assistant_state" && m["state"] == state {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatalf("state %q never reached; got %v", state, h.client.messages())
}

func (h *harness) countMessages(msgType string) int {
	n := 0
	for _, m := range h.client.messages() {
		if m["type"] == msgType {
			n++
		}
	}
	return n
}

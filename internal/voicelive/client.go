package voicelive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	dialTimeout     = 15 * time.Second
	writeTimeout    = 10 * time.Second
	maxPayloadBytes = 16 << 20
	recvBuffer      = 32
)

// Config holds the parameters needed to open a Voice Live connection.
type Config struct {
	// Endpoint is the websocket endpoint, e.g. "wss://api.voicelive.com/v1".
	Endpoint string

	// Model selects the realtime model for the session.
	Model string

	// APIKey is the credential presented in the api-key header.
	APIKey string

	// Logger is optional; defaults to slog.Default().
	Logger *slog.Logger
}

// Conn is one live connection to the remote service. A Conn belongs to
// exactly one session: send operations are mutex-guarded so they are safe to
// invoke from the goroutine that is concurrently receiving, but a Conn must
// never be shared across sessions.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	events   chan *ServerEvent
	readErr  error
	readDone chan struct{}

	// stop is closed by Close so the read loop can bail out of a blocked
	// event send once nobody is draining the channel.
	stop      chan struct{}
	closeOnce sync.Once
}

// Dial opens a websocket connection to the Voice Live endpoint and starts
// the receive loop.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("voicelive: endpoint is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("voicelive: model is required")
	}

	wsURL, err := buildURL(cfg.Endpoint, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("voicelive: invalid endpoint: %w", err)
	}

	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("api-key", cfg.APIKey)
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	ws, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("voicelive: dial failed with status %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("voicelive: dial failed: %w", err)
	}
	ws.SetReadLimit(maxPayloadBytes)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{
		ws:       ws,
		logger:   logger,
		events:   make(chan *ServerEvent, recvBuffer),
		readDone: make(chan struct{}),
		stop:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func buildURL(endpoint, model string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// readLoop decodes wire messages into events until the connection fails or
// closes. Undecodable messages are skipped rather than terminating the loop.
func (c *Conn) readLoop() {
	defer close(c.readDone)
	defer close(c.events)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		evt, err := ParseServerEvent(data)
		if err != nil {
			c.logger.Debug("skipping undecodable server event", "error", err)
			continue
		}
		select {
		case c.events <- evt:
		case <-c.stop:
			return
		}
	}
}

// Recv returns the next server event, blocking until one arrives, the
// context ends, or the connection terminates.
func (c *Conn) Recv(ctx context.Context) (*ServerEvent, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case evt, ok := <-c.events:
		if !ok {
			if c.readErr != nil {
				return nil, fmt.Errorf("voicelive: connection ended: %w", c.readErr)
			}
			return nil, fmt.Errorf("voicelive: connection closed")
		}
		return evt, nil
	}
}

// UpdateSession submits the session configuration.
func (c *Conn) UpdateSession(ctx context.Context, session SessionConfig) error {
	return c.send(ctx, clientEvent{Type: "session.update", Session: &session})
}

// AppendInputAudio appends a base64 PCM chunk to the remote input buffer.
func (c *Conn) AppendInputAudio(ctx context.Context, audioB64 string) error {
	return c.send(ctx, clientEvent{Type: "input_audio_buffer.append", Audio: audioB64})
}

// CancelResponse cancels any in-flight response generation.
func (c *Conn) CancelResponse(ctx context.Context) error {
	return c.send(ctx, clientEvent{Type: "response.cancel"})
}

// CreateResponse requests generation of a new turn, optionally with extra
// instructions for that turn only.
func (c *Conn) CreateResponse(ctx context.Context, instructions string) error {
	evt := clientEvent{Type: "response.create"}
	if instructions != "" {
		evt.Response = &responseParams{Instructions: instructions}
	}
	return c.send(ctx, evt)
}

// CreateItem appends a conversation item after previousItemID.
func (c *Conn) CreateItem(ctx context.Context, previousItemID string, item ConversationItem) error {
	return c.send(ctx, clientEvent{
		Type:           "conversation.item.create",
		PreviousItemID: previousItemID,
		Item:           &item,
	})
}

func (c *Conn) send(ctx context.Context, evt clientEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(evt); err != nil {
		return fmt.Errorf("voicelive: send %s: %w", evt.Type, err)
	}
	return nil
}

// Close closes the connection. It is safe to call multiple times and
// unblocks any pending Recv.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.writeMu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
	return nil
}

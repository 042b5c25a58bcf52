// Package bridge relays one voice session between a connected client and the
// Azure Voice Live service. A session runs two pumps concurrently: one
// forwarding client audio upstream, one translating remote server events into
// client messages. Either side disconnecting tears the whole session down.
package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/michalmar/azure-ai-voicelive/internal/functions"
	"github.com/michalmar/azure-ai-voicelive/internal/observability"
	"github.com/michalmar/azure-ai-voicelive/internal/voicelive"
)

// RemoteConn is the upstream Voice Live connection as seen by the bridge.
// *voicelive.Conn satisfies it.
type RemoteConn interface {
	UpdateSession(ctx context.Context, session voicelive.SessionConfig) error
	AppendInputAudio(ctx context.Context, audioB64 string) error
	CancelResponse(ctx context.Context) error
	CreateResponse(ctx context.Context, instructions string) error
	CreateItem(ctx context.Context, previousItemID string, item voicelive.ConversationItem) error
	Recv(ctx context.Context) (*voicelive.ServerEvent, error)
	Close() error
}

// ClientConn is the client websocket as seen by the bridge.
// *websocket.Conn satisfies it.
type ClientConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// Message types mirrored from gorilla/websocket so the bridge does not
// depend on the transport package directly.
const (
	textMessage   = 1
	binaryMessage = 2
)

// Options configures one bridge session.
type Options struct {
	Client   ClientConn
	Remote   RemoteConn
	Registry *functions.Registry
	Logger   *slog.Logger
	Metrics  *observability.Metrics

	Voice              string
	Instructions       string
	ShowTranscriptions bool
	SampleRateHz       int
	TranscriptionModel string

	// FunctionCallTimeout bounds each wait inside the function-call
	// coordination sequence. Zero means 10 seconds.
	FunctionCallTimeout time.Duration

	// InitWait bounds how long the session waits for the client's optional
	// init frame before falling back to configured defaults. Zero means 10
	// seconds.
	InitWait time.Duration

	// Greeting, when non-empty, is sent as response instructions whenever a
	// session starts with proactive greeting enabled.
	Greeting string
}

// Session is one live client conversation.
type Session struct {
	id       string
	client   *clientWriter
	clientRd ClientConn
	remote   RemoteConn
	registry *functions.Registry
	logger   *slog.Logger
	metrics  *observability.Metrics
	acc      *Accumulator
	opts     Options

	// Flipped by the remote pump, read by the client pump's stop handler.
	sessionReady atomic.Bool

	// Function call state, touched only from the remote pump goroutine.
	functionCallInProgress bool
	activeCallID           string

	// Set once the client requests a proactive greeting during init.
	greetClient bool
	voice       string

	// Non-nil when the init window expired with a client read in flight.
	pendingFirst chan clientFrameMsg
}

const defaultWait = 10 * time.Second

// NewSession wires up a session. Run must still be called to start it.
func NewSession(opts Options) (*Session, error) {
	if opts.Client == nil || opts.Remote == nil {
		return nil, errors.New("bridge: client and remote connections are required")
	}
	if opts.Registry == nil {
		return nil, errors.New("bridge: function registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.FunctionCallTimeout <= 0 {
		opts.FunctionCallTimeout = defaultWait
	}
	if opts.InitWait <= 0 {
		opts.InitWait = defaultWait
	}
	if opts.SampleRateHz <= 0 {
		opts.SampleRateHz = 24000
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		client:   &clientWriter{conn: opts.Client},
		clientRd: opts.Client,
		remote:   opts.Remote,
		registry: opts.Registry,
		logger:   logger.With("session_id", id),
		metrics:  opts.Metrics,
		acc:      NewAccumulator(defaultAccumulatorCap, logger),
		opts:     opts,
		voice:    opts.Voice,
	}, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Run drives the session until either side disconnects or ctx is canceled.
// It always closes both connections before returning.
func (s *Session) Run(ctx context.Context) error {
	start := time.Now()
	s.metrics.SessionStarted()
	outcome := "ok"
	defer func() {
		s.metrics.SessionEnded(outcome, time.Since(start))
	}()

	pending, err := s.awaitInit(ctx)
	if err != nil {
		outcome = "init_failed"
		s.closeBoth()
		return err
	}

	if err := s.configureRemote(ctx); err != nil {
		outcome = "configure_failed"
		s.client.sendError("Unable to configure the voice assistant session.")
		s.closeBoth()
		return err
	}

	// The greeting frames are the first writes to the client. A failure here
	// means the socket is already gone, so pumping is pointless.
	if err := s.client.send(clientMessage{Type: "ready", Message: "Voice assistant ready"}); err != nil {
		outcome = "client_gone"
		s.closeBoth()
		return fmt.Errorf("send ready: %w", err)
	}
	if err := s.client.send(clientMessage{
		Type:    "system_message",
		Message: "Connected to Azure Voice Live. You can start speaking!",
	}); err != nil {
		outcome = "client_gone"
		s.closeBoth()
		return fmt.Errorf("send welcome: %w", err)
	}

	if s.greetClient && s.opts.Greeting != "" {
		if err := s.remote.CreateResponse(ctx, s.opts.Greeting); err != nil {
			s.logger.Warn("proactive greeting failed", "error", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	go func() { errc <- s.clientPump(ctx, pending) }()
	go func() { errc <- s.remotePump(ctx) }()

	first := <-errc
	cancel()
	s.closeBoth()
	<-errc

	if first != nil {
		outcome = "error"
	}
	s.logger.Info("session ended", "duration", time.Since(start).Round(time.Millisecond))
	return first
}

// clientFrameMsg is one raw frame read from the client transport.
type clientFrameMsg struct {
	msgType int
	data    []byte
	err     error
}

// awaitInit waits for the optional first client frame. An init frame selects
// the voice and greeting behavior. Any other frame is returned for the client
// pump to process. A quiet client falls back to defaults after InitWait; the
// pending reader goroutine is handed to the client pump so no frame is lost.
// A read deadline is not used here because a timed-out websocket read poisons
// the connection.
func (s *Session) awaitInit(ctx context.Context) (*clientFrameMsg, error) {
	firstCh := make(chan clientFrameMsg, 1)
	go func() {
		msgType, data, err := s.clientRd.ReadMessage()
		firstCh <- clientFrameMsg{msgType: msgType, data: data, err: err}
	}()

	timer := time.NewTimer(s.opts.InitWait)
	defer timer.Stop()
	select {
	case first := <-firstCh:
		if first.err != nil {
			return nil, fmt.Errorf("client disconnected during init: %w", first.err)
		}
		if first.msgType != textMessage {
			return &first, nil
		}
		var frame clientFrame
		if err := json.Unmarshal(first.data, &frame); err != nil || frame.Type != "init" {
			return &first, nil
		}
		if frame.VoiceID != "" {
			s.voice = frame.VoiceID
		}
		s.greetClient = frame.ProactiveGreeting
		s.logger.Info("session initialized", "voice", s.voice, "greeting", s.greetClient)
		return nil, nil
	case <-timer.C:
		s.logger.Debug("no init frame, using defaults")
		s.pendingFirst = firstCh
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) configureRemote(ctx context.Context) error {
	cfg := voicelive.SessionConfig{
		Modalities:        []voicelive.Modality{voicelive.ModalityText, voicelive.ModalityAudio},
		Instructions:      s.opts.Instructions,
		Voice:             voicelive.StandardVoice(s.voice),
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		InputAudioEchoCancel: &voicelive.EchoCancellation{
			Type: "server_echo_cancellation",
		},
		TurnDetection: voicelive.DefaultServerVAD(),
		ToolChoice:    "auto",
	}
	for _, def := range s.registry.Definitions() {
		cfg.Tools = append(cfg.Tools, voicelive.Tool{
			Type:        "function",
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}
	if s.opts.ShowTranscriptions {
		model := s.opts.TranscriptionModel
		if model == "" {
			model = "whisper-1"
		}
		cfg.InputAudioTranscription = &voicelive.InputToTextSettings{Model: model}
	}
	return s.remote.UpdateSession(ctx, cfg)
}

// clientPump reads client frames and forwards audio upstream. It returns nil
// on a clean disconnect or stop request.
func (s *Session) clientPump(ctx context.Context, pending *clientFrameMsg) error {
	if s.pendingFirst != nil {
		// The init window expired with a read still in flight; pick up its
		// result before reading directly.
		select {
		case first := <-s.pendingFirst:
			if first.err != nil {
				s.logger.Debug("client read ended", "error", first.err)
				return nil
			}
			pending = &first
		case <-ctx.Done():
			return nil
		}
	}
	if pending != nil {
		if done := s.handleClientFrame(ctx, pending.msgType, pending.data); done {
			return nil
		}
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		msgType, data, err := s.clientRd.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Debug("client read ended", "error", err)
			return nil
		}
		if done := s.handleClientFrame(ctx, msgType, data); done {
			return nil
		}
	}
}

// handleClientFrame processes one client frame. It reports true when the
// session should end.
func (s *Session) handleClientFrame(ctx context.Context, msgType int, data []byte) bool {
	frame := clientFrame{}
	switch msgType {
	case binaryMessage:
		frame.Type = "audio_chunk"
		frame.Audio = base64.StdEncoding.EncodeToString(data)
	case textMessage:
		if err := json.Unmarshal(data, &frame); err != nil {
			s.metrics.Error("bridge", "invalid_payload")
			s.client.sendError("Invalid payload received")
			return false
		}
	default:
		return false
	}
	s.metrics.ClientFrame(frame.Type)

	switch frame.Type {
	case "audio_chunk":
		s.handleAudioChunk(ctx, frame)
	case "ping":
		s.client.send(clientMessage{Type: "pong"})
	case "stop":
		s.logger.Info("client requested stop")
		if s.sessionReady.Load() {
			if err := s.remote.CancelResponse(ctx); err != nil {
				s.logger.Debug("cancel on stop failed", "error", err)
			}
		}
		return true
	default:
		s.client.sendError("Unsupported message type: " + frame.Type)
	}
	return false
}

func (s *Session) handleAudioChunk(ctx context.Context, frame clientFrame) {
	if frame.Audio == "" {
		s.client.sendError("Audio payload missing or invalid")
		return
	}
	if err := s.remote.AppendInputAudio(ctx, frame.Audio); err != nil {
		s.logger.Error("audio forward failed", "error", err)
		s.metrics.Error("bridge", "audio_forward")
		s.client.sendError("Unable to forward audio to assistant")
		return
	}
	s.metrics.AudioForwarded("inbound", base64.StdEncoding.DecodedLen(len(frame.Audio)))
	s.client.send(ackMessage{Type: "ack", Sequence: frame.Sequence})
}

// remotePump receives remote events and dispatches them until the remote
// stream ends or ctx is canceled.
func (s *Session) remotePump(ctx context.Context) error {
	for {
		evt, err := s.remote.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			s.logger.Error("remote stream ended", "error", err)
			s.metrics.Error("bridge", "remote_stream")
			s.client.sendError("Azure Voice Live connection ended unexpectedly")
			return err
		}
		if err := s.handleEvent(ctx, evt); err != nil {
			return err
		}
	}
}

func (s *Session) closeBoth() {
	if err := s.remote.Close(); err != nil {
		s.logger.Debug("remote close", "error", err)
	}
	if err := s.clientRd.Close(); err != nil {
		s.logger.Debug("client close", "error", err)
	}
}

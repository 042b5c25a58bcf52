// Package assistant implements a small rule-based responder. It backs the
// mock websocket session and the /api/interact endpoint so the client side
// can be exercised without Azure credentials.
package assistant

import (
	"math/rand"
	"time"

	"github.com/michalmar/azure-ai-voicelive/internal/audio"
)

var greetings = []string{
	"Hello there! I'm your friendly voice assistant.",
	"Hi! Ready to chat whenever you are.",
	"Hey! Let's talk, I'm all ears.",
}

var responses = []string{
	"I heard you loud and clear.",
	"That's interesting! Tell me more.",
	"Thanks for sharing that with me.",
}

// chunksPerTurn is how many audio chunks the mock collects before it crafts
// a reply.
const chunksPerTurn = 3

// Turn is one simulated conversational exchange.
type Turn struct {
	Transcript string
	Response   string
	// AudioChunks are placeholder TTS segments, each a complete WAV file.
	AudioChunks [][]byte
}

// Interaction is the reply shape of the text endpoint.
type Interaction struct {
	Summary string `json:"summary"`
	Reply   string `json:"reply"`
	Echo    string `json:"echo"`
}

// Mock is a deterministic placeholder assistant. It is not safe for
// concurrent use; give each session its own instance.
type Mock struct {
	rand   *rand.Rand
	now    func() time.Time
	chunks int
}

// NewMock seeds a mock assistant. The same seed yields the same replies.
func NewMock(seed int64) *Mock {
	return &Mock{
		rand: rand.New(rand.NewSource(seed)),
		now:  time.Now,
	}
}

func (m *Mock) transcript() string {
	return "You spoke to me at " + m.now().Format("3:04 PM") + "."
}

func (m *Mock) reply() string {
	return greetings[m.rand.Intn(len(greetings))] + " " + responses[m.rand.Intn(len(responses))]
}

// Greeting returns the session welcome line.
func (m *Mock) Greeting() string {
	return greetings[m.rand.Intn(len(greetings))]
}

// HandleInteraction answers one text message.
func (m *Mock) HandleInteraction(message string) Interaction {
	return Interaction{
		Summary: m.transcript(),
		Reply:   m.reply(),
		Echo:    message,
	}
}

// OnAudioChunk consumes one client audio chunk and returns a turn once
// enough chunks have accumulated, nil otherwise.
func (m *Mock) OnAudioChunk(payload []byte) *Turn {
	m.chunks++
	if m.chunks < chunksPerTurn {
		return nil
	}
	m.chunks = 0

	chunks := make([][]byte, 3)
	for i := range chunks {
		chunks[i] = audio.ToneWAV(320, 440.0+30.0*float64(i), 0.28)
	}
	return &Turn{
		Transcript:  m.transcript(),
		Response:    m.reply(),
		AudioChunks: chunks,
	}
}

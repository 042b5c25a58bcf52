package bridge

import (
	"log/slog"
	"strings"
	"sync"
)

// defaultAccumulatorCap bounds how many in-flight responses and transcript
// segments are buffered before the oldest entries are evicted. Entries only
// pile up when the remote never sends the matching completion event.
const defaultAccumulatorCap = 64

// SegmentKey identifies one assistant transcript segment. A single response
// can carry several output items and a single item several outputs, so the
// key is the full triple.
type SegmentKey struct {
	ResponseID  string
	ItemID      string
	OutputIndex int
}

// Accumulator buffers streamed response text and assistant transcript deltas
// until the matching done event finalizes them.
type Accumulator struct {
	mu sync.Mutex

	capacity int
	logger   *slog.Logger

	responses     map[string]*strings.Builder
	responseOrder []string

	segments     map[SegmentKey]*strings.Builder
	segmentOrder []SegmentKey
}

func NewAccumulator(capacity int, logger *slog.Logger) *Accumulator {
	if capacity <= 0 {
		capacity = defaultAccumulatorCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Accumulator{
		capacity:  capacity,
		logger:    logger,
		responses: make(map[string]*strings.Builder),
		segments:  make(map[SegmentKey]*strings.Builder),
	}
}

// StartResponse opens an empty buffer for a response. Starting an already
// open response resets its buffer.
func (a *Accumulator) StartResponse(responseID string) {
	if responseID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.responses[responseID]; !ok {
		a.responseOrder = append(a.responseOrder, responseID)
		a.evictResponsesLocked()
	}
	a.responses[responseID] = &strings.Builder{}
}

// AppendResponseDelta appends streamed text to an open response. Deltas for
// responses that were never started are dropped.
func (a *Accumulator) AppendResponseDelta(responseID, delta string) {
	if responseID == "" || delta == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.responses[responseID]
	if !ok {
		a.logger.Debug("text delta for unknown response", "response_id", responseID)
		return
	}
	buf.WriteString(delta)
}

// FinishResponse removes the response buffer and returns its accumulated
// text, or "" when the response was never started.
func (a *Accumulator) FinishResponse(responseID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.responses[responseID]
	if !ok {
		return ""
	}
	delete(a.responses, responseID)
	a.removeResponseOrderLocked(responseID)
	return buf.String()
}

// AppendTranscriptDelta appends streamed transcript text. The segment is
// created on its first delta.
func (a *Accumulator) AppendTranscriptDelta(key SegmentKey, delta string) {
	if delta == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.segments[key]
	if !ok {
		buf = &strings.Builder{}
		a.segments[key] = buf
		a.segmentOrder = append(a.segmentOrder, key)
		a.evictSegmentsLocked()
	}
	buf.WriteString(delta)
}

// FinishTranscript removes the segment buffer and returns its accumulated
// text, or "" when no delta ever arrived for the key.
func (a *Accumulator) FinishTranscript(key SegmentKey) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.segments[key]
	if !ok {
		return ""
	}
	delete(a.segments, key)
	a.removeSegmentOrderLocked(key)
	return buf.String()
}

// Pending reports how many responses and segments are currently buffered.
func (a *Accumulator) Pending() (responses, segments int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.responses), len(a.segments)
}

func (a *Accumulator) evictResponsesLocked() {
	for len(a.responseOrder) > a.capacity {
		oldest := a.responseOrder[0]
		a.responseOrder = a.responseOrder[1:]
		delete(a.responses, oldest)
		a.logger.Warn("evicting unfinished response buffer", "response_id", oldest)
	}
}

func (a *Accumulator) evictSegmentsLocked() {
	for len(a.segmentOrder) > a.capacity {
		oldest := a.segmentOrder[0]
		a.segmentOrder = a.segmentOrder[1:]
		delete(a.segments, oldest)
		a.logger.Warn("evicting unfinished transcript buffer",
			"response_id", oldest.ResponseID, "item_id", oldest.ItemID)
	}
}

func (a *Accumulator) removeResponseOrderLocked(responseID string) {
	for i, id := range a.responseOrder {
		if id == responseID {
			a.responseOrder = append(a.responseOrder[:i], a.responseOrder[i+1:]...)
			return
		}
	}
}

func (a *Accumulator) removeSegmentOrderLocked(key SegmentKey) {
	for i, k := range a.segmentOrder {
		if k == key {
			a.segmentOrder = append(a.segmentOrder[:i], a.segmentOrder[i+1:]...)
			return
		}
	}
}

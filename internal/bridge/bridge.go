package bridge

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicelink/mic-bridge/internal/audio"
	"github.com/voicelink/mic-bridge/internal/capture"
	"github.com/voicelink/mic-bridge/internal/observability"
)

// ErrNotReady is returned when streaming is requested without a
// connected transport or an active capture session.
var ErrNotReady = errors.New("bridge not ready")

// Transport delivers binary audio frames to the remote server. One
// SendBinaryFrame call per chunk; implementations must be safe for use
// from the pipeline goroutine.
type Transport interface {
	SendBinaryFrame(data []byte) error
}

// TurnGate reports whether it is currently this client's turn to speak.
// Chunks arriving while CanSend is false are dropped silently.
type TurnGate interface {
	CanSend() bool
}

// Status is a point-in-time snapshot of the streaming bridge.
type Status struct {
	IsStreaming       bool
	RespectsTurnState bool
	ChunksProcessed   uint64
	BytesSent         uint64
	LastChunkTime     time.Time
}

// Config controls bridge behavior.
type Config struct {
	// RespectTurnState enables turn gating when a TurnGate is attached.
	RespectTurnState bool

	// StopOnSendFailure halts streaming on the first transport send
	// error instead of continuing with the next chunk.
	StopOnSendFailure bool
}

// Bridge forwards capture chunks to a transport as binary PCM16 frames,
// little-endian, one frame per chunk. It subscribes to the capture
// service while streaming and detaches when stopped.
type Bridge struct {
	capture *capture.Service
	logger  zerolog.Logger

	mu               sync.RWMutex
	transport        Transport
	gate             TurnGate
	respectTurnState bool
	stopOnSendErr    bool
	streaming        bool
	unsubscribe      func()
	chunksProcessed  uint64
	bytesSent        uint64
	lastChunkTime    time.Time

	handlerMu     sync.Mutex
	nextID        int
	errorHandlers []errorSubscription
}

type errorSubscription struct {
	id int
	fn func(error)
}

// NewBridge creates a bridge over the given capture service.
func NewBridge(capSvc *capture.Service, cfg Config, logger zerolog.Logger) *Bridge {
	return &Bridge{
		capture:          capSvc,
		logger:           logger.With().Str("component", "bridge").Logger(),
		respectTurnState: cfg.RespectTurnState,
		stopOnSendErr:    cfg.StopOnSendFailure,
	}
}

// SetClient attaches the transport. A nil transport detaches it and
// stops streaming if active.
func (b *Bridge) SetClient(t Transport) {
	b.mu.Lock()
	b.transport = t
	stop := t == nil && b.streaming
	b.mu.Unlock()

	if stop {
		b.StopStreaming()
	}
}

// SetTurnGate attaches the turn-state source consulted before each send.
func (b *Bridge) SetTurnGate(g TurnGate) {
	b.mu.Lock()
	b.gate = g
	b.mu.Unlock()
}

// SetRespectTurnState toggles turn gating at runtime.
func (b *Bridge) SetRespectTurnState(respect bool) {
	b.mu.Lock()
	b.respectTurnState = respect
	b.mu.Unlock()
}

// StartStreaming begins forwarding capture chunks to the transport.
// Idempotent while streaming. Fails with ErrNotReady when no transport
// is attached or capture is not recording.
func (b *Bridge) StartStreaming() error {
	b.mu.Lock()
	if b.streaming {
		b.mu.Unlock()
		return nil
	}
	if b.transport == nil {
		b.mu.Unlock()
		return ErrNotReady
	}
	b.mu.Unlock()

	if !b.capture.Status().IsRecording {
		return ErrNotReady
	}

	unsubscribe := b.capture.OnChunk(b.handleChunk)

	b.mu.Lock()
	b.streaming = true
	b.unsubscribe = unsubscribe
	b.mu.Unlock()

	b.logger.Info().Msg("Streaming started")
	return nil
}

// StopStreaming detaches from the capture service. No-op when not
// streaming.
func (b *Bridge) StopStreaming() {
	b.mu.Lock()
	if !b.streaming {
		b.mu.Unlock()
		return
	}
	b.streaming = false
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	b.logger.Info().Msg("Streaming stopped")
}

// Status returns a snapshot of the bridge counters and flags.
func (b *Bridge) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Status{
		IsStreaming:       b.streaming,
		RespectsTurnState: b.respectTurnState,
		ChunksProcessed:   b.chunksProcessed,
		BytesSent:         b.bytesSent,
		LastChunkTime:     b.lastChunkTime,
	}
}

// OnError registers a handler for transport send failures. Returns an
// unsubscribe func.
func (b *Bridge) OnError(h func(err error)) func() {
	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()
	b.nextID++
	id := b.nextID
	b.errorHandlers = append(b.errorHandlers, errorSubscription{id, h})
	return func() { b.removeErrorHandler(id) }
}

func (b *Bridge) removeErrorHandler(id int) {
	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()
	for i, sub := range b.errorHandlers {
		if sub.id == id {
			b.errorHandlers = append(b.errorHandlers[:i], b.errorHandlers[i+1:]...)
			return
		}
	}
}

func (b *Bridge) dispatchError(err error) {
	b.handlerMu.Lock()
	handlers := make([]errorSubscription, len(b.errorHandlers))
	copy(handlers, b.errorHandlers)
	b.handlerMu.Unlock()
	for _, sub := range handlers {
		sub.fn(err)
	}
}

// handleChunk runs on the capture pipeline goroutine, once per chunk in
// production order.
func (b *Bridge) handleChunk(samples []int16) {
	b.mu.RLock()
	transport := b.transport
	gate := b.gate
	respect := b.respectTurnState
	stopOnErr := b.stopOnSendErr
	b.mu.RUnlock()

	if transport == nil {
		return
	}

	// Gated chunks disappear without touching the counters.
	if respect && gate != nil && !gate.CanSend() {
		observability.RecordChunkDropped("turn_gated")
		return
	}

	data := audio.SamplesToBytes(samples)
	if err := transport.SendBinaryFrame(data); err != nil {
		observability.RecordChunkDropped("send_error")
		observability.RecordError("send_error", "bridge")
		b.logger.Warn().Err(err).Msg("Failed to send audio frame")
		b.dispatchError(err)
		if stopOnErr {
			b.StopStreaming()
		}
		return
	}

	b.mu.Lock()
	b.chunksProcessed++
	b.bytesSent += uint64(len(data))
	b.lastChunkTime = time.Now()
	b.mu.Unlock()

	observability.RecordChunkSent(len(data))
}

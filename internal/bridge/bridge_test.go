package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicelink/mic-bridge/internal/capture"
)

type fakeTransport struct {
	mu      sync.Mutex
	frames  [][]byte
	sendErr error
}

func (f *fakeTransport) SendBinaryFrame(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeTransport) sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

type fakeGate struct {
	mu   sync.Mutex
	open bool
}

func (g *fakeGate) CanSend() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

func (g *fakeGate) set(open bool) {
	g.mu.Lock()
	g.open = open
	g.mu.Unlock()
}

// stubInput is a minimal capture backend that succeeds immediately and
// delivers no frames; bridge tests feed handleChunk directly.
type stubInput struct {
	out chan<- []float32
}

func (s *stubInput) Start(ctx context.Context, deviceID string, sampleRate int, out chan<- []float32) error {
	s.out = out
	return nil
}
func (s *stubInput) Stop() error                            { return nil }
func (s *stubInput) ListDevices() ([]capture.Device, error) { return nil, nil }
func (s *stubInput) Close() error                           { return nil }

func newTestBridge(t *testing.T, cfg Config) (*Bridge, *capture.Service, *stubInput) {
	t.Helper()
	capCfg := capture.DefaultConfig()
	capCfg.NoiseSuppression = false
	capCfg.AutoGainControl = false
	input := &stubInput{}
	capSvc := capture.NewService(capCfg, input, zerolog.Nop())
	return NewBridge(capSvc, cfg, zerolog.Nop()), capSvc, input
}

func TestHandleChunkCounters(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	transport := &fakeTransport{}
	b.SetClient(transport)

	chunk := make([]int16, 1600)
	for i := 0; i < 5; i++ {
		b.handleChunk(chunk)
	}

	status := b.Status()
	if status.ChunksProcessed != 5 {
		t.Errorf("Expected 5 chunks processed, got %d", status.ChunksProcessed)
	}
	if status.BytesSent != 16000 {
		t.Errorf("Expected 16000 bytes sent, got %d", status.BytesSent)
	}
	if status.LastChunkTime.IsZero() {
		t.Error("Expected LastChunkTime set after send")
	}
	if len(transport.sent()) != 5 {
		t.Errorf("Expected 5 frames on transport, got %d", len(transport.sent()))
	}
}

func TestHandleChunkTurnGated(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{RespectTurnState: true})
	transport := &fakeTransport{}
	gate := &fakeGate{open: false}
	b.SetClient(transport)
	b.SetTurnGate(gate)

	chunk := make([]int16, 1600)
	b.handleChunk(chunk)

	status := b.Status()
	if status.ChunksProcessed != 0 || status.BytesSent != 0 {
		t.Errorf("Expected gated chunk to leave counters untouched, got %d/%d",
			status.ChunksProcessed, status.BytesSent)
	}
	if len(transport.sent()) != 0 {
		t.Error("Expected no frames sent while gated")
	}

	gate.set(true)
	b.handleChunk(chunk)
	if status := b.Status(); status.ChunksProcessed != 1 {
		t.Errorf("Expected 1 chunk after gate opened, got %d", status.ChunksProcessed)
	}
}

func TestGateIgnoredWhenRespectDisabled(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{RespectTurnState: false})
	transport := &fakeTransport{}
	b.SetClient(transport)
	b.SetTurnGate(&fakeGate{open: false})

	b.handleChunk(make([]int16, 1600))
	if status := b.Status(); status.ChunksProcessed != 1 {
		t.Errorf("Expected chunk sent with gating disabled, got %d", status.ChunksProcessed)
	}
}

func TestSendFailureContinues(t *testing.T) {
	b, capSvc, _ := newTestBridge(t, Config{})
	sendErr := errors.New("connection reset")
	transport := &fakeTransport{sendErr: sendErr}
	b.SetClient(transport)

	if err := capSvc.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	defer capSvc.Destroy()
	if err := b.StartStreaming(); err != nil {
		t.Fatalf("StartStreaming failed: %v", err)
	}

	errCh := make(chan error, 4)
	b.OnError(func(err error) { errCh <- err })

	chunk := make([]int16, 1600)
	b.handleChunk(chunk)

	select {
	case err := <-errCh:
		if !errors.Is(err, sendErr) {
			t.Errorf("Expected send error event, got %v", err)
		}
	default:
		t.Fatal("Expected error event on send failure")
	}

	// Default policy: keep streaming, next chunk goes out once the
	// transport recovers.
	if !b.Status().IsStreaming {
		t.Error("Expected streaming to continue after send failure")
	}
	transport.mu.Lock()
	transport.sendErr = nil
	transport.mu.Unlock()

	b.handleChunk(chunk)
	if status := b.Status(); status.ChunksProcessed != 1 {
		t.Errorf("Expected 1 chunk after recovery, got %d", status.ChunksProcessed)
	}
}

func TestSendFailureStopsWhenConfigured(t *testing.T) {
	b, capSvc, _ := newTestBridge(t, Config{StopOnSendFailure: true})
	transport := &fakeTransport{sendErr: errors.New("connection reset")}
	b.SetClient(transport)

	if err := capSvc.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	defer capSvc.Destroy()
	if err := b.StartStreaming(); err != nil {
		t.Fatalf("StartStreaming failed: %v", err)
	}

	b.handleChunk(make([]int16, 1600))

	if b.Status().IsStreaming {
		t.Error("Expected streaming stopped after send failure")
	}
}

func TestStartStreamingNotReady(t *testing.T) {
	b, capSvc, _ := newTestBridge(t, Config{})

	// No transport attached
	if err := b.StartStreaming(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady without transport, got %v", err)
	}

	// Transport attached but capture not recording
	b.SetClient(&fakeTransport{})
	if err := b.StartStreaming(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady without active capture, got %v", err)
	}
	_ = capSvc
}

func TestStartStreamingIdempotent(t *testing.T) {
	b, capSvc, _ := newTestBridge(t, Config{})
	b.SetClient(&fakeTransport{})

	if err := capSvc.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	defer capSvc.Destroy()

	if err := b.StartStreaming(); err != nil {
		t.Fatalf("StartStreaming failed: %v", err)
	}
	if err := b.StartStreaming(); err != nil {
		t.Errorf("Expected no-op on second StartStreaming, got %v", err)
	}
	if !b.Status().IsStreaming {
		t.Error("Expected streaming active")
	}
}

func TestSetClientNilStopsStreaming(t *testing.T) {
	b, capSvc, _ := newTestBridge(t, Config{})
	b.SetClient(&fakeTransport{})

	if err := capSvc.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	defer capSvc.Destroy()
	if err := b.StartStreaming(); err != nil {
		t.Fatalf("StartStreaming failed: %v", err)
	}

	b.SetClient(nil)
	if b.Status().IsStreaming {
		t.Error("Expected streaming stopped after transport detach")
	}
}

func TestEndToEndCaptureToTransport(t *testing.T) {
	b, capSvc, input := newTestBridge(t, Config{})
	transport := &fakeTransport{}
	b.SetClient(transport)

	if err := capSvc.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	defer capSvc.Destroy()
	if err := b.StartStreaming(); err != nil {
		t.Fatalf("StartStreaming failed: %v", err)
	}

	// Two full chunks worth of device frames
	input.out <- make([]float32, 1600)
	input.out <- make([]float32, 1600)

	deadline := time.Now().Add(time.Second)
	for len(transport.sent()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for frames, got %d", len(transport.sent()))
		}
		time.Sleep(5 * time.Millisecond)
	}

	for i, frame := range transport.sent() {
		if len(frame) != 3200 {
			t.Errorf("Frame %d: expected 3200 bytes, got %d", i, len(frame))
		}
	}

	b.StopStreaming()
	input.out <- make([]float32, 1600)
	time.Sleep(50 * time.Millisecond)
	if len(transport.sent()) != 2 {
		t.Errorf("Expected no frames after StopStreaming, got %d", len(transport.sent()))
	}
}

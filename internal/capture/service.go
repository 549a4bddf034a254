package capture

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/voicelink/mic-bridge/internal/audio"
	"github.com/voicelink/mic-bridge/internal/observability"
)

const (
	// framesBacklog is the device-to-pipeline channel depth. The device
	// read loop drops frames when it fills.
	framesBacklog = 64

	// levelEpsilon is the minimum level change worth a level event.
	levelEpsilon = 0.01

	// agcTargetLevel is the nominal speech RMS level auto-gain aims for.
	agcTargetLevel = 0.2

	// agcMaxGain bounds auto-gain so noise floors stay quiet.
	agcMaxGain = 4.0
)

// Processor consumes chunks, one call per produced chunk in production
// order, invoked synchronously with chunk availability.
type Processor func(samples []int16)

type subscription[T any] struct {
	id int
	fn T
}

// Service owns the microphone resource and runs the capture pipeline:
// float32 frames from the device are converted to PCM16, metered, and
// accumulated into fixed-duration chunks. At most one capture session is
// active per Service; the composition root constructs exactly one.
type Service struct {
	cfg    Config
	input  Input
	logger zerolog.Logger

	mu            sync.RWMutex
	state         State
	hasPermission bool
	level         float64
	lastErr       string
	destroyed     bool
	gen           int // start generation; bumped by stop to discard in-flight acquisitions
	cancel        context.CancelFunc
	pipelineDone  chan struct{}
	processor     Processor

	handlerMu     sync.Mutex
	nextID        int
	chunkHandlers []subscription[func([]int16)]
	levelHandlers []subscription[func(float64)]
	stateHandlers []subscription[func(State)]
	errorHandlers []subscription[func(error)]
}

// NewService creates a capture service around the given device backend.
func NewService(cfg Config, input Input, logger zerolog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		input:  input,
		logger: logger.With().Str("component", "capture").Logger(),
		state:  StateIdle,
	}
}

// Config returns the immutable capture configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// StartRecording acquires the microphone and starts the pipeline. It is
// idempotent while recording. Acquisition failures reject the call and
// emit an error event, classified as ErrPermissionDenied,
// ErrDeviceNotFound or ErrInitialization.
func (s *Service) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	if !s.cfg.EnableInput {
		s.mu.Unlock()
		return s.failStart(ErrInputDisabled)
	}
	if s.state == StateRecording || s.state == StateInitializing {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	myGen := s.gen
	s.state = StateInitializing
	s.mu.Unlock()

	s.dispatchState(StateInitializing)
	observability.SetCaptureState(int(StateInitializing))

	sessionCtx, cancel := context.WithCancel(context.Background())
	frames := make(chan []float32, framesBacklog)

	// The single awaited operation: device/permission acquisition.
	if err := s.input.Start(sessionCtx, s.cfg.DeviceID, s.cfg.SampleRate, frames); err != nil {
		cancel()
		return s.failStart(err)
	}

	s.mu.Lock()
	if s.destroyed || s.gen != myGen {
		// A stop (or teardown) interleaved with acquisition; discard the
		// result without transitioning to recording.
		s.mu.Unlock()
		cancel()
		s.input.Stop()
		return nil
	}
	s.hasPermission = true
	s.lastErr = ""
	s.state = StateRecording
	s.cancel = cancel
	done := make(chan struct{})
	s.pipelineDone = done
	s.mu.Unlock()

	observability.RecordCaptureSession()
	observability.SetCaptureState(int(StateRecording))
	s.logger.Info().
		Int("sample_rate", s.cfg.SampleRate).
		Dur("chunk_duration", s.cfg.ChunkDuration).
		Msg("Recording started")
	s.dispatchState(StateRecording)

	go s.run(sessionCtx, frames, done)
	return nil
}

// StopRecording halts capture and releases the live stream. No-op when
// not recording. Issued while an acquisition is in flight, it discards
// the eventual result.
func (s *Service) StopRecording() {
	s.mu.Lock()
	s.gen++
	if s.state != StateRecording && s.state != StateInitializing {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.pipelineDone
	s.cancel = nil
	s.pipelineDone = nil
	s.state = StateIdle
	s.level = 0
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.input.Stop()
	if done != nil {
		// No chunk or level events are delivered once StopRecording
		// returns.
		<-done
	}

	observability.SetCaptureState(int(StateIdle))
	observability.SetAudioLevel(0)
	s.logger.Info().Msg("Recording stopped")
	s.dispatchState(StateIdle)
}

// Status returns a snapshot of the capture state. Non-blocking,
// side-effect-free.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		State:         s.state,
		IsRecording:   s.state == StateRecording,
		HasPermission: s.hasPermission,
		AudioLevel:    s.level,
		SampleRate:    s.cfg.SampleRate,
		Error:         s.lastErr,
	}
}

// AudioLevel returns the latest RMS level in [0,1].
func (s *Service) AudioLevel() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level
}

// SetProcessor registers the single chunk consumer, replacing any prior
// registration. A nil processor clears it.
func (s *Service) SetProcessor(p Processor) {
	s.mu.Lock()
	s.processor = p
	s.mu.Unlock()
}

// ListDevices enumerates available input devices.
func (s *Service) ListDevices() ([]Device, error) {
	return s.input.ListDevices()
}

// Destroy stops recording if active and releases all resources. The
// service cannot be used afterwards.
func (s *Service) Destroy() {
	s.StopRecording()

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.mu.Unlock()

	if err := s.input.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Error closing input device")
	}

	s.handlerMu.Lock()
	s.chunkHandlers = nil
	s.levelHandlers = nil
	s.stateHandlers = nil
	s.errorHandlers = nil
	s.handlerMu.Unlock()

	s.logger.Info().Msg("Capture service destroyed")
}

// failStart records an acquisition failure: the call is rejected and an
// error event fires.
func (s *Service) failStart(err error) error {
	state := StateError
	errType := "init_error"
	switch {
	case isPermissionDenied(err):
		state = StatePermissionDenied
		errType = "permission_denied"
	case isDeviceNotFound(err):
		errType = "device_not_found"
	}

	s.mu.Lock()
	s.state = state
	s.lastErr = err.Error()
	if state == StatePermissionDenied {
		s.hasPermission = false
	}
	s.mu.Unlock()

	observability.SetCaptureState(int(state))
	observability.RecordError(errType, "capture")
	s.logger.Error().Err(err).Str("state", state.String()).Msg("Recording failed to start")

	s.dispatchState(state)
	s.dispatchError(err)
	return err
}

// run is the pipeline goroutine: conversion, processing, level metering,
// chunking and ordered event dispatch all happen here.
func (s *Service) run(ctx context.Context, frames <-chan []float32, done chan<- struct{}) {
	defer close(done)

	chunker := audio.NewChunker(audio.SamplesPerChunk(s.cfg.SampleRate, s.cfg.ChunkDuration))
	vad := audio.NewVADDetector(&audio.VADConfig{
		LevelThreshold: s.cfg.VADThreshold,
		SilenceFrames:  10,
	})
	lastEmitted := -1.0
	lastDropped := uint64(0)

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}

			samples := audio.FloatToPCM16(frame)
			level := audio.RMSLevel(samples)

			if s.cfg.AutoGainControl {
				if gain := audio.AutoGain(level, agcTargetLevel, s.cfg.VADThreshold, agcMaxGain); gain != 1.0 {
					samples = audio.ApplyGain(samples, gain)
					level = audio.RMSLevel(samples)
				}
			}
			if s.cfg.NoiseSuppression {
				samples = audio.GateSilence(samples, level, s.cfg.VADThreshold)
			}

			s.mu.Lock()
			s.level = level
			s.mu.Unlock()
			observability.SetAudioLevel(level)

			if lastEmitted < 0 || math.Abs(level-lastEmitted) >= levelEpsilon {
				lastEmitted = level
				s.dispatchLevel(level)
			}

			if _, started, ended := vad.ProcessLevel(level); started {
				s.logger.Debug().Float64("level", level).Msg("Speech started")
			} else if ended {
				s.logger.Debug().Msg("Speech ended")
			}

			chunks := chunker.Write(samples)
			if d := chunker.Dropped(); d > lastDropped {
				observability.RecordChunkDropped("backlog")
				s.logger.Warn().Uint64("samples", d-lastDropped).Msg("Dropped samples under backlog")
				lastDropped = d
			}

			for _, chunk := range chunks {
				observability.RecordChunkEmitted()

				s.mu.RLock()
				proc := s.processor
				s.mu.RUnlock()
				if proc != nil {
					proc(chunk)
				}
				s.dispatchChunk(chunk)
			}
		}
	}
}

// OnChunk registers a chunk event handler. Returns an unsubscribe func.
func (s *Service) OnChunk(h func(samples []int16)) func() {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.nextID++
	id := s.nextID
	s.chunkHandlers = append(s.chunkHandlers, subscription[func([]int16)]{id, h})
	return func() { s.removeChunkHandler(id) }
}

// OnLevel registers a level event handler. Returns an unsubscribe func.
func (s *Service) OnLevel(h func(level float64)) func() {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.nextID++
	id := s.nextID
	s.levelHandlers = append(s.levelHandlers, subscription[func(float64)]{id, h})
	return func() { s.removeLevelHandler(id) }
}

// OnStateChange registers a state event handler. Returns an unsubscribe
// func.
func (s *Service) OnStateChange(h func(state State)) func() {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.nextID++
	id := s.nextID
	s.stateHandlers = append(s.stateHandlers, subscription[func(State)]{id, h})
	return func() { s.removeStateHandler(id) }
}

// OnError registers an error event handler. Returns an unsubscribe func.
func (s *Service) OnError(h func(err error)) func() {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.nextID++
	id := s.nextID
	s.errorHandlers = append(s.errorHandlers, subscription[func(error)]{id, h})
	return func() { s.removeErrorHandler(id) }
}

func (s *Service) removeChunkHandler(id int) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	for i, sub := range s.chunkHandlers {
		if sub.id == id {
			s.chunkHandlers = append(s.chunkHandlers[:i], s.chunkHandlers[i+1:]...)
			return
		}
	}
}

func (s *Service) removeLevelHandler(id int) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	for i, sub := range s.levelHandlers {
		if sub.id == id {
			s.levelHandlers = append(s.levelHandlers[:i], s.levelHandlers[i+1:]...)
			return
		}
	}
}

func (s *Service) removeStateHandler(id int) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	for i, sub := range s.stateHandlers {
		if sub.id == id {
			s.stateHandlers = append(s.stateHandlers[:i], s.stateHandlers[i+1:]...)
			return
		}
	}
}

func (s *Service) removeErrorHandler(id int) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	for i, sub := range s.errorHandlers {
		if sub.id == id {
			s.errorHandlers = append(s.errorHandlers[:i], s.errorHandlers[i+1:]...)
			return
		}
	}
}

func (s *Service) dispatchChunk(samples []int16) {
	s.handlerMu.Lock()
	handlers := make([]subscription[func([]int16)], len(s.chunkHandlers))
	copy(handlers, s.chunkHandlers)
	s.handlerMu.Unlock()
	for _, sub := range handlers {
		sub.fn(samples)
	}
}

func (s *Service) dispatchLevel(level float64) {
	s.handlerMu.Lock()
	handlers := make([]subscription[func(float64)], len(s.levelHandlers))
	copy(handlers, s.levelHandlers)
	s.handlerMu.Unlock()
	for _, sub := range handlers {
		sub.fn(level)
	}
}

func (s *Service) dispatchState(state State) {
	s.handlerMu.Lock()
	handlers := make([]subscription[func(State)], len(s.stateHandlers))
	copy(handlers, s.stateHandlers)
	s.handlerMu.Unlock()
	for _, sub := range handlers {
		sub.fn(state)
	}
}

func (s *Service) dispatchError(err error) {
	s.handlerMu.Lock()
	handlers := make([]subscription[func(error)], len(s.errorHandlers))
	copy(handlers, s.errorHandlers)
	s.handlerMu.Unlock()
	for _, sub := range handlers {
		sub.fn(err)
	}
}

func isPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

func isDeviceNotFound(err error) bool {
	return errors.Is(err, ErrDeviceNotFound)
}

package capture

import (
	"time"
)

// State is the capture service lifecycle state.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateRecording
	StatePermissionDenied
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRecording:
		return "recording"
	case StatePermissionDenied:
		return "permission-denied"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of the capture service.
// IsRecording is true only when State is StateRecording.
type Status struct {
	State         State
	IsRecording   bool
	HasPermission bool
	AudioLevel    float64
	SampleRate    int
	Error         string
}

// Config is the immutable capture configuration, consumed at service
// construction.
type Config struct {
	// EnableInput gates the whole capture path; StartRecording fails with
	// ErrInputDisabled when false.
	EnableInput bool

	// SampleRate of the capture stream in Hz.
	SampleRate int

	// ChunkDuration is the cadence at which chunk events are emitted.
	ChunkDuration time.Duration

	// VADThreshold is the normalized RMS level below which input counts
	// as silence. The noise gate and auto-gain use it; chunk emission
	// does not.
	VADThreshold float64

	// EchoCancellation is a device-level processing hint. Backends that
	// cannot apply it (PortAudio among them) ignore it.
	EchoCancellation bool

	// NoiseSuppression zeroes frames below VADThreshold when enabled.
	NoiseSuppression bool

	// AutoGainControl boosts quiet frames toward a nominal speech level
	// when enabled.
	AutoGainControl bool

	// DeviceID selects the input device; empty means the default device.
	DeviceID string
}

// DefaultConfig returns the documented capture defaults.
func DefaultConfig() Config {
	return Config{
		EnableInput:      true,
		SampleRate:       16000,
		ChunkDuration:    100 * time.Millisecond,
		VADThreshold:     0.01,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

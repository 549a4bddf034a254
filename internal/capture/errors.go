package capture

import (
	"errors"
)

// Acquisition failure taxonomy. StartRecording returns one of these
// (possibly wrapped) and emits a matching error event; callers classify
// with errors.Is.
var (
	// ErrPermissionDenied means the OS or user refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceNotFound means no usable audio input device exists.
	ErrDeviceNotFound = errors.New("audio input device not found")

	// ErrInitialization covers all other device acquisition failures.
	ErrInitialization = errors.New("audio capture initialization failed")

	// ErrInputDisabled is returned when the config disables audio input.
	ErrInputDisabled = errors.New("audio input is disabled")

	// ErrDestroyed is returned when the service has been torn down.
	ErrDestroyed = errors.New("capture service destroyed")
)

package capture

import (
	"context"
)

// Device represents an audio input device.
type Device struct {
	ID      string
	Name    string
	Default bool
}

// Input is the device backend behind the capture service. Start acquires
// the device and begins delivering float32 frames on out until the
// context is cancelled or Stop is called. Implementations classify
// acquisition failures as ErrPermissionDenied, ErrDeviceNotFound or
// ErrInitialization.
type Input interface {
	Start(ctx context.Context, deviceID string, sampleRate int, out chan<- []float32) error
	Stop() error
	ListDevices() ([]Device, error)
	Close() error
}

package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

type portAudioInput struct {
	mu     sync.Mutex
	stream *portaudio.Stream
}

// NewPortAudioInput creates a PortAudio-backed input device.
func NewPortAudioInput() (Input, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitialization, err)
	}
	return &portAudioInput{}, nil
}

func (p *portAudioInput) Start(ctx context.Context, deviceID string, sampleRate int, out chan<- []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return fmt.Errorf("%w: capture stream already active", ErrInitialization)
	}

	// Find device
	var device *portaudio.DeviceInfo
	if deviceID == "" {
		var err error
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
		}
	} else {
		devices, err := portaudio.Devices()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInitialization, err)
		}
		for _, d := range devices {
			if d.Name == deviceID && d.MaxInputChannels > 0 {
				device = d
				break
			}
		}
	}

	if device == nil {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}

	// Open stream: mono, requested sample rate, float32
	buffer := make([]float32, 512)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: len(buffer),
	}, buffer)
	if err != nil {
		return classifyDriverError(err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return classifyDriverError(err)
	}

	p.stream = stream

	// Read loop
	go func() {
		defer func() {
			p.mu.Lock()
			if p.stream == stream {
				p.stream = nil
			}
			p.mu.Unlock()
			stream.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if err := stream.Read(); err != nil {
					return
				}
				// Copy buffer and send
				samples := make([]float32, len(buffer))
				copy(samples, buffer)

				select {
				case out <- samples:
				case <-ctx.Done():
					return
				default:
					// Drop if channel full (backpressure)
				}
			}
		}
	}()

	return nil
}

func (p *portAudioInput) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		return p.stream.Stop()
	}
	return nil
}

func (p *portAudioInput) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitialization, err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *portAudioInput) Close() error {
	p.mu.Lock()
	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}
	p.mu.Unlock()
	return portaudio.Terminate()
}

// classifyDriverError maps host API errors onto the capture error
// taxonomy. Driver messages are not standardized across platforms, so
// this matches the common phrasings.
func classifyDriverError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"), strings.Contains(msg, "denied"),
		strings.Contains(msg, "access"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case strings.Contains(msg, "no such device"), strings.Contains(msg, "device unavailable"),
		strings.Contains(msg, "invalid device"):
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrInitialization, err)
	}
}

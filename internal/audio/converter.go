package audio

import (
	"math"
)

// maxPCM16 is the largest positive 16-bit sample value.
const maxPCM16 = 32767

// FloatToPCM16 converts floating-point samples in [-1, 1] to 16-bit signed
// PCM. Values outside the range are clamped before scaling.
func FloatToPCM16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, f := range in {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		out[i] = int16(f * maxPCM16)
	}
	return out
}

// PCM16ToFloat converts 16-bit signed PCM samples back to floating-point
// samples in [-1, 1]. Useful for loopback tests and debugging.
func PCM16ToFloat(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// SamplesToBytes serializes PCM16 samples as consecutive little-endian
// 16-bit values, the wire format for outgoing binary frames.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// BytesToSamples parses little-endian PCM16 bytes into samples.
// The input length must be even; a trailing odd byte is dropped.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// Resample performs linear interpolation resampling between sample rates.
// Quality is adequate for speech; callers needing hi-fi output should use
// a sinc-based resampler instead.
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// RMSLevel computes the root-mean-square level of a frame, normalized to
// [0, 1]. An all-zero frame yields exactly 0.
func RMSLevel(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, s := range samples {
		f := float64(s) / 32768.0
		sum += f * f
	}

	level := math.Sqrt(sum / float64(len(samples)))
	if level > 1 {
		level = 1
	}
	return level
}

// PeakLevel returns the largest absolute sample magnitude of a frame,
// normalized to [0, 1].
func PeakLevel(samples []int16) float64 {
	peak := 0.0
	for _, s := range samples {
		f := math.Abs(float64(s) / 32768.0)
		if f > peak {
			peak = f
		}
	}
	if peak > 1 {
		peak = 1
	}
	return peak
}

// ApplyGain scales samples by the given factor, clamping at the 16-bit
// range. A gain of 1.0 returns the input unchanged.
func ApplyGain(samples []int16, gain float64) []int16 {
	if gain == 1.0 {
		return samples
	}
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s) * gain
		if v > maxPCM16 {
			v = maxPCM16
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// AutoGain computes a gain factor that nudges the frame's RMS level toward
// targetLevel. The factor is capped at maxGain so noise floors are not
// amplified into audible hiss; frames at or below the silence threshold
// keep unity gain.
func AutoGain(level, targetLevel, silenceThreshold, maxGain float64) float64 {
	if level <= silenceThreshold || level <= 0 {
		return 1.0
	}
	gain := targetLevel / level
	if gain > maxGain {
		gain = maxGain
	}
	if gain < 1.0 {
		gain = 1.0
	}
	return gain
}

// GateSilence zeroes a frame whose level falls below the threshold.
// Used as the noise-suppression step when enabled in the capture config.
func GateSilence(samples []int16, level, threshold float64) []int16 {
	if level >= threshold {
		return samples
	}
	return make([]int16, len(samples))
}

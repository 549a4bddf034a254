package audio

import (
	"testing"
)

func TestVADDetector_Speech(t *testing.T) {
	vad := NewVADDetector(&VADConfig{LevelThreshold: 0.01, SilenceFrames: 10})

	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = 5000
	}

	for i := 0; i < 5; i++ {
		isSpeaking, speechStarted, _ := vad.ProcessFrame(samples)
		if !isSpeaking {
			t.Errorf("Expected speech detection on frame %d", i)
		}
		if i == 0 && !speechStarted {
			t.Error("Expected speech to start on first frame")
		}
	}
}

func TestVADDetector_Silence(t *testing.T) {
	vad := NewVADDetector(&VADConfig{LevelThreshold: 0.01, SilenceFrames: 10})

	samples := make([]int16, 160) // all zero

	for i := 0; i < 15; i++ {
		isSpeaking, _, _ := vad.ProcessFrame(samples)
		if isSpeaking {
			t.Errorf("Expected silence on frame %d", i)
		}
	}
}

func TestVADDetector_SpeechToSilence(t *testing.T) {
	vad := NewVADDetector(&VADConfig{LevelThreshold: 0.01, SilenceFrames: 10})

	high := make([]int16, 160)
	for i := range high {
		high[i] = 5000
	}
	low := make([]int16, 160)

	for i := 0; i < 5; i++ {
		if isSpeaking, _, _ := vad.ProcessFrame(high); !isSpeaking {
			t.Errorf("Expected speech detection on frame %d", i)
		}
	}

	speechEnded := false
	for i := 0; i < 15; i++ {
		if _, _, ended := vad.ProcessFrame(low); ended {
			speechEnded = true
			break
		}
	}
	if !speechEnded {
		t.Error("Expected speech to end after silence frames")
	}
}

func TestVADDetector_Threshold(t *testing.T) {
	lowThreshold := NewVADDetector(&VADConfig{LevelThreshold: 0.001, SilenceFrames: 10})
	highThreshold := NewVADDetector(&VADConfig{LevelThreshold: 0.5, SilenceFrames: 10})

	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = 1000 // level ~0.03
	}

	if isSpeaking, _, _ := lowThreshold.ProcessFrame(samples); !isSpeaking {
		t.Error("Expected low threshold to detect speech")
	}
	if isSpeaking, _, _ := highThreshold.ProcessFrame(samples); isSpeaking {
		t.Error("Expected high threshold to not detect speech")
	}
}

func TestVADDetector_Reset(t *testing.T) {
	vad := NewVADDetector(nil)

	high := make([]int16, 160)
	for i := range high {
		high[i] = 5000
	}
	vad.ProcessFrame(high)

	if !vad.IsSpeaking() {
		t.Fatal("Expected speech to be detected")
	}

	vad.Reset()
	if vad.IsSpeaking() {
		t.Error("Expected speech state to be false after reset")
	}
}

func TestDefaultVADConfig(t *testing.T) {
	config := DefaultVADConfig()
	if config.LevelThreshold != 0.01 {
		t.Errorf("Expected default LevelThreshold 0.01, got %f", config.LevelThreshold)
	}
	if config.SilenceFrames != 10 {
		t.Errorf("Expected default SilenceFrames 10, got %d", config.SilenceFrames)
	}
}

func TestDetectSilence(t *testing.T) {
	high := []int16{5000, 5000, 5000}
	if DetectSilence(high, 0.01) {
		t.Error("Expected high energy samples to not be silence")
	}

	low := []int16{10, 10, 10}
	if !DetectSilence(low, 0.01) {
		t.Error("Expected low energy samples to be silence")
	}
}

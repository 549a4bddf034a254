package audio

// VADConfig holds configuration for voice activity detection over
// normalized frame levels.
type VADConfig struct {
	LevelThreshold float64 // RMS level in [0,1] above which a frame counts as speech
	SilenceFrames  int     // Consecutive silent frames that end a speech run
}

// DefaultVADConfig returns a default VAD configuration tuned for 16 kHz
// speech capture.
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		LevelThreshold: 0.01,
		SilenceFrames:  10,
	}
}

// VADDetector tracks speech activity from per-frame levels. The capture
// pipeline feeds it the same normalized RMS values it reports as level
// events.
type VADDetector struct {
	config         *VADConfig
	silenceCounter int
	isSpeaking     bool
}

// NewVADDetector creates a new VAD detector.
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &VADDetector{config: config}
}

// ProcessLevel consumes one frame's level and reports speech state.
// Returns: (isSpeaking, speechStarted, speechEnded).
func (v *VADDetector) ProcessLevel(level float64) (bool, bool, bool) {
	frameHasSpeech := level > v.config.LevelThreshold

	var speechStarted, speechEnded bool

	if frameHasSpeech {
		v.silenceCounter = 0

		if !v.isSpeaking {
			speechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++

		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			speechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// ProcessFrame computes the frame's RMS level and feeds it through
// ProcessLevel.
func (v *VADDetector) ProcessFrame(samples []int16) (bool, bool, bool) {
	return v.ProcessLevel(RMSLevel(samples))
}

// Reset clears the detector state.
func (v *VADDetector) Reset() {
	v.silenceCounter = 0
	v.isSpeaking = false
}

// IsSpeaking returns whether speech is currently detected.
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}

// DetectSilence reports whether a frame's level is below the threshold.
func DetectSilence(samples []int16, threshold float64) bool {
	return RMSLevel(samples) < threshold
}

package gladia

import "fmt"

// DefaultBaseURL is the public Gladia API endpoint.
const DefaultBaseURL = "https://api.gladia.io"

// Config holds Gladia API access and session tuning.
type Config struct {
	// APIKey authenticates against the Gladia API.
	APIKey string `mapstructure:"api_key"`

	// BaseURL is the API endpoint, overridable for testing.
	BaseURL string `mapstructure:"base_url"`

	// Encoding is the audio encoding declared to the backend.
	Encoding string `mapstructure:"encoding"`

	// BitDepth is the PCM bit depth.
	BitDepth int `mapstructure:"bit_depth"`

	// CodeSwitching lets the backend follow speakers who change
	// language mid-stream.
	CodeSwitching bool `mapstructure:"code_switching"`

	// AudioEnhancer enables the backend's denoising pre-processing.
	AudioEnhancer bool `mapstructure:"audio_enhancer"`

	// SpeechThreshold tunes the backend's voice activity detection,
	// in [0, 1].
	SpeechThreshold float64 `mapstructure:"speech_threshold"`

	// MinConfidence drops final transcripts scored below it.
	MinConfidence float64 `mapstructure:"min_confidence"`

	// MinInterimConfidence drops interim transcripts scored below it.
	// Zero means MinConfidence applies to interims too.
	MinInterimConfidence float64 `mapstructure:"min_interim_confidence"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Encoding == "" {
		c.Encoding = "wav/pcm"
	}
	if c.BitDepth <= 0 {
		c.BitDepth = 16
	}
	if c.SpeechThreshold <= 0 {
		c.SpeechThreshold = 0.7
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.1
	}
	if c.MinInterimConfidence <= 0 {
		c.MinInterimConfidence = c.MinConfidence
	}
}

// Validate checks that required fields are present and in range.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("gladia api_key is required")
	}
	if c.SpeechThreshold < 0 || c.SpeechThreshold > 1 {
		return fmt.Errorf("speech_threshold must be in [0, 1], got %v", c.SpeechThreshold)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in [0, 1], got %v", c.MinConfidence)
	}
	return nil
}

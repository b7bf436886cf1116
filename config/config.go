package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/skillsenselab/meetscribe/kafka"
	"github.com/skillsenselab/meetscribe/locale"
	"github.com/skillsenselab/meetscribe/logger"
	"github.com/skillsenselab/meetscribe/redis"
	"github.com/skillsenselab/meetscribe/stt/gladia"
)

// ServiceName is the canonical service identifier used for config
// discovery and log tagging.
const ServiceName = "meetscribe"

// Config is the full service configuration.
type Config struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Environment string `yaml:"environment" mapstructure:"environment"`
	Debug       bool   `yaml:"debug" mapstructure:"debug"`

	Logger     logger.Config    `yaml:"logger" mapstructure:"logger"`
	LiveKit    LiveKitConfig    `yaml:"livekit" mapstructure:"livekit"`
	Transcribe TranscribeConfig `yaml:"transcribe" mapstructure:"transcribe"`
	Gladia     gladia.Config    `yaml:"gladia" mapstructure:"gladia"`
	Redis      redis.Config     `yaml:"redis" mapstructure:"redis"`
	Kafka      kafka.Config     `yaml:"kafka" mapstructure:"kafka"`
}

// LiveKitConfig holds room connection credentials.
type LiveKitConfig struct {
	// URL is the LiveKit server websocket endpoint.
	URL string `yaml:"url" mapstructure:"url" validate:"required"`

	// APIKey and APISecret authenticate the agent.
	APIKey    string `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	APISecret string `yaml:"api_secret" mapstructure:"api_secret" validate:"required"`

	// Room is the room name, doubling as the meeting id on the bus.
	Room string `yaml:"room" mapstructure:"room" validate:"required"`

	// Identity is the agent's participant identity. Defaulted to a
	// unique per-process name when empty.
	Identity string `yaml:"identity" mapstructure:"identity"`
}

// TranscribeConfig holds pipeline policies. The string fields keep
// the loosely-typed client conventions and are read through the
// coercing accessors.
type TranscribeConfig struct {
	// Provider is the default STT backend for participants that did
	// not pick one.
	Provider string `yaml:"provider" mapstructure:"provider"`

	// InterimResults enables provisional transcripts. Accepts the
	// usual truthy spellings (true/1/t/yes/y).
	InterimResults string `yaml:"interim_results" mapstructure:"interim_results"`

	// MinUtteranceSeconds drops final transcripts shorter than this
	// duration, in seconds.
	MinUtteranceSeconds string `yaml:"min_utterance_seconds" mapstructure:"min_utterance_seconds"`

	// Translations overrides the subtag expansion table, as
	// "de:de-DE,en:en-US" pairs. Empty keeps the built-in table.
	Translations string `yaml:"translations" mapstructure:"translations"`
}

// InterimEnabled interprets the interim results flag.
func (c *TranscribeConfig) InterimEnabled() bool {
	return CoerceBool(c.InterimResults)
}

// MinUtterance interprets the minimum utterance length, clamped to
// non-negative. Unparseable values fall back to zero (filter off).
func (c *TranscribeConfig) MinUtterance() float64 {
	return CoerceSeconds(c.MinUtteranceSeconds)
}

// TranslationMap returns the effective subtag expansion table.
func (c *TranscribeConfig) TranslationMap() locale.Translations {
	if c.Translations == "" {
		return locale.DefaultTranslations()
	}
	return locale.ParseTranslations(c.Translations)
}

// ApplyDefaults applies default values throughout the tree.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = ServiceName
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	if c.Transcribe.Provider == "" {
		c.Transcribe.Provider = gladia.ProviderName
	}
	if c.Transcribe.InterimResults == "" {
		c.Transcribe.InterimResults = "true"
	}
	c.Logger.ApplyDefaults()
	c.Gladia.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Kafka.ApplyDefaults()
}

// Validate checks the full tree. Collaborator sections validate
// themselves; the credential fields are checked with struct tags.
func (c *Config) Validate() error {
	validEnvs := []string{"development", "staging", "production"}
	valid := false
	for _, env := range validEnvs {
		if c.Environment == env {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("environment must be one of %v (got: %s)", validEnvs, c.Environment)
	}

	if err := validator.New().Struct(c.LiveKit); err != nil {
		return fmt.Errorf("livekit config: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger config: %w", err)
	}
	if c.Transcribe.Provider == gladia.ProviderName {
		if err := c.Gladia.Validate(); err != nil {
			return err
		}
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if err := c.Kafka.Validate(); err != nil {
		return err
	}
	return nil
}

// Redacted returns a loggable summary with credentials masked.
func (c *Config) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"name":               c.Name,
		"environment":        c.Environment,
		"livekit_url":        c.LiveKit.URL,
		"livekit_api_key":    mask(c.LiveKit.APIKey),
		"livekit_api_secret": mask(c.LiveKit.APISecret),
		"room":               c.LiveKit.Room,
		"provider":           c.Transcribe.Provider,
		"interim_results":    c.Transcribe.InterimEnabled(),
		"gladia_api_key":     mask(c.Gladia.APIKey),
		"redis_enabled":      c.Redis.Enabled,
		"redis_password":     mask(c.Redis.Password),
		"kafka_enabled":      c.Kafka.Enabled,
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}

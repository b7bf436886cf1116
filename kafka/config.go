package kafka

import (
	"fmt"
	"time"
)

// Config holds Kafka producer configuration.
type Config struct {
	// Enabled controls whether transcripts are mirrored to Kafka.
	Enabled bool `mapstructure:"enabled"`

	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`

	// Topic is the topic transcript messages are produced to.
	Topic string `mapstructure:"topic"`

	// Compression is the codec for produced batches (none, gzip,
	// snappy, lz4, zstd).
	Compression string `mapstructure:"compression"`

	// BatchSize is the maximum number of messages per batch.
	BatchSize int `mapstructure:"batch_size"`

	// BatchTimeout is how long to wait before flushing a partial
	// batch (e.g. "1s").
	BatchTimeout string `mapstructure:"batch_timeout"`

	// WriteTimeout is the timeout for produce requests (e.g. "10s").
	WriteTimeout string `mapstructure:"write_timeout"`

	// RequiredAcks is the number of broker acknowledgements required
	// (-1 = all replicas).
	RequiredAcks int `mapstructure:"required_acks"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.Topic == "" {
		c.Topic = "meetscribe-transcripts"
	}
	if c.Compression == "" {
		c.Compression = "snappy"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout == "" {
		c.BatchTimeout = "1s"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "10s"
	}
	if c.RequiredAcks == 0 {
		c.RequiredAcks = -1 // all replicas
	}
}

// Validate checks that required fields are present and parseable.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil // skip validation when disabled
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}
	if c.Topic == "" {
		return fmt.Errorf("kafka topic is required")
	}
	switch c.Compression {
	case "none", "gzip", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("invalid compression %q", c.Compression)
	}
	if _, err := time.ParseDuration(c.BatchTimeout); err != nil {
		return fmt.Errorf("invalid batch_timeout %q: %w", c.BatchTimeout, err)
	}
	if _, err := time.ParseDuration(c.WriteTimeout); err != nil {
		return fmt.Errorf("invalid write_timeout %q: %w", c.WriteTimeout, err)
	}
	return nil
}

// parseDuration parses a validated duration string, returning zero on
// failure.
func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

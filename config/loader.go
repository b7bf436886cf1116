package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoaderOption customizes Load.
type LoaderOption func(*loaderOptions)

type loaderOptions struct {
	configFile string
	envFile    string
}

// WithConfigFile sets an explicit config file path instead of the
// standard search locations.
func WithConfigFile(path string) LoaderOption {
	return func(o *loaderOptions) { o.configFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(o *loaderOptions) { o.envFile = path }
}

// Load reads the service configuration, applies defaults, and
// validates the result. Precedence: environment variables over .env
// file over YAML file over built-in defaults.
func Load(opts ...LoaderOption) (*Config, error) {
	var o loaderOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.envFile == "" {
		o.envFile = findFirst(".env."+ServiceName, ".env")
	}
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", o.envFile, err)
		}
	}

	v := viper.New()
	// Bool sections whose zero value is not the wanted default.
	v.SetDefault("gladia.audio_enhancer", true)

	if o.configFile == "" {
		o.configFile = findFirst(
			"./cmd/"+ServiceName+"/config.yml",
			"./config/config.yml",
			"./config.yml",
		)
	}
	if o.configFile != "" {
		v.SetConfigFile(o.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", o.configFile, err)
		}
	}

	bindEnvironment(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvironment maps every environment variable onto the viper keys
// it could address. SECTION_SOME_FIELD binds as both a fully dotted
// path and as section.some_field, which is the shape of this config
// tree.
func bindEnvironment(v *viper.Viper) {
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		for _, variant := range envKeyVariants(key) {
			v.Set(variant, value)
		}
	}
}

func envKeyVariants(envKey string) []string {
	lower := strings.ToLower(envKey)
	parts := strings.Split(lower, "_")
	if len(parts) <= 1 {
		return []string{lower}
	}
	variants := []string{
		strings.ReplaceAll(lower, "_", "."),
		parts[0] + "." + strings.Join(parts[1:], "_"),
	}
	return variants
}

func findFirst(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

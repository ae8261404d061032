// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. HEADPOSE_SERVICE_PORT
const EnvPrefix = "HEADPOSE_SERVICE"

// Config holds all configuration for the service
type Config struct {
	// Server configuration
	Port     int `mapstructure:"port"`
	HTTPPort int `mapstructure:"http_port"`

	// Models
	HeadPoseModel string  `mapstructure:"headpose_model"`
	FaceModel     string  `mapstructure:"face_model"`
	MaxBatch      int     `mapstructure:"max_batch"`
	Confidence    float32 `mapstructure:"confidence"`
	ONNXLibrary   string  `mapstructure:"onnx_library"`
	Threads       int     `mapstructure:"threads"`

	// Result publishing; empty Redis disables the Redis sink
	Redis        string        `mapstructure:"redis"`
	RedisChannel string        `mapstructure:"redis_channel"`
	ResultTTL    time.Duration `mapstructure:"result_ttl"`

	// OpenTelemetry configuration
	OTELEnabled  bool   `mapstructure:"otel_enabled"`
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogOutput string `mapstructure:"log_output"`

	// Feature flags
	UseMockInference bool `mapstructure:"use_mock_inference"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 50051)
	v.SetDefault("http_port", 9100)
	v.SetDefault("headpose_model", "head-pose-estimation-adas-0001.onnx")
	v.SetDefault("face_model", "")
	v.SetDefault("max_batch", 16)
	v.SetDefault("confidence", 0.8)
	v.SetDefault("onnx_library", "")
	v.SetDefault("threads", 0)
	v.SetDefault("redis", "")
	v.SetDefault("redis_channel", "headpose:results")
	v.SetDefault("result_ttl", 5*time.Minute)
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_output", "stdout")
	v.SetDefault("use_mock_inference", false)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Names that do not follow the key
	v.BindEnv("use_mock_inference", EnvPrefix+"_USE_MOCK", EnvPrefix+"_USE_MOCK_INFERENCE")
	v.BindEnv("otel_endpoint", EnvPrefix+"_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	// The standard OTEL endpoint variable turns tracing on unless
	// otel_enabled is set explicitly
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		v.SetDefault("otel_enabled", true)
	}
}

// Flags registers the command-line flags that override configuration.
// Flag names use dashes; Load maps them onto the keys above.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to config file (optional)")
	fs.Int("port", 0, "gRPC server port (default: 50051)")
	fs.Int("http-port", 0, "HTTP port for API, metrics and health (default: 9100)")
	fs.String("headpose-model", "", "Path to head pose ONNX model")
	fs.String("face-model", "", "Path to face detection ONNX model (optional)")
	fs.Int("max-batch", 0, "Maximum head pose batch size")
	fs.String("redis", "", "Redis address for result publishing (optional)")
	fs.String("log-level", "", "Log level: debug, info, warn, error")
	fs.Bool("mock", false, "Use mock inference engine (for testing)")
}

var flagKeys = map[string]string{
	"port":           "port",
	"http-port":      "http_port",
	"headpose-model": "headpose_model",
	"face-model":     "face_model",
	"max-batch":      "max_batch",
	"redis":          "redis",
	"log-level":      "log_level",
	"mock":           "use_mock_inference",
}

// Load loads configuration from flags, environment variables, and optional config file.
// Priority (highest to lowest): flags > env vars > config file > defaults.
// fs may be nil. Only flags that were set on the command line override.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	configFile := ""
	if fs != nil {
		if f := fs.Lookup("config"); f != nil {
			configFile = f.Value.String()
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/headpose-service/")
		v.AddConfigPath("$HOME/.headpose-service")

		// Read config file if present (ignore error if not found)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTPPort)
	}
	if c.Port == c.HTTPPort {
		return fmt.Errorf("port and http_port must be different")
	}
	if c.HeadPoseModel == "" && !c.UseMockInference {
		return fmt.Errorf("headpose_model is required when not using mock inference")
	}
	if c.MaxBatch < 0 {
		return fmt.Errorf("invalid max_batch: %d", c.MaxBatch)
	}
	if c.Confidence <= 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence must be in (0, 1]: %v", c.Confidence)
	}
	if c.ResultTTL < 0 {
		return fmt.Errorf("invalid result_ttl: %v", c.ResultTTL)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log_format: %q", c.LogFormat)
	}
	return nil
}

// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads session settings from the environment.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

// Prefix is the environment variable prefix used by Load.
const Prefix = "HTTPTXN"

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Config holds all session configuration. The groups are embedded so
// that every variable is named Prefix plus the field's envconfig tag.
type Config struct {
	ThrottleConfig
	UploadConfig
	ProxyConfig
	ConnConfig
	LogConfig
}

// ThrottleConfig holds connection throttle settings.
type ThrottleConfig struct {
	Limit            int `envconfig:"THROTTLE_LIMIT" default:"6" validate:"gte=1,lte=256"`
	CompactThreshold int `envconfig:"THROTTLE_COMPACT_THRESHOLD" default:"64" validate:"gte=1"`
}

// UploadConfig holds upload stream settings.
type UploadConfig struct {
	BufferSize int `envconfig:"UPLOAD_BUFFER_SIZE" default:"16384" validate:"gte=512,lte=16777216"`
}

// ProxyConfig holds proxy resolution settings.
type ProxyConfig struct {
	// List is a comma-separated candidate list such as
	// "http://proxy1:8080,DIRECT". When empty, FromEnvironment decides.
	List            string        `envconfig:"PROXY_LIST"`
	FromEnvironment bool          `envconfig:"PROXY_FROM_ENVIRONMENT" default:"false"`
	RetryDelay      time.Duration `envconfig:"PROXY_RETRY_DELAY" default:"5m" validate:"gte=0"`
}

// ConnConfig holds connection pool settings.
type ConnConfig struct {
	ConnectTimeout  time.Duration `envconfig:"CONNECT_TIMEOUT" default:"30s" validate:"gt=0"`
	IOTimeout       time.Duration `envconfig:"IO_TIMEOUT" default:"0s" validate:"gte=0"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"90s" validate:"gt=0"`
	MaxIdlePerGroup int           `envconfig:"MAX_IDLE_PER_GROUP" default:"6" validate:"gte=1"`
	TLS13           bool          `envconfig:"TLS13" default:"true"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error disabled"`
	Format string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json console"`
}

// Load loads configuration from HTTPTXN_* environment variables and
// validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("httptxn/config: failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ThrottleConfig: ThrottleConfig{
			Limit:            6,
			CompactThreshold: 64,
		},
		UploadConfig: UploadConfig{
			BufferSize: 16 * 1024,
		},
		ProxyConfig: ProxyConfig{
			RetryDelay: 5 * time.Minute,
		},
		ConnConfig: ConnConfig{
			ConnectTimeout:  30 * time.Second,
			IdleTimeout:     90 * time.Second,
			MaxIdlePerGroup: 6,
			TLS13:           true,
		},
		LogConfig: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("httptxn/config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("httptxn/config: invalid config: %s", strings.Join(msgs, "; "))
}

// Logger builds a logger writing to w in the configured format at the
// configured level. A nil w means os.Stderr.
func (c *Config) Logger(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level, err := zerolog.ParseLevel(c.LogConfig.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if c.LogConfig.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

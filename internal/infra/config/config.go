// Package config provides configuration loading from YAML files.
package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// WebhookPath is the path the remote service posts conversation callbacks to.
const WebhookPath = "/webhook"

// Config represents the application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Tavus        TavusConfig        `yaml:"tavus"`
	Conversation ConversationConfig `yaml:"conversation"`
	Call         CallConfig         `yaml:"call"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr         string      `yaml:"addr" default:":8080"`
	PublicOrigin string      `yaml:"public_origin" default:"http://localhost:8080" validate:"required,url"`
	ControlToken string      `yaml:"control_token"`
	Hooks        HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// TavusConfig represents the remote API configuration.
type TavusConfig struct {
	APIKey     string `yaml:"api_key" validate:"required"`
	BaseURL    string `yaml:"base_url" default:"https://tavusapi.com/v2" validate:"omitempty,url"`
	ReplicaID  string `yaml:"replica_id" validate:"required"`
	PersonaID  string `yaml:"persona_id" validate:"required"`
	TimeoutSec int    `yaml:"timeout_sec" default:"30" validate:"gte=1,lte=300"`
}

// ConversationConfig represents the template used when creating a conversation.
type ConversationConfig struct {
	Name       string                 `yaml:"name" default:"Live Conversation"`
	Context    string                 `yaml:"context" default:"You are having a real-time video conversation."`
	Greeting   string                 `yaml:"greeting" default:"Hello! How can I help you today?"`
	Properties ConversationProperties `yaml:"properties"`
}

// ConversationProperties represents the properties sent with a new conversation.
// Pointer fields distinguish "unset" from an explicit zero or false.
type ConversationProperties struct {
	MaxCallDuration          int    `yaml:"max_call_duration" default:"3600" validate:"gte=1"`
	ParticipantLeftTimeout   *int   `yaml:"participant_left_timeout" default:"60" validate:"omitempty,gte=0"`
	ParticipantAbsentTimeout *int   `yaml:"participant_absent_timeout" default:"300" validate:"omitempty,gte=0"`
	EnableRecording          *bool  `yaml:"enable_recording" default:"false"`
	EnableClosedCaptions     *bool  `yaml:"enable_closed_captions" default:"true"`
	ApplyGreenscreen         *bool  `yaml:"apply_greenscreen" default:"false"`
	Language                 string `yaml:"language" default:"english"`
}

// CallConfig represents call lifecycle configuration.
type CallConfig struct {
	ResetDelayMs      int `yaml:"reset_delay_ms" default:"2000" validate:"gte=1,lte=60000"`
	RequestTimeoutSec int `yaml:"request_timeout_sec" default:"30" validate:"gte=1,lte=300"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("TAVUS_API_KEY"); v != "" {
		c.Tavus.APIKey = v
	}
	if v := os.Getenv("TAVUS_REPLICA_ID"); v != "" {
		c.Tavus.ReplicaID = v
	}
	if v := os.Getenv("TAVUS_PERSONA_ID"); v != "" {
		c.Tavus.PersonaID = v
	}
	if v := os.Getenv("PUBLIC_ORIGIN"); v != "" {
		c.Server.PublicOrigin = v
	}
	if v := os.Getenv("CONTROL_TOKEN"); v != "" {
		c.Server.ControlToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	// public_origin must be an origin, not a page URL
	u, err := url.Parse(c.Server.PublicOrigin)
	if err != nil {
		return errors.Wrap(err, "failed to parse public_origin")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Newf("public_origin (%s) must use http or https", c.Server.PublicOrigin)
	}
	if strings.Trim(u.Path, "/") != "" || u.RawQuery != "" {
		return errors.Newf("public_origin (%s) must not contain a path or query", c.Server.PublicOrigin)
	}

	return nil
}

// CallbackURL returns the webhook URL handed to the remote service.
func (c *Config) CallbackURL() string {
	return strings.TrimRight(c.Server.PublicOrigin, "/") + WebhookPath
}

// ResetDelay returns the ended -> disconnected delay.
func (c *Config) ResetDelay() time.Duration {
	return time.Duration(c.Call.ResetDelayMs) * time.Millisecond
}

// RequestTimeout returns the timeout for a conversation creation attempt.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Call.RequestTimeoutSec) * time.Second
}

// TavusTimeout returns the HTTP client timeout for the remote API.
func (c *Config) TavusTimeout() time.Duration {
	return time.Duration(c.Tavus.TimeoutSec) * time.Second
}

// boolValue dereferences an optional boolean.
func boolValue(b *bool) bool {
	return b != nil && *b
}

// intValue dereferences an optional integer.
func intValue(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

// LeftTimeout returns the seconds to wait after the participant leaves.
func (p ConversationProperties) LeftTimeout() int { return intValue(p.ParticipantLeftTimeout) }

// AbsentTimeout returns the seconds to wait for a participant to join.
func (p ConversationProperties) AbsentTimeout() int { return intValue(p.ParticipantAbsentTimeout) }

// RecordingEnabled reports whether calls are recorded.
func (p ConversationProperties) RecordingEnabled() bool { return boolValue(p.EnableRecording) }

// ClosedCaptionsEnabled reports whether closed captions are shown.
func (p ConversationProperties) ClosedCaptionsEnabled() bool {
	return boolValue(p.EnableClosedCaptions)
}

// GreenscreenApplied reports whether the greenscreen background is applied.
func (p ConversationProperties) GreenscreenApplied() bool { return boolValue(p.ApplyGreenscreen) }

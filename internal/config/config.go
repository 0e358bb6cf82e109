// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sigil-dev/chatrelay/internal/secrets"
	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g.
// CHATRELAY_COMPLETION_MODEL for completion.model.
const EnvPrefix = "CHATRELAY"

// Config is the top-level chatrelay configuration.
type Config struct {
	Completion CompletionConfig `mapstructure:"completion" yaml:"completion"`
	Transport  TransportConfig  `mapstructure:"transport" yaml:"transport"`
	Networking NetworkingConfig `mapstructure:"networking" yaml:"networking"`
	Sessions   SessionsConfig   `mapstructure:"sessions" yaml:"sessions"`
}

// CompletionConfig selects and authenticates the completion backend.
type CompletionConfig struct {
	Backend         string        `mapstructure:"backend" yaml:"backend"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	Model           string        `mapstructure:"model" yaml:"model"`
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	SystemPrompt    string        `mapstructure:"system_prompt" yaml:"system_prompt"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
}

// TransportConfig holds messaging platform settings.
type TransportConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
}

// TelegramConfig configures the Telegram long-polling transport.
type TelegramConfig struct {
	Token       string        `mapstructure:"token" yaml:"token"`
	PollTimeout time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
}

// NetworkingConfig controls the liveness endpoint.
type NetworkingConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Addr returns the listen address.
func (n NetworkingConfig) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// SessionsConfig controls conversation memory and eviction.
type SessionsConfig struct {
	Memory          bool          `mapstructure:"memory" yaml:"memory"`
	IdleTTL         time.Duration `mapstructure:"idle_ttl" yaml:"idle_ttl"`
	MaxEntries      int           `mapstructure:"max_entries" yaml:"max_entries"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

var validBackends = []string{"google", "openai", "anthropic"}

// SetDefaults registers the default for every known key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("completion.backend", "google")
	v.SetDefault("completion.api_key", "")
	v.SetDefault("completion.model", "")
	v.SetDefault("completion.base_url", "")
	v.SetDefault("completion.timeout", "60s")
	v.SetDefault("completion.system_prompt", "")
	v.SetDefault("completion.max_output_tokens", 0)
	v.SetDefault("transport.telegram.token", "")
	v.SetDefault("transport.telegram.poll_timeout", "30s")
	v.SetDefault("networking.host", "0.0.0.0")
	v.SetDefault("networking.port", 8080)
	v.SetDefault("sessions.memory", true)
	v.SetDefault("sessions.idle_ttl", "24h")
	v.SetDefault("sessions.max_entries", 10000)
	v.SetDefault("sessions.cleanup_interval", "1m")
}

// envAliases maps keys to the bare variable names used by existing
// deployments. The prefixed name always wins.
var envAliases = map[string][]string{
	"completion.api_key":       {"GEMINI_API_KEY"},
	"completion.model":         {"MODEL_NAME"},
	"transport.telegram.token": {"TELEGRAM_BOT_TOKEN"},
	"networking.port":          {"PORT"},
}

// SetupEnv enables CHATRELAY_ overrides for every key plus the bare aliases.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, aliases := range envAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		// BindEnv only fails without a key argument.
		_ = v.BindEnv(append([]string{key, prefixed}, aliases...)...)
	}
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Variables already set are never overridden
// and missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return relayerr.Errorf(relayerr.CodeConfigParseInvalidFormat, "loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from the given path (or defaults only) with
// environment overrides, resolving keyring:// references through store when
// it is non-nil.
func Load(path string, store secrets.Store) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, relayerr.Errorf(relayerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}
	if store != nil {
		secrets.ResolveViperSecrets(v, store)
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, relayerr.Errorf(relayerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, relayerr.Errorf(relayerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns every
// problem found rather than stopping at the first one. Credentials are not
// required here; see CheckCredentials.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateCompletion()...)
	errs = append(errs, c.validateTransport()...)
	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateSessions()...)

	return errs
}

func invalid(format string, args ...any) error {
	return relayerr.Errorf(relayerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateCompletion() []error {
	var errs []error

	known := false
	for _, b := range validBackends {
		if c.Completion.Backend == b {
			known = true
			break
		}
	}
	if !known {
		errs = append(errs, invalid("completion.backend must be one of [%s], got %q",
			strings.Join(validBackends, ", "), c.Completion.Backend))
	}

	if c.Completion.Timeout <= 0 {
		errs = append(errs, invalid("completion.timeout must be greater than 0, got %s", c.Completion.Timeout))
	}

	if c.Completion.MaxOutputTokens < 0 {
		errs = append(errs, invalid("completion.max_output_tokens must not be negative, got %d",
			c.Completion.MaxOutputTokens))
	}

	return errs
}

func (c *Config) validateTransport() []error {
	var errs []error

	if c.Transport.Telegram.PollTimeout < 0 {
		errs = append(errs, invalid("transport.telegram.poll_timeout must not be negative, got %s",
			c.Transport.Telegram.PollTimeout))
	}

	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Port < 1 || c.Networking.Port > 65535 {
		errs = append(errs, invalid("networking.port must be between 1 and 65535, got %d", c.Networking.Port))
	}

	return errs
}

func (c *Config) validateSessions() []error {
	var errs []error

	if c.Sessions.IdleTTL < 0 {
		errs = append(errs, invalid("sessions.idle_ttl must not be negative, got %s", c.Sessions.IdleTTL))
	}
	if c.Sessions.MaxEntries < 0 {
		errs = append(errs, invalid("sessions.max_entries must not be negative, got %d", c.Sessions.MaxEntries))
	}
	if c.Sessions.IdleTTL > 0 && c.Sessions.CleanupInterval <= 0 {
		errs = append(errs, invalid("sessions.cleanup_interval must be greater than 0 when sessions.idle_ttl is set, got %s",
			c.Sessions.CleanupInterval))
	}

	return errs
}

// CheckCredentials reports missing or unresolved credentials as a
// ServiceInitError. The transport token is only checked when needTransport is
// true, so local commands can run without one.
func (c *Config) CheckCredentials(needTransport bool) error {
	var errs []error

	errs = append(errs, checkCredential("completion.api_key", "GEMINI_API_KEY", c.Completion.APIKey))
	if needTransport {
		errs = append(errs, checkCredential("transport.telegram.token", "TELEGRAM_BOT_TOKEN", c.Transport.Telegram.Token))
	}

	if err := errors.Join(errs...); err != nil {
		return relayerr.Errorf(relayerr.CodeCompletionInitFailure, "credentials: %w", err)
	}
	return nil
}

// checkCredential returns uncoded errors so the joined result carries only
// the init failure code.
func checkCredential(key, env, value string) error {
	switch {
	case value == "":
		return fmt.Errorf("%s is required (set it in the config file or %s)", key, env)
	case secrets.IsKeyringURI(value):
		return fmt.Errorf("%s references %s which could not be resolved", key, value)
	default:
		return nil
	}
}

// Redacted returns a copy with credentials masked, safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	out.Completion.APIKey = Mask(c.Completion.APIKey)
	out.Transport.Telegram.Token = Mask(c.Transport.Telegram.Token)
	return &out
}

// Mask hides a credential, keeping keyring references readable and the last
// four characters of long literals.
func Mask(value string) string {
	switch {
	case value == "":
		return ""
	case secrets.IsKeyringURI(value):
		return value
	case len(value) <= 8:
		return "****"
	default:
		return "****" + value[len(value)-4:]
	}
}

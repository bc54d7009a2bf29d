package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pyneda/kensa/pkg/generation"
	"github.com/pyneda/kensa/pkg/scan/engine"
	"github.com/pyneda/kensa/pkg/scan/events"
	"github.com/pyneda/kensa/pkg/transport"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var validate = validator.New()

// LoadConfig reads config.yaml from /etc/kensa/ or the working directory,
// or from path when it is not empty. A missing file is not an error.
func LoadConfig(path string) error {
	SetDefaultConfig()
	viper.SetEnvPrefix("kensa")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/kensa/")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Debug().Msg("Config file not found, using defaults")
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	log.Debug().Str("file", viper.ConfigFileUsed()).Msg("Loaded config file")
	return nil
}

func SetDefaultConfig() {
	SetDefaults(viper.GetViper())
}

// SetDefaults registers the default of every known key on v.
func SetDefaults(v *viper.Viper) {
	// Logging
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.console.format", "pretty") // anything else logs json lines
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", "kensa.log")

	// Engine
	defaults := engine.DefaultConfig()
	v.SetDefault("engine.workers", defaults.Workers)
	v.SetDefault("engine.max_failures", defaults.MaxFailures)
	v.SetDefault("engine.seed", 0)
	v.SetDefault("engine.continue_on_failure", defaults.ContinueOnFailure)
	for _, name := range events.PhaseNames {
		v.SetDefault(phaseKey(name), containsPhase(defaults.Phases, name))
	}
	v.SetDefault("engine.generation.modes", []string{string(generation.Positive), string(generation.Negative)})
	v.SetDefault("engine.fuzzing.max_examples", defaults.FuzzingMaxExamples)
	v.SetDefault("engine.stateful.max_steps", defaults.StatefulMaxSteps)
	v.SetDefault("engine.stateful.infer_links", defaults.InferLinks)
	v.SetDefault("engine.probing.timeout", defaults.ProbeTimeout)

	// Network
	v.SetDefault("network.base_url", "")
	v.SetDefault("network.timeout", 10*time.Second)
	v.SetDefault("network.headers", map[string]string{})
	v.SetDefault("network.proxy", "")
	v.SetDefault("network.tls_verify", true)
	v.SetDefault("network.http2", false)
	v.SetDefault("network.follow_redirects", false)
	v.SetDefault("network.persist_cookies", false)
	v.SetDefault("network.auth.bearer", "")
	v.SetDefault("network.auth.basic.username", "")
	v.SetDefault("network.auth.basic.password", "")

	// Checks
	v.SetDefault("checks.enabled", []string{})

	// Report
	v.SetDefault("report.format", "pretty")
	v.SetDefault("report.cassette_path", "")
	v.SetDefault("report.reproductions_dir", "")

	// Database
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_idle_conns", 2)
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.conn_max_lifetime", "1h")
}

func phaseKey(name events.PhaseName) string {
	return fmt.Sprintf("engine.phases.%s.enabled", name)
}

func containsPhase(phases []events.PhaseName, name events.PhaseName) bool {
	for _, phase := range phases {
		if phase == name {
			return true
		}
	}
	return false
}

// EngineConfigFromViper builds and validates the engine configuration.
func EngineConfigFromViper(v *viper.Viper) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	cfg.Workers = v.GetInt("engine.workers")
	cfg.MaxFailures = v.GetInt("engine.max_failures")
	cfg.Seed = v.GetInt64("engine.seed")
	cfg.ContinueOnFailure = v.GetBool("engine.continue_on_failure")
	cfg.InferLinks = v.GetBool("engine.stateful.infer_links")
	cfg.FuzzingMaxExamples = v.GetInt("engine.fuzzing.max_examples")
	cfg.StatefulMaxSteps = v.GetInt("engine.stateful.max_steps")
	cfg.ProbeTimeout = v.GetDuration("engine.probing.timeout")
	cfg.BaseURL = v.GetString("network.base_url")
	cfg.Headers = v.GetStringMapString("network.headers")
	cfg.Checks = v.GetStringSlice("checks.enabled")

	cfg.Phases = nil
	for _, name := range events.PhaseNames {
		if v.GetBool(phaseKey(name)) {
			cfg.Phases = append(cfg.Phases, name)
		}
	}

	cfg.Modes = nil
	for _, raw := range v.GetStringSlice("engine.generation.modes") {
		mode, err := generation.ParseMode(raw)
		if err != nil {
			return cfg, err
		}
		cfg.Modes = append(cfg.Modes, mode)
	}

	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
		log.Debug().Int64("seed", cfg.Seed).Msg("No seed configured, using a random one")
	}
	if err := ValidateEngineConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ValidateEngineConfig checks the struct tags of the engine config and
// reports every invalid field in one error.
func ValidateEngineConfig(cfg engine.Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		if len(cfg.Modes) == 0 {
			return errors.New("invalid configuration: at least one generation mode is required")
		}
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		messages = append(messages, fmt.Sprintf("%s: failed on '%s' (value %v)", fieldErr.Namespace(), fieldErr.Tag(), fieldErr.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
}

// TransportOptionsFromViper builds the HTTP transport options.
func TransportOptionsFromViper(v *viper.Viper) transport.Options {
	opts := transport.Options{
		BaseURL:         v.GetString("network.base_url"),
		Timeout:         v.GetDuration("network.timeout"),
		Headers:         v.GetStringMapString("network.headers"),
		Proxy:           v.GetString("network.proxy"),
		TLSVerify:       v.GetBool("network.tls_verify"),
		HTTP2:           v.GetBool("network.http2"),
		FollowRedirects: v.GetBool("network.follow_redirects"),
		PersistCookies:  v.GetBool("network.persist_cookies"),
	}
	auth := &transport.AuthConfig{
		BearerToken:   v.GetString("network.auth.bearer"),
		BasicUsername: v.GetString("network.auth.basic.username"),
		BasicPassword: v.GetString("network.auth.basic.password"),
	}
	if auth.IsDefined() {
		opts.Auth = auth
	}
	return opts
}

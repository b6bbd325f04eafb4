package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. COEFTUNE_TUNER_ENABLED.
const EnvPrefix = "COEFTUNE"

// Config represents the complete coeftune configuration
type Config struct {
	Tuner        TunerConfig         `mapstructure:"tuner" yaml:"tuner"`
	Autotune     TriggerConfig       `mapstructure:"autotune" yaml:"autotune"`
	AutoAdvance  TriggerConfig       `mapstructure:"auto_advance" yaml:"auto_advance"`
	Interlocks   InterlockConfig     `mapstructure:"interlocks" yaml:"interlocks"`
	Channel      ChannelConfig       `mapstructure:"channel" yaml:"channel"`
	Liveness     LivenessConfig      `mapstructure:"liveness" yaml:"liveness"`
	Loop         LoopConfig          `mapstructure:"loop" yaml:"loop"`
	Optimizer    OptimizerConfig     `mapstructure:"optimizer" yaml:"optimizer"`
	Journal      JournalConfig       `mapstructure:"journal" yaml:"journal"`
	Limits       LimitsConfig        `mapstructure:"limits" yaml:"limits"`
	Logging      LoggingConfig       `mapstructure:"logging" yaml:"logging"`
	StatusAPI    StatusAPIConfig     `mapstructure:"status_api" yaml:"status_api"`
	Coefficients []CoefficientConfig `mapstructure:"coefficients" yaml:"coefficients"`
	// TuningOrder lists coefficient names in the order they are tuned.
	// Disabled coefficients are skipped.
	TuningOrder []string `mapstructure:"tuning_order" yaml:"tuning_order"`
}

// TunerConfig holds the master switch and session-wide limits
type TunerConfig struct {
	// Enabled is used until the remote publishes its own TunerEnabled flag.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// MaxConsecutiveInvalidShots raises a shot fault after this many
	// rejections in a row. 0 disables the check.
	MaxConsecutiveInvalidShots int `mapstructure:"max_consecutive_invalid_shots" yaml:"max_consecutive_invalid_shots"`
	// MaxOptimizations advances past a coefficient once it has been
	// optimized this many times. 0 means no budget; a coefficient's own
	// max_optimizations takes precedence.
	MaxOptimizations int `mapstructure:"max_optimizations_per_coefficient" yaml:"max_optimizations_per_coefficient"`
}

// TriggerConfig is the global half of the three-level settings resolution,
// used for both autotune and auto-advance.
type TriggerConfig struct {
	Enabled       bool `mapstructure:"enabled" yaml:"enabled"`
	ShotThreshold int  `mapstructure:"shot_threshold" yaml:"shot_threshold"`
	// ForceGlobal ignores every per-coefficient override.
	ForceGlobal bool `mapstructure:"force_global" yaml:"force_global"`
}

// InterlockConfig controls the cross-process handshake gates
type InterlockConfig struct {
	RequireShotLogged          bool `mapstructure:"require_shot_logged" yaml:"require_shot_logged"`
	RequireCoefficientsUpdated bool `mapstructure:"require_coefficients_updated" yaml:"require_coefficients_updated"`
	// ResetTimeoutMs re-satisfies a required gate the remote cleared and
	// never set again. 0 disables the auto-reset.
	ResetTimeoutMs int `mapstructure:"reset_timeout_ms" yaml:"reset_timeout_ms"`
}

// ChannelConfig controls the shared key-value link
type ChannelConfig struct {
	// Backend is "redis" or "memory".
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Address is a redis:// URL or host:port. When empty and TeamNumber is
	// set, the robot address 10.TE.AM.2:6379 is used.
	Address    string `mapstructure:"address" yaml:"address"`
	TeamNumber int    `mapstructure:"team_number" yaml:"team_number"`
	KeyPrefix  string `mapstructure:"key_prefix" yaml:"key_prefix"`

	ReconnectDelayMs int     `mapstructure:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`
	ReadRateHz       float64 `mapstructure:"read_rate_hz" yaml:"read_rate_hz"`
	OpTimeoutMs      int     `mapstructure:"op_timeout_ms" yaml:"op_timeout_ms"`
	// DefaultRateHz applies to paths that match no write class.
	DefaultRateHz float64 `mapstructure:"default_rate_hz" yaml:"default_rate_hz"`
	// WriteClasses are matched in order; the first match wins.
	WriteClasses []WriteClassConfig `mapstructure:"write_classes" yaml:"write_classes"`
}

// WriteClassConfig is one rate-limited path class
type WriteClassConfig struct {
	Name      string  `mapstructure:"name" yaml:"name"`
	Pattern   string  `mapstructure:"pattern" yaml:"pattern"`
	MaxRateHz float64 `mapstructure:"max_rate_hz" yaml:"max_rate_hz"`
}

// LivenessConfig controls the heartbeat publisher
type LivenessConfig struct {
	PublishIntervalMs int `mapstructure:"publish_interval_ms" yaml:"publish_interval_ms"`
}

// LoopConfig controls the control loop cadence
type LoopConfig struct {
	ActiveIntervalMs int `mapstructure:"active_interval_ms" yaml:"active_interval_ms"`
	IdleIntervalMs   int `mapstructure:"idle_interval_ms" yaml:"idle_interval_ms"`
	ErrorIntervalMs  int `mapstructure:"error_interval_ms" yaml:"error_interval_ms"`
}

// OptimizerConfig controls how shots become observations
type OptimizerConfig struct {
	// Reward is "hit" (1.0/0.0) or "accuracy" (the shot's accuracy field,
	// falling back to hit when absent).
	Reward string `mapstructure:"reward" yaml:"reward"`
	// Seed for the built-in step search. 0 seeds from the clock.
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

// JournalConfig controls the shot and history logs
type JournalConfig struct {
	Directory      string `mapstructure:"directory" yaml:"directory"`
	Prefix         string `mapstructure:"prefix" yaml:"prefix"`
	ShotFlushEvery int    `mapstructure:"shot_flush_every" yaml:"shot_flush_every"`
}

// LimitsConfig holds the physical ranges a shot must fall in
type LimitsConfig struct {
	MinDistance float64 `mapstructure:"min_distance_m" yaml:"min_distance_m"`
	MaxDistance float64 `mapstructure:"max_distance_m" yaml:"max_distance_m"`
	MinVelocity float64 `mapstructure:"min_velocity_mps" yaml:"min_velocity_mps"`
	MaxVelocity float64 `mapstructure:"max_velocity_mps" yaml:"max_velocity_mps"`
	MinAngle    float64 `mapstructure:"min_angle_rad" yaml:"min_angle_rad"`
	MaxAngle    float64 `mapstructure:"max_angle_rad" yaml:"max_angle_rad"`
}

// LoggingConfig controls diagnostic logging
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Directory for coeftune.log. Empty logs to stderr.
	Directory  string `mapstructure:"directory" yaml:"directory"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// StatusAPIConfig controls the read-only HTTP status server
type StatusAPIConfig struct {
	// ListenAddr is empty to disable the server.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// CoefficientConfig describes one tunable coefficient
type CoefficientConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	// Key is the channel path the remote reads the value from.
	// Defaults to /Tuning/<Name>.
	Key             string  `mapstructure:"key" yaml:"key,omitempty"`
	Default         float64 `mapstructure:"default" yaml:"default"`
	Min             float64 `mapstructure:"min" yaml:"min"`
	Max             float64 `mapstructure:"max" yaml:"max"`
	InitialStepSize float64 `mapstructure:"initial_step_size" yaml:"initial_step_size"`
	StepDecayRate   float64 `mapstructure:"step_decay_rate" yaml:"step_decay_rate"`
	IsInteger       bool    `mapstructure:"is_integer" yaml:"is_integer,omitempty"`
	// MaxOptimizations overrides tuner.max_optimizations_per_coefficient
	// when non-zero.
	MaxOptimizations int `mapstructure:"max_optimizations" yaml:"max_optimizations,omitempty"`
	// Enabled defaults to true when omitted.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled,omitempty"`
	// Autotune and AutoAdvance, when present, override the global settings
	// unless the global force_global flag is set.
	Autotune    *OverrideConfig `mapstructure:"autotune" yaml:"autotune,omitempty"`
	AutoAdvance *OverrideConfig `mapstructure:"auto_advance" yaml:"auto_advance,omitempty"`
}

// OverrideConfig is a per-coefficient trigger override
type OverrideConfig struct {
	Enabled       bool `mapstructure:"enabled" yaml:"enabled"`
	ShotThreshold int  `mapstructure:"shot_threshold" yaml:"shot_threshold"`
}

// IsEnabled reports whether the coefficient takes part in tuning.
func (c *CoefficientConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// OptimizationBudget returns how many optimizations the coefficient gets
// before it is advanced past, falling back to global. 0 means unlimited.
func (c *CoefficientConfig) OptimizationBudget(global int) int {
	if c.MaxOptimizations > 0 {
		return c.MaxOptimizations
	}
	return global
}

// ChannelKey returns the path the coefficient value is published at.
func (c *CoefficientConfig) ChannelKey() string {
	if c.Key != "" {
		return c.Key
	}
	return "/Tuning/" + c.Name
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Tuner: TunerConfig{
			Enabled:                    true,
			MaxConsecutiveInvalidShots: 5,
			MaxOptimizations:           0,
		},
		Autotune: TriggerConfig{
			Enabled:       false, // manual button by default
			ShotThreshold: 10,
		},
		AutoAdvance: TriggerConfig{
			Enabled:       false,
			ShotThreshold: 10,
		},
		Interlocks: InterlockConfig{
			ResetTimeoutMs: 30000,
		},
		Channel: ChannelConfig{
			Backend:          "redis",
			Address:          "",
			TeamNumber:       0,
			KeyPrefix:        "nt:",
			ReconnectDelayMs: 5000,
			ReadRateHz:       20,
			OpTimeoutMs:      50,
			DefaultRateHz:    10,
			WriteClasses: []WriteClassConfig{
				{Name: "status", Pattern: "/Tuning/BayesianTuner/**", MaxRateHz: 2},
				{Name: "coefficient", Pattern: "/Tuning/*", MaxRateHz: 10},
			},
		},
		Liveness: LivenessConfig{
			PublishIntervalMs: 1000,
		},
		Loop: LoopConfig{
			ActiveIntervalMs: 100,
			IdleIntervalMs:   1000,
			ErrorIntervalMs:  5000,
		},
		Optimizer: OptimizerConfig{
			Reward: "hit",
		},
		Journal: JournalConfig{
			Directory:      "./tuner_logs",
			Prefix:         "coeftune",
			ShotFlushEvery: 10,
		},
		Limits: LimitsConfig{
			MinDistance: 0.5,
			MaxDistance: 15,
			MinVelocity: 1,
			MaxVelocity: 30,
			MinAngle:    -0.2,
			MaxAngle:    1.5,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		StatusAPI: StatusAPIConfig{
			ListenAddr: "127.0.0.1:8051",
		},
		Coefficients: []CoefficientConfig{},
		TuningOrder:  []string{},
	}
}

// ReconnectDelay returns the channel reconnect backoff
func (c *ChannelConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// ReadCacheTTL returns how long a read is served from cache (1 / read rate)
func (c *ChannelConfig) ReadCacheTTL() time.Duration {
	if c.ReadRateHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.ReadRateHz)
}

// OpTimeout returns the per-call store timeout
func (c *ChannelConfig) OpTimeout() time.Duration {
	return time.Duration(c.OpTimeoutMs) * time.Millisecond
}

// ResolveAddress returns the store address, deriving it from the team
// number when no explicit address is set.
func (c *ChannelConfig) ResolveAddress() string {
	if c.Address != "" {
		return c.Address
	}
	if c.TeamNumber > 0 {
		return fmt.Sprintf("10.%d.%d.2:6379", c.TeamNumber/100, c.TeamNumber%100)
	}
	return "localhost:6379"
}

// PublishInterval returns the heartbeat publish interval
func (c *LivenessConfig) PublishInterval() time.Duration {
	return time.Duration(c.PublishIntervalMs) * time.Millisecond
}

// ResetTimeout returns the interlock auto-reset timeout (0 means disabled)
func (c *InterlockConfig) ResetTimeout() time.Duration {
	return time.Duration(c.ResetTimeoutMs) * time.Millisecond
}

// Interval returns the three loop intervals
func (c *LoopConfig) Interval() (active, idle, onError time.Duration) {
	return time.Duration(c.ActiveIntervalMs) * time.Millisecond,
		time.Duration(c.IdleIntervalMs) * time.Millisecond,
		time.Duration(c.ErrorIntervalMs) * time.Millisecond
}

// Coefficient returns the named coefficient config, if present.
func (c *Config) Coefficient(name string) (CoefficientConfig, bool) {
	for _, cc := range c.Coefficients {
		if cc.Name == name {
			return cc, true
		}
	}
	return CoefficientConfig{}, false
}

// EnabledOrder returns the tuning order with disabled and unknown names removed.
func (c *Config) EnabledOrder() []CoefficientConfig {
	out := make([]CoefficientConfig, 0, len(c.TuningOrder))
	for _, name := range c.TuningOrder {
		if cc, ok := c.Coefficient(name); ok && cc.IsEnabled() {
			out = append(out, cc)
		}
	}
	return out
}

// SetDefaults registers default values with the global viper instance
func SetDefaults() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	defaults := Default()

	// Tuner defaults
	v.SetDefault("tuner.enabled", defaults.Tuner.Enabled)
	v.SetDefault("tuner.max_consecutive_invalid_shots", defaults.Tuner.MaxConsecutiveInvalidShots)
	v.SetDefault("tuner.max_optimizations_per_coefficient", defaults.Tuner.MaxOptimizations)

	// Trigger defaults
	v.SetDefault("autotune.enabled", defaults.Autotune.Enabled)
	v.SetDefault("autotune.shot_threshold", defaults.Autotune.ShotThreshold)
	v.SetDefault("autotune.force_global", defaults.Autotune.ForceGlobal)
	v.SetDefault("auto_advance.enabled", defaults.AutoAdvance.Enabled)
	v.SetDefault("auto_advance.shot_threshold", defaults.AutoAdvance.ShotThreshold)
	v.SetDefault("auto_advance.force_global", defaults.AutoAdvance.ForceGlobal)

	// Interlock defaults
	v.SetDefault("interlocks.require_shot_logged", defaults.Interlocks.RequireShotLogged)
	v.SetDefault("interlocks.require_coefficients_updated", defaults.Interlocks.RequireCoefficientsUpdated)
	v.SetDefault("interlocks.reset_timeout_ms", defaults.Interlocks.ResetTimeoutMs)

	// Channel defaults
	v.SetDefault("channel.backend", defaults.Channel.Backend)
	v.SetDefault("channel.address", defaults.Channel.Address)
	v.SetDefault("channel.team_number", defaults.Channel.TeamNumber)
	v.SetDefault("channel.key_prefix", defaults.Channel.KeyPrefix)
	v.SetDefault("channel.reconnect_delay_ms", defaults.Channel.ReconnectDelayMs)
	v.SetDefault("channel.read_rate_hz", defaults.Channel.ReadRateHz)
	v.SetDefault("channel.op_timeout_ms", defaults.Channel.OpTimeoutMs)
	v.SetDefault("channel.default_rate_hz", defaults.Channel.DefaultRateHz)
	v.SetDefault("channel.write_classes", writeClassDefaults(defaults.Channel.WriteClasses))

	// Liveness and loop defaults
	v.SetDefault("liveness.publish_interval_ms", defaults.Liveness.PublishIntervalMs)
	v.SetDefault("loop.active_interval_ms", defaults.Loop.ActiveIntervalMs)
	v.SetDefault("loop.idle_interval_ms", defaults.Loop.IdleIntervalMs)
	v.SetDefault("loop.error_interval_ms", defaults.Loop.ErrorIntervalMs)

	// Optimizer defaults
	v.SetDefault("optimizer.reward", defaults.Optimizer.Reward)
	v.SetDefault("optimizer.seed", defaults.Optimizer.Seed)

	// Journal defaults
	v.SetDefault("journal.directory", defaults.Journal.Directory)
	v.SetDefault("journal.prefix", defaults.Journal.Prefix)
	v.SetDefault("journal.shot_flush_every", defaults.Journal.ShotFlushEvery)

	// Physical limits
	v.SetDefault("limits.min_distance_m", defaults.Limits.MinDistance)
	v.SetDefault("limits.max_distance_m", defaults.Limits.MaxDistance)
	v.SetDefault("limits.min_velocity_mps", defaults.Limits.MinVelocity)
	v.SetDefault("limits.max_velocity_mps", defaults.Limits.MaxVelocity)
	v.SetDefault("limits.min_angle_rad", defaults.Limits.MinAngle)
	v.SetDefault("limits.max_angle_rad", defaults.Limits.MaxAngle)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.directory", defaults.Logging.Directory)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.compress", defaults.Logging.Compress)

	// Status API defaults
	v.SetDefault("status_api.listen_addr", defaults.StatusAPI.ListenAddr)

	v.SetDefault("coefficients", []map[string]any{})
	v.SetDefault("tuning_order", defaults.TuningOrder)
}

// writeClassDefaults converts write classes into the map form viper
// stores defaults in, so that an override of one class list replaces the
// whole list.
func writeClassDefaults(classes []WriteClassConfig) []map[string]any {
	out := make([]map[string]any, 0, len(classes))
	for _, wc := range classes {
		out = append(out, map[string]any{
			"name":        wc.Name,
			"pattern":     wc.Pattern,
			"max_rate_hz": wc.MaxRateHz,
		})
	}
	return out
}

// Load reads the configuration from the global viper instance into a
// Config struct and validates it
func Load() (*Config, error) {
	return load(viper.GetViper())
}

// LoadFile reads and validates a config file with a private viper
// instance, leaving the global one untouched. The config watcher uses it.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "coeftune")
	}
	// Fall back to ~/.config/coeftune
	home, err := os.UserHomeDir()
	if err != nil {
		return ".coeftune"
	}
	return filepath.Join(home, ".config", "coeftune")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidRewards returns the accepted optimizer.reward values
func ValidRewards() []string {
	return []string{"hit", "accuracy"}
}

// ValidBackends returns the accepted channel.backend values
func ValidBackends() []string {
	return []string{"redis", "memory"}
}

// Sample returns the defaults plus a starter set of coefficients. It is
// what "coeftune config init" writes.
func Sample() *Config {
	cfg := Default()
	cfg.Coefficients = []CoefficientConfig{
		{
			Name:            "DragCoefficient",
			Default:         0.47,
			Min:             0.3,
			Max:             0.7,
			InitialStepSize: 0.02,
			StepDecayRate:   0.9,
		},
		{
			Name:            "VelocityIterationCount",
			Default:         10,
			Min:             5,
			Max:             30,
			InitialStepSize: 2,
			StepDecayRate:   0.85,
			IsInteger:       true,
		},
		{
			Name:            "GravityCompensation",
			Default:         0.02,
			Min:             0,
			Max:             0.1,
			InitialStepSize: 0.005,
			StepDecayRate:   0.9,
			AutoAdvance:     &OverrideConfig{Enabled: true, ShotThreshold: 5},
		},
	}
	cfg.TuningOrder = []string{"DragCoefficient", "VelocityIterationCount", "GravityCompensation"}
	return cfg
}

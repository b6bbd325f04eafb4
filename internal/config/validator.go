package config

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "coefficients[0].min")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// LivenessTimeout is the fixed peer staleness threshold. Both ends of the
// link use the same constant; it is not negotiated.
const LivenessTimeout = 5 * time.Second

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateTriggers()...)
	errors = append(errors, c.validateInterlocks()...)
	errors = append(errors, c.validateChannel()...)
	errors = append(errors, c.validateTiming()...)
	errors = append(errors, c.validateOptimizer()...)
	errors = append(errors, c.validateJournal()...)
	errors = append(errors, c.validateLimits()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateCoefficients()...)
	errors = append(errors, c.validateTuningOrder()...)

	return errors
}

// validateTriggers validates the tuner limits and the global autotune and
// auto-advance settings
func (c *Config) validateTriggers() []ValidationError {
	var errors []ValidationError

	if c.Tuner.MaxConsecutiveInvalidShots < 0 {
		errors = append(errors, ValidationError{
			Field:   "tuner.max_consecutive_invalid_shots",
			Value:   c.Tuner.MaxConsecutiveInvalidShots,
			Message: "must be non-negative (0 disables the check)",
		})
	}
	if c.Tuner.MaxOptimizations < 0 {
		errors = append(errors, ValidationError{
			Field:   "tuner.max_optimizations_per_coefficient",
			Value:   c.Tuner.MaxOptimizations,
			Message: "must be non-negative (0 means no budget)",
		})
	}
	if c.Autotune.ShotThreshold < 1 {
		errors = append(errors, ValidationError{
			Field:   "autotune.shot_threshold",
			Value:   c.Autotune.ShotThreshold,
			Message: "must be at least 1",
		})
	}
	if c.AutoAdvance.ShotThreshold < 1 {
		errors = append(errors, ValidationError{
			Field:   "auto_advance.shot_threshold",
			Value:   c.AutoAdvance.ShotThreshold,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateInterlocks() []ValidationError {
	if c.Interlocks.ResetTimeoutMs < 0 {
		return []ValidationError{{
			Field:   "interlocks.reset_timeout_ms",
			Value:   c.Interlocks.ResetTimeoutMs,
			Message: "must be non-negative (0 disables auto-reset)",
		}}
	}
	return nil
}

// validateChannel validates the ChannelConfig
func (c *Config) validateChannel() []ValidationError {
	var errors []ValidationError
	ch := c.Channel

	if !slices.Contains(ValidBackends(), ch.Backend) {
		errors = append(errors, ValidationError{
			Field:   "channel.backend",
			Value:   ch.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBackends(), ", ")),
		})
	}

	if ch.TeamNumber < 0 || ch.TeamNumber > 25599 {
		errors = append(errors, ValidationError{
			Field:   "channel.team_number",
			Value:   ch.TeamNumber,
			Message: "must be between 0 and 25599",
		})
	}

	positive := []struct {
		field string
		value float64
	}{
		{"channel.reconnect_delay_ms", float64(ch.ReconnectDelayMs)},
		{"channel.read_rate_hz", ch.ReadRateHz},
		{"channel.op_timeout_ms", float64(ch.OpTimeoutMs)},
		{"channel.default_rate_hz", ch.DefaultRateHz},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errors = append(errors, ValidationError{
				Field:   p.field,
				Value:   p.value,
				Message: "must be positive",
			})
		}
	}

	seen := make(map[string]bool)
	for i, wc := range ch.WriteClasses {
		prefix := fmt.Sprintf("channel.write_classes[%d]", i)
		if wc.Name == "" || wc.Name == "default" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".name",
				Value:   wc.Name,
				Message: "must be set and must not be \"default\"",
			})
		} else if seen[wc.Name] {
			errors = append(errors, ValidationError{
				Field:   prefix + ".name",
				Value:   wc.Name,
				Message: "duplicate write class name",
			})
		}
		seen[wc.Name] = true

		if _, err := glob.Compile(wc.Pattern, '/'); err != nil || wc.Pattern == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".pattern",
				Value:   wc.Pattern,
				Message: "must be a valid glob pattern",
			})
		}
		if wc.MaxRateHz <= 0 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".max_rate_hz",
				Value:   wc.MaxRateHz,
				Message: "must be positive",
			})
		}
	}

	return errors
}

// validateTiming validates heartbeat and loop intervals
func (c *Config) validateTiming() []ValidationError {
	var errors []ValidationError

	publish := c.Liveness.PublishInterval()
	if publish <= 0 || publish > LivenessTimeout/2 {
		errors = append(errors, ValidationError{
			Field:   "liveness.publish_interval_ms",
			Value:   c.Liveness.PublishIntervalMs,
			Message: fmt.Sprintf("must be positive and at most %dms (half the liveness timeout)", (LivenessTimeout / 2).Milliseconds()),
		})
	}

	loops := []struct {
		field string
		value int
	}{
		{"loop.active_interval_ms", c.Loop.ActiveIntervalMs},
		{"loop.idle_interval_ms", c.Loop.IdleIntervalMs},
		{"loop.error_interval_ms", c.Loop.ErrorIntervalMs},
	}
	for _, l := range loops {
		if l.value <= 0 {
			errors = append(errors, ValidationError{
				Field:   l.field,
				Value:   l.value,
				Message: "must be positive",
			})
		}
	}

	return errors
}

func (c *Config) validateOptimizer() []ValidationError {
	if !slices.Contains(ValidRewards(), c.Optimizer.Reward) {
		return []ValidationError{{
			Field:   "optimizer.reward",
			Value:   c.Optimizer.Reward,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidRewards(), ", ")),
		}}
	}
	return nil
}

func (c *Config) validateJournal() []ValidationError {
	var errors []ValidationError

	if c.Journal.Directory == "" {
		errors = append(errors, ValidationError{
			Field:   "journal.directory",
			Value:   c.Journal.Directory,
			Message: "must be set",
		})
	}
	if c.Journal.Prefix == "" || strings.ContainsAny(c.Journal.Prefix, `/\`) {
		errors = append(errors, ValidationError{
			Field:   "journal.prefix",
			Value:   c.Journal.Prefix,
			Message: "must be a non-empty file name prefix",
		})
	}
	if c.Journal.ShotFlushEvery < 1 {
		errors = append(errors, ValidationError{
			Field:   "journal.shot_flush_every",
			Value:   c.Journal.ShotFlushEvery,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateLimits checks that every physical range is ordered
func (c *Config) validateLimits() []ValidationError {
	var errors []ValidationError
	l := c.Limits

	ranges := []struct {
		field    string
		min, max float64
	}{
		{"limits.distance", l.MinDistance, l.MaxDistance},
		{"limits.velocity", l.MinVelocity, l.MaxVelocity},
		{"limits.angle", l.MinAngle, l.MaxAngle},
	}
	for _, r := range ranges {
		if !(r.min < r.max) {
			errors = append(errors, ValidationError{
				Field:   r.field,
				Value:   fmt.Sprintf("[%v, %v]", r.min, r.max),
				Message: "min must be less than max",
			})
		}
	}
	if l.MinDistance < 0 {
		errors = append(errors, ValidationError{
			Field:   "limits.min_distance_m",
			Value:   l.MinDistance,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateCoefficients checks names, bounds and step settings
func (c *Config) validateCoefficients() []ValidationError {
	var errors []ValidationError
	seen := make(map[string]bool)

	for i, cc := range c.Coefficients {
		prefix := fmt.Sprintf("coefficients[%d]", i)

		if cc.Name == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".name",
				Value:   cc.Name,
				Message: "must be set",
			})
		} else if seen[cc.Name] {
			errors = append(errors, ValidationError{
				Field:   prefix + ".name",
				Value:   cc.Name,
				Message: "duplicate coefficient name",
			})
		}
		seen[cc.Name] = true

		if !finite(cc.Min, cc.Max, cc.Default) {
			errors = append(errors, ValidationError{
				Field:   prefix,
				Value:   fmt.Sprintf("min=%v max=%v default=%v", cc.Min, cc.Max, cc.Default),
				Message: "bounds and default must be finite",
			})
			continue
		}
		if cc.Min >= cc.Max {
			errors = append(errors, ValidationError{
				Field:   prefix + ".min",
				Value:   cc.Min,
				Message: fmt.Sprintf("must be less than max (%v)", cc.Max),
			})
		} else if cc.Default < cc.Min || cc.Default > cc.Max {
			errors = append(errors, ValidationError{
				Field:   prefix + ".default",
				Value:   cc.Default,
				Message: fmt.Sprintf("must be within [%v, %v]", cc.Min, cc.Max),
			})
		}

		if cc.InitialStepSize <= 0 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".initial_step_size",
				Value:   cc.InitialStepSize,
				Message: "must be positive",
			})
		}
		if cc.MaxOptimizations < 0 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".max_optimizations",
				Value:   cc.MaxOptimizations,
				Message: "must be non-negative",
			})
		}
		if cc.StepDecayRate <= 0 || cc.StepDecayRate > 1 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".step_decay_rate",
				Value:   cc.StepDecayRate,
				Message: "must be in (0, 1]",
			})
		}

		for _, o := range []struct {
			name string
			ov   *OverrideConfig
		}{{"autotune", cc.Autotune}, {"auto_advance", cc.AutoAdvance}} {
			if o.ov != nil && o.ov.ShotThreshold < 1 {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s.%s.shot_threshold", prefix, o.name),
					Value:   o.ov.ShotThreshold,
					Message: "must be at least 1",
				})
			}
		}
	}

	return errors
}

// validateTuningOrder checks that the order names known coefficients at
// most once and leaves at least one enabled coefficient to tune
func (c *Config) validateTuningOrder() []ValidationError {
	var errors []ValidationError
	seen := make(map[string]bool)

	for i, name := range c.TuningOrder {
		field := fmt.Sprintf("tuning_order[%d]", i)
		if _, ok := c.Coefficient(name); !ok {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   name,
				Message: "unknown coefficient",
			})
		}
		if seen[name] {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   name,
				Message: "listed more than once",
			})
		}
		seen[name] = true
	}

	if len(c.EnabledOrder()) == 0 {
		errors = append(errors, ValidationError{
			Field:   "tuning_order",
			Value:   c.TuningOrder,
			Message: "must name at least one enabled coefficient",
		})
	}

	return errors
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

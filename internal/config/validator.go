package config

import (
	"fmt"
	"strings"

	"github.com/lodestar-dev/lodestar/internal/logging"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s=%v: %s", e.Field, e.Value, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for invalid values and returns all
// violations found. An empty slice means the configuration is valid.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	errs = append(errs, c.Storage.validate()...)
	errs = append(errs, c.Mode.validate()...)
	errs = append(errs, c.Lifecycle.validate()...)
	errs = append(errs, c.Logging.validate()...)

	return errs
}

func (s *StorageConfig) validate() []ValidationError {
	var errs []ValidationError

	if s.DebounceMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.debounce_ms",
			Value:   s.DebounceMs,
			Message: "must be zero or positive",
		})
	}
	if s.DebounceMs > 60_000 {
		errs = append(errs, ValidationError{
			Field:   "storage.debounce_ms",
			Value:   s.DebounceMs,
			Message: "must not exceed 60000 (one minute)",
		})
	}

	if s.SessionPrefix == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.session_prefix",
			Value:   s.SessionPrefix,
			Message: "must not be empty",
		})
	} else {
		for _, r := range s.SessionPrefix {
			isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
			if !isAlpha {
				errs = append(errs, ValidationError{
					Field:   "storage.session_prefix",
					Value:   s.SessionPrefix,
					Message: "must contain only letters",
				})
				break
			}
		}
	}

	return errs
}

func (m *ModeConfig) validate() []ValidationError {
	var errs []ValidationError

	if !IsValidMode(m.Default) {
		errs = append(errs, ValidationError{
			Field:   "mode.default",
			Value:   m.Default,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidModes(), ", ")),
		})
	}

	if m.ExecutionTimeoutMinutes < 0 {
		errs = append(errs, ValidationError{
			Field:   "mode.execution_timeout_minutes",
			Value:   m.ExecutionTimeoutMinutes,
			Message: "must be zero (disabled) or positive",
		})
	}

	if m.RemoteThreshold < 1 || m.RemoteThreshold > 10 {
		errs = append(errs, ValidationError{
			Field:   "mode.remote_threshold",
			Value:   m.RemoteThreshold,
			Message: "must be between 1 and 10",
		})
	}

	return errs
}

func (l *LifecycleConfig) validate() []ValidationError {
	var errs []ValidationError

	if l.SweepIntervalMinutes < 1 {
		errs = append(errs, ValidationError{
			Field:   "lifecycle.sweep_interval_minutes",
			Value:   l.SweepIntervalMinutes,
			Message: "must be at least 1",
		})
	}

	if l.MaxIdleMinutes < 1 {
		errs = append(errs, ValidationError{
			Field:   "lifecycle.max_idle_minutes",
			Value:   l.MaxIdleMinutes,
			Message: "must be at least 1",
		})
	}

	if l.MaxIdleMinutes >= 1 && l.SweepIntervalMinutes >= 1 && l.SweepIntervalMinutes > l.MaxIdleMinutes {
		errs = append(errs, ValidationError{
			Field:   "lifecycle.sweep_interval_minutes",
			Value:   l.SweepIntervalMinutes,
			Message: "must not exceed lifecycle.max_idle_minutes",
		})
	}

	return errs
}

func (lg *LoggingConfig) validate() []ValidationError {
	var errs []ValidationError

	valid := false
	for _, level := range logging.ValidLevels() {
		if lg.Level == level {
			valid = true
			break
		}
	}
	if !valid {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   lg.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(logging.ValidLevels(), ", ")),
		})
	}

	if lg.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   lg.MaxSizeMB,
			Message: "must be at least 1",
		})
	}

	if lg.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Value:   lg.MaxBackups,
			Message: "must be zero or positive",
		})
	}

	return errs
}

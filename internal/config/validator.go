package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// Lock store backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "locks.backend")
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

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidBackends returns the list of valid lock store backends
func ValidBackends() []string {
	return []string{BackendFile, BackendSQLite}
}

// ValidOutputFormats returns the list of valid trace output formats
func ValidOutputFormats() []string {
	return []string{"csv", "yaml"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLocks()...)
	errors = append(errors, c.validateEngine()...)
	errors = append(errors, c.validateSimulation()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateLocks validates the LocksConfig
func (c *Config) validateLocks() []ValidationError {
	var errors []ValidationError

	if c.Locks.Dir == "" {
		errors = append(errors, ValidationError{
			Field:   "locks.dir",
			Value:   c.Locks.Dir,
			Message: "must not be empty",
		})
	}
	errors = append(errors, validatePath("locks.dir", c.Locks.Dir)...)
	errors = append(errors, validatePath("locks.sqlite_path", c.Locks.SQLitePath)...)

	if !slices.Contains(ValidBackends(), c.Locks.Backend) {
		errors = append(errors, ValidationError{
			Field:   "locks.backend",
			Value:   c.Locks.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBackends(), ", ")),
		})
	}

	return errors
}

// validateEngine validates the EngineConfig
func (c *Config) validateEngine() []ValidationError {
	var errors []ValidationError

	u, err := url.Parse(c.Engine.BridgeURL)
	switch {
	case c.Engine.BridgeURL == "":
		errors = append(errors, ValidationError{
			Field:   "engine.bridge_url",
			Value:   c.Engine.BridgeURL,
			Message: "must not be empty",
		})
	case err != nil:
		errors = append(errors, ValidationError{
			Field:   "engine.bridge_url",
			Value:   c.Engine.BridgeURL,
			Message: fmt.Sprintf("invalid URL: %v", err),
		})
	case !slices.Contains([]string{"ws", "wss", "http", "https"}, u.Scheme):
		errors = append(errors, ValidationError{
			Field:   "engine.bridge_url",
			Value:   c.Engine.BridgeURL,
			Message: "scheme must be ws, wss, http or https",
		})
	}

	if c.Engine.SessionPattern != "" {
		if _, err := glob.Compile(c.Engine.SessionPattern); err != nil {
			errors = append(errors, ValidationError{
				Field:   "engine.session_pattern",
				Value:   c.Engine.SessionPattern,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}

	if c.Engine.ConnectTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "engine.connect_timeout_seconds",
			Value:   c.Engine.ConnectTimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateSimulation validates the SimulationConfig
func (c *Config) validateSimulation() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidOutputFormats(), c.Simulation.OutputFormat) {
		errors = append(errors, ValidationError{
			Field:   "simulation.output_format",
			Value:   c.Simulation.OutputFormat,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidOutputFormats(), ", ")),
		})
	}
	errors = append(errors, validatePath("simulation.model_dir", c.Simulation.ModelDir)...)

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	errors = append(errors, validatePath("logging.dir", c.Logging.Dir)...)

	return errors
}

// validatePath rejects path values the filesystem cannot hold. Empty is allowed.
func validatePath(field, path string) []ValidationError {
	var errors []ValidationError

	// Check for null bytes which are invalid in paths
	if strings.ContainsRune(path, '\x00') {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: "path contains invalid null character",
		})
	}

	// Reasonable path length limit (most filesystems have limits around 4096)
	const maxPathLength = 4096
	if len(path) > maxPathLength {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
		})
	}

	return errors
}

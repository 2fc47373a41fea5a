package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/Iron-Ham/taskscope/internal/logging"
	"github.com/Iron-Ham/taskscope/internal/realtime"
	"github.com/Iron-Ham/taskscope/internal/search"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "search.page_size")
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

// sortFieldRegex validates sort field names: lowercase words joined by underscores
var sortFieldRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// MaxPageSize bounds search.page_size and per-request page sizes
const MaxPageSize = 500

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateAPI()...)
	errors = append(errors, c.validateRealtime()...)
	errors = append(errors, c.validateSearch()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMetrics()...)

	return errors
}

// validateAPI validates the APIConfig
func (c *Config) validateAPI() []ValidationError {
	var errors []ValidationError

	if !isHTTPURL(c.API.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "api.base_url",
			Value:   c.API.BaseURL,
			Message: "must be an absolute http or https URL",
		})
	}
	if c.API.TimeoutMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "api.timeout_ms",
			Value:   c.API.TimeoutMs,
			Message: "must be positive",
		})
	}

	return errors
}

// validateRealtime validates the RealtimeConfig
func (c *Config) validateRealtime() []ValidationError {
	var errors []ValidationError

	if c.Realtime.URL != "" {
		u, err := url.Parse(c.Realtime.URL)
		if err != nil || u.Host == "" || !slices.Contains([]string{"ws", "wss", "http", "https"}, u.Scheme) {
			errors = append(errors, ValidationError{
				Field:   "realtime.url",
				Value:   c.Realtime.URL,
				Message: "must be an absolute ws, wss, http or https URL",
			})
		}
	}
	if c.Realtime.ConnectionType == "" {
		errors = append(errors, ValidationError{
			Field:   "realtime.connection_type",
			Value:   c.Realtime.ConnectionType,
			Message: "must not be empty",
		})
	}
	for i, ch := range c.Realtime.Channels {
		if strings.TrimSpace(ch) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("realtime.channels[%d]", i),
				Value:   ch,
				Message: "must not be empty",
			})
		}
	}
	for _, p := range c.Realtime.SubscribePatterns {
		if _, err := realtime.CompilePatterns([]string{p}); err != nil {
			errors = append(errors, ValidationError{
				Field:   "realtime.subscribe_patterns",
				Value:   p,
				Message: "must be a valid glob pattern",
			})
		}
	}
	if c.Realtime.ReconnectDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "realtime.reconnect_delay_ms",
			Value:   c.Realtime.ReconnectDelayMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateSearch validates the SearchConfig
func (c *Config) validateSearch() []ValidationError {
	var errors []ValidationError

	if c.Search.DebounceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "search.debounce_ms",
			Value:   c.Search.DebounceMs,
			Message: "must be non-negative",
		})
	}
	if c.Search.PageSize < 1 || c.Search.PageSize > MaxPageSize {
		errors = append(errors, ValidationError{
			Field:   "search.page_size",
			Value:   c.Search.PageSize,
			Message: fmt.Sprintf("must be between 1 and %d", MaxPageSize),
		})
	}
	if !sortFieldRegex.MatchString(c.Search.SortField) {
		errors = append(errors, ValidationError{
			Field:   "search.sort_field",
			Value:   c.Search.SortField,
			Message: "must be a lowercase field name",
		})
	}
	if !search.Direction(c.Search.SortDirection).IsValid() {
		errors = append(errors, ValidationError{
			Field:   "search.sort_direction",
			Value:   c.Search.SortDirection,
			Message: "must be one of: asc, desc",
		})
	}
	if !c.Search.Policy().IsValid() {
		errors = append(errors, ValidationError{
			Field:   "search.invalidation",
			Value:   c.Search.Invalidation,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidInvalidationPolicies(), ", ")),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(logging.ValidLevels(), strings.ToUpper(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.ToLower(strings.Join(logging.ValidLevels(), ", "))),
		})
	}

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	var errors []ValidationError

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Address); err != nil {
			errors = append(errors, ValidationError{
				Field:   "metrics.address",
				Value:   c.Metrics.Address,
				Message: "must be host:port",
			})
		}
	}

	return errors
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

package contract

import (
	"errors"
	"fmt"
)

// ConfigurationError reports invalid user input detected before any work is scheduled.
// It is never retried.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// NewConfigurationError builds a ConfigurationError.
func NewConfigurationError(field, value, reason string) error {
	return &ConfigurationError{Field: field, Value: value, Reason: reason}
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

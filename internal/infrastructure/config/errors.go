package config

import "fmt"

// ConfigurationError reports a recognised variable whose value could not be
// coerced to its declared type. Field is the upper-case variable name.
//
//	var cfgErr *config.ConfigurationError
//	if errors.As(err, &cfgErr) {
//	    log.Error("bad configuration", "field", cfgErr.Field)
//	}
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: invalid value for %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

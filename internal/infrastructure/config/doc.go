// Package config resolves the analytics service configuration.
//
// This package manages:
//   - Built-in defaults for every setting
//   - An optional override file (.env, or YAML when the name ends in .yaml/.yml)
//   - Environment variable overrides, matched case-insensitively
//   - Type coercion with field-level errors (ConfigurationError)
//   - A memoising Provider so the process shares one immutable snapshot
//
// Security Considerations:
//   - JWT_SECRET, INTERNAL_SERVICE_KEY and DATABASE_URL carry secrets; log
//     DatabaseDisplay() instead of the raw URL
//   - The override file should have restricted permissions (0600)
//
// Usage:
//
//	provider := config.NewProvider(config.DefaultLoadOptions())
//	settings, err := provider.Settings()
//	if err != nil {
//	    return fmt.Errorf("loading config: %w", err)
//	}
//	fmt.Println(settings.ServiceName)
package config

package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment is the deployment environment the service runs in.
type Environment string

// Supported environments.
const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
	EnvTesting     Environment = "testing"
)

// defaultEnvFile is the override file read when ENV_FILE is not set.
const defaultEnvFile = ".env"

// Settings is the resolved configuration snapshot for the analytics service.
//
// A Settings value is built once by Load and must be treated as read-only
// afterwards. Share it by pointer; never modify fields (including the
// CORSOrigins slice) after construction.
type Settings struct {
	// Application
	Version     string
	Environment Environment
	ServiceName string
	LogLevel    string
	LogFormat   string
	LogOutput   string
	Workers     int
	Host        string
	Port        int

	// Database. An empty DatabaseURL means persistence is not configured.
	DatabaseURL      string
	DBPoolSize       int
	DBMaxOverflow    int
	DBConnectTimeout int // seconds

	// Security
	JWTSecret          string
	InternalServiceKey string

	// External services
	ParhelionAPIURL         string
	ParhelionAPIInternalKey string

	CORSOrigins []string

	InfluxDB InfluxDBConfig
}

// InfluxDBConfig contains the optional probe telemetry sink settings.
// The sink is enabled when URL is non-empty.
type InfluxDBConfig struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     int
	FlushInterval int // seconds
}

// Enabled reports whether probe telemetry should be written to InfluxDB.
func (c InfluxDBConfig) Enabled() bool {
	return c.URL != ""
}

// LoggingConfig contains logging settings derived from Settings.
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// LoadOptions controls where Load reads values from.
type LoadOptions struct {
	// EnvFile is an optional override file. Dotenv syntax is expected unless
	// the name ends in .yaml or .yml. A missing file is not an error.
	// Empty disables the file layer.
	EnvFile string

	// Environ replaces os.Environ() as the environment source when non-nil.
	Environ []string
}

// DefaultLoadOptions returns options that read the process environment and
// the override file named by ENV_FILE (".env" when unset).
func DefaultLoadOptions() LoadOptions {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = defaultEnvFile
	}
	return LoadOptions{EnvFile: path}
}

// Load resolves a Settings snapshot.
//
// The resolution order is:
//  1. Default values (hardcoded)
//  2. Override file values (override defaults)
//  3. Environment variables (override file values)
//
// Variable names are matched case-insensitively and unrecognised names are
// ignored. A value that cannot be coerced to its field type produces a
// *ConfigurationError naming the field.
//
// Parameters:
//   - opts: Sources to read from
//
// Returns:
//   - *Settings: Resolved and validated configuration
//   - error: If the override file is unreadable, a value fails coercion, or validation fails
func Load(opts LoadOptions) (*Settings, error) {
	s := defaultSettings()

	values := make(map[string]string)

	if opts.EnvFile != "" {
		fileValues, err := readOverrideFile(opts.EnvFile)
		if err != nil {
			return nil, err
		}
		for k, v := range fileValues {
			values[strings.ToUpper(k)] = v
		}
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		values[strings.ToUpper(k)] = v
	}

	if err := s.apply(values); err != nil {
		return nil, err
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return s, nil
}

// defaultSettings returns Settings with the service defaults.
func defaultSettings() *Settings {
	return &Settings{
		Version:          "0.6.0-alpha",
		Environment:      EnvDevelopment,
		ServiceName:      "python-analytics",
		LogLevel:         "info",
		LogFormat:        "json",
		LogOutput:        "stdout",
		Workers:          4,
		Host:             "0.0.0.0",
		Port:             8000,
		DBPoolSize:       5,
		DBMaxOverflow:    10,
		DBConnectTimeout: 5,
		ParhelionAPIURL:  "http://parhelion-api:5000",
		CORSOrigins: []string{
			"http://localhost:4100", // Admin
			"http://localhost:5101", // Operaciones
			"http://localhost:5102", // Campo
			"http://localhost:5100", // API (.NET)
		},
		InfluxDB: InfluxDBConfig{
			Org:           "parhelion",
			Bucket:        "analytics",
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// readOverrideFile reads key/value pairs from a dotenv or YAML file.
// Returns nil values and no error if the file does not exist.
func readOverrideFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading override file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing override file: %w", err)
		}
		values := make(map[string]string, len(raw))
		for k, v := range raw {
			values[k] = yamlScalar(v)
		}
		return values, nil
	default:
		values, err := godotenv.UnmarshalBytes(data)
		if err != nil {
			return nil, fmt.Errorf("parsing override file: %w", err)
		}
		return values, nil
	}
}

// yamlScalar renders a decoded YAML value in the same string form an
// environment variable would carry. Sequences become JSON arrays.
func yamlScalar(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any:
		//nolint:errcheck // values decoded from YAML always marshal
		b, _ := json.Marshal(val)
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}

// field binds an upper-case variable name to a Settings setter.
type field struct {
	key string
	set func(s *Settings, raw string) error
}

// fields lists every recognised variable.
var fields = []field{
	{"VERSION", stringField(func(s *Settings) *string { return &s.Version })},
	{"ENVIRONMENT", setEnvironment},
	{"SERVICE_NAME", stringField(func(s *Settings) *string { return &s.ServiceName })},
	{"LOG_LEVEL", stringField(func(s *Settings) *string { return &s.LogLevel })},
	{"LOG_FORMAT", stringField(func(s *Settings) *string { return &s.LogFormat })},
	{"LOG_OUTPUT", stringField(func(s *Settings) *string { return &s.LogOutput })},
	{"WORKERS", intField(func(s *Settings) *int { return &s.Workers })},
	{"HOST", stringField(func(s *Settings) *string { return &s.Host })},
	{"PORT", intField(func(s *Settings) *int { return &s.Port })},
	{"DATABASE_URL", stringField(func(s *Settings) *string { return &s.DatabaseURL })},
	{"DB_POOL_SIZE", intField(func(s *Settings) *int { return &s.DBPoolSize })},
	{"DB_MAX_OVERFLOW", intField(func(s *Settings) *int { return &s.DBMaxOverflow })},
	{"DB_CONNECT_TIMEOUT", intField(func(s *Settings) *int { return &s.DBConnectTimeout })},
	{"JWT_SECRET", stringField(func(s *Settings) *string { return &s.JWTSecret })},
	{"INTERNAL_SERVICE_KEY", stringField(func(s *Settings) *string { return &s.InternalServiceKey })},
	{"PARHELION_API_URL", stringField(func(s *Settings) *string { return &s.ParhelionAPIURL })},
	{"PARHELION_API_INTERNAL_KEY", stringField(func(s *Settings) *string { return &s.ParhelionAPIInternalKey })},
	{"CORS_ORIGINS", setCORSOrigins},
	{"INFLUXDB_URL", stringField(func(s *Settings) *string { return &s.InfluxDB.URL })},
	{"INFLUXDB_TOKEN", stringField(func(s *Settings) *string { return &s.InfluxDB.Token })},
	{"INFLUXDB_ORG", stringField(func(s *Settings) *string { return &s.InfluxDB.Org })},
	{"INFLUXDB_BUCKET", stringField(func(s *Settings) *string { return &s.InfluxDB.Bucket })},
	{"INFLUXDB_BATCH_SIZE", intField(func(s *Settings) *int { return &s.InfluxDB.BatchSize })},
	{"INFLUXDB_FLUSH_INTERVAL", intField(func(s *Settings) *int { return &s.InfluxDB.FlushInterval })},
}

// apply overlays recognised values onto s.
func (s *Settings) apply(values map[string]string) error {
	for _, f := range fields {
		raw, ok := values[f.key]
		if !ok {
			continue
		}
		if err := f.set(s, raw); err != nil {
			return &ConfigurationError{Field: f.key, Err: err}
		}
	}
	return nil
}

func stringField(ptr func(*Settings) *string) func(*Settings, string) error {
	return func(s *Settings, raw string) error {
		*ptr(s) = raw
		return nil
	}
}

// intField ignores empty values so an exported-but-blank variable keeps the default.
func intField(ptr func(*Settings) *int) func(*Settings, string) error {
	return func(s *Settings, raw string) error {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%q is not an integer", raw)
		}
		*ptr(s) = n
		return nil
	}
}

func setEnvironment(s *Settings, raw string) error {
	env := Environment(strings.ToLower(strings.TrimSpace(raw)))
	switch env {
	case EnvDevelopment, EnvProduction, EnvTesting:
		s.Environment = env
		return nil
	default:
		return fmt.Errorf("%q is not one of development, production, testing", raw)
	}
}

// setCORSOrigins accepts a JSON array or a comma-separated list.
func setCORSOrigins(s *Settings, raw string) error {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var origins []string
		if err := json.Unmarshal([]byte(raw), &origins); err != nil {
			return fmt.Errorf("invalid JSON list: %w", err)
		}
		s.CORSOrigins = origins
		return nil
	}

	origins := []string{}
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	s.CORSOrigins = origins
	return nil
}

// Validate checks the configuration for out-of-range values.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (s *Settings) Validate() error {
	var errs []string

	if s.Workers < 1 {
		errs = append(errs, "workers must be at least 1")
	}

	// Port 0 asks the kernel for a free port.
	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, "port must be between 0 and 65535")
	}

	if s.DBPoolSize < 1 {
		errs = append(errs, "db_pool_size must be at least 1")
	}
	if s.DBMaxOverflow < 0 {
		errs = append(errs, "db_max_overflow must not be negative")
	}
	if s.DBConnectTimeout < 1 {
		errs = append(errs, "db_connect_timeout must be at least 1 second")
	}

	switch strings.ToLower(s.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, "log_format must be json or text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsProduction reports whether the service runs in production mode.
func (s *Settings) IsProduction() bool {
	return s.Environment == EnvProduction
}

// IsTesting reports whether the service runs in testing mode.
func (s *Settings) IsTesting() bool {
	return s.Environment == EnvTesting
}

// DatabaseConfigured reports whether a database URL was supplied.
func (s *Settings) DatabaseConfigured() bool {
	return s.DatabaseURL != ""
}

// DatabaseDisplay returns the part of the database URL after the last "@",
// which drops credentials for log output.
func (s *Settings) DatabaseDisplay() string {
	if s.DatabaseURL == "" {
		return "Not configured"
	}
	if i := strings.LastIndex(s.DatabaseURL, "@"); i >= 0 {
		return s.DatabaseURL[i+1:]
	}
	return s.DatabaseURL
}

// ConnectTimeout returns the database connect timeout as a Duration.
func (s *Settings) ConnectTimeout() time.Duration {
	return time.Duration(s.DBConnectTimeout) * time.Second
}

// Logging returns the logging section of the settings.
func (s *Settings) Logging() LoggingConfig {
	return LoggingConfig{
		Level:  s.LogLevel,
		Format: s.LogFormat,
		Output: s.LogOutput,
	}
}

// Addr returns the HTTP listen address.
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Package config defines the broker's configuration surface and builds
// application components from it. Configuration merges a YAML file,
// TELCOBRIDGE_* environment variables, and command-line flags, in ascending
// precedence.
package config

// Config is the root configuration structure for telcobridge
type Config struct {
	// Server configuration (HTTP port, shutdown behavior)
	Server ServerConfig `koanf:"server"`

	// Broker configuration for minted tokens
	Broker BrokerConfig `koanf:"broker"`

	// Directory is the provider prefix table
	Directory DirectoryConfig `koanf:"directory"`

	// Cache configuration for the token caches
	Cache CacheConfig `koanf:"cache"`

	// Telco configuration for outbound provider calls
	Telco TelcoConfig `koanf:"telco"`

	// Observability configuration (logging)
	Observability *ObservabilityConfig `koanf:"observability"`
}

// ServerConfig contains network-level server settings
type ServerConfig struct {
	// HTTPPort is the port for the HTTP API
	HTTPPort int `koanf:"http_port" usage:"HTTP server port (default 8080)"`

	// ShutdownTimeout bounds graceful shutdown, as a duration string
	ShutdownTimeout string `koanf:"shutdown_timeout" usage:"graceful shutdown timeout (e.g. 10s)"`
}

// BrokerConfig configures broker token minting
type BrokerConfig struct {
	// Issuer is the iss claim on broker tokens
	Issuer string `koanf:"issuer" usage:"issuer claim for broker tokens"`

	// TokenTTL is the broker token lifetime, as a duration string
	TokenTTL string `koanf:"token_ttl" usage:"broker token lifetime (e.g. 5m)"`

	// FollowerWait bounds how long a deduplicated request waits for an
	// in-flight identical request
	FollowerWait string `koanf:"follower_wait" usage:"max wait behind an identical in-flight request (e.g. 15s)"`

	// Signing is the broker token signing key configuration
	Signing SigningConfig `koanf:"signing"`
}

// SigningConfig configures broker token signing key material
type SigningConfig struct {
	// Algorithm selects the signing algorithm
	// Options: "HS256", "HS384", "HS512", "RS256", "RS384", "RS512"
	Algorithm string `koanf:"algorithm" usage:"token signing algorithm (default HS256)"`

	// Secret is an inline symmetric secret (HS* only; prefer secret_env)
	Secret string `koanf:"secret" usage:"inline symmetric signing secret"`

	// SecretEnv names an environment variable holding the symmetric secret
	SecretEnv string `koanf:"secret_env" usage:"environment variable holding the signing secret"`

	// KeyFile is a PEM-encoded RSA private key (RS* only)
	KeyFile string `koanf:"key_file" usage:"PEM private key file for RS* algorithms"`
}

// DirectoryConfig locates the provider prefix table
type DirectoryConfig struct {
	// Path is the YAML prefix table file
	Path string `koanf:"path" usage:"provider prefix table file (default ./configs/prefixes.yaml)"`
}

// CacheConfig configures the token caches
type CacheConfig struct {
	// Type selects the cache implementation
	// Options: "memory", "none"
	Type string `koanf:"type" usage:"cache backend: memory or none (default memory)"`

	// MaxCostBytes bounds total cached payload size
	MaxCostBytes int64 `koanf:"max_cost_bytes" usage:"cache size bound in bytes (default 32MB)"`

	// MaxTTL caps cache entry lifetimes regardless of token expiry
	MaxTTL string `koanf:"max_ttl" usage:"cache entry lifetime cap (e.g. 1h)"`

	// WriteQueueSize bounds pending asynchronous cache writes
	WriteQueueSize int `koanf:"write_queue_size" usage:"async cache write queue size (default 256)"`
}

// TelcoConfig configures outbound provider calls
type TelcoConfig struct {
	// RequestTimeout bounds a single provider request
	RequestTimeout string `koanf:"request_timeout" usage:"per-attempt provider request timeout (e.g. 10s)"`

	// LatencyCeiling bounds a provider call including its retry
	LatencyCeiling string `koanf:"latency_ceiling" usage:"total provider call budget (e.g. 15s)"`
}

// ObservabilityConfig configures logging
type ObservabilityConfig struct {
	// LogLevel sets the minimum level: "debug", "info", "warn", "error"
	LogLevel string `koanf:"log_level" usage:"minimum log level (default info)"`

	// LogFormat selects the handler: "text" or "json"
	LogFormat string `koanf:"log_format" usage:"log output format: text or json (default text)"`
}

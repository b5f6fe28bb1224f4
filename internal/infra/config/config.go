package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/argon2"
)

// Config is the top-level client configuration.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Auth      AuthConfig      `yaml:"auth"`
	Transport TransportConfig `yaml:"transport"`
	Stream    StreamConfig    `yaml:"stream"`
	Cache     CacheConfig     `yaml:"cache"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Includes  []string        `yaml:"includes,omitempty"`
}

// APIConfig describes the chat backend.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	ProjectID      string        `yaml:"project_id"`
	TokenParam     string        `yaml:"token_param"` // query parameter carrying the session token
	UserParam      string        `yaml:"user_param"`  // query parameter carrying the user id
	ConnTimeout    time.Duration `yaml:"conn_timeout"`
	RespTimeout    time.Duration `yaml:"resp_timeout"`    // time to first response header
	RequestTimeout time.Duration `yaml:"request_timeout"` // whole-request bound for non-streaming calls
	Pool           PoolConfig    `yaml:"pool"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// AuthConfig identifies the user. Token may be stored as "enc:..." and is
// decrypted with CHATSTREAM_CONFIG_KEY.
type AuthConfig struct {
	Token  string `yaml:"token"`
	UserID string `yaml:"user_id"`
}

// TransportConfig guards outgoing stream requests.
type TransportConfig struct {
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

// CircuitBreakerConfig holds circuit breaker settings for stream opens.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig bounds how often new requests may be opened.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// StreamConfig tunes the response reader.
type StreamConfig struct {
	ReadBufferSize int `yaml:"read_buffer_size"`
}

// CacheConfig controls the local conversation cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	Pretty      bool    `yaml:"pretty"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// defaultDataDir returns $HOME/.chatstream, or ./data when $HOME is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".chatstream")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:3000",
			TokenParam:     "token",
			UserParam:      "clerk_id",
			ConnTimeout:    30 * time.Second,
			RespTimeout:    120 * time.Second,
			RequestTimeout: 30 * time.Second,
			Pool: PoolConfig{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				MaxConnsPerHost:     8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		Transport: TransportConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: 1,
				Burst:             3,
			},
		},
		Stream: StreamConfig{
			ReadBufferSize: 4096,
		},
		Cache: CacheConfig{
			Enabled: false,
			Path:    filepath.Join(defaultDataDir(), "cache.db"),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:     false,
			Exporter:    "noop",
			ServiceName: "chatstream",
			SampleRatio: 1,
		},
	}
}

// Load reads a YAML config file, loads .env from the working directory,
// applies CHATSTREAM_* overrides, decrypts secrets and validates the result.
// A missing config file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		data = nil
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if data != nil {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}

		// Included files apply first; the main file wins over all of them.
		l, err := collectLayers(absPath, data)
		if err != nil {
			return nil, err
		}
		if err := l.apply(cfg); err != nil {
			return nil, err
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("CHATSTREAM_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv populates unset environment variables from path. A missing
// file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

// ApplyEnvOverrides maps CHATSTREAM_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHATSTREAM_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("CHATSTREAM_API_PROJECT_ID"); v != "" {
		cfg.API.ProjectID = v
	}
	if v := os.Getenv("CHATSTREAM_API_TOKEN_PARAM"); v != "" {
		cfg.API.TokenParam = v
	}
	if v := os.Getenv("CHATSTREAM_API_USER_PARAM"); v != "" {
		cfg.API.UserParam = v
	}
	if v := os.Getenv("CHATSTREAM_API_CONN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.API.ConnTimeout = d
		}
	}
	if v := os.Getenv("CHATSTREAM_API_RESP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.API.RespTimeout = d
		}
	}
	if v := os.Getenv("CHATSTREAM_AUTH_TOKEN"); v != "" {
		cfg.Auth.Token = v
	}
	if v := os.Getenv("CHATSTREAM_AUTH_USER_ID"); v != "" {
		cfg.Auth.UserID = v
	}
	if v := os.Getenv("CHATSTREAM_TRANSPORT_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.Transport.CircuitBreaker.Enabled = v == "true"
	}
	if v := os.Getenv("CHATSTREAM_TRANSPORT_RATE_LIMIT_ENABLED"); v != "" {
		cfg.Transport.RateLimit.Enabled = v == "true"
	}
	if v := os.Getenv("CHATSTREAM_TRANSPORT_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Transport.RateLimit.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("CHATSTREAM_STREAM_READ_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.ReadBufferSize = n
		}
	}
	if v := os.Getenv("CHATSTREAM_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = v == "true"
	}
	if v := os.Getenv("CHATSTREAM_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("CHATSTREAM_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("CHATSTREAM_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("CHATSTREAM_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("CHATSTREAM_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("CHATSTREAM_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// decryptSecrets replaces "enc:..." values with their plaintext.
func decryptSecrets(cfg *Config, passphrase string) error {
	if strings.HasPrefix(cfg.Auth.Token, "enc:") {
		plain, err := DecryptValue(strings.TrimPrefix(cfg.Auth.Token, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("auth token: %w", err)
		}
		cfg.Auth.Token = plain
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
// The result is hex(salt) + ":" + hex(nonce+ciphertext).
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(sealed), nil
}

// DecryptValue reverses EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plain), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files writable by group or others.
// The file may hold the session token.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
// Identity fields (project, user, token) are not required here: a missing
// identity is reported per request.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAPI(cfg, ve)
	validateTransport(cfg, ve)
	validateStream(cfg, ve)
	validateCache(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAPI(cfg *Config, ve *ValidationError) {
	api := cfg.API
	if api.BaseURL == "" {
		ve.Add("api.base_url must not be empty")
	} else if u, err := url.Parse(api.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		ve.Add("api.base_url %q must be an absolute http(s) URL", api.BaseURL)
	}
	if api.TokenParam == "" {
		ve.Add("api.token_param must not be empty")
	}
	if api.UserParam == "" {
		ve.Add("api.user_param must not be empty")
	}
	if api.TokenParam != "" && api.TokenParam == api.UserParam {
		ve.Add("api.token_param and api.user_param must differ")
	}
	if api.ConnTimeout < 0 {
		ve.Add("api.conn_timeout must be >= 0")
	}
	if api.RespTimeout < 0 {
		ve.Add("api.resp_timeout must be >= 0")
	}
	if api.RequestTimeout < 0 {
		ve.Add("api.request_timeout must be >= 0")
	}
	if api.Pool.MaxIdleConns < 0 || api.Pool.MaxIdleConnsPerHost < 0 || api.Pool.MaxConnsPerHost < 0 {
		ve.Add("api.pool sizes must be >= 0")
	}
}

func validateTransport(cfg *Config, ve *ValidationError) {
	cb := cfg.Transport.CircuitBreaker
	if cb.Enabled {
		if cb.MaxFailures == 0 {
			ve.Add("transport.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if cb.Timeout <= 0 {
			ve.Add("transport.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
	rl := cfg.Transport.RateLimit
	if rl.Enabled {
		if rl.RequestsPerSecond <= 0 {
			ve.Add("transport.rate_limit.requests_per_second must be > 0 when enabled")
		}
		if rl.Burst <= 0 {
			ve.Add("transport.rate_limit.burst must be > 0 when enabled")
		}
	}
}

func validateStream(cfg *Config, ve *ValidationError) {
	if n := cfg.Stream.ReadBufferSize; n < 64 || n > 1<<20 {
		ve.Add("stream.read_buffer_size must be between 64 and 1048576, got %d", n)
	}
}

func validateCache(cfg *Config, ve *ValidationError) {
	if cfg.Cache.Enabled && cfg.Cache.Path == "" {
		ve.Add("cache.path must not be empty when cache is enabled")
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is not one of debug, info, warn, error", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json", "":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q must be stdout or noop", cfg.Tracer.Exporter)
	}
	if r := cfg.Tracer.SampleRatio; r < 0 || r > 1 {
		ve.Add("tracer.sample_ratio must be within [0, 1], got %g", r)
	}
}

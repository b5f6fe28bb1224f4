package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chatstream/internal/adapter/transport"
	"chatstream/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run health checks on your setup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.OutOrStdout(), opts.configPath)
		},
	}
}

// runDoctor executes all health checks and reports results to w.
func runDoctor(w io.Writer, cfgPath string) error {
	// Some checks work without a loaded config.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Credentials", Fn: checkCredentials},
		{Name: "Project", Fn: checkProject},
		{Name: "Service connectivity", Fn: checkConnectivity},
		{Name: "Cache", Fn: checkCache},
	}

	fmt.Fprintln(w, "chatstream doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Fprintln(w, "\nFix the FAIL issues above before chatting.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Fprintln(w, "\nchatstream should work, but consider addressing the warnings.")
	} else {
		fmt.Fprintln(w, "\nAll checks passed! chatstream is ready to run.")
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

func notLoaded() CheckResult {
	return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
}

// checkConfigFile verifies the config file parses. A missing file is only a
// warning since defaults and CHATSTREAM_* variables may be enough.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     fmt.Sprintf("Check the syntax and values in %s", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults and environment", cfgPath),
				Fix:     "Create config.yaml or pass --config",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkCredentials verifies a user id and session token are configured.
func checkCredentials(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	var missing []string
	if cfg.Auth.UserID == "" {
		missing = append(missing, "auth.user_id")
	}
	if cfg.Auth.Token == "" {
		missing = append(missing, "auth.token")
	}
	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("missing %s", strings.Join(missing, ", ")),
			Fix:     "Set CHATSTREAM_AUTH_USER_ID and CHATSTREAM_AUTH_TOKEN, or add them to the config file",
		}
	}
	if strings.HasPrefix(cfg.Auth.Token, "enc:") {
		return CheckResult{
			Status:  StatusFail,
			Message: "auth.token is encrypted but CHATSTREAM_CONFIG_KEY is not set",
			Fix:     "Export CHATSTREAM_CONFIG_KEY with the passphrase used by encrypt-token",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("user %s with a session token", cfg.Auth.UserID),
	}
}

// checkProject warns when requests will not be scoped to a project.
func checkProject(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if cfg.API.ProjectID == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "api.project_id is empty; requests are not scoped to a project",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("project %s", cfg.API.ProjectID)}
}

// checkConnectivity tests that the service base URL answers HTTP.
func checkConnectivity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	endpoint := strings.TrimRight(cfg.API.BaseURL, "/")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}

	start := time.Now()
	resp, err := transport.NewHTTPClient(cfg.API).Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check api.base_url and your network connection",
		}
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s responded with status %d", endpoint, resp.StatusCode),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", endpoint, latency.Milliseconds()),
	}
}

// checkCache verifies the cache directory exists and is writable.
func checkCache(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if !cfg.Cache.Enabled {
		return CheckResult{Status: StatusPass, Message: "cache disabled"}
	}

	absDir, _ := filepath.Abs(filepath.Dir(cfg.Cache.Path))
	if err := os.MkdirAll(absDir, 0o700); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cache directory %s cannot be created: %v", absDir, err),
			Fix:     fmt.Sprintf("Create the directory: mkdir -p %s", absDir),
		}
	}

	testFile := filepath.Join(absDir, ".doctor-check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cache directory %s is not writable: %v", absDir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 700 %s", absDir),
		}
	}
	os.Remove(testFile)

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("cache directory %s writable", absDir),
	}
}

// Package config provides 12-factor configuration management for the webview daemon.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Engine: browser engine backend selection and budgets
//   - Views: live view population caps and boot manifest
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Daemon running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST
//   - ENGINE_BACKEND, ENGINE_USER_AGENT, ENGINE_FETCH_TIMEOUT, ENGINE_SCRIPT_BUDGET
//   - VIEWS_MAX, VIEWS_IDLE_TIMEOUT, VIEWS_MANIFEST
//   - LOG_LEVEL, LOG_DEV, LOG_FILE
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config

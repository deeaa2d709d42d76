// Package main is the entry point for the webview daemon.
//
// The daemon hosts embeddable browser views behind a REST and WebSocket
// control surface. Clients create views, drive navigation, inject scripts
// and exchange bridge messages; per-view load events stream back over
// WebSocket.
//
// Architecture:
//
//	Client (REST/WS) → webviewd → engine backend (inproc or chromium)
//
// The daemon provides:
//   - REST API for view lifecycle and navigation
//   - WebSocket streaming of load events, state and bridge messages
//   - Origin allow-list enforcement with OS handoff for blocked targets
//   - Script injection and a page-global message bridge
//   - Rate limiting and Prometheus metrics
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./webviewd -port 8090 -engine chromium
//
//	# Development mode (colored logs, debug level)
//	./webviewd -dev -manifest views.yaml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main

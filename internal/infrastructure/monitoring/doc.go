/*
Package monitoring provides Prometheus metrics for the webview daemon.

# Overview

This package tracks the daemon's HTTP surface alongside the lifecycle of the
views it hosts: navigations by outcome, page load latency, script injection
and bridge traffic, fetch-layer health, and WebSocket event streams.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record view activity
	metrics.IncViewsTotal("inproc")
	metrics.RecordNavigation("inproc", "end", duration)
	metrics.RecordBridgeMessage("in")

	// Time a load
	timer := monitoring.NewTimer(metrics, "inproc")
	// ... load completes ...
	timer.Stop("end")

# Metrics Endpoint

Metrics are registered on the default registry and exposed via the standard
Prometheus handler:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

All metric names carry the webview_ prefix.
*/
package monitoring

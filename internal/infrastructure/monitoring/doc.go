/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the relay,
tracking HTTP requests, browser sessions, the frame pump, relayed input and
WebSocket traffic.

# Usage

	// Create metrics collector on a dedicated registry
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	defer metrics.Close()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Time browser operations
	timer := monitoring.NewTimer(metrics, "browser", "navigate")
	// ... perform operation ...
	timer.Stop("success")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring

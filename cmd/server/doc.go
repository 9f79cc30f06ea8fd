// Package main is the entry point for the remote browser relay.
//
// The relay runs headless Chrome on the server and streams it to web
// viewers over a websocket: screenshots flow out, clicks, scrolls and
// keystrokes flow back in.
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional YAML or TOML file (--config), overlaid on the environment
//   - CLI flags (override both)
//
// Usage:
//
//	# One private browser per viewer
//	./server --port 5001
//
//	# One browser shared by every viewer, started at boot
//	./server --mode shared --url https://example.com --auto-start
//
//	# Development mode (colored logs, debug level)
//	./server --dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main

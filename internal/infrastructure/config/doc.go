// Package config provides 12-factor configuration management for the relay.
//
// Configuration is loaded from environment variables with sensible defaults.
// An optional YAML or TOML file can be layered on top, and CLI flags
// override both.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Relay: isolated (one browser per connection) or shared mode
//   - Browser: Chrome launch and screenshot settings
//   - Session: frame rate and command queue settings
//   - WebSocket: real-time channel tuning
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Launch: circuit breaker around browser launches
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
package config

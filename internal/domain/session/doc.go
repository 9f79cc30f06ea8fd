// Package session maps client connections to remote browser sessions and
// runs the relay loop for each of them.
//
// Components:
//   - Registry: connection id to session, in isolated or shared mode
//   - Session: one goroutine that owns the browser handle
//   - Frame pump: capture, encode and broadcast at the session frame rate
//   - Input relay: click, scroll and keydown events forwarded to the page
//
// Session States:
//
//	absent -> starting -> running -> stopped
//	starting -> absent (launch failure)
//
// Navigation and input reach the owning goroutine through a bounded command
// channel, so callers wait for enqueueing and never for execution.
//
// Example Usage:
//
//	registry := session.NewRegistry(launcher, opts, logger, metrics, tracer)
//	registry.Attach(client)
//	sess, err := registry.Create(ctx, client.ConnectionID(), "https://example.com", session.CreateOptions{})
//	err = registry.Input(ctx, client.ConnectionID(), session.Input{Type: session.InputClick, X: 50, Y: 50})
//	registry.Detach(client.ConnectionID())
package session

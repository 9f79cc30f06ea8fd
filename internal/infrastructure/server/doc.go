// Package server wires the relay together.
//
// Server Lifecycle:
//  1. Load configuration from environment, file and flags
//  2. Initialize logger, metrics and tracing
//  3. Build the browser launcher (local Chrome or remote DevTools) behind a launch breaker
//  4. Create the session registry
//  5. Setup HTTP routes, the websocket endpoint and middleware
//  6. Auto-start the shared browser when configured
//  7. Serve until shutdown, then stop every session
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Run(ctx)
//	defer srv.Shutdown(context.Background())
package server

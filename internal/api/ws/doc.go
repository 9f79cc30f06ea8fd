// Package ws serves the real-time channel between browser viewers and the
// session registry.
//
// Every message is a JSON envelope {"type": ..., "data": {...}}.
//
// Message Types (Client → Server):
//   - start_browser: launch (isolated) or join (shared) a session at url
//   - navigate_browser: load url in the current session
//   - input_event: click, scroll or keydown against the page
//   - settings_change: change the frame rate
//   - ping: keep-alive
//
// Message Types (Server → Client):
//   - screenshot: one base64 frame
//   - page_info: url and title of the frame just sent
//   - status: session lifecycle updates
//   - settings: the frame rate now in effect
//   - browser_stopped: the shared browser shut down
//   - error: a request could not be served
//   - pong: keep-alive reply
//
// Example Usage:
//
//	handler := ws.NewHandler(registry, ws.DefaultOptions(), logger, metrics)
//	router.GET("/ws", handler.HandleConnection)
package ws

// Package browser drives a remote Chrome instance over the DevTools protocol.
//
// A Launcher starts (or attaches to) Chrome and returns a Handle. A Handle is
// not safe for concurrent use: exactly one goroutine, the session loop, owns
// it from launch to Close.
//
// Example Usage:
//
//	launcher := browser.NewChromeLauncher(logger)
//	handle, err := launcher.Launch(ctx, browser.LaunchOptions{URL: "https://example.com"})
//	if err != nil {
//		return err
//	}
//	defer handle.Close()
//
//	capture, err := handle.Screenshot(ctx)
package browser

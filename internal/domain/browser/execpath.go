package browser

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Executables searched on PATH, in order.
var execCandidates = []string{
	"google-chrome-stable",
	"google-chrome",
	"chromium",
	"chromium-browser",
	"headless-shell",
	"chrome",
}

// Well-known install locations checked after PATH.
var execLocations = []string{
	"/usr/bin/google-chrome-stable",
	"/usr/bin/google-chrome",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
}

// ResolveExecPath returns the Chrome executable to launch. An explicit
// request is honored as either a path or a name on PATH.
func ResolveExecPath(requested string) (string, error) {
	if requested = strings.TrimSpace(requested); requested != "" {
		if strings.ContainsRune(requested, filepath.Separator) {
			if isExecutable(requested) {
				return requested, nil
			}
			return "", fmt.Errorf("%w: %s is not executable", ErrBrowserNotFound, requested)
		}
		path, err := exec.LookPath(requested)
		if err != nil {
			return "", fmt.Errorf("%w: %s not on PATH", ErrBrowserNotFound, requested)
		}
		return path, nil
	}

	for _, name := range execCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	for _, path := range execLocations {
		if isExecutable(path) {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrBrowserNotFound, strings.Join(execCandidates, ", "))
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

package browser

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/microcosm-cc/bluemonday"
)

// maxErrorBody caps how much of a failed discovery response ends up in errors.
const maxErrorBody = 160

// errorBodyPolicy reduces HTML error pages from proxies in front of a remote
// browser to their text.
var errorBodyPolicy = bluemonday.StrictPolicy()

// VersionInfo is the payload of the DevTools /json/version endpoint.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// newDevToolsClient builds the HTTP client used to discover remote browsers.
// Retries happen in the retryablehttp transport, so resty itself does not retry.
func newDevToolsClient() *resty.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil

	return resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json").
		SetJSONUnmarshaler(sonic.Unmarshal)
}

// ResolveDevToolsURL turns a remote endpoint into a DevTools websocket URL.
// ws:// and wss:// URLs are returned unchanged; http(s) endpoints are
// resolved through /json/version.
func ResolveDevToolsURL(ctx context.Context, client *resty.Client, remote string) (string, error) {
	remote = strings.TrimRight(strings.TrimSpace(remote), "/")
	if strings.HasPrefix(remote, "ws://") || strings.HasPrefix(remote, "wss://") {
		return remote, nil
	}
	if !strings.HasPrefix(remote, "http://") && !strings.HasPrefix(remote, "https://") {
		remote = "http://" + remote
	}

	var info VersionInfo
	resp, err := client.R().
		SetContext(ctx).
		SetResult(&info).
		Get(remote + "/json/version")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		if text := bodyText(resp.Body()); text != "" {
			return "", fmt.Errorf("%w: %s returned %d: %s", ErrRemoteUnavailable, remote, resp.StatusCode(), text)
		}
		return "", fmt.Errorf("%w: %s returned %d", ErrRemoteUnavailable, remote, resp.StatusCode())
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("%w: %s reported no webSocketDebuggerUrl", ErrRemoteUnavailable, remote)
	}

	return info.WebSocketDebuggerURL, nil
}

// bodyText returns the readable text of a response body, markup removed and
// whitespace collapsed.
func bodyText(body []byte) string {
	text := html.UnescapeString(string(errorBodyPolicy.SanitizeBytes(body)))
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > maxErrorBody {
		text = string(r[:maxErrorBody]) + "..."
	}
	return text
}

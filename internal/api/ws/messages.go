package ws

import (
	"github.com/GriffinCanCode/browserrelay/internal/domain/session"
	"github.com/bytedance/sonic"
)

// Client → server message types.
const (
	MsgStartBrowser    = "start_browser"
	MsgNavigateBrowser = "navigate_browser"
	MsgInputEvent      = "input_event"
	MsgSettingsChange  = "settings_change"
	MsgPing            = "ping"
)

// Server → client message types.
const (
	MsgScreenshot     = "screenshot"
	MsgPageInfo       = "page_info"
	MsgStatus         = "status"
	MsgSettings       = "settings"
	MsgBrowserStopped = "browser_stopped"
	MsgError          = "error"
	MsgPong           = "pong"
)

// Envelope wraps every outgoing message.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Inbound is a decoded client message. Data holds the union of every
// client payload; each handler reads the fields of its own type.
type Inbound struct {
	Type string      `json:"type"`
	Data InboundData `json:"data"`
}

// InboundData is the union of client payloads. The embedded Input carries
// the input_event fields.
type InboundData struct {
	session.Input
	URL       string `json:"url,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Framerate *int   `json:"framerate,omitempty"`
}

type ScreenshotPayload struct {
	Image  string `json:"image"`
	Format string `json:"format"`
	Seq    uint64 `json:"seq"`
}

type PageInfoPayload struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type StatusPayload struct {
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

type SettingsPayload struct {
	Framerate int `json:"framerate"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type empty struct{}

// Encode marshals an envelope.
func Encode(msgType string, data interface{}) ([]byte, error) {
	if data == nil {
		data = empty{}
	}
	return sonic.Marshal(Envelope{Type: msgType, Data: data})
}

// Decode parses a client message.
func Decode(raw []byte) (Inbound, error) {
	var msg Inbound
	err := sonic.Unmarshal(raw, &msg)
	return msg, err
}

package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/browserrelay/internal/domain/session"
	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/monitoring"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	errClientClosed   = errors.New("client closed")
	errSendBufferFull = errors.New("send buffer full")
)

// client is one websocket connection. It is the session subscriber for that
// connection: frames and notifications are queued on send and written by
// writePump, so session goroutines never block on the network.
//
// The last reserve slots of send are kept for control messages, so a client
// that falls behind on frames still hears browser_stopped and error.
type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	sendMu    sync.Mutex
	reserve   int
	done      chan struct{}
	closeOnce sync.Once

	writeWait  time.Duration
	pingPeriod time.Duration

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

func (c *client) ConnectionID() string {
	return c.id
}

// OnFrame queues a screenshot and its page info as one unit. Either both
// are delivered or the whole frame is dropped.
func (c *client) OnFrame(f session.Frame) {
	shot, err := Encode(MsgScreenshot, ScreenshotPayload{
		Image:  f.Image,
		Format: f.Format,
		Seq:    f.Seq,
	})
	if err != nil {
		c.logger.Error("failed to encode message", zap.String("type", MsgScreenshot), zap.Error(err))
		return
	}
	info, err := Encode(MsgPageInfo, PageInfoPayload{URL: f.URL, Title: f.Title})
	if err != nil {
		c.logger.Error("failed to encode message", zap.String("type", MsgPageInfo), zap.Error(err))
		return
	}

	switch err := c.enqueue(c.reserve, shot, info); {
	case err == nil:
		c.metrics.RecordWSMessage("out", MsgScreenshot)
		c.metrics.RecordWSMessage("out", MsgPageInfo)
	case errors.Is(err, errSendBufferFull):
		c.metrics.IncWSDropped()
		c.logger.Debug("send buffer full, frame dropped", zap.Uint64("seq", f.Seq))
	}
}

func (c *client) OnStopped() {
	c.queue(MsgBrowserStopped, nil)
}

func (c *client) OnError(err error) {
	c.sendError(err)
}

func (c *client) sendError(err error) {
	c.queue(MsgError, ErrorPayload{Message: err.Error()})
}

func (c *client) sendStatus(state string, s *session.Session) {
	payload := StatusPayload{State: state}
	if s != nil {
		payload.SessionID = s.ID()
		payload.Mode = string(s.Mode())
	}
	c.queue(MsgStatus, payload)
}

// queue encodes and enqueues a control message without blocking. Control
// messages may use the reserved slots; only a buffer that is completely
// full drops one.
func (c *client) queue(msgType string, data interface{}) {
	msg, err := Encode(msgType, data)
	if err != nil {
		c.logger.Error("failed to encode message", zap.String("type", msgType), zap.Error(err))
		return
	}
	if err := c.enqueue(0, msg); err != nil {
		if errors.Is(err, errClientClosed) {
			return
		}
		c.metrics.IncWSDropped()
		c.logger.Warn("send buffer full, message dropped", zap.String("type", msgType))
		return
	}
	c.metrics.RecordWSMessage("out", msgType)
}

// enqueue adds msgs to send in order, all or nothing, leaving at least
// reserve slots free.
func (c *client) enqueue(reserve int, msgs ...[]byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	if cap(c.send)-len(c.send) < len(msgs)+reserve {
		return errSendBufferFull
	}
	// Cannot block: writers hold sendMu and writePump only drains.
	for _, msg := range msgs {
		c.send <- msg
	}
	return nil
}

// writePump owns all writes to the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeWait))
			return
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

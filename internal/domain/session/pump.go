package session

import (
	"encoding/base64"
	"fmt"
	"time"
)

// Frame is one captured screenshot with the page it shows.
type Frame struct {
	SessionID  string
	Seq        uint64
	Image      string // base64
	Format     string
	URL        string
	Title      string
	CapturedAt time.Time
}

// pump captures one frame and broadcasts it to every subscriber. Any
// capture or page info error ends the pump.
func (s *Session) pump() error {
	start := time.Now()
	capture, err := s.handle.Screenshot(s.ctx)
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	captureTime := time.Since(start)

	info, err := s.handle.PageInfo(s.ctx)
	if err != nil {
		return fmt.Errorf("page info: %w", err)
	}

	s.mu.Lock()
	s.url = info.URL
	s.title = info.Title
	s.mu.Unlock()

	frame := Frame{
		SessionID:  s.id,
		Seq:        s.seq.Add(1),
		Image:      base64.StdEncoding.EncodeToString(capture.Data),
		Format:     capture.Format,
		URL:        info.URL,
		Title:      info.Title,
		CapturedAt: start,
	}

	// Subscribers must not block.
	for _, sub := range s.subscribers() {
		sub.OnFrame(frame)
	}

	s.metrics.RecordFrame(len(capture.Data), captureTime)
	return nil
}

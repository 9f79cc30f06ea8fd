package session

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/browserrelay/internal/domain/browser"
)

// InputType tags an input event.
type InputType string

const (
	InputClick   InputType = "click"
	InputScroll  InputType = "scroll"
	InputKeydown InputType = "keydown"
)

// Input is a client input event. Fields outside the event type are ignored.
type Input struct {
	Type     InputType `json:"type"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	DeltaY   float64   `json:"deltaY"`
	Key      string    `json:"key"`
	Code     string    `json:"code"`
	CtrlKey  bool      `json:"ctrlKey"`
	MetaKey  bool      `json:"metaKey"`
	ShiftKey bool      `json:"shiftKey"`
	AltKey   bool      `json:"altKey"`
}

// Validate rejects unknown event types and incomplete events.
func (in Input) Validate() error {
	switch in.Type {
	case InputClick, InputScroll:
		return nil
	case InputKeydown:
		if in.Key == "" {
			return fmt.Errorf("%w: keydown without key", ErrUnknownInput)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownInput, in.Type)
	}
}

// relay re-issues in against the handle. Called only from the session goroutine.
func (s *Session) relay(ctx context.Context, in Input) error {
	switch in.Type {
	case InputClick:
		return s.handle.Click(ctx, in.X, in.Y)
	case InputScroll:
		return s.handle.Scroll(ctx, in.DeltaY)
	case InputKeydown:
		return s.handle.SendKey(ctx, browser.KeyEvent{
			Key:   in.Key,
			Code:  in.Code,
			Ctrl:  in.CtrlKey,
			Meta:  in.MetaKey,
			Shift: in.ShiftKey,
			Alt:   in.AltKey,
		})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownInput, in.Type)
	}
}

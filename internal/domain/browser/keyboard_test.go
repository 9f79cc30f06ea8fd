package browser

import (
	"testing"

	"github.com/chromedp/cdproto/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKey(t *testing.T) {
	tests := []struct {
		key      string
		code     string
		keyCode  int64
		text     string
		location int64
	}{
		{"Enter", "Enter", 13, "\r", 0},
		{"Backspace", "Backspace", 8, "", 0},
		{"ArrowDown", "ArrowDown", 40, "", 0},
		{"Shift", "ShiftLeft", 16, "", 1},
		{" ", "Space", 32, " ", 0},
		{"a", "KeyA", 65, "a", 0},
		{"Z", "KeyZ", 90, "Z", 0},
		{"7", "Digit7", 55, "7", 0},
		{"&", "Digit7", 55, "&", 0},
		{"?", "Slash", 191, "?", 0},
		{"'", "Quote", 222, "'", 0},
		{"F5", "F5", 116, "", 0},
		{"F12", "F12", 123, "", 0},
		{"é", "", 0, "é", 0},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			def, err := LookupKey(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.key, def.Key)
			assert.Equal(t, tt.code, def.Code)
			assert.Equal(t, tt.keyCode, def.KeyCode)
			assert.Equal(t, tt.text, def.Text)
			assert.Equal(t, tt.location, def.Location)
		})
	}
}

func TestLookupKeyUnknown(t *testing.T) {
	for _, key := range []string{"", "Hyper", "F99", "F05", "ab"} {
		_, err := LookupKey(key)
		assert.ErrorIs(t, err, ErrUnknownKey, key)
	}
}

func TestModifiers(t *testing.T) {
	assert.Equal(t, input.Modifier(0), KeyEvent{}.Modifiers())
	assert.Equal(t, input.ModifierCtrl|input.ModifierShift, KeyEvent{Ctrl: true, Shift: true}.Modifiers())
	assert.Equal(t, input.Modifier(15), KeyEvent{Alt: true, Ctrl: true, Meta: true, Shift: true}.Modifiers())
}

func TestKeyEventParams(t *testing.T) {
	t.Run("printable key types text", func(t *testing.T) {
		down, up, err := keyEventParams(KeyEvent{Key: "a", Code: "KeyA"})
		require.NoError(t, err)
		assert.Equal(t, input.KeyDown, down.Type)
		assert.Equal(t, "a", down.Text)
		assert.Equal(t, int64(65), down.WindowsVirtualKeyCode)
		assert.Equal(t, input.KeyUp, up.Type)
		assert.Empty(t, up.Text)
	})

	t.Run("shortcut sends raw key down", func(t *testing.T) {
		down, up, err := keyEventParams(KeyEvent{Key: "c", Code: "KeyC", Ctrl: true})
		require.NoError(t, err)
		assert.Equal(t, input.KeyRawDown, down.Type)
		assert.Empty(t, down.Text)
		assert.Equal(t, input.ModifierCtrl, down.Modifiers)
		assert.Equal(t, input.ModifierCtrl, up.Modifiers)
	})

	t.Run("client code wins", func(t *testing.T) {
		down, _, err := keyEventParams(KeyEvent{Key: "Enter", Code: "NumpadEnter"})
		require.NoError(t, err)
		assert.Equal(t, "NumpadEnter", down.Code)
		assert.Equal(t, "\r", down.Text)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, _, err := keyEventParams(KeyEvent{Key: "Hyper"})
		assert.ErrorIs(t, err, ErrUnknownKey)
	})
}

package browser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
)

// KeyDefinition describes how a DOM key value is reported to Chrome.
type KeyDefinition struct {
	Key      string
	Code     string
	KeyCode  int64
	Text     string
	Location int64
}

// Named keys from the US layout. Printable keys are derived in LookupKey.
var namedKeys = map[string]KeyDefinition{
	"Enter":      {Key: "Enter", Code: "Enter", KeyCode: 13, Text: "\r"},
	"Tab":        {Key: "Tab", Code: "Tab", KeyCode: 9},
	"Backspace":  {Key: "Backspace", Code: "Backspace", KeyCode: 8},
	"Escape":     {Key: "Escape", Code: "Escape", KeyCode: 27},
	"Delete":     {Key: "Delete", Code: "Delete", KeyCode: 46},
	"Insert":     {Key: "Insert", Code: "Insert", KeyCode: 45},
	"Home":       {Key: "Home", Code: "Home", KeyCode: 36},
	"End":        {Key: "End", Code: "End", KeyCode: 35},
	"PageUp":     {Key: "PageUp", Code: "PageUp", KeyCode: 33},
	"PageDown":   {Key: "PageDown", Code: "PageDown", KeyCode: 34},
	"ArrowLeft":  {Key: "ArrowLeft", Code: "ArrowLeft", KeyCode: 37},
	"ArrowUp":    {Key: "ArrowUp", Code: "ArrowUp", KeyCode: 38},
	"ArrowRight": {Key: "ArrowRight", Code: "ArrowRight", KeyCode: 39},
	"ArrowDown":  {Key: "ArrowDown", Code: "ArrowDown", KeyCode: 40},
	"CapsLock":   {Key: "CapsLock", Code: "CapsLock", KeyCode: 20},
	"Shift":      {Key: "Shift", Code: "ShiftLeft", KeyCode: 16, Location: 1},
	"Control":    {Key: "Control", Code: "ControlLeft", KeyCode: 17, Location: 1},
	"Alt":        {Key: "Alt", Code: "AltLeft", KeyCode: 18, Location: 1},
	"Meta":       {Key: "Meta", Code: "MetaLeft", KeyCode: 91, Location: 1},
	" ":          {Key: " ", Code: "Space", KeyCode: 32, Text: " "},
}

// punctuation maps unshifted and shifted characters to their physical key.
var punctuation = map[rune]struct {
	code    string
	keyCode int64
}{
	';': {"Semicolon", 186}, ':': {"Semicolon", 186},
	'=': {"Equal", 187}, '+': {"Equal", 187},
	',': {"Comma", 188}, '<': {"Comma", 188},
	'-': {"Minus", 189}, '_': {"Minus", 189},
	'.': {"Period", 190}, '>': {"Period", 190},
	'/': {"Slash", 191}, '?': {"Slash", 191},
	'`': {"Backquote", 192}, '~': {"Backquote", 192},
	'[': {"BracketLeft", 219}, '{': {"BracketLeft", 219},
	'\\': {"Backslash", 220}, '|': {"Backslash", 220},
	']': {"BracketRight", 221}, '}': {"BracketRight", 221},
	'\'': {"Quote", 222}, '"': {"Quote", 222},
}

// shiftedDigits maps the shifted number row back to its digit.
var shiftedDigits = map[rune]rune{
	'!': '1', '@': '2', '#': '3', '$': '4', '%': '5',
	'^': '6', '&': '7', '*': '8', '(': '9', ')': '0',
}

// LookupKey resolves a DOM key value to its definition.
func LookupKey(key string) (KeyDefinition, error) {
	if def, ok := namedKeys[key]; ok {
		return def, nil
	}

	// F1..F24
	if len(key) >= 2 && key[0] == 'F' {
		var n int
		if _, err := fmt.Sscanf(key, "F%d", &n); err == nil && n >= 1 && n <= 24 && fmt.Sprintf("F%d", n) == key {
			return KeyDefinition{Key: key, Code: key, KeyCode: int64(111 + n)}, nil
		}
	}

	if utf8.RuneCountInString(key) != 1 {
		return KeyDefinition{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	r, _ := utf8.DecodeRuneInString(key)
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		upper := strings.ToUpper(key)
		return KeyDefinition{Key: key, Code: "Key" + upper, KeyCode: int64(upper[0]), Text: key}, nil
	case r >= '0' && r <= '9':
		return KeyDefinition{Key: key, Code: "Digit" + key, KeyCode: int64(r), Text: key}, nil
	}
	if d, ok := shiftedDigits[r]; ok {
		return KeyDefinition{Key: key, Code: "Digit" + string(d), KeyCode: int64(d), Text: key}, nil
	}
	if p, ok := punctuation[r]; ok {
		return KeyDefinition{Key: key, Code: p.code, KeyCode: p.keyCode, Text: key}, nil
	}

	// Any other single character is delivered as text without a physical key.
	return KeyDefinition{Key: key, Text: key}, nil
}

// Modifiers returns the CDP modifier bit mask for ev.
func (ev KeyEvent) Modifiers() input.Modifier {
	var m input.Modifier
	if ev.Alt {
		m |= input.ModifierAlt
	}
	if ev.Ctrl {
		m |= input.ModifierCtrl
	}
	if ev.Meta {
		m |= input.ModifierMeta
	}
	if ev.Shift {
		m |= input.ModifierShift
	}
	return m
}

// keyEventParams builds the key down and key up events for ev.
func keyEventParams(ev KeyEvent) (down, up *input.DispatchKeyEventParams, err error) {
	def, err := LookupKey(ev.Key)
	if err != nil {
		return nil, nil, err
	}
	if ev.Code != "" {
		def.Code = ev.Code
	}

	mods := ev.Modifiers()
	text := def.Text
	// Shortcuts do not type.
	if ev.Ctrl || ev.Meta || ev.Alt {
		text = ""
	}

	downType := input.KeyDown
	if text == "" {
		downType = input.KeyRawDown
	}

	down = input.DispatchKeyEvent(downType).
		WithModifiers(mods).
		WithKey(def.Key).
		WithCode(def.Code).
		WithWindowsVirtualKeyCode(def.KeyCode).
		WithLocation(def.Location)
	if text != "" {
		down = down.WithText(text).WithUnmodifiedText(text)
	}

	up = input.DispatchKeyEvent(input.KeyUp).
		WithModifiers(mods).
		WithKey(def.Key).
		WithCode(def.Code).
		WithWindowsVirtualKeyCode(def.KeyCode).
		WithLocation(def.Location)

	return down, up, nil
}

package input

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Android keycodes used by KeyBridge.
const (
	KeycodeHome       = 3
	KeycodeBack       = 4
	KeycodeDpadUp     = 19
	KeycodeDpadDown   = 20
	KeycodeDpadLeft   = 21
	KeycodeDpadRight  = 22
	KeycodeVolumeUp   = 24
	KeycodeVolumeDown = 25
	KeycodePower      = 26
	KeycodeTab        = 61
	KeycodeEnter      = 66
	KeycodeDel        = 67
	KeycodePlayPause  = 85
	KeycodePageUp     = 92
	KeycodePageDown   = 93
	KeycodeEscape     = 111
	KeycodeForwardDel = 112
	KeycodeMoveHome   = 122
	KeycodeMoveEnd    = 123
	KeycodeAppSwitch  = 187
)

// KeyMap maps PC key names to Android keycodes.
var KeyMap = map[string]int{
	"enter":     KeycodeEnter,
	"backspace": KeycodeDel,
	"tab":       KeycodeTab,
	"esc":       KeycodeEscape,
	"up":        KeycodeDpadUp,
	"down":      KeycodeDpadDown,
	"left":      KeycodeDpadLeft,
	"right":     KeycodeDpadRight,
	"page_up":   KeycodePageUp,
	"page_down": KeycodePageDown,
	"home":      KeycodeMoveHome,
	"end":       KeycodeMoveEnd,
	"delete":    KeycodeForwardDel,

	// Function keys double as media/hardware buttons.
	"f10": KeycodeVolumeUp,
	"f9":  KeycodeVolumeDown,
	"f8":  KeycodePlayPause,
	"f7":  KeycodePower,

	// Navigation bar
	"back":       KeycodeBack,
	"home_btn":   KeycodeHome,
	"app_switch": KeycodeAppSwitch,
}

// ErrUnknownKey is returned for names that are neither mapped nor a keycode.
var ErrUnknownKey = errors.New("unknown key")

// LookupKey resolves a key name (case-insensitive) or a numeric keycode.
func LookupKey(name string) (int, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if code, ok := KeyMap[name]; ok {
		return code, nil
	}
	var code int
	if _, err := fmt.Sscanf(name, "%d", &code); err == nil && code > 0 && fmt.Sprint(code) == name {
		return code, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownKey, name)
}

// KeyNames returns the mapped key names in sorted order.
func KeyNames() []string {
	names := make([]string, 0, len(KeyMap))
	for k := range KeyMap {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

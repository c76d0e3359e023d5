// Package input builds the lines KeyBridge writes into the device shell:
// escaped "input text" commands, key events and launcher intents.
package input

import (
	"fmt"
	"regexp"
	"strings"
)

// SpaceToken is what "input text" expands back into a space on the device.
const SpaceToken = "%s"

// shellSpecials are escaped with a backslash after backslash itself.
// Quotes come first, then the metacharacters a POSIX shell would interpret.
var shellSpecials = []string{
	"\"", "'",
	"(", ")", "<", ">", "|", ";", "&", "*", "~", "`", "$", "#", "[", "]", "!",
	"{", "}", "?", "\t",
}

var packagePattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// EscapeLine escapes a single line for "input text".
// The line must not contain a newline.
func EscapeLine(line string) string {
	// Backslash must go first, otherwise the escapes added below would be doubled.
	result := strings.ReplaceAll(line, "\\", "\\\\")
	for _, ch := range shellSpecials {
		result = strings.ReplaceAll(result, ch, "\\"+ch)
	}
	return strings.ReplaceAll(result, " ", SpaceToken)
}

// Unescape reverses EscapeLine the way the remote shell and "input text" do.
func Unescape(escaped string) string {
	var b strings.Builder
	for i := 0; i < len(escaped); i++ {
		c := escaped[i]
		switch {
		case c == '\\' && i+1 < len(escaped):
			i++
			b.WriteByte(escaped[i])
		case c == '%' && i+1 < len(escaped) && escaped[i+1] == 's':
			i++
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// TextCommands turns arbitrary text into shell lines that type it on the device.
// Lines are typed in order with an ENTER key event between them; blank lines
// produce no "input text" command but keep their ENTER.
func TextCommands(text string) []string {
	lines := strings.Split(text, "\n")
	cmds := make([]string, 0, len(lines)*2)
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if i > 0 {
			cmds = append(cmds, KeyEventCommand(KeycodeEnter))
		}
		if escaped := EscapeLine(line); escaped != "" {
			cmds = append(cmds, "input text "+escaped)
		}
	}
	return cmds
}

// KeyEventCommand returns the shell line sending a single Android keycode.
func KeyEventCommand(code int) string {
	return fmt.Sprintf("input keyevent %d", code)
}

// LaunchCommand returns the monkey line starting an app's launcher activity.
func LaunchCommand(packageName string) (string, error) {
	if !packagePattern.MatchString(packageName) {
		return "", fmt.Errorf("invalid package name %q", packageName)
	}
	return fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1", packageName), nil
}

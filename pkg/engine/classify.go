package engine

import (
	"fmt"
	"strings"
)

// classifyExit maps the stderr of a shell that died during the liveness
// window onto one of the launch sentinels.
func classifyExit(stderr string) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)

	var kind error
	switch {
	case strings.Contains(lower, "refused"):
		kind = ErrConnectionRefused
	case strings.Contains(lower, "offline"):
		kind = ErrDeviceOffline
	case strings.Contains(lower, "unauthorized"):
		kind = ErrUnauthorized
	case strings.Contains(lower, "not found"), strings.Contains(lower, "no devices"):
		kind = ErrDeviceNotFound
	default:
		kind = ErrShellExited
	}
	if msg == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, msg)
}

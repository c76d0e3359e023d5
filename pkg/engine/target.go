package engine

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

// DefaultTCPPort is appended to bare IPv4 targets.
const DefaultTCPPort = 5555

// targetPattern accepts USB serials ("emulator-5554"), ip:port pairs and
// mDNS names ("adb-xxxx._adb-tls-connect._tcp.").
var targetPattern = regexp.MustCompile(`^[a-zA-Z0-9._:\-]+$`)

// ValidateTarget rejects identifiers that are unsafe to place on an adb command line.
func ValidateTarget(target string) error {
	if target == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	if len(target) > 256 {
		return fmt.Errorf("%w: too long (max 256 characters)", ErrInvalidTarget)
	}
	if !targetPattern.MatchString(target) {
		return fmt.Errorf("%w: %q contains illegal characters", ErrInvalidTarget, target)
	}
	return nil
}

// NormalizeTarget validates target and turns a bare IPv4 address into
// "ip:5555". bare reports whether that rewrite happened, in which case the
// caller must run "adb connect" before opening the shell.
func NormalizeTarget(target string) (normalized string, bare bool, err error) {
	target = strings.TrimSpace(target)
	if err := ValidateTarget(target); err != nil {
		return "", false, err
	}
	if ip := net.ParseIP(target); ip != nil && ip.To4() != nil && !strings.Contains(target, ":") {
		return fmt.Sprintf("%s:%d", target, DefaultTCPPort), true, nil
	}
	return target, false, nil
}

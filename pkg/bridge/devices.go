package bridge

import (
	"context"
	"strings"

	"KeyBridge/pkg/types"
)

// ParseDevices parses "adb devices" output. The header line and blank lines
// are skipped; every other line is "<serial> <state> [key:value ...]".
func ParseDevices(output string) []types.Device {
	var devices []types.Device
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices attached") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		d := types.Device{ID: parts[0], State: parts[1], Type: "wired"}
		for _, p := range parts[2:] {
			if kv := strings.SplitN(p, ":", 2); len(kv) == 2 && kv[0] == "model" {
				d.Model = strings.ReplaceAll(kv[1], "_", " ")
			}
		}
		if strings.Contains(d.ID, ":") || strings.Contains(d.ID, "._tcp") {
			d.Type = "wireless"
		}
		devices = append(devices, d)
	}
	return devices
}

// Attached keeps only devices in the "device" state.
func Attached(devices []types.Device) []types.Device {
	var out []types.Device
	for _, d := range devices {
		if d.Attached() {
			out = append(out, d)
		}
	}
	return out
}

// Devices lists every device adb knows about, attached or not.
func (r *Runner) Devices(ctx context.Context) ([]types.Device, error) {
	out, err := r.Run(ctx, "devices", "-l")
	if err != nil {
		return nil, err
	}
	return ParseDevices(out), nil
}

package types

import "time"

// Device represents an Android device as listed by "adb devices"
type Device struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Model string `json:"model,omitempty"`
	Type  string `json:"type"` // "wired" or "wireless"

	// Unix millis of the last session that started on this device
	LastActive int64 `json:"lastActive,omitempty"`
}

// Attached reports whether adb can talk to the device.
func (d Device) Attached() bool {
	return d.State == "device"
}

// SessionStatus describes the persistent shell session
type SessionStatus struct {
	ID        string    `json:"id,omitempty"`
	Target    string    `json:"target,omitempty"`
	Running   bool      `json:"running"`
	Healthy   bool      `json:"healthy"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	Queued    int       `json:"queued"`
}

// SessionRecord is a finished or live session kept in history
type SessionRecord struct {
	ID        string `json:"id"`
	Target    string `json:"target"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime,omitempty"`
	EndReason string `json:"endReason,omitempty"`
}

// SessionEvent is a lifecycle or log line attached to a session
type SessionEvent struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// WizardResult is the outcome of one USB to Wi-Fi setup run
type WizardResult struct {
	IP       string   `json:"ip,omitempty"`
	Target   string   `json:"target,omitempty"`
	State    string   `json:"state"`
	Attempts int      `json:"attempts"`
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Package config holds process settings and the user's macros and app
// shortcuts.
package config

import (
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every settings variable, e.g. KEYBRIDGE_ADB_PATH.
const EnvPrefix = "KEYBRIDGE"

// Settings are read from the environment once at startup.
type Settings struct {
	AdbPath        string        `envconfig:"ADB_PATH" default:""`
	ConfigFile     string        `envconfig:"CONFIG_FILE" default:"user_config.json"`
	DataDir        string        `envconfig:"DATA_DIR" default:""`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFile        bool          `envconfig:"LOG_FILE" default:"false"`
	HealthInterval time.Duration `envconfig:"HEALTH_INTERVAL" default:"2s"`
	LivenessWindow time.Duration `envconfig:"LIVENESS_WINDOW" default:"1s"`
	NotifyInterval time.Duration `envconfig:"NOTIFY_INTERVAL" default:"5s"`
	QRAddr         string        `envconfig:"QR_ADDR" default:""`
}

// Load reads Settings from the environment.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// HistoryPath is where the session history database lives.
func (s Settings) HistoryPath() string {
	return filepath.Join(s.DataDir, "history.db")
}

// LogDir is where rotated log files are written.
func (s Settings) LogDir() string {
	return filepath.Join(s.DataDir, "logs")
}

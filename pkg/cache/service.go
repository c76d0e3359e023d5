package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// State is what survives between runs.
type State struct {
	LastActive map[string]int64 `json:"lastActive"`
	LastTarget string           `json:"lastTarget"`
}

// Service remembers which devices were used and when, so a bare reconnect
// can pick the previous target again.
type Service struct {
	statePath string

	lastActive   map[string]int64
	lastActiveMu sync.RWMutex

	lastTarget   string
	lastTargetMu sync.RWMutex

	saveMu sync.Mutex

	// Logger function (optional)
	logFunc func(format string, args ...interface{})
}

// Config for creating a new Service
type Config struct {
	Dir     string
	LogFunc func(format string, args ...interface{})
}

// New creates a Service backed by state.json in cfg.Dir, falling back to the
// user config directory.
func New(cfg Config) (*Service, error) {
	dir := cfg.Dir
	if dir == "" {
		var err error
		dir, err = os.UserConfigDir()
		if err != nil {
			dir = os.TempDir()
		}
		dir = filepath.Join(dir, "KeyBridge")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	s := &Service{
		statePath:  filepath.Join(dir, "state.json"),
		lastActive: make(map[string]int64),
		logFunc:    cfg.LogFunc,
	}
	s.load()
	return s, nil
}

func (s *Service) log(format string, args ...interface{}) {
	if s.logFunc != nil {
		s.logFunc(format, args...)
	}
}

// GetLastActive returns the last active timestamp for a device
func (s *Service) GetLastActive(deviceID string) int64 {
	s.lastActiveMu.RLock()
	defer s.lastActiveMu.RUnlock()
	return s.lastActive[deviceID]
}

// GetAllLastActive returns a copy of all last active timestamps
func (s *Service) GetAllLastActive() map[string]int64 {
	s.lastActiveMu.RLock()
	defer s.lastActiveMu.RUnlock()
	result := make(map[string]int64, len(s.lastActive))
	for k, v := range s.lastActive {
		result[k] = v
	}
	return result
}

// LastTarget is the device of the most recent successful session.
func (s *Service) LastTarget() string {
	s.lastTargetMu.RLock()
	defer s.lastTargetMu.RUnlock()
	return s.lastTarget
}

// Touch records a session on target at timestamp (unix millis) and saves.
func (s *Service) Touch(target string, timestamp int64) {
	s.lastActiveMu.Lock()
	s.lastActive[target] = timestamp
	s.lastActiveMu.Unlock()

	s.lastTargetMu.Lock()
	s.lastTarget = target
	s.lastTargetMu.Unlock()

	if err := s.Save(); err != nil {
		s.log("Error saving device state: %v", err)
	}
}

// Save persists the state to disk
func (s *Service) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	state := State{
		LastActive: s.GetAllLastActive(),
		LastTarget: s.LastTarget(),
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return os.WriteFile(s.statePath, data, 0644)
}

func (s *Service) load() {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		return
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.log("Ignoring unreadable device state %s: %v", s.statePath, err)
		return
	}

	s.lastActiveMu.Lock()
	if state.LastActive != nil {
		s.lastActive = state.LastActive
	}
	s.lastActiveMu.Unlock()

	s.lastTargetMu.Lock()
	s.lastTarget = state.LastTarget
	s.lastTargetMu.Unlock()
}


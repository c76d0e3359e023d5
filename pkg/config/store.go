package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// DefaultMacros seed a fresh install.
var DefaultMacros = map[string]string{
	"My Email": "user@example.com",
	"Address":  "123 Tech Street",
}

// DefaultApps are the launcher shortcuts, label to package name.
var DefaultApps = map[string]string{
	"Chrome":   "com.android.chrome",
	"YouTube":  "com.google.android.youtube",
	"WhatsApp": "com.whatsapp",
	"Settings": "com.android.settings",
}

var ErrEmptyMacro = errors.New("macro name is required")

// Store keeps macros and app shortcuts and persists macros to a JSON file.
// Construct one with NewStore and share the pointer.
type Store struct {
	path string
	log  zerolog.Logger

	mu       sync.RWMutex
	macros   map[string]string
	apps     map[string]string
	onChange []func()

	// file content last loaded or saved
	synced []byte
}

// NewStore returns a Store holding the defaults. Call Load to read path.
func NewStore(path string, log zerolog.Logger) *Store {
	return &Store{
		path:   path,
		log:    log.With().Str("module", "config").Logger(),
		macros: copyMap(DefaultMacros),
		apps:   copyMap(DefaultApps),
	}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load replaces the macros with those in the file. A missing file is fine;
// an unreadable or malformed one leaves the current macros untouched and
// is reported as an error for logging only.
func (s *Store) Load() error {
	_, err := s.reload()
	return err
}

// reload reads the file and applies it unless it matches the content last
// loaded or saved. It reports whether anything was applied.
func (s *Store) reload() (bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", s.path, err)
	}

	s.mu.RLock()
	same := s.synced != nil && bytes.Equal(data, s.synced)
	s.mu.RUnlock()
	if same {
		return false, nil
	}

	if !gjson.ValidBytes(data) {
		return false, fmt.Errorf("parse %s: invalid JSON", s.path)
	}
	result := gjson.GetBytes(data, "macros")
	if result.Exists() && !result.IsObject() {
		return false, fmt.Errorf("parse %s: macros is not an object", s.path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced = data
	if !result.Exists() {
		return true, nil
	}
	macros := make(map[string]string)
	result.ForEach(func(key, value gjson.Result) bool {
		macros[key.String()] = value.String()
		return true
	})
	s.macros = macros
	s.log.Debug().Int("macros", len(macros)).Str("path", s.path).Msg("Config loaded")
	return true, nil
}

// Save writes {"macros": {...}} indented by four spaces. The file is
// replaced in one rename so a watcher never reads it half written.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(map[string]interface{}{"macros": s.macros}, "", "    ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	s.synced = data
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		s.synced = nil
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// Macros returns a copy of all macros.
func (s *Store) Macros() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMap(s.macros)
}

// Macro looks up one macro's text.
func (s *Store) Macro(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.macros[name]
	return text, ok
}

// AddMacro creates or replaces a macro and saves.
func (s *Store) AddMacro(name, text string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyMacro
	}
	s.mu.Lock()
	s.macros[name] = text
	s.mu.Unlock()
	return s.Save()
}

// RemoveMacro deletes a macro and saves. Removing an unknown name is a no-op
// that reports false and does not touch the file.
func (s *Store) RemoveMacro(name string) (bool, error) {
	s.mu.Lock()
	if _, ok := s.macros[name]; !ok {
		s.mu.Unlock()
		return false, nil
	}
	delete(s.macros, name)
	s.mu.Unlock()
	return true, s.Save()
}

// Apps returns a copy of the app shortcuts.
func (s *Store) Apps() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMap(s.apps)
}

// App resolves a shortcut label, case-insensitively, to its package name.
func (s *Store) App(label string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pkg, ok := s.apps[label]; ok {
		return pkg, true
	}
	for l, pkg := range s.apps {
		if strings.EqualFold(l, label) {
			return pkg, true
		}
	}
	return "", false
}

// OnChange registers fn to run after the file is reloaded by Watch.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *Store) notify() {
	s.mu.RLock()
	fns := append([]func(){}, s.onChange...)
	s.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Package settings reads and writes the ini file holding the user's
// transcription preferences. The file is read on every access so edits
// made by hand take effect without a restart.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// Settings is the user-tunable configuration.
type Settings struct {
	Engine    string
	Model     string
	Language  string
	Telemetry bool
}

// Default returns the out-of-the-box configuration: local whisper with
// the smallest model, telemetry on.
func Default() Settings {
	return Settings{
		Engine:    "whisper",
		Model:     "tiny",
		Language:  "en",
		Telemetry: true,
	}
}

// Repo loads and persists Settings at a fixed path.
type Repo struct {
	path string
}

func NewRepo(path string) *Repo {
	return &Repo{path: path}
}

func (r *Repo) Path() string { return r.path }

// Load reads the ini file, falling back to defaults for anything
// missing. A missing file is not an error.
func (r *Repo) Load() (Settings, error) {
	s := Default()

	cfg, err := ini.Load(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("loading settings: %w", err)
	}

	tr := cfg.Section("transcription")
	s.Engine = tr.Key("engine").MustString(s.Engine)
	s.Model = tr.Key("model").MustString(s.Model)
	s.Language = tr.Key("language").MustString(s.Language)

	tel := cfg.Section("telemetry")
	s.Telemetry = tel.Key("enabled").MustBool(s.Telemetry)

	return s, nil
}

// Save writes the full settings file, creating parent directories as
// needed.
func (r *Repo) Save(s Settings) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}

	cfg := ini.Empty()
	tr := cfg.Section("transcription")
	tr.Key("engine").SetValue(s.Engine)
	tr.Key("model").SetValue(s.Model)
	tr.Key("language").SetValue(s.Language)

	tel := cfg.Section("telemetry")
	tel.Key("enabled").SetValue(fmt.Sprintf("%t", s.Telemetry))

	if err := cfg.SaveTo(r.path); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

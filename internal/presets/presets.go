// Package presets stores per-client parse defaults as JSON files named
// <client>__<preset>.json. A preset supplies defaults that individual
// requests may override field by field.
package presets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when the requested preset file is missing.
var ErrNotFound = errors.New("preset not found")

// Options are the request knobs a preset can predefine. Nil means the
// preset does not set the field.
type Options struct {
	Adapter      *string `json:"adapter,omitempty"`
	SourceHint   *string `json:"source_hint,omitempty"`
	SheetName    *string `json:"sheet_name,omitempty"`
	EnableLLM    *bool   `json:"enable_llm,omitempty"`
	HeaderRow    *int    `json:"header_row,omitempty"`
	DayFirst     *bool   `json:"dayfirst,omitempty"`
	DecimalStyle *string `json:"decimal_style,omitempty"`
	DryRun       *bool   `json:"dry_run,omitempty"`
	Sync         *bool   `json:"sync,omitempty"`
}

// Merge lays overrides on top of defaults; a nil override keeps the
// default.
func Merge(defaults, overrides Options) Options {
	merged := defaults
	if overrides.Adapter != nil {
		merged.Adapter = overrides.Adapter
	}
	if overrides.SourceHint != nil {
		merged.SourceHint = overrides.SourceHint
	}
	if overrides.SheetName != nil {
		merged.SheetName = overrides.SheetName
	}
	if overrides.EnableLLM != nil {
		merged.EnableLLM = overrides.EnableLLM
	}
	if overrides.HeaderRow != nil {
		merged.HeaderRow = overrides.HeaderRow
	}
	if overrides.DayFirst != nil {
		merged.DayFirst = overrides.DayFirst
	}
	if overrides.DecimalStyle != nil {
		merged.DecimalStyle = overrides.DecimalStyle
	}
	if overrides.DryRun != nil {
		merged.DryRun = overrides.DryRun
	}
	if overrides.Sync != nil {
		merged.Sync = overrides.Sync
	}
	return merged
}

// Preset is one named bundle of defaults for a client.
type Preset struct {
	ClientID string  `json:"client_id"`
	PresetID string  `json:"preset_id"`
	Defaults Options `json:"defaults"`
}

// Store reads and writes preset files under one directory.
type Store struct {
	Dir string
}

func (s *Store) path(clientID, presetID string) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s__%s.json", clientID, presetID))
}

// Load reads one preset. Missing or unreadable files yield ErrNotFound.
func (s *Store) Load(clientID, presetID string) (*Preset, error) {
	raw, err := os.ReadFile(s.path(clientID, presetID))
	if err != nil {
		return nil, ErrNotFound
	}
	var preset Preset
	if err := json.Unmarshal(raw, &preset); err != nil {
		return nil, ErrNotFound
	}
	preset.ClientID = clientID
	preset.PresetID = presetID
	return &preset, nil
}

// List returns every preset, optionally filtered to one client, sorted
// by filename.
func (s *Store) List(clientID string) ([]*Preset, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var result []*Preset
	for _, name := range names {
		stem := strings.TrimSuffix(name, ".json")
		client, preset, ok := strings.Cut(stem, "__")
		if !ok {
			continue
		}
		if clientID != "" && client != clientID {
			continue
		}
		loaded, err := s.Load(client, preset)
		if err != nil {
			continue
		}
		result = append(result, loaded)
	}
	return result, nil
}

// Save writes the preset file, creating the directory on first use.
func (s *Store) Save(preset *Preset) error {
	if preset.ClientID == "" || preset.PresetID == "" {
		return errors.New("client_id and preset_id are required")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(preset, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(preset.ClientID, preset.PresetID), raw, 0o644)
}

// Delete removes the preset file.
func (s *Store) Delete(clientID, presetID string) error {
	err := os.Remove(s.path(clientID, presetID))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

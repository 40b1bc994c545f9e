package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Defaults applied when settings.json leaves a field unset
const (
	DefaultAgentCommand      = "claude"
	DefaultTmuxSessionPrefix = "kiln-"
	DefaultWorktreeSuffix    = "-kiln-"
	DefaultPollIntervalMS    = 250
	DefaultRefreshIntervalMS = 3000
	DefaultCaptureLines      = 50
	DefaultEscapeTimeMS      = 100
	DefaultDashboardKey      = "[29~"
	DefaultOverviewKey       = "[33~"
)

// KeyBindingValue supports "a" or ["up", "k"] in JSON
type KeyBindingValue []string

// UnmarshalJSON implements custom unmarshaling for KeyBindingValue
func (kv *KeyBindingValue) UnmarshalJSON(data []byte) error {
	// Try array format first
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*kv = arr
		return nil
	}

	// Fall back to single string
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	if str != "" {
		*kv = []string{str}
	}
	return nil
}

// MarshalJSON implements custom marshaling for KeyBindingValue
func (kv KeyBindingValue) MarshalJSON() ([]byte, error) {
	if len(kv) == 1 {
		return json.Marshal(kv[0])
	}
	return json.Marshal([]string(kv))
}

// StringArray supports both JSON arrays and comma-separated strings
type StringArray []string

// UnmarshalJSON implements custom unmarshaling for StringArray
func (sa *StringArray) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*sa = arr
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*sa = parseCommaSeparated(str)
	return nil
}

// parseCommaSeparated splits a comma-separated string and trims whitespace
func parseCommaSeparated(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Settings represents the structure of the user settings.json
type Settings struct {
	AgentCommand        string                     `json:"agent_command,omitempty"`
	AgentExtraArgs      StringArray                `json:"agent_extra_args,omitempty"`
	CaptureLines        *int                       `json:"capture_lines,omitempty"`
	ClipboardOnComplete *bool                      `json:"clipboard_on_complete,omitempty"`
	DashboardKey        string                     `json:"dashboard_key,omitempty"`
	Debug               *bool                      `json:"debug,omitempty"`
	EscapeTimeMS        *int                       `json:"escape_time_ms,omitempty"`
	Keys                map[string]KeyBindingValue `json:"keys,omitempty"`
	MaxLogFiles         *int                       `json:"max_log_files,omitempty"`
	OverviewKey         string                     `json:"overview_key,omitempty"`
	PollIntervalMS      *int                       `json:"poll_interval_ms,omitempty"`
	RefreshIntervalMS   *int                       `json:"refresh_interval_ms,omitempty"`
	TemplateDirs        StringArray                `json:"template_dirs,omitempty"`
	TmuxSessionPrefix   string                     `json:"tmux_session_prefix,omitempty"`
	WorktreeSuffix      string                     `json:"worktree_suffix,omitempty"`
}

// Agent returns the agent CLI binary, defaulted
func (s *Settings) Agent() string {
	if s.AgentCommand != "" {
		return s.AgentCommand
	}
	return DefaultAgentCommand
}

// SessionPrefix returns the tmux session name prefix, defaulted
func (s *Settings) SessionPrefix() string {
	if s.TmuxSessionPrefix != "" {
		return s.TmuxSessionPrefix
	}
	return DefaultTmuxSessionPrefix
}

// Suffix returns the worktree directory suffix, defaulted
func (s *Settings) Suffix() string {
	if s.WorktreeSuffix != "" {
		return s.WorktreeSuffix
	}
	return DefaultWorktreeSuffix
}

// PollInterval returns the steady-state tick interval, defaulted
func (s *Settings) PollInterval() time.Duration {
	ms := DefaultPollIntervalMS
	if s.PollIntervalMS != nil && *s.PollIntervalMS > 0 {
		ms = *s.PollIntervalMS
	}
	return time.Duration(ms) * time.Millisecond
}

// RefreshInterval returns how often state is reloaded from disk, defaulted
func (s *Settings) RefreshInterval() time.Duration {
	ms := DefaultRefreshIntervalMS
	if s.RefreshIntervalMS != nil && *s.RefreshIntervalMS > 0 {
		ms = *s.RefreshIntervalMS
	}
	return time.Duration(ms) * time.Millisecond
}

// Capture returns how many pane lines snapshots take, defaulted
func (s *Settings) Capture() int {
	if s.CaptureLines != nil && *s.CaptureLines > 0 {
		return *s.CaptureLines
	}
	return DefaultCaptureLines
}

// EscapeTime returns the tmux escape-time in milliseconds, defaulted.
// Higher values improve reliability over SSH at the cost of Escape
// key latency.
func (s *Settings) EscapeTime() int {
	if s.EscapeTimeMS != nil && *s.EscapeTimeMS > 0 {
		return *s.EscapeTimeMS
	}
	return DefaultEscapeTimeMS
}

// Dashboard returns the CSI sequence suffix bound to "back to
// dashboard", defaulted. The terminal sends \e plus this suffix.
func (s *Settings) Dashboard() string {
	if s.DashboardKey != "" {
		return s.DashboardKey
	}
	return DefaultDashboardKey
}

// Overview returns the CSI sequence suffix for the overview binding,
// defaulted
func (s *Settings) Overview() string {
	if s.OverviewKey != "" {
		return s.OverviewKey
	}
	return DefaultOverviewKey
}

// DashboardKeys returns every key bound to "back to the dashboard":
// the "keys" map entry when present, otherwise the single dashboard
// key.
func (s *Settings) DashboardKeys() []string {
	if keys := s.Keys["dashboard"]; len(keys) > 0 {
		return keys
	}
	return []string{s.Dashboard()}
}

// OverviewKeys returns every key bound to the session overview.
func (s *Settings) OverviewKeys() []string {
	if keys := s.Keys["overview"]; len(keys) > 0 {
		return keys
	}
	return []string{s.Overview()}
}

// CopyOnComplete reports whether completed agent results should be
// copied to the clipboard on ingest, defaulted true
func (s *Settings) CopyOnComplete() bool {
	if s.ClipboardOnComplete != nil {
		return *s.ClipboardOnComplete
	}
	return true
}

// GetSettingsFilePath returns the path to the settings file under the
// user config directory (~/.config/kiln/settings.json on Linux).
// Empty when no config directory can be determined.
func GetSettingsFilePath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, "kiln", "settings.json")
}

// UserTemplatesDir returns the user-global template directory
func UserTemplatesDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, "kiln", "templates")
}

// LoadSettings loads settings from the user config directory.
// Returns empty Settings if the file doesn't exist (not an error).
func LoadSettings() (*Settings, error) {
	return loadSettingsFrom(GetSettingsFilePath())
}

func loadSettingsFrom(path string) (*Settings, error) {
	if path == "" {
		return &Settings{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Settings{}, nil // Not an error, use defaults
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("invalid settings.json: %w", err)
	}

	return &settings, nil
}

// ExpandPath expands a leading ~ to the user home directory
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}

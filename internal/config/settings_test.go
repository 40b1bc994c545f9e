package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyBindingValue_UnmarshalString(t *testing.T) {
	var kv KeyBindingValue
	require.NoError(t, json.Unmarshal([]byte(`"C-d"`), &kv))
	assert.Equal(t, KeyBindingValue{"C-d"}, kv)
}

func TestKeyBindingValue_UnmarshalArray(t *testing.T) {
	var kv KeyBindingValue
	require.NoError(t, json.Unmarshal([]byte(`["up","k"]`), &kv))
	assert.Equal(t, KeyBindingValue{"up", "k"}, kv)
}

func TestKeyBindingValue_MarshalSingleAsString(t *testing.T) {
	data, err := json.Marshal(KeyBindingValue{"C-d"})
	require.NoError(t, err)
	assert.JSONEq(t, `"C-d"`, string(data))

	data, err = json.Marshal(KeyBindingValue{"up", "k"})
	require.NoError(t, err)
	assert.JSONEq(t, `["up","k"]`, string(data))
}

func TestStringArray_AcceptsCommaSeparated(t *testing.T) {
	var sa StringArray
	require.NoError(t, json.Unmarshal([]byte(`"a, b ,c"`), &sa))
	assert.Equal(t, StringArray{"a", "b", "c"}, sa)
}

func TestSettings_Defaults(t *testing.T) {
	s := &Settings{}

	assert.Equal(t, "claude", s.Agent())
	assert.Equal(t, "kiln-", s.SessionPrefix())
	assert.Equal(t, "-kiln-", s.Suffix())
	assert.Equal(t, 250*time.Millisecond, s.PollInterval())
	assert.Equal(t, 3*time.Second, s.RefreshInterval())
	assert.Equal(t, 50, s.Capture())
	assert.Equal(t, 100, s.EscapeTime())
	assert.Equal(t, "[29~", s.Dashboard())
	assert.Equal(t, "[33~", s.Overview())
	assert.True(t, s.CopyOnComplete())
}

func TestLoadSettings_MissingFileIsEmpty(t *testing.T) {
	settings, err := loadSettingsFrom(filepath.Join(t.TempDir(), "settings.json"))

	require.NoError(t, err)
	assert.Equal(t, "claude", settings.Agent())
}

func TestSettingsFilePath_UnderUserConfigDir(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	assert.Equal(t, filepath.Join(configHome, "kiln", "settings.json"), GetSettingsFilePath())
	assert.Equal(t, filepath.Join(configHome, "kiln", "templates"), UserTemplatesDir())
}

func TestLoadSettings_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	content := `{
		"agent_command": "claude-next",
		"poll_interval_ms": 500,
		"clipboard_on_complete": false,
		"keys": {"dashboard": ["C-b", "C-d"], "overview": "C-o"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	settings, err := loadSettingsFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "claude-next", settings.Agent())
	assert.Equal(t, 500*time.Millisecond, settings.PollInterval())
	assert.False(t, settings.CopyOnComplete())
	assert.Equal(t, KeyBindingValue{"C-b", "C-d"}, settings.Keys["dashboard"])
	assert.Equal(t, KeyBindingValue{"C-o"}, settings.Keys["overview"])
}

func TestSettings_KeyOverridesFeedBindings(t *testing.T) {
	s := &Settings{Keys: map[string]KeyBindingValue{
		"dashboard": {"C-b", "C-d"},
		"overview":  {"C-o"},
	}}

	assert.Equal(t, []string{"C-b", "C-d"}, s.DashboardKeys())
	assert.Equal(t, []string{"C-o"}, s.OverviewKeys())
}

func TestSettings_KeysFallBackToSingleBinding(t *testing.T) {
	s := &Settings{DashboardKey: "[5~"}

	assert.Equal(t, []string{"[5~"}, s.DashboardKeys())
	assert.Equal(t, []string{"[33~"}, s.OverviewKeys())
}

func TestLoadSettings_MalformedFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0644))

	_, err := loadSettingsFrom(path)
	assert.Error(t, err)
}

package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSessionName_KeepsAlphanumeric(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", "simple"},
		{"Session123", "Session123"},
		{"test-name", "test-name"},
		{"with.dot", "with.dot"},
		{"under_score", "under_score"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := SanitizeSessionName(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSanitizeSessionName_SpaceAndSlashReplacement(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single space", "hello world", "hello_world"},
		{"multiple spaces", "hello  world", "hello_world"},
		{"slash", "feat/demo", "feat_demo"},
		{"parens", "test(name)", "test_name"},
		{"specials removed", "na:me!", "name"},
		{"trailing underscore trimmed", "name ", "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeSessionName(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSessionStatus_JSONRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		status   SessionStatus
		expected string
	}{
		{"plain kind", SessionStatusOf(SessionActive), `"active"`},
		{"failed with message", SessionFailure("worktree missing"), `{"kind":"failed","message":"worktree missing"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.status)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))

			var decoded SessionStatus
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, tt.status, decoded)
		})
	}
}

func TestSessionStatus_UnmarshalBareString(t *testing.T) {
	var status SessionStatus
	require.NoError(t, json.Unmarshal([]byte(`"paused"`), &status))

	assert.True(t, status.Is(SessionPaused))
	assert.Empty(t, status.Message)
}

func TestSessionStatus_IsIgnoresMessage(t *testing.T) {
	status := SessionFailure("pane lost")

	assert.True(t, status.Is(SessionFailed))
	assert.NotEqual(t, SessionFailure("other reason"), status)
	assert.True(t, SessionFailure("other reason").Is(SessionFailed))
}

func TestNewSession_Defaults(t *testing.T) {
	session := NewSession("demo", "feat/demo", "/tmp/wt", "demo")

	assert.NotEmpty(t, session.ID)
	assert.True(t, session.Status.Is(SessionCreating))
	assert.True(t, session.IsActive(), "creating sessions count as live work")
	assert.False(t, session.IsMain)
	assert.NotNil(t, session.AgentIDs)
	assert.Empty(t, session.AgentIDs)
}

func TestSession_WorktreePaths(t *testing.T) {
	t.Run("single repo", func(t *testing.T) {
		session := NewSession("demo", "feat/demo", "/tmp/wt", "demo")
		assert.Equal(t, []string{"/tmp/wt"}, session.WorktreePaths())
	})

	t.Run("multi repo takes precedence", func(t *testing.T) {
		session := NewSession("demo", "feat/demo", "", "demo")
		session.RepoWorktrees = map[string]string{"api": "/tmp/s/api", "web": "/tmp/s/web"}
		assert.ElementsMatch(t, []string{"/tmp/s/api", "/tmp/s/web"}, session.WorktreePaths())
	})

	t.Run("empty", func(t *testing.T) {
		session := NewSession("demo", "feat/demo", "", "demo")
		assert.Empty(t, session.WorktreePaths())
	})
}

package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// SessionStatusKind is the closed set of session lifecycle states
type SessionStatusKind string

const (
	SessionCreating  SessionStatusKind = "creating"
	SessionActive    SessionStatusKind = "active"
	SessionPaused    SessionStatusKind = "paused"
	SessionCompleted SessionStatusKind = "completed"
	SessionFailed    SessionStatusKind = "failed"
	SessionArchived  SessionStatusKind = "archived"
)

// Status symbols (Unicode)
const (
	SymbolCreating  = "◌" // being provisioned
	SymbolActive    = "●" // agent running
	SymbolPaused    = "◑" // window gone, worktree intact
	SymbolCompleted = "✓" // work finished
	SymbolFailed    = "✗" // something broke
	SymbolArchived  = "▪" // kept for the record only
)

// SessionStatus pairs a status kind with an optional diagnostic message.
// Only Failed carries a message; comparisons on kind ignore it.
type SessionStatus struct {
	Kind    SessionStatusKind
	Message string
}

// SessionStatusOf returns a status with the given kind and no message
func SessionStatusOf(kind SessionStatusKind) SessionStatus {
	return SessionStatus{Kind: kind}
}

// SessionFailure returns a Failed status carrying a diagnostic message
func SessionFailure(msg string) SessionStatus {
	return SessionStatus{Kind: SessionFailed, Message: msg}
}

// Is reports whether the status has the given kind, ignoring the message
func (s SessionStatus) Is(kind SessionStatusKind) bool {
	return s.Kind == kind
}

func (s SessionStatus) String() string {
	if s.Message != "" {
		return fmt.Sprintf("%s: %s", s.Kind, s.Message)
	}
	return string(s.Kind)
}

// Symbol returns the one-character glyph for list output
func (s SessionStatus) Symbol() string {
	switch s.Kind {
	case SessionCreating:
		return SymbolCreating
	case SessionActive:
		return SymbolActive
	case SessionPaused:
		return SymbolPaused
	case SessionCompleted:
		return SymbolCompleted
	case SessionFailed:
		return SymbolFailed
	case SessionArchived:
		return SymbolArchived
	default:
		return "?"
	}
}

// MarshalJSON writes a bare string when there is no message, otherwise
// an object with kind and message
func (s SessionStatus) MarshalJSON() ([]byte, error) {
	if s.Message == "" {
		return json.Marshal(string(s.Kind))
	}
	return json.Marshal(struct {
		Kind    SessionStatusKind `json:"kind"`
		Message string            `json:"message"`
	}{s.Kind, s.Message})
}

// UnmarshalJSON accepts either a bare string ("active") or an object
// ({"kind":"failed","message":"..."})
func (s *SessionStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.Kind = SessionStatusKind(str)
		s.Message = ""
		return nil
	}

	var obj struct {
		Kind    SessionStatusKind `json:"kind"`
		Message string            `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid session status: %w", err)
	}
	s.Kind = obj.Kind
	s.Message = obj.Message
	return nil
}

// Session is one working context: a worktree (or several), a tmux
// window, and the agents running inside it
type Session struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Branch        string            `json:"branch"`
	WorktreePath  string            `json:"worktree_path,omitempty"`
	RepoWorktrees map[string]string `json:"repo_worktrees,omitempty"`
	TmuxWindow    string            `json:"tmux_window"`
	Status        SessionStatus     `json:"status"`
	Template      string            `json:"template,omitempty"`
	SystemPrompt  string            `json:"system_prompt_override,omitempty"`
	AgentIDs      []string          `json:"agents"`
	IsMain        bool              `json:"is_main,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// NewSession builds a session in Creating status with a fresh id
func NewSession(name, branch, worktreePath, tmuxWindow string) Session {
	now := time.Now().UTC()
	return Session{
		ID:           uuid.New().String(),
		Name:         name,
		Branch:       branch,
		WorktreePath: worktreePath,
		TmuxWindow:   tmuxWindow,
		Status:       SessionStatusOf(SessionCreating),
		AgentIDs:     []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsActive reports whether the session counts as live work (Creating
// sessions are live: their agent has not started yet)
func (s *Session) IsActive() bool {
	return s.Status.Is(SessionActive) || s.Status.Is(SessionCreating)
}

// SetStatus updates the status and bumps the updated timestamp
func (s *Session) SetStatus(status SessionStatus) {
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
}

// WorktreePaths returns every worktree path the session references:
// the single path for single-repo sessions, the mapped paths otherwise
func (s *Session) WorktreePaths() []string {
	if len(s.RepoWorktrees) > 0 {
		paths := make([]string, 0, len(s.RepoWorktrees))
		for _, p := range s.RepoWorktrees {
			paths = append(paths, p)
		}
		return paths
	}
	if s.WorktreePath != "" {
		return []string{s.WorktreePath}
	}
	return nil
}

// SanitizeSessionName converts a display name to a tmux-compatible name.
// - Alphanumeric, underscores, hyphens, and periods are kept
// - Spaces, parentheses, and slashes become underscores (consecutive ones collapsed)
// - Everything else is removed
func SanitizeSessionName(displayName string) string {
	var result strings.Builder
	lastWasUnderscore := false

	for _, r := range displayName {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '.' {
			result.WriteRune(r)
			lastWasUnderscore = false
		} else if r == '_' {
			result.WriteRune('_')
			lastWasUnderscore = true
		} else if unicode.IsSpace(r) || r == '(' || r == ')' || r == '/' {
			if !lastWasUnderscore && result.Len() > 0 {
				result.WriteRune('_')
				lastWasUnderscore = true
			}
		}
	}

	return strings.TrimRight(result.String(), "_")
}

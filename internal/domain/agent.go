package domain

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// AgentMode says how an agent runs: detached with captured output,
// attached to a pane, or a bare shell with no agent process at all
type AgentMode string

const (
	ModeHeadless    AgentMode = "headless"
	ModeInteractive AgentMode = "interactive"
	ModeShell       AgentMode = "shell"
)

// AgentStatusKind is the closed set of agent lifecycle states
type AgentStatusKind string

const (
	AgentQueued    AgentStatusKind = "queued"
	AgentRunning   AgentStatusKind = "running"
	AgentCompleted AgentStatusKind = "completed"
	AgentFailed    AgentStatusKind = "failed"
	AgentIngested  AgentStatusKind = "ingested"
)

// AgentStatus pairs a status kind with an optional diagnostic message.
// Only Failed carries a message; comparisons on kind ignore it.
type AgentStatus struct {
	Kind    AgentStatusKind
	Message string
}

// AgentStatusOf returns a status with the given kind and no message
func AgentStatusOf(kind AgentStatusKind) AgentStatus {
	return AgentStatus{Kind: kind}
}

// AgentFailure returns a Failed status carrying a diagnostic message
func AgentFailure(msg string) AgentStatus {
	return AgentStatus{Kind: AgentFailed, Message: msg}
}

// Is reports whether the status has the given kind, ignoring the message
func (s AgentStatus) Is(kind AgentStatusKind) bool {
	return s.Kind == kind
}

// Terminal reports whether no further transitions can occur except
// Completed → Ingested
func (s AgentStatus) Terminal() bool {
	switch s.Kind {
	case AgentCompleted, AgentFailed, AgentIngested:
		return true
	}
	return false
}

func (s AgentStatus) String() string {
	if s.Message != "" {
		return fmt.Sprintf("%s: %s", s.Kind, s.Message)
	}
	return string(s.Kind)
}

// MarshalJSON writes a bare string when there is no message, otherwise
// an object with kind and message
func (s AgentStatus) MarshalJSON() ([]byte, error) {
	if s.Message == "" {
		return json.Marshal(string(s.Kind))
	}
	return json.Marshal(struct {
		Kind    AgentStatusKind `json:"kind"`
		Message string          `json:"message"`
	}{s.Kind, s.Message})
}

// UnmarshalJSON accepts either a bare string ("running") or an object
// ({"kind":"failed","message":"..."})
func (s *AgentStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.Kind = AgentStatusKind(str)
		s.Message = ""
		return nil
	}

	var obj struct {
		Kind    AgentStatusKind `json:"kind"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid agent status: %w", err)
	}
	s.Kind = obj.Kind
	s.Message = obj.Message
	return nil
}

// OutputFileName is the fixed name of the artifact a headless agent
// writes into its private directory when it finishes.
const OutputFileName = "output.json"

// AgentOutput is the structured record a headless agent writes to its
// output artifact. The spawning task writes it and the output watcher
// parses it back; both sides share this schema.
type AgentOutput struct {
	Type       string `json:"type"`
	Subtype    string `json:"subtype,omitempty"`
	IsError    bool   `json:"is_error"`
	DurationMS int64  `json:"duration_ms"`
	NumTurns   int    `json:"num_turns"`
	Result     string `json:"result"`
	SessionID  string `json:"session_id"`
}

// AgentResult is the digested outcome stored on the agent once its
// output artifact has been parsed
type AgentResult struct {
	Success    bool   `json:"success"`
	Summary    string `json:"summary"`
	DurationMS int64  `json:"duration_ms"`
	SessionID  string `json:"session_id"`
	RawResult  string `json:"raw_result,omitempty"`
}

// ResultFromOutput converts an output artifact into the digested form
func ResultFromOutput(out AgentOutput) AgentResult {
	return AgentResult{
		Success:    !out.IsError,
		Summary:    out.Result,
		DurationMS: out.DurationMS,
		SessionID:  out.SessionID,
		RawResult:  out.Result,
	}
}

// Agent is a sub-task inside a session
type Agent struct {
	ID            string       `json:"id"`
	ParentSession string       `json:"parent_session"`
	Name          string       `json:"name"`
	Mode          AgentMode    `json:"mode"`
	Status        AgentStatus  `json:"status"`
	Template      string       `json:"template,omitempty"`
	Prompt        string       `json:"prompt"`
	SystemPrompt  string       `json:"system_prompt,omitempty"`
	WorktreePath  string       `json:"worktree_path"`
	TmuxPane      string       `json:"tmux_pane,omitempty"`
	PID           int          `json:"pid,omitempty"`
	OutputFile    string       `json:"output_file"`
	Result        *AgentResult `json:"result,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

// NewAgent builds a queued agent with a fresh id. The output file is
// derived from the id so two agents can never collide on it.
func NewAgent(parentSession, name string, mode AgentMode, prompt, worktreePath, agentsDir string) Agent {
	id := uuid.New().String()
	return Agent{
		ID:            id,
		ParentSession: parentSession,
		Name:          name,
		Mode:          mode,
		Status:        AgentStatusOf(AgentQueued),
		Prompt:        prompt,
		WorktreePath:  worktreePath,
		OutputFile:    filepath.Join(agentsDir, id, OutputFileName),
		CreatedAt:     time.Now().UTC(),
	}
}

// IsRunning reports whether the agent process is believed to be alive
func (a *Agent) IsRunning() bool {
	return a.Status.Is(AgentRunning)
}

// IsDone reports whether the agent reached a terminal state
func (a *Agent) IsDone() bool {
	return a.Status.Terminal()
}

// TransitionTo enforces the agent state machine:
//
//	queued -> running | failed
//	running -> completed | failed
//	completed -> ingested
//
// Anything else is rejected. Marking an already-ingested agent
// ingested again is a no-op so the operation stays idempotent.
func (a *Agent) TransitionTo(status AgentStatus) error {
	from, to := a.Status.Kind, status.Kind

	if from == AgentIngested && to == AgentIngested {
		return nil
	}

	allowed := false
	switch from {
	case AgentQueued:
		allowed = to == AgentRunning || to == AgentFailed
	case AgentRunning:
		allowed = to == AgentCompleted || to == AgentFailed
	case AgentCompleted:
		allowed = to == AgentIngested
	}
	if !allowed {
		return fmt.Errorf("invalid agent transition from %s to %s", from, to)
	}

	a.Status = status
	if status.Terminal() && a.CompletedAt == nil {
		now := time.Now().UTC()
		a.CompletedAt = &now
	}
	return nil
}

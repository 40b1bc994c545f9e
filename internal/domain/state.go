package domain

// WorkspaceState is the aggregate persisted to workspace.json: the
// workspace, every session, every agent, and the tmux session that
// hosts the windows. It is the single root of persisted truth.
type WorkspaceState struct {
	Workspace       Workspace `json:"workspace"`
	Sessions        []Session `json:"sessions"`
	Agents          []Agent   `json:"agents"`
	TmuxSessionName string    `json:"tmux_session_name"`
}

// NewWorkspaceState builds an empty state document for a workspace
func NewWorkspaceState(workspace Workspace, tmuxSessionName string) *WorkspaceState {
	return &WorkspaceState{
		Workspace:       workspace,
		Sessions:        []Session{},
		Agents:          []Agent{},
		TmuxSessionName: tmuxSessionName,
	}
}

// Normalize applies backward-compatibility defaults after load:
// workspace kind/repos and per-session fields that older documents
// did not carry
func (s *WorkspaceState) Normalize() {
	s.Workspace.Normalize()
	if s.Sessions == nil {
		s.Sessions = []Session{}
	}
	if s.Agents == nil {
		s.Agents = []Agent{}
	}
	for i := range s.Sessions {
		if s.Sessions[i].AgentIDs == nil {
			s.Sessions[i].AgentIDs = []string{}
		}
	}
}

// FindSession returns the session with the given name, or nil
func (s *WorkspaceState) FindSession(name string) *Session {
	for i := range s.Sessions {
		if s.Sessions[i].Name == name {
			return &s.Sessions[i]
		}
	}
	return nil
}

// FindSessionByID returns the session with the given id, or nil
func (s *WorkspaceState) FindSessionByID(id string) *Session {
	for i := range s.Sessions {
		if s.Sessions[i].ID == id {
			return &s.Sessions[i]
		}
	}
	return nil
}

// FindAgent returns the agent with the given id, or nil
func (s *WorkspaceState) FindAgent(id string) *Agent {
	for i := range s.Agents {
		if s.Agents[i].ID == id {
			return &s.Agents[i]
		}
	}
	return nil
}

// MainSession returns the protected main session, or nil
func (s *WorkspaceState) MainSession() *Session {
	for i := range s.Sessions {
		if s.Sessions[i].IsMain {
			return &s.Sessions[i]
		}
	}
	return nil
}

// AgentsForSession returns every agent owned by the given session id
func (s *WorkspaceState) AgentsForSession(sessionID string) []*Agent {
	var agents []*Agent
	for i := range s.Agents {
		if s.Agents[i].ParentSession == sessionID {
			agents = append(agents, &s.Agents[i])
		}
	}
	return agents
}

// ActiveSessions returns sessions that count as live work
func (s *WorkspaceState) ActiveSessions() []*Session {
	var active []*Session
	for i := range s.Sessions {
		if s.Sessions[i].IsActive() {
			active = append(active, &s.Sessions[i])
		}
	}
	return active
}

// RunningAgents returns agents whose process is believed alive
func (s *WorkspaceState) RunningAgents() []*Agent {
	var running []*Agent
	for i := range s.Agents {
		if s.Agents[i].IsRunning() {
			running = append(running, &s.Agents[i])
		}
	}
	return running
}

// RemoveAgent deletes the agent and unlinks it from its owning
// session. Returns false if no agent had that id.
func (s *WorkspaceState) RemoveAgent(id string) bool {
	idx := -1
	for i := range s.Agents {
		if s.Agents[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	parentID := s.Agents[idx].ParentSession
	s.Agents = append(s.Agents[:idx], s.Agents[idx+1:]...)

	if sess := s.FindSessionByID(parentID); sess != nil {
		kept := sess.AgentIDs[:0]
		for _, aid := range sess.AgentIDs {
			if aid != id {
				kept = append(kept, aid)
			}
		}
		sess.AgentIDs = kept
	}
	return true
}

// RemoveSession deletes the session and every agent it owns.
// Returns false if no session had that name.
func (s *WorkspaceState) RemoveSession(name string) bool {
	idx := -1
	for i := range s.Sessions {
		if s.Sessions[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	sessionID := s.Sessions[idx].ID
	s.Sessions = append(s.Sessions[:idx], s.Sessions[idx+1:]...)

	kept := s.Agents[:0]
	for _, a := range s.Agents {
		if a.ParentSession != sessionID {
			kept = append(kept, a)
		}
	}
	s.Agents = kept
	return true
}

package domain

// AgentTemplate is a reusable agent definition parsed from a markdown
// file with YAML frontmatter; the body is the system prompt
type AgentTemplate struct {
	Name            string
	Description     string
	Mode            AgentMode
	SystemPrompt    string
	AllowedTools    []string
	DisallowedTools []string
	PermissionMode  string
}

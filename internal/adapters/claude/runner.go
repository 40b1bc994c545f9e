// Package claude launches the coding agent CLI. Headless agents run
// detached with JSON output captured into their artifact; interactive
// agents get a rendered command line typed into a tmux pane.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"kiln/internal/domain"
	"kiln/internal/logging"
	"kiln/internal/ports"
)

// stderrFileName sits next to the output artifact and survives the
// orchestrator process, so crash diagnostics are never lost.
const stderrFileName = "stderr.log"

// Runner shells out to the configured agent command.
type Runner struct {
	command   string
	extraArgs []string
}

// Compile-time interface verification
var _ ports.AgentRunner = (*Runner)(nil)

// NewRunner creates a runner for the given agent command. extraArgs
// are user-configured flags prepended to every invocation.
func NewRunner(command string, extraArgs []string) *Runner {
	return &Runner{
		command:   command,
		extraArgs: extraArgs,
	}
}

// Available reports whether the agent command can be found in PATH.
func (r *Runner) Available() error {
	if _, err := exec.LookPath(r.command); err != nil {
		return fmt.Errorf("agent command %q not found in PATH: %w", r.command, err)
	}
	return nil
}

// launchFlags renders the flags derived from the agent and its
// template, shared by headless and interactive launches.
func (r *Runner) launchFlags(agent domain.Agent, tmpl domain.AgentTemplate) []string {
	args := append([]string{}, r.extraArgs...)
	if agent.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", agent.SystemPrompt)
	}
	if len(tmpl.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(tmpl.AllowedTools, ","))
	}
	if len(tmpl.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(tmpl.DisallowedTools, ","))
	}
	if tmpl.PermissionMode != "" {
		args = append(args, "--permission-mode", tmpl.PermissionMode)
	}
	return args
}

// StartHeadless launches the agent in print mode. Stdout streams
// straight into the output artifact and the child runs in its own
// session, so the agent keeps working and the artifact still lands
// even when the spawning process exits first. The returned handle
// carries the pid; everything else reaches the caller through the
// artifact and the onExit callback.
func (r *Runner) StartHeadless(ctx context.Context, agent domain.Agent, tmpl domain.AgentTemplate, onExit func(output *domain.AgentOutput, runErr error)) (*ports.HeadlessHandle, error) {
	agentDir := filepath.Dir(agent.OutputFile)
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create agent output directory: %w", err)
	}

	stdout, err := os.OpenFile(agent.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent output artifact: %w", err)
	}
	stderrPath := filepath.Join(agentDir, stderrFileName)
	stderr, err := os.OpenFile(stderrPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		stdout.Close()
		return nil, fmt.Errorf("failed to create agent stderr log: %w", err)
	}

	args := append(r.launchFlags(agent, tmpl), "-p", agent.Prompt, "--output-format", "json")

	logging.Logger.Info("Starting headless agent",
		"agent_id", agent.ID, "name", agent.Name, "worktree", agent.WorktreePath)
	logging.Logger.Debug("Headless agent command", "command", r.command, "args", args)

	cmd := exec.CommandContext(ctx, r.command, args...)
	cmd.Dir = agent.WorktreePath
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("failed to start agent process: %w", err)
	}
	pid := cmd.Process.Pid
	logging.Logger.Debug("Headless agent started", "agent_id", agent.ID, "pid", pid)

	go func() {
		runErr := cmd.Wait()
		stdout.Close()
		stderr.Close()
		output := r.finalizeArtifact(agent, stderrPath, runErr)
		if onExit != nil {
			onExit(output, runErr)
		}
	}()

	return &ports.HeadlessHandle{PID: pid}, nil
}

// finalizeArtifact parses the output artifact after the process exits.
// A clean run already left valid JSON on disk; a crashed or garbled run
// gets the artifact rewritten with a synthesized error record so
// downstream consumers always find one.
func (r *Runner) finalizeArtifact(agent domain.Agent, stderrPath string, runErr error) *domain.AgentOutput {
	data, readErr := os.ReadFile(agent.OutputFile)

	var output domain.AgentOutput
	parseErr := readErr
	if parseErr == nil {
		parseErr = json.Unmarshal(data, &output)
	}
	if runErr == nil && parseErr == nil {
		logging.Logger.Info("Agent output artifact written",
			"agent_id", agent.ID, "path", agent.OutputFile, "is_error", output.IsError)
		return &output
	}

	stderrTail, _ := os.ReadFile(stderrPath)
	output = domain.AgentOutput{
		Type:    "result",
		Subtype: "error",
		IsError: true,
		Result:  failureSummary(runErr, parseErr, string(stderrTail)),
	}

	artifact, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		logging.Logger.Error("Failed to encode error artifact", "agent_id", agent.ID, "error", err)
		return &output
	}
	if err := os.WriteFile(agent.OutputFile, artifact, 0o644); err != nil {
		logging.Logger.Error("Failed to write agent output artifact",
			"agent_id", agent.ID, "path", agent.OutputFile, "error", err)
	} else {
		logging.Logger.Warn("Agent run failed, error artifact written",
			"agent_id", agent.ID, "path", agent.OutputFile)
	}
	return &output
}

func failureSummary(runErr, parseErr error, stderr string) string {
	stderr = strings.TrimSpace(stderr)
	switch {
	case runErr != nil && stderr != "":
		return fmt.Sprintf("agent process failed: %v: %s", runErr, stderr)
	case runErr != nil:
		return fmt.Sprintf("agent process failed: %v", runErr)
	case stderr != "":
		return fmt.Sprintf("agent produced no parseable output: %s", stderr)
	default:
		return fmt.Sprintf("agent produced no parseable output: %v", parseErr)
	}
}

// InteractiveCommand renders the command line typed into a pane for an
// interactive agent. The prompt rides along as the initial message.
func (r *Runner) InteractiveCommand(agent domain.Agent, tmpl domain.AgentTemplate) string {
	parts := []string{r.command}
	for _, arg := range r.launchFlags(agent, tmpl) {
		parts = append(parts, shellQuote(arg))
	}
	if agent.Prompt != "" {
		parts = append(parts, shellQuote(agent.Prompt))
	}
	return strings.Join(parts, " ")
}

// shellQuote single-quotes s for POSIX shells.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$`&|;<>()*?[]#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

package cmd

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"kiln/internal/config"
	"kiln/internal/logging"
)

// CLI represents the command-line interface structure
type CLI struct {
	Version     kong.VersionFlag `help:"Show version information"`
	Debug       bool             `help:"Enable debug logging to file" short:"d"`
	DebugFile   string           `help:"Custom path for debug log file (disables automatic cleanup)"`
	Dir         string           `help:"Workspace directory (default: current directory)" type:"path"`
	MaxLogFiles int              `help:"Maximum number of log files to keep (0 = unlimited)" default:"50"`

	Init         InitCmd         `cmd:"" help:"Initialize the current directory as a kiln workspace"`
	New          NewCmd          `cmd:"" help:"Create a session with its own branch, worktree, and primary agent"`
	Spawn        SpawnCmd        `cmd:"" help:"Spawn an additional agent into a session"`
	Run          RunCmd          `cmd:"" help:"Run the reconciliation loop in the foreground"`
	Status       StatusCmd       `cmd:"" help:"Show workspace status"`
	List         ListCmd         `cmd:"" help:"List sessions"`
	Attach       AttachCmd       `cmd:"" help:"Attach to a session's tmux window"`
	Kill         KillCmd         `cmd:"" help:"Kill a session and remove its worktree"`
	Ingest       IngestCmd       `cmd:"" help:"Collect a completed agent's result"`
	Peek         PeekCmd         `cmd:"" help:"Show the tail of an agent's pane"`
	Cleanup      CleanupCmd      `cmd:"" help:"Remove finished sessions and orphaned worktrees"`
	Doctor       DoctorCmd       `cmd:"" help:"Check workspace health and repair recorded state"`
	Plan         PlanCmd         `cmd:"" help:"Manage shared plan documents"`
	Templates    TemplatesCmd    `cmd:"" help:"List available agent templates"`
	RefreshRepos RefreshReposCmd `cmd:"refresh-repos" help:"Re-scan a multi-repo workspace for added or removed repositories"`

	// Internal fields (not flags)
	Container *Container       `kong:"-"`
	settings  *config.Settings `kong:"-"`
}

// SetSettings sets the settings on the CLI struct
func (c *CLI) SetSettings(settings *config.Settings) {
	c.settings = settings
}

// AfterApply initializes logging after CLI parsing and applies settings
func (c *CLI) AfterApply() error {
	if c.settings == nil {
		c.settings = &config.Settings{}
	}

	// Apply settings with proper precedence: CLI flags > env vars > settings.json > defaults
	// Only apply if flag is at default value and env var is not set

	if c.MaxLogFiles == logging.DefaultMaxLogFiles {
		if _, hasEnv := os.LookupEnv("KILN_MAX_LOG_FILES"); !hasEnv {
			if c.settings.MaxLogFiles != nil {
				c.MaxLogFiles = *c.settings.MaxLogFiles
			}
		}
	}

	if !c.Debug {
		if _, hasEnv := os.LookupEnv("KILN_DEBUG"); !hasEnv {
			if c.settings.Debug != nil && *c.settings.Debug {
				c.Debug = true
			}
		}
	}

	logFilePath, err := logging.Initialize(c.Debug, c.DebugFile, c.MaxLogFiles)
	if err != nil {
		return err
	}

	// Set environment variables AFTER initialization so agent processes
	// inherit debug settings and append to the SAME log file (important
	// for correlating parent and child process logs)
	if c.Debug || c.DebugFile != "" {
		os.Setenv("KILN_DEBUG", "1")
		if logFilePath != "" {
			os.Setenv("KILN_DEBUG_FILE", logFilePath)
		}
	}
	if c.MaxLogFiles != logging.DefaultMaxLogFiles {
		os.Setenv("KILN_MAX_LOG_FILES", fmt.Sprintf("%d", c.MaxLogFiles))
	}

	// Create container AFTER logging is initialized so adapter
	// constructors can log
	container, err := NewContainer(c.Dir, c.settings)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	c.Container = container

	return nil
}

// Close closes all resources held by the CLI
func (c *CLI) Close() error {
	if c.Container != nil {
		return c.Container.Close()
	}
	return nil
}

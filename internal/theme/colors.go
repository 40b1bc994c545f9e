package theme

import "github.com/charmbracelet/lipgloss"

// Color is an alias for lipgloss.Color for convenience
type Color = lipgloss.Color

// Brand colors
const (
	ColorPrimary   Color = "99" // Purple - app name, titles
	ColorSecondary Color = "86" // Cyan - subtitles
)

// Session and agent state colors
const (
	ColorActive   Color = "2"   // Green - agent running
	ColorArchived Color = "8"   // Gray - kept for the record only
	ColorCreating Color = "3"   // Yellow - being provisioned
	ColorDone     Color = "6"   // Cyan - work finished
	ColorFailed   Color = "1"   // Red - something broke
	ColorPaused   Color = "245" // Light gray - window gone, worktree intact
)

// UI semantic colors
const (
	ColorError     Color = "196" // Bright red
	ColorHighlight Color = "255" // White - emphasis
	ColorMuted     Color = "241" // Gray - secondary text
	ColorNormal    Color = "250" // Default text
	ColorSubtle    Color = "245" // Light gray - labels
	ColorWarn      Color = "214" // Orange - warnings
)

package theme

import "github.com/charmbracelet/lipgloss"

// Text styles for static command output
var (
	BranchStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	HighlightStyle = lipgloss.NewStyle().
			Foreground(ColorHighlight).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	NormalStyle = lipgloss.NewStyle().
			Foreground(ColorNormal)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	WarnStyle = lipgloss.NewStyle().
			Foreground(ColorWarn)
)

// Check result styles (doctor output)
var (
	CheckFailStyle = lipgloss.NewStyle().
			Foreground(ColorFailed).
			Bold(true)

	CheckOKStyle = lipgloss.NewStyle().
			Foreground(ColorActive)
)

// Status glyph styles, keyed by the status kind string so callers can
// color a glyph without this package importing the domain
var statusStyles = map[string]lipgloss.Style{
	"active":     lipgloss.NewStyle().Foreground(ColorActive),
	"archived":   lipgloss.NewStyle().Foreground(ColorArchived),
	"completed":  lipgloss.NewStyle().Foreground(ColorDone),
	"creating":   lipgloss.NewStyle().Foreground(ColorCreating),
	"failed":     lipgloss.NewStyle().Foreground(ColorFailed),
	"ingested":   lipgloss.NewStyle().Foreground(ColorArchived),
	"paused":     lipgloss.NewStyle().Foreground(ColorPaused),
	"queued":     lipgloss.NewStyle().Foreground(ColorCreating),
	"running":    lipgloss.NewStyle().Foreground(ColorActive),
	"superseded": lipgloss.NewStyle().Foreground(ColorArchived),
	"draft":      lipgloss.NewStyle().Foreground(ColorCreating),
}

// StatusStyle returns the style for a status kind, falling back to the
// normal text style for kinds it does not know
func StatusStyle(kind string) lipgloss.Style {
	if style, ok := statusStyles[kind]; ok {
		return style
	}
	return NormalStyle
}

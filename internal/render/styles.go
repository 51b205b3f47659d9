// Package render turns store snapshots into terminal output.
package render

import "charm.land/lipgloss/v2"

// Palette.
const (
	ColorPrimary   = "#7C3AED" // violet: headings, user turns
	ColorSecondary = "#10B981" // green: model turns, completed
	ColorAccent    = "#60A5FA" // blue: links, authors
	ColorWarning   = "#F59E0B" // amber: pending, analyzing
	ColorError     = "#EF4444" // red: SOS, failures
	ColorMuted     = "#6B7280"
	ColorBorder    = "#374151"
	ColorText      = "#E5E7EB"
)

var (
	Primary   = lipgloss.Color(ColorPrimary)
	Secondary = lipgloss.Color(ColorSecondary)
	Accent    = lipgloss.Color(ColorAccent)
	Warning   = lipgloss.Color(ColorWarning)
	Error     = lipgloss.Color(ColorError)
	Muted     = lipgloss.Color(ColorMuted)
	Border    = lipgloss.Color(ColorBorder)
	Text      = lipgloss.Color(ColorText)
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	UserStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	ModelStyle = lipgloss.NewStyle().
			Foreground(Secondary)

	UrgentStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	DoneStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Strikethrough(true)

	PendingStyle = lipgloss.NewStyle().
			Foreground(Warning).
			Italic(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	AuthorStyle = lipgloss.NewStyle().
			Foreground(Accent)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Secondary)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Border).
			Padding(0, 1)
)

// categoryStyles colors a task by its effort bucket.
var categoryStyles = map[string]lipgloss.Style{
	"Quick":  lipgloss.NewStyle().Foreground(Secondary),
	"Grind":  lipgloss.NewStyle().Foreground(Accent),
	"Cooked": lipgloss.NewStyle().Foreground(Warning),
}

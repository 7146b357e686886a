package output

import "github.com/charmbracelet/lipgloss"

var (
	// Colors meet WCAG AA contrast on dark terminals
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	BorderColor    = lipgloss.Color("#6B7280") // Gray

	// Convenience styles for colors
	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)

	// Text styles
	Title  = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor)
	Header = lipgloss.NewStyle().Bold(true).Foreground(MutedColor)
	Rule   = lipgloss.NewStyle().Foreground(BorderColor)
)

// Session states shown by the sessions and locks commands
const (
	StateAvailable = "available"
	StateReserved  = "reserved"
	StateStale     = "stale"
	StateInvalid   = "invalid"
)

// StateStyle returns the style for a session state.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case StateAvailable:
		return Secondary
	case StateReserved:
		return Warning
	case StateStale:
		return Error
	default:
		return Muted
	}
}

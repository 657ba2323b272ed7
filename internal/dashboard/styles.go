package dashboard

import "github.com/charmbracelet/lipgloss"

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	SurfaceColor   = lipgloss.Color("#1F2937") // Dark surface
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray

	// State colors
	StateRecordingColor = lipgloss.Color("#10B981") // Green
	StateWaitingColor   = lipgloss.Color("#60A5FA") // Blue
	StateStartingColor  = lipgloss.Color("#9CA3AF") // Gray
	StateStoppedColor   = lipgloss.Color("#A78BFA") // Purple
	StateStaleColor     = lipgloss.Color("#FB923C") // Orange - no heartbeat

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	HeaderCell = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			Padding(0, 1)

	Cell = lipgloss.NewStyle().
		Foreground(TextColor).
		Padding(0, 1)

	// Help bar
	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)

	HelpKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(SecondaryColor)

	// Footer / status bar
	StatusBar = lipgloss.NewStyle().
			Foreground(TextColor).
			Background(SurfaceColor).
			Padding(0, 1)

	ErrorText = lipgloss.NewStyle().
			Foreground(ErrorColor)

	EmptyText = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true).
			Padding(1, 2)
)

// StateColor returns the color for a state label as shown in the table.
func StateColor(label string) lipgloss.Color {
	switch label {
	case "RECORDING":
		return StateRecordingColor
	case "WAITING":
		return StateWaitingColor
	case "STARTING":
		return StateStartingColor
	case "STOPPED":
		return StateStoppedColor
	case StaleLabel:
		return StateStaleColor
	default:
		return MutedColor
	}
}

// StateIcon returns an icon for a state label.
func StateIcon(label string) string {
	switch label {
	case "RECORDING":
		return "●"
	case "WAITING":
		return "○"
	case "STARTING":
		return "◌"
	case "STOPPED":
		return "■"
	case StaleLabel:
		return "⏱"
	default:
		return "●"
	}
}

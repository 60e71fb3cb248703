package tui

import "github.com/charmbracelet/lipgloss"

// palette
var (
	accent    = lipgloss.Color("#FF2442")
	accentDim = lipgloss.Color("#7A1F2B")
	ink       = lipgloss.Color("#101014")
	paper     = lipgloss.Color("#1C1C22")
	muted     = lipgloss.Color("#A8A8B3")
	faint     = lipgloss.Color("#5C5C66")
	good      = lipgloss.Color("#3DDC84")
	caution   = lipgloss.Color("#FFB020")
	bad       = lipgloss.Color("#FF5555")
	info      = lipgloss.Color("#5FD7FF")
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

var (
	baseStyle = lipgloss.NewStyle().Background(ink).Foreground(muted)
	logoStyle = fg(accent).Bold(true).Padding(1, 0).Align(lipgloss.Center)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentDim).
			Background(paper).
			Padding(1, 2)
	titleStyle = lipgloss.NewStyle().Background(accent).Foreground(ink).Bold(true).Padding(0, 1)

	statsLabelStyle = fg(info).Bold(true)
	statsValueStyle = fg(lipgloss.Color("#F5F5F7"))
	rateStyle       = fg(info)

	successStyle = fg(good).Bold(true)
	warningStyle = fg(caution).Bold(true)
	errorStyle   = fg(bad).Bold(true)

	rowPendingStyle = fg(faint).PaddingLeft(2)
	rowActiveStyle  = fg(good).Bold(true).PaddingLeft(2)
	rowDoneStyle    = fg(muted).PaddingLeft(2)

	logTimestampStyle = fg(faint)
	logMessageStyle   = fg(muted)
	helpStyle         = fg(faint).Padding(1, 0, 0, 2)
)

// StateStyle returns the row style for an account state
func StateStyle(state AccountState) lipgloss.Style {
	switch state {
	case AccountActive:
		return rowActiveStyle
	case AccountFailed:
		return errorStyle.PaddingLeft(2)
	case AccountDone:
		return rowDoneStyle
	default:
		return rowPendingStyle
	}
}

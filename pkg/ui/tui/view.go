package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderLogo())

	leftColumn := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel((m.width-4)/2),
		m.renderAccountsPanel((m.width-4)/2),
	)
	rightColumn := m.renderLogsPanel((m.width - 4) / 2)

	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, leftColumn, "  ", rightColumn))

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

// renderLogo renders the banner
func (m *Model) renderLogo() string {
	logo := `
╔═════════════════════════════════════════════╗
║  N O T E   C R A W L E R                    ║
║  resumable note harvester • csv/xlsx output ║
╚═════════════════════════════════════════════╝`

	return logoStyle.Width(m.width).Render(logo)
}

// renderStatsPanel renders the run totals
func (m *Model) renderStatsPanel(width int) string {
	finished, total := m.Progress()
	rate := m.ItemRate()

	m.mu.RLock()
	defer m.mu.RUnlock()

	title := titleStyle.Render(" RUN STATS ")
	elapsed := time.Since(m.sessionStartTime)

	ratio := 0.0
	if total > 0 {
		ratio = float64(finished) / float64(total)
	}
	bar := m.bar
	bar.Width = width - 8
	if bar.Width < 10 {
		bar.Width = 10
	}

	stats := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Session Time:"), statsValueStyle.Render(formatDuration(elapsed))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Accounts:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", finished, total))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Items:"), statsValueStyle.Render(fmt.Sprintf("%d", m.totalItems))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Rows Written:"), statsValueStyle.Render(fmt.Sprintf("%d", m.totalWritten))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Rate:"), rateStyle.Render(fmt.Sprintf("%.1f items/min", rate))),
		bar.ViewAs(ratio),
	}
	if m.totalErrors > 0 {
		stats = append(stats, errorStyle.Render(fmt.Sprintf("%d detail errors", m.totalErrors)))
	}
	if m.finished {
		stats = append(stats, successStyle.Render("■ FINISHED"))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, stats...)),
	)
}

// renderAccountsPanel renders one row per account
func (m *Model) renderAccountsPanel(width int) string {
	title := titleStyle.Render(" ACCOUNTS ")
	rows := m.Accounts()

	if len(rows) == 0 {
		content := fg(faint).Render("No accounts configured")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, m.renderAccountRow(r))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, lines...)),
	)
}

// renderAccountRow renders one account with its state icon
func (m *Model) renderAccountRow(r AccountRow) string {
	var icon, detail string
	switch r.State {
	case AccountPending:
		icon = "⏳"
		detail = "queued"
	case AccountActive:
		icon = m.spinner.View()
		detail = fmt.Sprintf("page %d • %d items • %d written", r.Page, r.Items, r.Written)
	case AccountDone:
		icon = "✓"
		detail = fmt.Sprintf("%d written in %s", r.Written, formatDuration(r.Duration))
	case AccountFailed:
		icon = "✗"
		detail = "failed"
		if r.Error != nil {
			detail = r.Error.Error()
		}
	}
	if r.Errors > 0 && r.State != AccountFailed {
		detail += fmt.Sprintf(" • %d errors", r.Errors)
	}

	return StateStyle(r.State).Render(fmt.Sprintf("%s %s  %s", icon, r.Name, detail))
}

// renderLogsPanel renders the logs panel
func (m *Model) renderLogsPanel(width int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	title := titleStyle.Render(" EVENTS ")

	start := len(m.logMessages) - 15
	if start < 0 {
		start = 0
	}

	maxMsgLen := width - 25
	if maxMsgLen < 10 {
		maxMsgLen = 10
	}

	var logs []string
	for _, log := range m.logMessages[start:] {
		msg := log.Message
		if len([]rune(msg)) > maxMsgLen {
			msg = string([]rune(msg)[:maxMsgLen-3]) + "..."
		}
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, logMessageStyle.Render(msg)))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = fg(faint).Render("No events yet...")
	}

	logsHeight := m.height - 12
	if logsHeight < 5 {
		logsHeight = 5
	}

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

// renderHelp renders the help panel
func (m *Model) renderHelp() string {
	help := `
  Keys:
    q/Q      - Quit (the crawl is interrupted and resumes next run)
    ctrl+l   - Clear events
    ?        - Toggle this help

  Status Indicators:
    ` + successStyle.Render("Green") + `    - Crawling
    ` + warningStyle.Render("Orange") + `   - Item errors
    ` + errorStyle.Render("Red") + `      - Account failed

  Icons:
    ⏳       - Queued account
    ✓        - Finished account
    ✗        - Failed account
`

	return panelStyle.Width(m.width).Render(help)
}

// formatDuration formats a duration as a clock
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

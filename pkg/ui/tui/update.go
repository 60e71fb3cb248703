package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"notecrawler/pkg/crawler"
	"notecrawler/pkg/metadata"
	"notecrawler/pkg/models"
)

// AccountStartMsg is sent when an account starts
type AccountStartMsg struct {
	Account models.AccountTarget
}

// ItemMsg is sent for every processed item
type ItemMsg struct {
	Account string
	ItemID  string
	Error   error
}

// PageMsg is sent when a listing page is done
type PageMsg struct {
	Account string
	Page    int
	Items   int
	Fresh   int
	HasMore bool
}

// FlushMsg is sent when a batch reaches the output file
type FlushMsg struct {
	Account string
	Records int
}

// AccountDoneMsg is sent when an account finishes
type AccountDoneMsg struct {
	Stats crawler.AccountStats
	Error error
}

// RunDoneMsg is sent once the whole run is over
type RunDoneMsg struct {
	Summary *metadata.RunSummary
	Error   error
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.finished {
			return m, nil
		}
		return m, tickCmd()

	case AccountStartMsg:
		m.StartAccount(msg.Account)
		m.AddLogMessage("INFO", "Crawling "+msg.Account.Name)
		return m, nil

	case ItemMsg:
		m.RecordItem(msg.Account, msg.Error)
		if msg.Error != nil {
			m.AddLogMessage("WARN", fmt.Sprintf("%s: %v", msg.ItemID, msg.Error))
		}
		return m, nil

	case PageMsg:
		m.RecordPage(msg.Account, msg.Page, msg.Fresh, msg.HasMore)
		return m, nil

	case FlushMsg:
		m.RecordFlush(msg.Account, msg.Records)
		m.AddLogMessage("INFO", fmt.Sprintf("%s: %d rows written", msg.Account, msg.Records))
		return m, nil

	case AccountDoneMsg:
		m.FinishAccount(msg.Stats, msg.Error)
		if msg.Error != nil {
			m.AddLogMessage("ERROR", fmt.Sprintf("%s failed: %v", msg.Stats.Account.Name, msg.Error))
		} else {
			m.AddLogMessage("SUCCESS", fmt.Sprintf("%s done: %d written", msg.Stats.Account.Name, msg.Stats.Written))
		}
		return m, nil

	case RunDoneMsg:
		m.finished = true
		switch {
		case msg.Summary != nil && msg.Summary.Cancelled:
			m.AddLogMessage("WARN", "Run interrupted, rerun to resume")
		case msg.Error != nil:
			m.AddLogMessage("ERROR", "Run finished with errors: "+msg.Error.Error())
		default:
			m.AddLogMessage("SUCCESS", "Run complete, press q to exit")
		}
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.mu.Lock()
		m.logMessages = []LogMessage{}
		m.mu.Unlock()
		return m, nil
	}

	return m, nil
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*250, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

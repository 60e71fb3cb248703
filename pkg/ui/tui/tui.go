package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"notecrawler/pkg/crawler"
	"notecrawler/pkg/metadata"
	"notecrawler/pkg/models"
)

// TUI is a full-screen crawl dashboard. It receives crawler progress and
// renders it on its own goroutine.
type TUI struct {
	program *tea.Program
	model   *Model
}

var _ crawler.ProgressReporter = (*TUI)(nil)

// NewTUI creates a dashboard for the given accounts. Extra program
// options are appended after the alternate screen option.
func NewTUI(accounts []models.AccountTarget, opts ...tea.ProgramOption) *TUI {
	model := NewModel(accounts)
	options := append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)

	return &TUI{
		program: tea.NewProgram(model, options...),
		model:   model,
	}
}

// Start runs the TUI until the user quits or Stop is called
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// Model exposes the dashboard state
func (t *TUI) Model() *Model {
	return t.model
}

// AccountStarted implements crawler.ProgressReporter
func (t *TUI) AccountStarted(account models.AccountTarget) {
	t.Send(AccountStartMsg{Account: account})
}

// ItemProcessed implements crawler.ProgressReporter
func (t *TUI) ItemProcessed(account, itemID string, err error) {
	t.Send(ItemMsg{Account: account, ItemID: itemID, Error: err})
}

// PageProcessed implements crawler.ProgressReporter
func (t *TUI) PageProcessed(account string, page, items, fresh int, hasMore bool) {
	t.Send(PageMsg{Account: account, Page: page, Items: items, Fresh: fresh, HasMore: hasMore})
}

// BatchFlushed implements crawler.ProgressReporter
func (t *TUI) BatchFlushed(account string, records int) {
	t.Send(FlushMsg{Account: account, Records: records})
}

// AccountFinished implements crawler.ProgressReporter
func (t *TUI) AccountFinished(stats crawler.AccountStats, err error) {
	t.Send(AccountDoneMsg{Stats: stats, Error: err})
}

// Finish reports the end of the run
func (t *TUI) Finish(summary *metadata.RunSummary, err error) {
	t.Send(RunDoneMsg{Summary: summary, Error: err})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

package tui

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"notecrawler/pkg/crawler"
	"notecrawler/pkg/models"
)

// AccountState represents where an account is in the run
type AccountState int

const (
	AccountPending AccountState = iota
	AccountActive
	AccountDone
	AccountFailed
)

// AccountRow is the dashboard line for one account
type AccountRow struct {
	Name      string
	ID        string
	State     AccountState
	Page      int
	Items     int
	Fresh     int
	Written   int
	Errors    int
	HasMore   bool
	StartTime time.Time
	Duration  time.Duration
	Error     error
}

// Model represents the TUI model
type Model struct {
	spinner spinner.Model
	bar     progress.Model

	accounts     map[string]*AccountRow
	accountOrder []string

	totalItems   int
	totalWritten int
	totalErrors  int

	sessionStartTime time.Time
	finished         bool

	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int

	mu sync.RWMutex
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates a model with every account of the run queued
func NewModel(accounts []models.AccountTarget) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = fg(accent)

	m := &Model{
		spinner:          s,
		bar:              progress.New(progress.WithDefaultGradient()),
		accounts:         make(map[string]*AccountRow),
		sessionStartTime: time.Now(),
		maxLogMessages:   50,
	}
	for _, a := range accounts {
		m.row(a.Name).ID = a.ID
	}
	return m
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// row returns the row for name, creating it. Callers hold mu.
func (m *Model) row(name string) *AccountRow {
	r, ok := m.accounts[name]
	if !ok {
		r = &AccountRow{Name: name}
		m.accounts[name] = r
		m.accountOrder = append(m.accountOrder, name)
	}
	return r
}

// StartAccount marks an account as active
func (m *Model) StartAccount(account models.AccountTarget) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.row(account.Name)
	r.ID = account.ID
	r.State = AccountActive
	r.StartTime = time.Now()
}

// RecordItem counts a processed item
func (m *Model) RecordItem(account string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.row(account)
	r.Items++
	m.totalItems++
	if err != nil {
		r.Errors++
		m.totalErrors++
	}
}

// RecordPage stores the latest page position of an account
func (m *Model) RecordPage(account string, page, fresh int, hasMore bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.row(account)
	r.Page = page
	r.Fresh += fresh
	r.HasMore = hasMore
}

// RecordFlush counts rows committed to the output
func (m *Model) RecordFlush(account string, records int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.row(account).Written += records
	m.totalWritten += records
}

// FinishAccount marks an account done or failed
func (m *Model) FinishAccount(stats crawler.AccountStats, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.row(stats.Account.Name)
	r.Duration = stats.Duration
	r.Error = err
	if err != nil {
		r.State = AccountFailed
	} else {
		r.State = AccountDone
	}
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	color := muted
	switch level {
	case "ERROR":
		color = bad
	case "WARN":
		color = caution
	case "SUCCESS":
		color = good
	case "INFO":
		color = info
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Accounts returns a snapshot of the rows in run order
func (m *Model) Accounts() []AccountRow {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := make([]AccountRow, 0, len(m.accountOrder))
	for _, name := range m.accountOrder {
		rows = append(rows, *m.accounts[name])
	}
	return rows
}

// Progress returns the number of finished accounts and the total
func (m *Model) Progress() (finished, total int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.accounts {
		if r.State == AccountDone || r.State == AccountFailed {
			finished++
		}
	}
	return finished, len(m.accounts)
}

// ItemRate returns items processed per minute since the session started
func (m *Model) ItemRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := time.Since(m.sessionStartTime).Minutes()
	if elapsed == 0 {
		return 0
	}
	return float64(m.totalItems) / elapsed
}

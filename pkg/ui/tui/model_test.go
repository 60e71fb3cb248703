package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notecrawler/pkg/crawler"
	"notecrawler/pkg/metadata"
	"notecrawler/pkg/models"
)

var testAccounts = []models.AccountTarget{
	{Name: "PKU", ID: "5f1a"},
	{Name: "THU", ID: "6b2c"},
}

func TestModelTracksAccounts(t *testing.T) {
	m := NewModel(testAccounts)

	rows := m.Accounts()
	require.Len(t, rows, 2)
	assert.Equal(t, AccountPending, rows[0].State)
	assert.Equal(t, "6b2c", rows[1].ID)

	m.Update(AccountStartMsg{Account: testAccounts[0]})
	m.Update(ItemMsg{Account: "PKU", ItemID: "n1"})
	m.Update(ItemMsg{Account: "PKU", ItemID: "n2", Error: errors.New("rate limited")})
	m.Update(PageMsg{Account: "PKU", Page: 1, Items: 2, Fresh: 2, HasMore: true})
	m.Update(FlushMsg{Account: "PKU", Records: 2})

	rows = m.Accounts()
	assert.Equal(t, AccountActive, rows[0].State)
	assert.Equal(t, 2, rows[0].Items)
	assert.Equal(t, 1, rows[0].Errors)
	assert.Equal(t, 1, rows[0].Page)
	assert.Equal(t, 2, rows[0].Written)
	assert.True(t, rows[0].HasMore)

	m.Update(AccountDoneMsg{Stats: crawler.AccountStats{Account: testAccounts[0], Written: 2, Duration: time.Minute}})
	m.Update(AccountStartMsg{Account: testAccounts[1]})
	m.Update(AccountDoneMsg{Stats: crawler.AccountStats{Account: testAccounts[1]}, Error: errors.New("auth")})

	finished, total := m.Progress()
	assert.Equal(t, 2, finished)
	assert.Equal(t, 2, total)

	rows = m.Accounts()
	assert.Equal(t, AccountDone, rows[0].State)
	assert.Equal(t, time.Minute, rows[0].Duration)
	assert.Equal(t, AccountFailed, rows[1].State)
	assert.EqualError(t, rows[1].Error, "auth")

	assert.Equal(t, 2, m.totalItems)
	assert.Equal(t, 2, m.totalWritten)
	assert.Equal(t, 1, m.totalErrors)
}

func TestModelUnknownAccountIsAdded(t *testing.T) {
	m := NewModel(nil)
	m.Update(FlushMsg{Account: "late", Records: 3})

	rows := m.Accounts()
	require.Len(t, rows, 1)
	assert.Equal(t, "late", rows[0].Name)
	assert.Equal(t, 3, rows[0].Written)
}

func TestModelLogMessages(t *testing.T) {
	m := NewModel(testAccounts)
	m.maxLogMessages = 3

	for i := 0; i < 5; i++ {
		m.Update(LogMsg{Level: "INFO", Message: "event"})
	}
	assert.Len(t, m.logMessages, 3)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Empty(t, m.logMessages)

	m.Update(RunDoneMsg{Summary: &metadata.RunSummary{Cancelled: true}})
	require.Len(t, m.logMessages, 1)
	assert.Equal(t, "WARN", m.logMessages[0].Level)
	assert.True(t, m.finished)
}

func TestModelKeys(t *testing.T) {
	m := NewModel(testAccounts)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	assert.Nil(t, cmd)
	assert.True(t, m.showHelp)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModelTickStopsWhenFinished(t *testing.T) {
	m := NewModel(testAccounts)

	_, cmd := m.Update(TickMsg(time.Now()))
	assert.NotNil(t, cmd)

	m.Update(RunDoneMsg{})
	_, cmd = m.Update(TickMsg(time.Now()))
	assert.Nil(t, cmd)
}

func TestView(t *testing.T) {
	m := NewModel(testAccounts)
	assert.Equal(t, "Initializing...", m.View())

	m.Update(tea.WindowSizeMsg{Width: 160, Height: 50})
	m.Update(AccountStartMsg{Account: testAccounts[0]})
	m.Update(ItemMsg{Account: "PKU", ItemID: "n1"})

	view := m.View()
	assert.Contains(t, view, "PKU")
	assert.Contains(t, view, "THU")
	assert.Contains(t, view, "RUN STATS")
	assert.Contains(t, view, "queued")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{-time.Second, "00:00"},
		{42 * time.Second, "00:42"},
		{3*time.Minute + 5*time.Second, "03:05"},
		{2*time.Hour + time.Minute, "02:01:00"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, formatDuration(test.d))
	}
}

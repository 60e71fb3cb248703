package ui

import (
	"fmt"
	"os/exec"
	"runtime"

	"notecrawler/pkg/metadata"
)

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// Notifier handles desktop notifications
type Notifier struct {
	sender NotificationSender
}

// NewNotifier creates a Notifier for the current platform. Platforms
// without a sender only print to the console.
func NewNotifier() *Notifier {
	var sender NotificationSender

	switch runtime.GOOS {
	case "linux":
		sender = &LinuxNotificationSender{}
	case "darwin":
		sender = &MacOSNotificationSender{}
	}

	return NewNotifierWithSender(sender)
}

// NewNotifierWithSender creates a Notifier over an explicit sender
func NewNotifierWithSender(sender NotificationSender) *Notifier {
	return &Notifier{sender: sender}
}

// SendNotification sends a desktop notification. Delivery failures are ignored.
func (n *Notifier) SendNotification(title, message string) {
	if n.sender != nil {
		_ = n.sender.Send(title, message)
	}
}

// NotifyRun sends the outcome of a crawl run
func (n *Notifier) NotifyRun(summary *metadata.RunSummary, err error) {
	if summary == nil {
		if err != nil {
			n.SendNotification("Crawl failed", err.Error())
		}
		return
	}

	written, _, _ := summary.Totals()
	switch {
	case summary.Cancelled:
		n.SendNotification("Crawl interrupted", fmt.Sprintf("%d rows written, rerun to resume", written))
	case err != nil:
		n.SendNotification("Crawl finished with errors", fmt.Sprintf("%d rows written • %v", written, err))
	default:
		n.SendNotification("Crawl complete", fmt.Sprintf("%d rows from %d accounts", written, len(summary.Accounts)))
	}
}

package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"notecrawler/pkg/crawler"
	"notecrawler/pkg/metadata"
	"notecrawler/pkg/models"
)

// accountLine is the running tally for one account
type accountLine struct {
	name    string
	page    int
	items   int
	written int
	errors  int
	started time.Time
}

// CrawlProgress renders crawl progress as a single rewritten status line per
// account. In debug mode every item and page gets its own line instead.
type CrawlProgress struct {
	mu       sync.Mutex
	w        io.Writer
	debug    bool
	now      func() time.Time
	accounts map[string]*accountLine
	started  time.Time
}

var _ crawler.ProgressReporter = (*CrawlProgress)(nil)

// NewCrawlProgress creates a progress display writing to w
func NewCrawlProgress(w io.Writer, debug bool) *CrawlProgress {
	return &CrawlProgress{
		w:        w,
		debug:    debug,
		now:      time.Now,
		accounts: make(map[string]*accountLine),
		started:  time.Now(),
	}
}

func (p *CrawlProgress) line(account string) *accountLine {
	l, ok := p.accounts[account]
	if !ok {
		l = &accountLine{name: account, started: p.now()}
		p.accounts[account] = l
	}
	return l
}

// AccountStarted announces an account
func (p *CrawlProgress) AccountStarted(account models.AccountTarget) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l := p.line(account.Name)
	l.started = p.now()
	fmt.Fprintf(p.w, "\n%s %s %s\n", Magenta("→"), Cyan(account.Name), Dim("("+account.ID+")"))
}

// ItemProcessed counts a fetched item
func (p *CrawlProgress) ItemProcessed(account, itemID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l := p.line(account)
	l.items++
	if err != nil {
		l.errors++
	}

	if !p.debug {
		p.printStatus(l)
		return
	}
	if err != nil {
		fmt.Fprintf(p.w, "%s %s • %v\n", Red("✗"), itemID, err)
	} else {
		fmt.Fprintf(p.w, "%s %s\n", Green("✓"), itemID)
	}
}

// PageProcessed records a finished listing page
func (p *CrawlProgress) PageProcessed(account string, page, items, fresh int, hasMore bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l := p.line(account)
	l.page = page
	if p.debug {
		more := "last page"
		if hasMore {
			more = "more pages"
		}
		fmt.Fprintf(p.w, "%s page %d • %d listed • %d new • %s\n", Magenta("→"), page, items, fresh, Dim(more))
		return
	}
	p.printStatus(l)
}

// BatchFlushed records rows committed to the output file
func (p *CrawlProgress) BatchFlushed(account string, records int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l := p.line(account)
	l.written += records
	if p.debug {
		fmt.Fprintf(p.w, "%s flushed %d rows\n", Cyan("⇣"), records)
		return
	}
	p.printStatus(l)
}

// AccountFinished prints the account result
func (p *CrawlProgress) AccountFinished(stats crawler.AccountStats, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := stats.Account.Name
	if !p.debug {
		fmt.Fprint(p.w, "\r"+strings.Repeat(" ", 100)+"\r")
	}
	if err != nil {
		fmt.Fprintf(p.w, "%s %s failed after %d pages • %s\n", Red("✗"), name, stats.Pages, Red(err.Error()))
		return
	}
	fmt.Fprintf(p.w, "%s %s • %d written • %d skipped • %d pages • %s\n",
		Green("✓"), name, stats.Written, stats.Skipped, stats.Pages, formatDuration(stats.Duration))
	if stats.Incomplete > 0 {
		fmt.Fprintf(p.w, "  %s %d incomplete rows\n", Dim("•"), stats.Incomplete)
	}
}

// printStatus rewrites the status line for an account
func (p *CrawlProgress) printStatus(l *accountLine) {
	elapsed := p.now().Sub(l.started)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(l.items) / elapsed.Minutes()
	}

	line := fmt.Sprintf("%s • page %d • %d items • %d written • %.1f/min",
		Cyan(l.name), l.page, l.items, l.written, rate)
	if l.errors > 0 {
		line += fmt.Sprintf(" • %s", Red(fmt.Sprintf("%d errors", l.errors)))
	}
	fmt.Fprintf(p.w, "\r%s\r%s", strings.Repeat(" ", 100), line)
}

// Complete prints the totals of a finished run
func (p *CrawlProgress) Complete(summary *metadata.RunSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if summary == nil {
		return
	}
	written, skipped, incomplete := summary.Totals()

	fmt.Fprintf(p.w, "\n%s %d rows from %d accounts in %s\n",
		Green("✓"), written, len(summary.Accounts), formatDuration(time.Duration(summary.Duration)))
	fmt.Fprintf(p.w, "  %s %d already processed • %d incomplete • %d ids in checkpoint\n",
		Dim("•"), skipped, incomplete, summary.Processed)
	if summary.Workbook != "" {
		fmt.Fprintf(p.w, "  %s workbook %s\n", Dim("•"), summary.Workbook)
	}
	if failed := summary.FailedAccounts(); len(failed) > 0 {
		fmt.Fprintf(p.w, "  %s failed: %s\n", Red("✗"), strings.Join(failed, ", "))
	}
	if summary.Cancelled {
		fmt.Fprintf(p.w, "  %s interrupted, rerun to resume\n", Yellow("⚠"))
	}
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

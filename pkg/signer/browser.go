package signer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"notecrawler/pkg/config"
	errs "notecrawler/pkg/errors"
	"notecrawler/pkg/logger"
	"notecrawler/pkg/retry"
)

// signFunction is the platform's client-side signing routine
const signFunction = "window._webmsxyw"

// Cookie is an identity cookie injected into the browser before signing
type Cookie struct {
	Name  string
	Value string
}

// BrowserConfig controls the headless browser session
type BrowserConfig struct {
	Origin        string
	CookieDomain  string
	Cookies       []Cookie
	UserAgent     string
	Attempts      int
	RetryDelay    time.Duration
	Timeout       time.Duration
	SettleDelay   time.Duration
	Headless      bool
	StealthScript string
	ChromePath    string
}

// BrowserConfigFrom builds the browser settings from the loaded configuration
func BrowserConfigFrom(cfg *config.Config) BrowserConfig {
	cookies := []Cookie{
		{Name: "a1", Value: cfg.Platform.A1},
		{Name: "web_session", Value: cfg.Platform.WebSession},
	}
	if cfg.Platform.WebID != "" {
		cookies = append(cookies, Cookie{Name: "webId", Value: cfg.Platform.WebID})
	}
	return BrowserConfig{
		Origin:        cfg.Platform.Origin,
		CookieDomain:  cfg.Platform.CookieDomain,
		Cookies:       cookies,
		UserAgent:     cfg.Platform.UserAgent,
		Attempts:      cfg.Signer.Attempts,
		RetryDelay:    cfg.Signer.RetryDelay,
		Timeout:       cfg.Signer.Timeout,
		SettleDelay:   cfg.Signer.SettleDelay,
		Headless:      cfg.Signer.Headless,
		StealthScript: cfg.Signer.StealthScript,
		ChromePath:    cfg.Signer.ChromePath,
	}
}

// BrowserSigner signs requests by evaluating the platform's signing routine
// in a fresh headless Chrome. Every Sign call launches and tears down its own
// browser; nothing is shared between calls.
type BrowserSigner struct {
	cfg     BrowserConfig
	stealth string
	logger  logger.Logger
	sleep   retry.SleepFunc

	// attempt performs one signing round trip
	attempt func(ctx context.Context, uri string, payload []byte) (Headers, error)
}

// NewBrowserSigner prepares a signer. The stealth script, when configured,
// is read once here.
func NewBrowserSigner(cfg BrowserConfig, log logger.Logger) (*BrowserSigner, error) {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if log == nil {
		log = logger.GetLogger()
	}

	s := &BrowserSigner{
		cfg:    cfg,
		logger: log.WithField("component", "signer"),
	}
	if cfg.StealthScript != "" {
		script, err := os.ReadFile(cfg.StealthScript)
		if err != nil {
			return nil, fmt.Errorf("read stealth script: %w", err)
		}
		s.stealth = string(script)
	}
	s.attempt = s.signInBrowser
	return s, nil
}

// Sign returns the signature headers for uri and payload. Failed attempts
// are retried inside the call; exhaustion yields an error matching
// errors.ErrSigningFailed.
func (s *BrowserSigner) Sign(ctx context.Context, uri string, payload any) (Headers, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Headers{}, errs.Wrap(errs.ErrorTypeSigning, 0, err, "encode payload")
	}

	headers, err := retry.DoWithResult(func() (Headers, error) {
		return s.attempt(ctx, uri, body)
	}, &retry.Config{
		MaxAttempts: s.cfg.Attempts,
		Backoff:     &retry.ConstantBackoff{Delay: s.cfg.RetryDelay},
		RetryIf:     retry.DefaultRetryIf,
		Sleep:       s.sleep,
		Context:     ctx,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			s.logger.WithError(err).WarnWithFields("Signing attempt failed", map[string]interface{}{
				"uri":     uri,
				"attempt": attempt,
			})
		},
	})
	if err != nil {
		return Headers{}, errs.Wrap(errs.ErrorTypeSigning, 0, err, "sign "+uri)
	}
	return headers, nil
}

func (s *BrowserSigner) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", s.cfg.Headless))
	if s.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.cfg.UserAgent))
	}
	if s.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ChromePath))
	}
	return opts
}

// signInBrowser runs one full browser session: launch, stealth script,
// origin, cookies, reload, settle, evaluate.
func (s *BrowserSigner) signInBrowser(ctx context.Context, uri string, payload []byte) (Headers, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, s.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancel := context.WithTimeout(browserCtx, s.cfg.Timeout)
	defer cancel()

	uriJSON, err := json.Marshal(uri)
	if err != nil {
		return Headers{}, err
	}
	expr := fmt.Sprintf("%s(%s, %s)", signFunction, uriJSON, payload)

	var raw []byte
	err = chromedp.Run(runCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if s.stealth == "" {
				return nil
			}
			_, err := page.AddScriptToEvaluateOnNewDocument(s.stealth).Do(ctx)
			return err
		}),
		chromedp.Navigate(s.cfg.Origin),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range s.cfg.Cookies {
				err := network.SetCookie(c.Name, c.Value).
					WithDomain(s.cfg.CookieDomain).
					WithPath("/").
					Do(ctx)
				if err != nil {
					return fmt.Errorf("set cookie %s: %w", c.Name, err)
				}
			}
			return nil
		}),
		chromedp.Reload(),
		chromedp.Sleep(s.cfg.SettleDelay),
		chromedp.Evaluate(expr, &raw),
	)
	if err != nil {
		return Headers{}, fmt.Errorf("browser session: %w", err)
	}

	return parseSignature(raw)
}

// parseSignature reads the {"X-s": ..., "X-t": ...} object returned by the
// signing routine. X-t arrives as a number.
func parseSignature(raw []byte) (Headers, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Headers{}, fmt.Errorf("decode signature: %w", err)
	}

	xs, err := scalar(fields["X-s"])
	if err != nil || xs == "" {
		return Headers{}, fmt.Errorf("signature missing X-s")
	}
	xt, err := scalar(fields["X-t"])
	if err != nil || xt == "" {
		return Headers{}, fmt.Errorf("signature missing X-t")
	}
	return Headers{XS: xs, XT: xt}, nil
}

func scalar(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return strings.TrimSpace(n.String()), nil
}

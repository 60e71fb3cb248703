package xhs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"notecrawler/pkg/config"
	errs "notecrawler/pkg/errors"
	"notecrawler/pkg/logger"
	"notecrawler/pkg/ratelimit"
	"notecrawler/pkg/retry"
	"notecrawler/pkg/signer"
)

// Options configures a Client
type Options struct {
	BaseURL   string
	Origin    string
	Cookie    string
	UserAgent string
	Timeout   time.Duration
	PageSize  int

	// TransientAttempts bounds retries of network and 5xx failures.
	// Rate limiting is never retried here; callers own that policy.
	TransientAttempts int

	Signer     signer.Signer
	Limiter    ratelimit.Limiter
	Logger     logger.Logger
	HTTPClient *http.Client

	// Sleep waits out the backoff between transient retries
	Sleep retry.SleepFunc
}

// Client talks to the platform's signed web API
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	pageSize   int
	attempts   int
	signer     signer.Signer
	limiter    ratelimit.Limiter
	logger     logger.Logger
	sleep      retry.SleepFunc
}

// NewClient creates a new API client
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.Origin == "" {
		opts.Origin = Origin
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.TransientAttempts <= 0 {
		opts.TransientAttempts = 2
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	headers := map[string]string{
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
		"Origin":          opts.Origin,
		"Referer":         opts.Origin + "/",
	}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}
	if opts.Cookie != "" {
		headers["Cookie"] = opts.Cookie
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		headers:    headers,
		pageSize:   opts.PageSize,
		attempts:   opts.TransientAttempts,
		signer:     opts.Signer,
		limiter:    opts.Limiter,
		logger:     opts.Logger.WithField("component", "xhs"),
		sleep:      opts.Sleep,
	}
}

// NewClientFromConfig wires a client from the loaded configuration
func NewClientFromConfig(cfg *config.Config, s signer.Signer, limiter ratelimit.Limiter, log logger.Logger) *Client {
	return NewClient(Options{
		BaseURL:   cfg.Platform.BaseURL,
		Origin:    cfg.Platform.Origin,
		Cookie:    cfg.CookieHeader(),
		UserAgent: cfg.Platform.UserAgent,
		Timeout:   cfg.RateLimit.RequestTimeout,
		PageSize:  cfg.Crawl.PageSize,
		Signer:    s,
		Limiter:   limiter,
		Logger:    log,
	})
}

// UserNotes fetches one listing page of an account. An empty cursor starts
// from the newest note.
func (c *Client) UserNotes(ctx context.Context, userID, cursor string) (*NotesPage, error) {
	uri := UserPostedURI(userID, cursor, c.pageSize)

	var data userPostedData
	if err := c.call(ctx, http.MethodGet, uri, nil, &data); err != nil {
		return nil, err
	}
	return data.page(), nil
}

// NoteDetail fetches the detail card of one note
func (c *Client) NoteDetail(ctx context.Context, noteID, xsecToken string) (*NoteCard, error) {
	body := NewFeedRequest(noteID, xsecToken)

	var data feedData
	if err := c.call(ctx, http.MethodPost, FeedEndpoint, body, &data); err != nil {
		return nil, err
	}
	if len(data.Items) == 0 {
		return nil, errs.New(errs.ErrorTypeNotFound, 0, "note %s has no detail card", noteID)
	}
	card := data.Items[0].NoteCard
	if card.NoteID == "" {
		card.NoteID = data.Items[0].ID
	}
	return &card, nil
}

// call signs, sends and decodes one request, retrying transient failures
func (c *Client) call(ctx context.Context, method, uri string, payload any, target any) error {
	return retry.Do(func() error {
		return c.callOnce(ctx, method, uri, payload, target)
	}, &retry.Config{
		MaxAttempts: c.attempts,
		Backoff:     retry.DefaultExponentialBackoff(),
		RetryIf: func(err error) bool {
			switch errs.TypeOf(err) {
			case errs.ErrorTypeNetwork, errs.ErrorTypeServerError:
				return ctx.Err() == nil
			}
			return false
		},
		Sleep:   c.sleep,
		Context: ctx,
		Logger:  c.logger,
	})
}

func (c *Client) callOnce(ctx context.Context, method, uri string, payload any, target any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return errs.Wrap(errs.ErrorTypeUnknown, 0, err, "encode request body")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+uri, body)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUnknown, 0, err, "create request")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	}

	if c.signer != nil {
		sig, err := c.signer.Sign(ctx, uri, payload)
		if err != nil {
			return err
		}
		sig.Apply(req.Header)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.WithError(err).WarnWithFields("HTTP request failed", map[string]interface{}{
			"method": method,
			"uri":    uri,
		})
		return errs.Wrap(errs.ErrorTypeNetwork, 0, err, "send request")
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   method,
		"uri":      uri,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if err := checkResponseStatus(resp); err != nil {
		return err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeNetwork, resp.StatusCode, err, "read response body")
	}

	return c.decode(raw, uri, target)
}

// checkResponseStatus maps HTTP status codes to typed errors
func checkResponseStatus(resp *http.Response) error {
	switch code := resp.StatusCode; {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests:
		return errs.New(errs.ErrorTypeRateLimit, code, "rate limit exceeded")
	case code == StatusVerifyRequired || code == StatusAccountBlocked:
		return errs.New(errs.ErrorTypeAuth, code, "verification required")
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.New(errs.ErrorTypeAuth, code, "authentication required")
	case code == http.StatusNotFound:
		return errs.New(errs.ErrorTypeNotFound, code, "resource not found")
	case errs.IsRetryableStatusCode(code):
		return errs.New(errs.ErrorTypeServerError, code, "server error")
	case code >= 400:
		return errs.New(errs.ErrorTypeUnknown, code, "unexpected status code: %d", code)
	}
	return nil
}

// decode unwraps the response envelope into target
func (c *Client) decode(raw []byte, uri string, target any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		preview := string(raw)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.WithError(err).WarnWithFields("failed to parse JSON response", map[string]interface{}{
			"uri":          uri,
			"body_preview": preview,
		})
		return errs.Wrap(errs.ErrorTypeParsing, 0, err, "parse response")
	}

	if env.Code == CodeRateLimited {
		return errs.New(errs.ErrorTypeRateLimit, env.Code, "%s", fallback(env.Msg, "too many requests"))
	}
	if !env.Success {
		return errs.New(errs.ErrorTypeUnknown, env.Code, "upstream error: %s", fallback(env.Msg, "request rejected"))
	}
	if target == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return errs.Wrap(errs.ErrorTypeParsing, env.Code, err, fmt.Sprintf("decode %s data", uri))
	}
	return nil
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

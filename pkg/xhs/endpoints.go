package xhs

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// BaseURL is the API host
	BaseURL = "https://edith.xiaohongshu.com"

	// Origin is the web front end the API expects requests from
	Origin = "https://www.xiaohongshu.com"

	// UserPostedEndpoint lists an account's notes page by page
	UserPostedEndpoint = "/api/sns/web/v1/user_posted"

	// FeedEndpoint returns the detail card of one note
	FeedEndpoint = "/api/sns/web/v1/feed"

	// DefaultPageSize is the number of notes requested per listing page
	DefaultPageSize = 30

	// ImageFormats is sent with every listing and detail request
	ImageFormats = "jpg,webp,avif"

	// CodeRateLimited is the body-level code for throttled requests
	CodeRateLimited = 300013

	// StatusVerifyRequired and StatusAccountBlocked are returned when the
	// platform wants a captcha or has flagged the identity
	StatusVerifyRequired = 461
	StatusAccountBlocked = 471
)

// UserPostedURI builds the listing path with its query string. Parameters
// keep a fixed order because the exact string is signed.
func UserPostedURI(userID, cursor string, num int) string {
	if num <= 0 {
		num = DefaultPageSize
	}
	params := []string{
		"num=" + strconv.Itoa(num),
		"cursor=" + url.QueryEscape(cursor),
		"user_id=" + url.QueryEscape(userID),
		"image_formats=" + url.QueryEscape(ImageFormats),
	}
	return UserPostedEndpoint + "?" + strings.Join(params, "&")
}

// FeedRequest is the detail request body
type FeedRequest struct {
	SourceNoteID string            `json:"source_note_id"`
	ImageFormats []string          `json:"image_formats"`
	Extra        map[string]string `json:"extra"`
	XsecSource   string            `json:"xsec_source"`
	XsecToken    string            `json:"xsec_token"`
}

// NewFeedRequest builds the detail request for one note
func NewFeedRequest(noteID, xsecToken string) FeedRequest {
	return FeedRequest{
		SourceNoteID: noteID,
		ImageFormats: strings.Split(ImageFormats, ","),
		Extra:        map[string]string{"need_body_topic": "1"},
		XsecSource:   "pc_feed",
		XsecToken:    xsecToken,
	}
}

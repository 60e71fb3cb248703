// Package normalize turns the platform's display strings into plain values:
// abbreviated counters such as "1.2万" into integers and epoch timestamps
// into local wall-clock strings.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// PublishTimeLayout is the layout written to the publish_time column
const PublishTimeLayout = "2006-01-02 15:04:05"

const (
	tenThousand      = 10_000
	hundredMillion   = 100_000_000
	millisecondDigit = 10
)

// ParseCount converts a display counter to an integer. It strips thousands
// separators and a trailing "+", scales by 10,000 for 万/w/W and by
// 100,000,000 for 亿, then truncates toward zero. Anything it cannot parse
// yields 0.
func ParseCount(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimRight(s, "+")

	scale := 1.0
	switch {
	case strings.ContainsAny(s, "万wW"):
		scale = tenThousand
		s = strings.NewReplacer("万", "", "w", "", "W", "").Replace(s)
	case strings.Contains(s, "亿"):
		scale = hundredMillion
		s = strings.ReplaceAll(s, "亿", "")
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}

	// 0.29 * 10000 is 2899.9999999999995 in binary floating point
	v := math.Round(f*scale*1e6) / 1e6
	if v >= math.MaxInt64 || v <= math.MinInt64 {
		return 0
	}
	return int64(v)
}

// ParseEpoch reads an epoch timestamp in seconds or milliseconds and returns
// it in seconds. Values with more than ten digits are taken as milliseconds.
func ParseEpoch(v string) (int64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}

	digits := strings.TrimLeft(v, "-")
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		n = int64(f)
		digits = strconv.FormatInt(n, 10)
	}
	if n == 0 {
		return 0, false
	}

	if len(digits) > millisecondDigit {
		n /= 1000
	}
	return n, true
}

// FormatPublishTime renders an epoch in seconds or milliseconds in loc.
// An absent or unparsable timestamp gives the empty string.
func FormatPublishTime(raw string, loc *time.Location) string {
	secs, ok := ParseEpoch(raw)
	if !ok {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(secs, 0).In(loc).Format(PublishTimeLayout)
}

// Content flattens a note description to one line
func Content(desc string) string {
	return strings.TrimSpace(strings.ReplaceAll(desc, "\n", " "))
}

// FirstNonEmpty returns the first candidate that is neither empty nor "0".
// Publish time falls back from time to create_time to last_update_time.
func FirstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c != "" && c != "0" {
			return c
		}
	}
	return ""
}

package models

import "strconv"

// AccountTarget is one account whose listing is crawled
type AccountTarget struct {
	Name string `yaml:"name" json:"name"`
	ID   string `yaml:"id" json:"id"`
}

// Cursor is the opaque listing position. An empty token is the start.
type Cursor struct {
	Token   string
	HasMore bool
}

// ItemStub is what a listing page returns for each note
type ItemStub struct {
	ItemID         string `json:"item_id"`
	SecondaryToken string `json:"secondary_token"`
	Type           string `json:"type"`
	Title          string `json:"title"`
}

// ItemRecord is a stub enriched with detail fields. Interaction counts and
// content stay zero when enrichment fails.
type ItemRecord struct {
	ItemStub
	Content      string `json:"content"`
	LikeCount    int64  `json:"like_count"`
	CollectCount int64  `json:"collect_count"`
	ShareCount   int64  `json:"share_count"`
	CommentCount int64  `json:"comment_count"`
	PublishTime  string `json:"publish_time"`

	// Incomplete marks a record whose detail fetch failed. Not persisted.
	Incomplete bool `json:"-"`
}

// NewRecord returns the zero-valued record for a stub
func NewRecord(stub ItemStub) ItemRecord {
	return ItemRecord{ItemStub: stub}
}

// Columns is the fixed output column order
var Columns = []string{
	"item_id",
	"secondary_token",
	"type",
	"title",
	"content",
	"like_count",
	"collect_count",
	"share_count",
	"comment_count",
	"publish_time",
}

// Row renders the record in Columns order
func (r ItemRecord) Row() []string {
	return []string{
		r.ItemID,
		r.SecondaryToken,
		r.Type,
		r.Title,
		r.Content,
		strconv.FormatInt(r.LikeCount, 10),
		strconv.FormatInt(r.CollectCount, 10),
		strconv.FormatInt(r.ShareCount, 10),
		strconv.FormatInt(r.CommentCount, 10),
		r.PublishTime,
	}
}

package xhs

import (
	"bytes"
	"encoding/json"
	"strings"

	"notecrawler/pkg/models"
)

// FlexString decodes a JSON string, number or null into its text form.
// Counters and timestamps arrive as either depending on the endpoint.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(strings.TrimSpace(n.String()))
	return nil
}

// String returns the raw text
func (f FlexString) String() string {
	return string(f)
}

// envelope wraps every API response
type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// userPostedData is the data of a listing response
type userPostedData struct {
	Cursor  string     `json:"cursor"`
	HasMore bool       `json:"has_more"`
	Notes   []noteStub `json:"notes"`
}

type noteStub struct {
	NoteID       string `json:"note_id"`
	XsecToken    string `json:"xsec_token"`
	Type         string `json:"type"`
	DisplayTitle string `json:"display_title"`
}

// feedData is the data of a detail response
type feedData struct {
	Items []struct {
		ID       string   `json:"id"`
		NoteCard NoteCard `json:"note_card"`
	} `json:"items"`
}

// NotesPage is one decoded listing page
type NotesPage struct {
	Stubs   []models.ItemStub
	Cursor  string
	HasMore bool
}

// NoteCard is the detail record of a note
type NoteCard struct {
	NoteID         string       `json:"note_id"`
	Type           string       `json:"type"`
	Title          string       `json:"title"`
	Desc           string       `json:"desc"`
	Time           FlexString   `json:"time"`
	CreateTime     FlexString   `json:"create_time"`
	LastUpdateTime FlexString   `json:"last_update_time"`
	InteractInfo   InteractInfo `json:"interact_info"`
}

// InteractInfo holds the display counters of a note
type InteractInfo struct {
	LikedCount     FlexString `json:"liked_count"`
	CollectedCount FlexString `json:"collected_count"`
	ShareCount     FlexString `json:"share_count"`
	CommentCount   FlexString `json:"comment_count"`
}

func (d userPostedData) page() *NotesPage {
	p := &NotesPage{
		Cursor:  d.Cursor,
		HasMore: d.HasMore,
		Stubs:   make([]models.ItemStub, 0, len(d.Notes)),
	}
	for _, n := range d.Notes {
		if n.NoteID == "" {
			continue
		}
		p.Stubs = append(p.Stubs, models.ItemStub{
			ItemID:         n.NoteID,
			SecondaryToken: n.XsecToken,
			Type:           n.Type,
			Title:          n.DisplayTitle,
		})
	}
	return p
}

package chat

import (
	"strings"
	"time"
)

// Record is a message as stored by the backend and returned by the history
// endpoint. Some deployments name the key "_id", others "id".
type Record struct {
	MongoID     string `json:"_id,omitempty"`
	ID          string `json:"id,omitempty"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
	Type        Type   `json:"type"`
	FileURL     string `json:"fileUrl"`
	Timestamp   string `json:"timestamp"`
}

func (r Record) Identifier() string {
	if r.MongoID != "" {
		return r.MongoID
	}
	return r.ID
}

// Message maps the stored record into the transcript shape. Records written
// before the type column existed come back untyped and are treated as text.
func (r Record) Message(loc *time.Location) Message {
	typ := r.Type
	if typ == "" {
		typ = TypeText
	}
	return Message{
		ID:      r.Identifier(),
		From:    r.SenderID,
		To:      r.RecipientID,
		Text:    r.Text,
		Type:    typ,
		FileURL: r.FileURL,
		Time:    recordTime(r.Timestamp, loc),
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func recordTime(ts string, loc *time.Location) string {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return ""
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return FormatTime(t, loc)
		}
	}
	return ""
}

// PersistRequest is the body of POST /messages.
type PersistRequest struct {
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
	Type        Type   `json:"type"`
	FileURL     string `json:"fileUrl"`
}

func NewPersistRequest(m Message) PersistRequest {
	return PersistRequest{
		SenderID:    m.From,
		RecipientID: m.To,
		Text:        m.Text,
		Type:        m.Type,
		FileURL:     m.FileURL,
	}
}

// Contact is a roster entry as delivered by the usersList event.
type Contact struct {
	MongoID  string `json:"_id,omitempty"`
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

func (c Contact) Identifier() string {
	if c.ID != "" {
		return c.ID
	}
	return c.MongoID
}

func (c Contact) DisplayName() string {
	switch {
	case c.Username != "":
		return c.Username
	case c.Name != "":
		return c.Name
	default:
		return c.Identifier()
	}
}

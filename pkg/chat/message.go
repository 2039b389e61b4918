// Package chat holds the data model shared by the synchronizer, the
// realtime channel and the REST client.
package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Type string

const (
	TypeText  Type = "text"
	TypeImage Type = "image"
	TypeFile  Type = "file"
	TypeAudio Type = "audio"
)

func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeFile, TypeAudio:
		return true
	}
	return false
}

// DisplayTimeLayout is a 2-digit 12-hour clock, e.g. "09:05 PM".
const DisplayTimeLayout = "03:04 PM"

// Message is one entry of a conversation transcript and the payload of the
// sendMessage / receiveMessage realtime events.
type Message struct {
	ID      string `json:"id,omitempty"` // empty until the server has stored it
	From    string `json:"from"`
	To      string `json:"to"`
	Text    string `json:"text"`
	Type    Type   `json:"type"`
	FileURL string `json:"fileUrl,omitempty"`
	Time    string `json:"time"`
}

// Key is the duplicate-suppression tuple compared against the tail of the
// transcript when a realtime event arrives.
type Key struct {
	From string
	Text string
	Time string
}

func (m Message) Key() Key {
	return Key{From: m.From, Text: m.Text, Time: m.Time}
}

// Involves reports whether m travels between a and b, in either direction.
func (m Message) Involves(a, b string) bool {
	return (m.From == a && m.To == b) || (m.From == b && m.To == a)
}

func (m Message) Validate() error {
	if m.From == "" || m.To == "" {
		return errors.New("message needs both sender and recipient")
	}
	if !m.Type.Valid() {
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	if m.Type == TypeText {
		if strings.TrimSpace(m.Text) == "" {
			return errors.New("text message is empty")
		}
		if m.FileURL != "" {
			return errors.New("text message must not carry a file URL")
		}
		return nil
	}
	if m.FileURL == "" {
		return fmt.Errorf("%s message needs a file URL", m.Type)
	}
	return nil
}

// FormatTime renders t the way the transcript displays message times.
func FormatTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DisplayTimeLayout)
}

// Selection is the (self, peer) pair whose transcript is live.
type Selection struct {
	Self string
	Peer string
}

func (s Selection) IsZero() bool {
	return s.Self == "" && s.Peer == ""
}

func (s Selection) String() string {
	return s.Self + "<->" + s.Peer
}

// GroupPrefix marks a group conversation id. Group chats are not supported.
const GroupPrefix = "group:"

func IsGroupID(id string) bool {
	return strings.HasPrefix(id, GroupPrefix)
}

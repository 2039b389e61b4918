package bus

import (
	"time"

	"github.com/tinyland-inc/picochat/pkg/chat"
)

type EventKind string

const (
	KindMessage  EventKind = "message"
	KindContacts EventKind = "contacts"
)

// Event is one inbound realtime event waiting for the session loop.
type Event struct {
	Kind       EventKind      `json:"kind"`
	Message    chat.Message   `json:"message,omitempty"`
	Contacts   []chat.Contact `json:"contacts,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

func MessageEvent(msg chat.Message) Event {
	return Event{Kind: KindMessage, Message: msg, ReceivedAt: time.Now()}
}

func ContactsEvent(contacts []chat.Contact) Event {
	return Event{Kind: KindContacts, Contacts: contacts, ReceivedAt: time.Now()}
}

package realtime

import (
	"encoding/json"
	"fmt"
)

// Wire event names shared with the chat server.
const (
	EventIdentify       = "identify"
	EventSendMessage    = "sendMessage"
	EventReceiveMessage = "receiveMessage"
	EventGetUsers       = "getUsers"
	EventUsersList      = "usersList"
)

// Envelope is the frame exchanged over the socket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

type getUsersPayload struct {
	ExcludeID string `json:"excludeId"`
}

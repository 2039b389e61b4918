package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"text", Message{From: "a", To: "b", Text: "hi", Type: TypeText}, false},
		{"blank text", Message{From: "a", To: "b", Text: "  ", Type: TypeText}, true},
		{"text with file", Message{From: "a", To: "b", Text: "hi", Type: TypeText, FileURL: "/x"}, true},
		{"image", Message{From: "a", To: "b", Type: TypeImage, FileURL: "/uploads/a.png"}, false},
		{"audio without url", Message{From: "a", To: "b", Type: TypeAudio}, true},
		{"missing peer", Message{From: "a", Text: "hi", Type: TypeText}, true},
		{"bad type", Message{From: "a", To: "b", Text: "hi", Type: "video"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMessage_Involves(t *testing.T) {
	m := Message{From: "u1", To: "u2"}
	assert.True(t, m.Involves("u1", "u2"))
	assert.True(t, m.Involves("u2", "u1"))
	assert.False(t, m.Involves("u1", "u3"))
}

func TestMessage_JSONShape(t *testing.T) {
	m := Message{From: "u1", To: "u2", Text: "hello", Type: TypeText, Time: "10:00 AM"}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"u1","to":"u2","text":"hello","type":"text","time":"10:00 AM"}`, string(data))
}

func TestFormatTime(t *testing.T) {
	loc := kolkata(t)
	ts := time.Date(2025, 3, 1, 4, 5, 0, 0, time.UTC)
	assert.Equal(t, "09:35 AM", FormatTime(ts, loc))
}

func TestRecord_Message(t *testing.T) {
	loc := kolkata(t)
	var rec Record
	err := json.Unmarshal([]byte(`{
		"_id": "66a1",
		"sender_id": "u2",
		"recipient_id": "u1",
		"text": "yo",
		"type": "text",
		"fileUrl": "",
		"timestamp": "2025-03-01T16:30:00.000Z"
	}`), &rec)
	require.NoError(t, err)

	msg := rec.Message(loc)
	assert.Equal(t, Message{ID: "66a1", From: "u2", To: "u1", Text: "yo", Type: TypeText, Time: "10:00 PM"}, msg)
}

func TestRecord_MessageDefaults(t *testing.T) {
	msg := Record{ID: "7", SenderID: "a", RecipientID: "b", Text: "x", Timestamp: "not a time"}.Message(time.UTC)
	assert.Equal(t, TypeText, msg.Type)
	assert.Equal(t, "", msg.Time)
	assert.Equal(t, "7", msg.ID)
}

func TestNewPersistRequest(t *testing.T) {
	req := NewPersistRequest(Message{From: "u1", To: "u2", Type: TypeImage, FileURL: "/uploads/p.png", Time: "x"})
	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"sender_id":"u1","recipient_id":"u2","text":"","type":"image","fileUrl":"/uploads/p.png"}`,
		string(data))
}

func TestContact_DisplayName(t *testing.T) {
	assert.Equal(t, "neo", Contact{ID: "1", Username: "neo", Name: "Thomas"}.DisplayName())
	assert.Equal(t, "Thomas", Contact{ID: "1", Name: "Thomas"}.DisplayName())
	assert.Equal(t, "abc", Contact{MongoID: "abc"}.DisplayName())
}

func TestIsGroupID(t *testing.T) {
	assert.True(t, IsGroupID("group:devs"))
	assert.False(t, IsGroupID("u1"))
}

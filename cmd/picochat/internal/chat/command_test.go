package chat

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/picochat/pkg/bus"
	chatpkg "github.com/tinyland-inc/picochat/pkg/chat"
	"github.com/tinyland-inc/picochat/pkg/config"
	"github.com/tinyland-inc/picochat/pkg/session"
)

func TestNewChatCommand(t *testing.T) {
	cmd := NewChatCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "chat", cmd.Use)
	assert.True(t, cmd.HasExample())
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Flags().Lookup("as"))
	assert.NotNil(t, cmd.Flags().Lookup("peer"))
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
}

func TestSplitCommand(t *testing.T) {
	name, arg := splitCommand("  /FILE  ./a.png nice view ")
	assert.Equal(t, "/file", name)
	assert.Equal(t, "./a.png nice view", arg)

	name, arg = splitCommand("/next")
	assert.Equal(t, "/next", name)
	assert.Empty(t, arg)
}

type memStore struct {
	mu        sync.Mutex
	history   map[string][]chatpkg.Record
	persisted []chatpkg.PersistRequest
	deleted   int
}

func (m *memStore) History(_ context.Context, _, peer string) ([]chatpkg.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history[peer], nil
}

func (m *memStore) Persist(_ context.Context, req chatpkg.PersistRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persisted = append(m.persisted, req)
	return nil
}

func (m *memStore) DeleteHistory(context.Context, string, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted++
	return nil
}

type stubChannel struct{}

func (stubChannel) IsRunning() bool { return true }
func (stubChannel) Emit(context.Context, chatpkg.Message) error { return nil }
func (stubChannel) RequestContacts(context.Context, string) error { return nil }

type stubUploader struct{}

func (stubUploader) Upload(_ context.Context, name string, _ io.Reader) (string, error) {
	return "/uploads/" + name, nil
}

// syncBuffer guards writes coming from the session loop and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Take returns and resets what was written so far.
func (b *syncBuffer) Take() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	b.buf.Reset()
	return s
}

func newTestREPL(t *testing.T) (*repl, *session.Session, *syncBuffer, *memStore) {
	t.Helper()
	out := &syncBuffer{}
	cfg := config.DefaultConfig()
	cfg.Display.TimeZone = "UTC"
	store := &memStore{history: map[string][]chatpkg.Record{
		"u2": {
			{ID: "1", SenderID: "u2", RecipientID: "u1", Text: "lunch today?", Type: chatpkg.TypeText, Timestamp: "2025-01-01T04:30:00Z"},
			{ID: "2", SenderID: "u1", RecipientID: "u2", Text: "sure", Type: chatpkg.TypeText, Timestamp: "2025-01-01T04:31:00Z"},
		},
	}}

	r := newREPL(out, cfg)
	s := session.New("u1", bus.NewMessageBus(), stubChannel{}, store, stubUploader{},
		session.WithNotifier(r),
		session.WithEventHook(r.onEvent),
		session.WithScroll(r.scrollTo),
		session.WithLocation(time.UTC),
	)
	r.attach(s)
	s.Handle(bus.ContactsEvent([]chatpkg.Contact{
		{ID: "u1", Username: "neo"},
		{ID: "u2", Username: "trinity"},
		{ID: "u3", Username: "morpheus"},
	}))
	return r, s, out, store
}

func TestREPL_OpenAndSend(t *testing.T) {
	r, s, out, store := newTestREPL(t)
	ctx := context.Background()

	assert.False(t, r.exec(ctx, "/contacts"))
	listed := out.Take()
	assert.Contains(t, listed, "trinity")
	assert.Contains(t, listed, "morpheus")
	assert.NotContains(t, listed, "neo")

	r.exec(ctx, "/open trinity")
	opened := out.Take()
	assert.Contains(t, opened, "Conversation with trinity")
	assert.Contains(t, opened, "[04:30 AM] trinity: lunch today?")
	assert.Contains(t, opened, "[04:31 AM] me: sure")
	assert.Equal(t, "u2", s.Peer())

	r.exec(ctx, "on my way")
	assert.Contains(t, out.Take(), "me: on my way")

	s.Synchronizer().Wait()
	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.persisted, 1)
	assert.Equal(t, "on my way", store.persisted[0].Text)
}

func TestREPL_SendWithoutConversation(t *testing.T) {
	r, _, out, _ := newTestREPL(t)
	r.exec(context.Background(), "hello?")
	assert.Contains(t, out.Take(), "Not sent:")
}

func TestREPL_IncomingMessages(t *testing.T) {
	r, s, out, _ := newTestREPL(t)
	r.exec(context.Background(), "/open u2")
	out.Take()

	s.Handle(bus.MessageEvent(chatpkg.Message{From: "u2", To: "u1", Text: "ping", Type: chatpkg.TypeText, Time: "09:00 AM"}))
	assert.Equal(t, "[09:00 AM] trinity: ping\n", out.Take())

	s.Handle(bus.MessageEvent(chatpkg.Message{From: "u3", To: "u1", Text: "psst", Type: chatpkg.TypeText, Time: "09:01 AM"}))
	assert.Equal(t, "* new message from morpheus\n", out.Take())
}

func TestREPL_Search(t *testing.T) {
	r, _, out, _ := newTestREPL(t)
	ctx := context.Background()
	r.exec(ctx, "/open u2")
	r.exec(ctx, "another LUNCH idea")
	out.Take()

	r.exec(ctx, "/search lunch")
	got := out.Take()
	assert.Contains(t, got, "0  [04:30 AM] trinity: [lunch] today?")
	assert.Contains(t, got, "1/2 matches for \"lunch\"")

	r.exec(ctx, "/next")
	got = out.Take()
	assert.Contains(t, got, "me: another [LUNCH] idea")
	assert.Contains(t, got, "2/2 matches")

	r.exec(ctx, "/next")
	assert.Contains(t, out.Take(), "1/2 matches")

	r.exec(ctx, "/search")
	assert.Contains(t, out.Take(), "Search cleared.")
	r.exec(ctx, "/prev")
	assert.Contains(t, out.Take(), "No matches.")
}

func TestREPL_DeleteHidesUntilNewMessage(t *testing.T) {
	r, s, out, store := newTestREPL(t)
	ctx := context.Background()
	r.exec(ctx, "/open u2")
	out.Take()

	r.exec(ctx, "/delete")
	assert.Contains(t, out.Take(), "Conversation with trinity deleted.")
	assert.Equal(t, "", s.Peer())
	assert.Equal(t, 1, store.deleted)

	r.exec(ctx, "/contacts")
	assert.NotContains(t, out.Take(), "trinity")
	r.exec(ctx, "/hidden")
	assert.Contains(t, out.Take(), "trinity")

	s.Handle(bus.MessageEvent(chatpkg.Message{From: "u2", To: "u1", Text: "hey", Type: chatpkg.TypeText, Time: "10:00 AM"}))
	assert.Contains(t, out.Take(), "* new message from trinity")
	r.exec(ctx, "/contacts")
	assert.Contains(t, out.Take(), "trinity")
}

func TestREPL_Clear(t *testing.T) {
	r, s, out, store := newTestREPL(t)
	ctx := context.Background()
	r.exec(ctx, "/open u2")
	out.Take()

	r.exec(ctx, "/clear")
	assert.Contains(t, out.Take(), "Conversation cleared.")
	assert.Empty(t, s.Messages())
	assert.Equal(t, "u2", s.Peer())
	assert.Equal(t, 1, store.deleted)

	r.exec(ctx, "/history")
	assert.Contains(t, out.Take(), "No messages yet.")
}

func TestREPL_File(t *testing.T) {
	r, _, out, _ := newTestREPL(t)
	ctx := context.Background()
	r.exec(ctx, "/open u2")
	out.Take()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("meeting notes"), 0o600))

	r.exec(ctx, "/file "+path+" for tomorrow")
	assert.Contains(t, out.Take(), "me: [file] /uploads/notes.txt for tomorrow")

	r.exec(ctx, "/file")
	assert.Contains(t, out.Take(), "Usage: /file")
}

func TestREPL_Photo(t *testing.T) {
	r, _, out, _ := newTestREPL(t)
	ctx := context.Background()
	r.exec(ctx, "/open u2")
	out.Take()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	path := filepath.Join(t.TempDir(), "still.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	r.exec(ctx, "/photo "+path)
	got := out.Take()
	assert.Contains(t, got, "me: [image] /uploads/camera_capture_")
	assert.Contains(t, got, ".jpg")
}

func TestREPL_Record(t *testing.T) {
	r, s, out, _ := newTestREPL(t)
	ctx := context.Background()
	r.exec(ctx, "/open u2")
	out.Take()

	path := filepath.Join(t.TempDir(), "voice.webm")
	require.NoError(t, os.WriteFile(path, []byte("\x1a\x45\xdf\xa3voice"), 0o600))

	r.exec(ctx, "/record "+path)
	assert.Contains(t, out.Take(), "Recording...")
	r.exec(ctx, "/record")
	assert.Contains(t, out.Take(), "me: [voice message]")

	msgs := s.Messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, chatpkg.TypeAudio, last.Type)
	assert.True(t, strings.HasPrefix(last.FileURL, "data:audio/webm;base64,"))

	r.exec(ctx, "/record "+path)
	out.Take()
	r.exec(ctx, "/record cancel")
	assert.Contains(t, out.Take(), "Recording discarded.")
	r.exec(ctx, "/record cancel")
	assert.Contains(t, out.Take(), "Not recording.")
}

func TestREPL_MiscCommands(t *testing.T) {
	r, _, out, _ := newTestREPL(t)
	ctx := context.Background()

	r.exec(ctx, "/help")
	assert.Contains(t, out.Take(), "Commands:")

	r.exec(ctx, "/settings")
	got := out.Take()
	assert.Contains(t, got, "theme: light")
	assert.Contains(t, got, "font size: medium (16px)")

	r.exec(ctx, "/bogus")
	assert.Contains(t, out.Take(), "Unknown command /bogus")

	r.exec(ctx, "/history")
	assert.Contains(t, out.Take(), "No conversation open.")

	assert.True(t, r.exec(ctx, "/quit"))
}

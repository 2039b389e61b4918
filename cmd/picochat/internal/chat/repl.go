package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tinyland-inc/picochat/cmd/picochat/internal"
	"github.com/tinyland-inc/picochat/pkg/bus"
	chatpkg "github.com/tinyland-inc/picochat/pkg/chat"
	"github.com/tinyland-inc/picochat/pkg/config"
	"github.com/tinyland-inc/picochat/pkg/conversation"
	"github.com/tinyland-inc/picochat/pkg/media"
	"github.com/tinyland-inc/picochat/pkg/search"
	"github.com/tinyland-inc/picochat/pkg/session"
)

const helpText = `Commands:
  /contacts [query]       list contacts, optionally filtered
  /refresh                ask the server for the contact list again
  /open <contact>         open a conversation by id or name
  /close                  close the open conversation
  /history                print the open conversation
  /search <query>         find messages containing query
  /next, /prev            move between search matches
  /file <path> [caption]  send a file or image
  /photo <path>           capture a still from an image source and send it
  /record <path>          start recording from an audio source; again to send
  /record cancel          discard the current recording
  /clear                  delete the conversation history on the server
  /delete                 clear, hide the contact and close the conversation
  /hidden                 list hidden contacts
  /settings               show display settings
  /help                   show this help
  /quit                   leave
Anything else is sent as a text message.`

// repl interprets input lines against a session and prints what happens.
type repl struct {
	out io.Writer
	cfg *config.Config

	sess atomic.Pointer[session.Session]

	mu       sync.Mutex
	recorder *media.Recorder
}

func newREPL(out io.Writer, cfg *config.Config) *repl {
	return &repl{out: out, cfg: cfg}
}

func (r *repl) attach(s *session.Session) {
	r.sess.Store(s)
}

// Notify prints a failure notice.
func (r *repl) Notify(n conversation.Notice) {
	if n.Err != nil {
		fmt.Fprintf(r.out, "! %s: %v\n", n.Text, n.Err)
		return
	}
	fmt.Fprintf(r.out, "! %s\n", n.Text)
}

func (r *repl) onEvent(ev bus.Event, outcome conversation.Outcome) {
	if ev.Kind != bus.KindMessage {
		return
	}
	s := r.sess.Load()
	if s == nil {
		return
	}
	switch outcome {
	case conversation.Appended:
		fmt.Fprintln(r.out, r.format(s, ev.Message))
	case conversation.Ignored:
		if ev.Message.To == s.Self() && ev.Message.From != s.Peer() {
			fmt.Fprintf(r.out, "* new message from %s\n", r.name(s, ev.Message.From))
		}
	}
}

func (r *repl) scrollTo(position int) {
	s := r.sess.Load()
	if s == nil {
		return
	}
	msgs := s.Messages()
	if position < 0 || position >= len(msgs) {
		return
	}
	fmt.Fprintf(r.out, "%4d  %s\n", position, r.highlight(s, msgs[position]))
}

func (r *repl) name(s *session.Session, id string) string {
	if c, ok := s.FindContact(id); ok {
		return c.DisplayName()
	}
	return id
}

func (r *repl) format(s *session.Session, msg chatpkg.Message) string {
	return internal.FormatMessage(msg, s.Self(), func(id string) string { return r.name(s, id) })
}

// highlight wraps query matches in the message text with brackets.
func (r *repl) highlight(s *session.Session, msg chatpkg.Message) string {
	query := s.Search().Query()
	if query == "" || msg.Type != chatpkg.TypeText {
		return r.format(s, msg)
	}
	var b strings.Builder
	for _, seg := range search.Highlight(msg.Text, query) {
		if seg.Match {
			b.WriteString("[" + seg.Text + "]")
		} else {
			b.WriteString(seg.Text)
		}
	}
	msg.Text = b.String()
	return r.format(s, msg)
}

// exec runs one input line and reports whether the user asked to quit.
func (r *repl) exec(ctx context.Context, line string) bool {
	s := r.sess.Load()
	if s == nil {
		return false
	}
	if strings.TrimSpace(line) == "" {
		return false
	}
	if !strings.HasPrefix(strings.TrimSpace(line), "/") {
		r.report(s.SendText(ctx, strings.TrimSpace(line)))
		return false
	}

	name, arg := splitCommand(line)
	switch name {
	case "/quit", "/exit":
		r.cancelRecording()
		return true
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/contacts":
		r.listContacts(s, arg)
	case "/refresh":
		r.fail(s.RefreshContacts(ctx))
	case "/open":
		r.open(ctx, s, arg)
	case "/close":
		s.Close()
		s.Search().SetQuery("")
		fmt.Fprintln(r.out, "Conversation closed.")
	case "/history":
		r.printHistory(s)
	case "/search":
		s.Search().SetQuery(arg)
		r.searchStatus(s)
	case "/next":
		r.step(s, true)
	case "/prev":
		r.step(s, false)
	case "/file":
		r.sendFile(ctx, s, arg)
	case "/photo":
		r.sendPhoto(ctx, s, arg)
	case "/record":
		r.record(ctx, s, arg)
	case "/clear":
		if err := s.Clear(ctx); err != nil {
			r.fail(err)
			return false
		}
		fmt.Fprintln(r.out, "Conversation cleared.")
	case "/delete":
		peer := s.Peer()
		if err := s.Delete(ctx); err != nil {
			r.fail(err)
			return false
		}
		fmt.Fprintf(r.out, "Conversation with %s deleted.\n", r.name(s, peer))
	case "/hidden":
		hidden := s.Gate().Hidden()
		if len(hidden) == 0 {
			fmt.Fprintln(r.out, "No hidden contacts.")
			return false
		}
		for _, id := range hidden {
			fmt.Fprintf(r.out, "  %s\n", r.name(s, id))
		}
	case "/settings":
		d := r.cfg.Display
		theme := "dark"
		if d.IsLight() {
			theme = "light"
		}
		fmt.Fprintf(r.out, "theme: %s\nfont size: %s (%s)\ntime zone: %s\n", theme, d.FontSize, d.FontSizePx(), d.TimeZone)
	default:
		fmt.Fprintf(r.out, "Unknown command %s. Type /help.\n", name)
	}
	return false
}

func (r *repl) report(msg chatpkg.Message, err error) {
	if err != nil {
		r.fail(err)
		return
	}
	fmt.Fprintln(r.out, r.format(r.sess.Load(), msg))
}

func (r *repl) fail(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, conversation.ErrSkipped) {
		fmt.Fprintf(r.out, "Not sent: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "Error: %v\n", err)
}

func (r *repl) listContacts(s *session.Session, query string) {
	contacts := s.Contacts(query)
	if len(contacts) == 0 {
		fmt.Fprintln(r.out, "No contacts.")
		return
	}
	peer := s.Peer()
	for _, c := range contacts {
		mark := " "
		if c.Identifier() == peer {
			mark = "*"
		}
		fmt.Fprintf(r.out, "%s %-20s %s\n", mark, c.DisplayName(), c.Identifier())
	}
}

func (r *repl) open(ctx context.Context, s *session.Session, ref string) {
	if ref == "" {
		fmt.Fprintln(r.out, "Usage: /open <contact>")
		return
	}
	peer := ref
	if c, ok := s.FindContact(ref); ok {
		peer = c.Identifier()
	}
	s.Search().SetQuery("")
	if err := s.Open(ctx, peer); err != nil {
		r.fail(err)
		return
	}
	fmt.Fprintf(r.out, "Conversation with %s\n", r.name(s, peer))
	r.printHistory(s)
}

func (r *repl) printHistory(s *session.Session) {
	if s.Peer() == "" {
		fmt.Fprintln(r.out, "No conversation open.")
		return
	}
	msgs := s.Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(r.out, "No messages yet.")
		return
	}
	for _, m := range msgs {
		fmt.Fprintln(r.out, r.highlight(s, m))
	}
}

func (r *repl) searchStatus(s *session.Session) {
	ix := s.Search()
	if ix.Query() == "" {
		fmt.Fprintln(r.out, "Search cleared.")
		return
	}
	n := len(ix.Matches())
	if n == 0 {
		fmt.Fprintf(r.out, "No matches for %q.\n", ix.Query())
		return
	}
	fmt.Fprintf(r.out, "%d/%d matches for %q\n", ix.Cursor()+1, n, ix.Query())
}

func (r *repl) step(s *session.Session, forward bool) {
	ix := s.Search()
	var ok bool
	if forward {
		_, ok = ix.Next()
	} else {
		_, ok = ix.Previous()
	}
	if !ok {
		fmt.Fprintln(r.out, "No matches.")
		return
	}
	r.searchStatus(s)
}

func (r *repl) sendFile(ctx context.Context, s *session.Session, arg string) {
	path, caption, _ := strings.Cut(arg, " ")
	if path == "" {
		fmt.Fprintln(r.out, "Usage: /file <path> [caption]")
		return
	}
	blob, err := media.LoadFile(path, r.cfg.Media.MaxUploadBytes)
	if err != nil {
		r.fail(err)
		return
	}
	r.report(s.SendFile(ctx, blob, strings.TrimSpace(caption)))
}

func (r *repl) sendPhoto(ctx context.Context, s *session.Session, path string) {
	if path == "" {
		fmt.Fprintln(r.out, "Usage: /photo <path>")
		return
	}
	cam, err := media.OpenCamera(ctx, media.ImageCamera{Path: path},
		media.WithMaxWidth(r.cfg.Media.CaptureMaxWidth),
		media.WithQuality(r.cfg.Media.CaptureQuality),
	)
	if err != nil {
		r.fail(err)
		return
	}
	blob, err := cam.Capture()
	if err != nil {
		r.fail(err)
		return
	}
	r.report(s.SendPhoto(ctx, blob))
}

func (r *repl) record(ctx context.Context, s *session.Session, arg string) {
	r.mu.Lock()
	rec := r.recorder
	r.mu.Unlock()

	if arg == "cancel" {
		if !r.cancelRecording() {
			fmt.Fprintln(r.out, "Not recording.")
			return
		}
		fmt.Fprintln(r.out, "Recording discarded.")
		return
	}

	if rec == nil || rec.State() == media.Idle {
		if arg == "" {
			fmt.Fprintln(r.out, "Usage: /record <path>")
			return
		}
		rec = media.NewRecorder(media.FileMicrophone{Path: arg},
			media.WithAudioMIME(r.cfg.Media.AudioMIME),
			media.WithChunkSize(r.cfg.Media.AudioChunkSize),
		)
		if err := rec.Start(ctx); err != nil {
			r.fail(err)
			return
		}
		r.mu.Lock()
		r.recorder = rec
		r.mu.Unlock()
		fmt.Fprintln(r.out, "Recording... /record to send, /record cancel to discard.")
		return
	}

	done, err := rec.Stop()
	if err != nil {
		r.fail(err)
		return
	}
	blob, ok := <-done
	if !ok {
		fmt.Fprintln(r.out, "Recording was empty.")
		return
	}
	r.report(s.SendAudio(ctx, blob))
}

func (r *repl) cancelRecording() bool {
	r.mu.Lock()
	rec := r.recorder
	r.recorder = nil
	r.mu.Unlock()
	if rec == nil || rec.State() != media.Recording {
		return false
	}
	rec.Cancel()
	return true
}

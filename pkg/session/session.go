// Package session wires one logged-in user's realtime channel, message
// bus, synchronizer, roster gate and search indexer together. Inbound
// events are applied on a single goroutine by Run.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tinyland-inc/picochat/pkg/bus"
	"github.com/tinyland-inc/picochat/pkg/chat"
	"github.com/tinyland-inc/picochat/pkg/conversation"
	"github.com/tinyland-inc/picochat/pkg/logger"
	"github.com/tinyland-inc/picochat/pkg/media"
	"github.com/tinyland-inc/picochat/pkg/metrics"
	"github.com/tinyland-inc/picochat/pkg/roster"
	"github.com/tinyland-inc/picochat/pkg/search"
)

// Channel is the realtime side the session needs.
type Channel interface {
	conversation.Emitter
	RequestContacts(ctx context.Context, excludeID string) error
}

type Option func(*Session)

func WithNotifier(n conversation.Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

func WithScroll(fn search.ScrollFunc) Option {
	return func(s *Session) { s.scroll = fn }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Session) { s.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithMaxUpload rejects attachments larger than n bytes. Zero disables the check.
func WithMaxUpload(n int64) Option {
	return func(s *Session) { s.maxUpload = n }
}

// WithEventHook observes every inbound event after it was applied.
func WithEventHook(fn func(bus.Event, conversation.Outcome)) Option {
	return func(s *Session) { s.onEvent = fn }
}

type Session struct {
	self     string
	bus      *bus.MessageBus
	channel  Channel
	uploader conversation.Uploader

	notifier  conversation.Notifier
	scroll    search.ScrollFunc
	loc       *time.Location
	now       func() time.Time
	metrics   *metrics.Metrics
	maxUpload int64
	onEvent   func(bus.Event, conversation.Outcome)

	sync  *conversation.Synchronizer
	gate  *roster.Gate
	index *search.Indexer

	mu       sync.RWMutex
	contacts []chat.Contact
}

func New(self string, mb *bus.MessageBus, ch Channel, store conversation.Store, up conversation.Uploader, opts ...Option) *Session {
	s := &Session{
		self:     self,
		bus:      mb,
		channel:  ch,
		uploader: up,
		loc:      time.Local,
		now:      time.Now,
		gate:     roster.NewGate(),
	}
	for _, opt := range opts {
		opt(s)
	}

	syncOpts := []conversation.Option{
		conversation.WithRosterGate(s.gate),
		conversation.WithLocation(s.loc),
		conversation.WithClock(s.now),
		conversation.WithMetrics(s.metrics),
	}
	if s.notifier != nil {
		syncOpts = append(syncOpts, conversation.WithNotifier(s.notifier))
	}
	s.sync = conversation.New(store, ch, syncOpts...)
	s.index = search.NewIndexer(s.scroll)
	s.sync.OnChange(s.index.SetMessages)
	return s
}

func (s *Session) Self() string { return s.self }
func (s *Session) Gate() *roster.Gate { return s.gate }
func (s *Session) Search() *search.Indexer { return s.index }
func (s *Session) Synchronizer() *conversation.Synchronizer { return s.sync }
func (s *Session) Messages() []chat.Message { return s.sync.Messages() }

func (s *Session) Peer() string {
	return s.sync.Selection().Peer
}

// Run applies inbound events until ctx ends or the bus closes.
func (s *Session) Run(ctx context.Context) error {
	for {
		ev, ok := s.bus.ConsumeInbound(ctx)
		if !ok {
			s.sync.Wait()
			if err := ctx.Err(); err != nil {
				return err
			}
			return nil
		}
		s.Handle(ev)
	}
}

// Handle applies one inbound event.
func (s *Session) Handle(ev bus.Event) {
	outcome := conversation.Ignored
	switch ev.Kind {
	case bus.KindMessage:
		if s.gate.Reveal(ev.Message.From) {
			logger.InfoCF("session", "Conversation restored by new message", map[string]any{
				"from": ev.Message.From,
			})
		}
		outcome = s.sync.Receive(ev.Message)
	case bus.KindContacts:
		contacts := make([]chat.Contact, 0, len(ev.Contacts))
		for _, c := range ev.Contacts {
			if c.Identifier() == "" || c.Identifier() == s.self {
				continue
			}
			contacts = append(contacts, c)
		}
		s.mu.Lock()
		s.contacts = contacts
		s.mu.Unlock()
		logger.DebugCF("session", "Roster updated", map[string]any{"count": len(contacts)})
	default:
		logger.DebugCF("session", "Unknown event kind", map[string]any{"kind": string(ev.Kind)})
	}
	if s.onEvent != nil {
		s.onEvent(ev, outcome)
	}
}

// Contacts returns the roster without hidden contacts, filtered by query.
func (s *Session) Contacts(query string) []chat.Contact {
	s.mu.RLock()
	contacts := s.contacts
	s.mu.RUnlock()
	return roster.Filter(contacts, s.gate, query)
}

// FindContact resolves a contact by id or display name.
func (s *Session) FindContact(ref string) (chat.Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.contacts {
		if c.Identifier() == ref || c.DisplayName() == ref {
			return c, true
		}
	}
	return chat.Contact{}, false
}

func (s *Session) RefreshContacts(ctx context.Context) error {
	return s.channel.RequestContacts(ctx, s.self)
}

func (s *Session) Open(ctx context.Context, peer string) error {
	return s.sync.Select(ctx, s.self, peer)
}

func (s *Session) Close() {
	s.sync.Deselect()
}

func (s *Session) SendText(ctx context.Context, text string) (chat.Message, error) {
	return s.sync.SendText(ctx, s.self, s.Peer(), text)
}

// SendFile uploads blob and sends it as an image or a file depending on its content.
func (s *Session) SendFile(ctx context.Context, blob media.Blob, caption string) (chat.Message, error) {
	if err := s.checkSize(blob); err != nil {
		return chat.Message{}, err
	}
	return s.sync.SendMedia(ctx, s.self, s.Peer(), conversation.DetectType(blob), caption, s.upload(blob))
}

// SendPhoto uploads a camera capture as an image message.
func (s *Session) SendPhoto(ctx context.Context, blob media.Blob) (chat.Message, error) {
	if err := s.checkSize(blob); err != nil {
		return chat.Message{}, err
	}
	return s.sync.SendMedia(ctx, s.self, s.Peer(), chat.TypeImage, "", s.upload(blob))
}

// SendAudio ships a recording inline as a data URL.
func (s *Session) SendAudio(ctx context.Context, blob media.Blob) (chat.Message, error) {
	return s.sync.SendMedia(ctx, s.self, s.Peer(), chat.TypeAudio, "", conversation.InlineArtifact(blob))
}

func (s *Session) upload(blob media.Blob) conversation.ArtifactProducer {
	produce := conversation.UploadArtifact(s.uploader, blob)
	return func(ctx context.Context) (string, error) {
		url, err := produce(ctx)
		if err != nil {
			s.metrics.Uploaded(metrics.ResultError)
			return "", err
		}
		s.metrics.Uploaded(metrics.ResultOK)
		return url, nil
	}
}

func (s *Session) checkSize(blob media.Blob) error {
	if s.maxUpload > 0 && int64(blob.Size()) > s.maxUpload {
		return fmt.Errorf("%s is %d bytes, limit is %d", blob.Name, blob.Size(), s.maxUpload)
	}
	return nil
}

func (s *Session) Clear(ctx context.Context) error {
	return s.sync.Clear(ctx, s.self, s.Peer())
}

// Delete clears the open conversation, hides the peer and closes it.
func (s *Session) Delete(ctx context.Context) error {
	peer := s.Peer()
	if peer == "" {
		return fmt.Errorf("%w: no conversation open", conversation.ErrSkipped)
	}
	return s.sync.DeleteConversation(ctx, peer)
}

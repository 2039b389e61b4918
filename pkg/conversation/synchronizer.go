// Package conversation owns the transcript of the open conversation and
// mediates every change to it: history loads, optimistic sends, realtime
// receipts, clears and deletes.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinyland-inc/picochat/pkg/chat"
	"github.com/tinyland-inc/picochat/pkg/logger"
	"github.com/tinyland-inc/picochat/pkg/metrics"
)

// Store is the durable side of a conversation.
type Store interface {
	History(ctx context.Context, user1, user2 string) ([]chat.Record, error)
	Persist(ctx context.Context, req chat.PersistRequest) error
	DeleteHistory(ctx context.Context, user1, user2 string) error
}

// Emitter publishes an outgoing message on the realtime channel.
type Emitter interface {
	IsRunning() bool
	Emit(ctx context.Context, msg chat.Message) error
}

// Notice is a one-shot failure message for the user.
type Notice struct {
	Text    string
	Message chat.Message
	Err     error
}

type Notifier interface {
	Notify(Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type RosterGate interface {
	Hide(id string)
}

// ArtifactProducer resolves the file reference of a media message.
type ArtifactProducer func(ctx context.Context) (string, error)

// ErrSkipped reports a send or selection whose preconditions did not hold.
// Nothing was changed.
var ErrSkipped = errors.New("skipped")

const failedToSend = "failed to send"

type Outcome int

const (
	Ignored Outcome = iota
	Duplicate
	Appended
)

func (o Outcome) String() string {
	switch o {
	case Appended:
		return metrics.ResultAppended
	case Duplicate:
		return metrics.ResultDuplicate
	default:
		return metrics.ResultIgnored
	}
}

type Option func(*Synchronizer)

func WithNotifier(n Notifier) Option {
	return func(s *Synchronizer) { s.notifier = n }
}

func WithRosterGate(g RosterGate) Option {
	return func(s *Synchronizer) { s.gate = g }
}

func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithLocation sets the zone message times are displayed in.
func WithLocation(loc *time.Location) Option {
	return func(s *Synchronizer) { s.loc = loc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

type Synchronizer struct {
	store    Store
	emitter  Emitter
	notifier Notifier
	gate     RosterGate
	now      func() time.Time
	loc      *time.Location
	metrics  *metrics.Metrics

	mu       sync.Mutex
	sel      chat.Selection
	gen      uint64 // bumped on every selection change
	messages []chat.Message
	sending  bool
	sendGen  uint64
	version  uint64 // bumped on every change to messages

	listenMu  sync.RWMutex
	listeners []func([]chat.Message)

	notifyMu  sync.Mutex
	delivered uint64

	writes errgroup.Group
}

func New(store Store, emitter Emitter, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:   store,
		emitter: emitter,
		now:     time.Now,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to receive a snapshot after every change to the list.
// Listeners run one at a time and must not modify the synchronizer.
func (s *Synchronizer) OnChange(fn func([]chat.Message)) {
	s.listenMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenMu.Unlock()
}

// change is a numbered copy of the list taken under s.mu.
type change struct {
	version  uint64
	messages []chat.Message
}

// markLocked records a change to the list. Callers hold s.mu.
func (s *Synchronizer) markLocked() change {
	s.version++
	return change{version: s.version, messages: s.snapshotLocked()}
}

// changed hands c to the listeners unless a newer change was already
// delivered, so listeners never step back to an older list.
func (s *Synchronizer) changed(c change) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if c.version <= s.delivered {
		return
	}
	s.delivered = c.version

	s.listenMu.RLock()
	listeners := s.listeners
	s.listenMu.RUnlock()
	for _, fn := range listeners {
		fn(c.messages)
	}
}

// snapshotLocked copies the list. Callers hold s.mu.
func (s *Synchronizer) snapshotLocked() []chat.Message {
	return append([]chat.Message(nil), s.messages...)
}

func (s *Synchronizer) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Synchronizer) Selection() chat.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel
}

func (s *Synchronizer) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// Select makes (self, peer) the live conversation and loads its history.
// Messages sent or received while the load is pending stay listed after
// the history. A failed load leaves only those. A load that completes after
// another selection was made is discarded.
func (s *Synchronizer) Select(ctx context.Context, self, peer string) error {
	if self == "" || peer == "" {
		return fmt.Errorf("%w: both participants are required", ErrSkipped)
	}
	if chat.IsGroupID(peer) {
		return fmt.Errorf("%w: group conversations are not supported", ErrSkipped)
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.sel = chat.Selection{Self: self, Peer: peer}
	s.messages = nil
	s.sending = false
	cleared := s.markLocked()
	s.mu.Unlock()
	s.changed(cleared)

	start := time.Now()
	records, err := s.store.History(ctx, self, peer)
	took := time.Since(start)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.metrics.HistoryFetched(metrics.ResultStale, took)
		logger.DebugCF("conversation", "Discarding stale history", map[string]any{
			"self": self,
			"peer": peer,
		})
		return nil
	}
	if err == nil {
		history := make([]chat.Message, 0, len(records)+len(s.messages))
		for _, rec := range records {
			history = append(history, rec.Message(s.loc))
		}
		s.messages = mergePending(history, s.messages)
	}
	loaded := s.markLocked()
	s.mu.Unlock()

	if err != nil {
		s.metrics.HistoryFetched(metrics.ResultError, took)
		logger.WarnCF("conversation", "History load failed", map[string]any{
			"self":  self,
			"peer":  peer,
			"error": err.Error(),
		})
	} else {
		s.metrics.HistoryFetched(metrics.ResultOK, took)
		logger.DebugCF("conversation", "History loaded", map[string]any{
			"peer":  peer,
			"count": len(loaded.messages),
		})
	}
	s.changed(loaded)
	return nil
}

// mergePending appends the entries listed while history was loading. An
// entry the server already returned among the last len(pending) records is
// dropped, compared by (from, text, time).
func mergePending(history, pending []chat.Message) []chat.Message {
	tail := history[max(0, len(history)-len(pending)):]
	seen := make(map[chat.Key]int, len(tail))
	for _, m := range tail {
		seen[m.Key()]++
	}
	for _, m := range pending {
		if seen[m.Key()] > 0 {
			seen[m.Key()]--
			continue
		}
		history = append(history, m)
	}
	return history
}

// Deselect closes the live conversation.
func (s *Synchronizer) Deselect() {
	s.mu.Lock()
	s.gen++
	s.sel = chat.Selection{}
	s.messages = nil
	s.sending = false
	cleared := s.markLocked()
	s.mu.Unlock()
	s.changed(cleared)
}

// SendText sends a text message to the live conversation.
func (s *Synchronizer) SendText(ctx context.Context, self, peer, text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, fmt.Errorf("%w: empty message", ErrSkipped)
	}
	return s.send(ctx, self, peer, chat.TypeText, text, nil)
}

// SendMedia resolves the artifact through produce, then sends a message of
// typ carrying its URL and an optional caption.
func (s *Synchronizer) SendMedia(ctx context.Context, self, peer string, typ chat.Type, caption string, produce ArtifactProducer) (chat.Message, error) {
	if typ == chat.TypeText || !typ.Valid() {
		return chat.Message{}, fmt.Errorf("%w: %q is not a media type", ErrSkipped, typ)
	}
	if produce == nil {
		return chat.Message{}, fmt.Errorf("%w: nothing attached", ErrSkipped)
	}
	return s.send(ctx, self, peer, typ, caption, produce)
}

func (s *Synchronizer) send(ctx context.Context, self, peer string, typ chat.Type, text string, produce ArtifactProducer) (chat.Message, error) {
	gen, err := s.acquire(self, peer)
	if err != nil {
		return chat.Message{}, err
	}

	var fileURL string
	if produce != nil {
		fileURL, err = produce(ctx)
		if err != nil {
			s.release(gen)
			logger.WarnCF("conversation", "Attachment failed", map[string]any{
				"peer":  peer,
				"type":  string(typ),
				"error": err.Error(),
			})
			s.notify(Notice{Text: failedToSend, Message: chat.Message{From: self, To: peer, Type: typ}, Err: err})
			return chat.Message{}, fmt.Errorf("resolve attachment: %w", err)
		}
	}

	msg := chat.Message{
		From:    self,
		To:      peer,
		Text:    text,
		Type:    typ,
		FileURL: fileURL,
		Time:    chat.FormatTime(s.now(), s.loc),
	}
	if err := msg.Validate(); err != nil {
		s.release(gen)
		return chat.Message{}, fmt.Errorf("%w: %v", ErrSkipped, err)
	}

	// The optimistic copy is listed before the emit, so a self-echo always
	// finds it at the tail.
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		logger.InfoCF("conversation", "Selection changed during send, dropping", map[string]any{
			"peer": peer,
			"type": string(typ),
		})
		return chat.Message{}, fmt.Errorf("%w: selection changed", ErrSkipped)
	}
	s.messages = append(s.messages, msg)
	appended := s.markLocked()
	s.mu.Unlock()

	s.metrics.MessageSent(string(typ))
	s.changed(appended)

	if err := s.emitter.Emit(ctx, msg); err != nil {
		logger.WarnCF("conversation", "Realtime emit failed", map[string]any{
			"peer":  peer,
			"error": err.Error(),
		})
	}

	persistCtx := context.WithoutCancel(ctx)
	s.writes.Go(func() error {
		s.persist(persistCtx, gen, msg)
		return nil
	})
	return msg, nil
}

// acquire checks the send preconditions and takes the in-flight slot.
func (s *Synchronizer) acquire(self, peer string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.sel.IsZero():
		return 0, fmt.Errorf("%w: no conversation selected", ErrSkipped)
	case self == "":
		return 0, fmt.Errorf("%w: unknown sender", ErrSkipped)
	case s.sel.Self != self || s.sel.Peer != peer:
		return 0, fmt.Errorf("%w: %s is not the open conversation", ErrSkipped, peer)
	case s.emitter == nil || !s.emitter.IsRunning():
		return 0, fmt.Errorf("%w: realtime channel is down", ErrSkipped)
	case s.sending:
		return 0, fmt.Errorf("%w: a send is already in flight", ErrSkipped)
	}
	s.sending = true
	s.sendGen = s.gen
	return s.gen, nil
}

func (s *Synchronizer) release(gen uint64) {
	s.mu.Lock()
	if s.sending && s.sendGen == gen {
		s.sending = false
	}
	s.mu.Unlock()
}

func (s *Synchronizer) persist(ctx context.Context, gen uint64, msg chat.Message) {
	err := s.store.Persist(ctx, chat.NewPersistRequest(msg))
	s.release(gen)
	if err == nil {
		return
	}

	s.metrics.PersistFailed()
	logger.ErrorCF("conversation", "Persisting message failed", map[string]any{
		"from":  msg.From,
		"to":    msg.To,
		"type":  string(msg.Type),
		"error": err.Error(),
	})
	s.notify(Notice{Text: failedToSend, Message: msg, Err: err})
}

func (s *Synchronizer) notify(n Notice) {
	if s.notifier != nil {
		s.notifier.Notify(n)
	}
}

// Receive merges an inbound realtime message. Messages outside the live
// conversation are ignored, and a message whose (from, text, time) equals
// the last entry is treated as an echo of it.
func (s *Synchronizer) Receive(msg chat.Message) Outcome {
	s.mu.Lock()
	if s.sel.IsZero() || !msg.Involves(s.sel.Self, s.sel.Peer) {
		s.mu.Unlock()
		s.metrics.MessageReceived(metrics.ResultIgnored)
		return Ignored
	}
	if n := len(s.messages); n > 0 && s.messages[n-1].Key() == msg.Key() {
		s.mu.Unlock()
		s.metrics.MessageReceived(metrics.ResultDuplicate)
		return Duplicate
	}
	s.messages = append(s.messages, msg)
	appended := s.markLocked()
	s.mu.Unlock()

	s.metrics.MessageReceived(metrics.ResultAppended)
	s.changed(appended)
	return Appended
}

// Clear deletes the pair's history on the server and empties the local
// transcript whether or not the delete succeeded. The transcript is left
// alone if another conversation was selected meanwhile.
func (s *Synchronizer) Clear(ctx context.Context, self, peer string) error {
	if self == "" || peer == "" {
		return fmt.Errorf("%w: both participants are required", ErrSkipped)
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	err := s.store.DeleteHistory(ctx, self, peer)
	if err != nil {
		logger.WarnCF("conversation", "Deleting history failed", map[string]any{
			"self":  self,
			"peer":  peer,
			"error": err.Error(),
		})
	}

	s.mu.Lock()
	if s.gen != gen || s.sel.Self != self || s.sel.Peer != peer {
		s.mu.Unlock()
		return err
	}
	s.messages = nil
	cleared := s.markLocked()
	s.mu.Unlock()
	s.changed(cleared)
	return err
}

// DeleteConversation clears the conversation with peer, hides peer from
// the roster and closes the conversation if it is the live one.
func (s *Synchronizer) DeleteConversation(ctx context.Context, peer string) error {
	s.mu.Lock()
	self := s.sel.Self
	s.mu.Unlock()
	if self == "" {
		return fmt.Errorf("%w: no active user", ErrSkipped)
	}

	err := s.Clear(ctx, self, peer)
	if s.gate != nil {
		s.gate.Hide(peer)
	}

	s.mu.Lock()
	live := s.sel.Peer == peer
	s.mu.Unlock()
	if live {
		s.Deselect()
	}
	return err
}

// Wait blocks until every background persistence write has settled.
func (s *Synchronizer) Wait() {
	_ = s.writes.Wait()
}

package send

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tinyland-inc/picochat/cmd/picochat/internal"
	"github.com/tinyland-inc/picochat/pkg/chat"
	"github.com/tinyland-inc/picochat/pkg/conversation"
	"github.com/tinyland-inc/picochat/pkg/media"
	"github.com/tinyland-inc/picochat/pkg/session"
)

type options struct {
	As    string
	Peer  string
	Text  string
	File  string
	Debug bool
}

func (o options) validate() error {
	if o.File == "" && strings.TrimSpace(o.Text) == "" {
		return errors.New("nothing to send: pass text or --file")
	}
	if chat.IsGroupID(o.Peer) {
		return errors.New("group conversations are not supported")
	}
	return nil
}

func sendCmd(ctx context.Context, out io.Writer, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := opts.validate(); err != nil {
		return err
	}
	cfg, err := internal.LoadConfig(opts.Debug)
	if err != nil {
		return err
	}
	cred, err := internal.ResolveIdentity(opts.As)
	if err != nil {
		return err
	}

	var blob media.Blob
	if opts.File != "" {
		if blob, err = media.LoadFile(opts.File, cfg.Media.MaxUploadBytes); err != nil {
			return err
		}
	}

	var (
		mu      sync.Mutex
		notices []conversation.Notice
	)
	notify := conversation.NotifierFunc(func(n conversation.Notice) {
		mu.Lock()
		notices = append(notices, n)
		mu.Unlock()
	})

	rt, err := internal.Connect(ctx, cfg, cred, session.WithNotifier(notify))
	if err != nil {
		return err
	}

	msg, sendErr := deliver(ctx, rt.Session, opts, blob)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	closeErr := rt.Close(closeCtx)

	if sendErr != nil {
		return sendErr
	}
	mu.Lock()
	defer mu.Unlock()
	if len(notices) > 0 {
		n := notices[0]
		if n.Err != nil {
			return fmt.Errorf("%s: %w", n.Text, n.Err)
		}
		return errors.New(n.Text)
	}
	fmt.Fprintln(out, internal.FormatMessage(msg, cred.UserID, nil))
	return closeErr
}

func deliver(ctx context.Context, s *session.Session, opts options, blob media.Blob) (chat.Message, error) {
	if err := s.Open(ctx, opts.Peer); err != nil {
		return chat.Message{}, fmt.Errorf("opening conversation: %w", err)
	}
	if opts.File != "" {
		return s.SendFile(ctx, blob, opts.Text)
	}
	return s.SendText(ctx, opts.Text)
}

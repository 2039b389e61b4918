package history

import (
	"context"
	"fmt"
	"io"

	"github.com/tinyland-inc/picochat/cmd/picochat/internal"
	"github.com/tinyland-inc/picochat/pkg/chat"
	"github.com/tinyland-inc/picochat/pkg/search"
)

type options struct {
	As    string
	Peer  string
	Limit int
	Query string
	Debug bool
}

func historyCmd(ctx context.Context, out io.Writer, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := internal.LoadConfig(opts.Debug)
	if err != nil {
		return err
	}
	cred, err := internal.ResolveIdentity(opts.As)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	records, err := internal.NewAPIClient(cfg, cred).History(ctx, cred.UserID, opts.Peer)
	if err != nil {
		return fmt.Errorf("fetching history: %w", err)
	}

	msgs := make([]chat.Message, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, rec.Message(loc))
	}
	msgs = selectMessages(msgs, opts.Query, opts.Limit)

	if len(msgs) == 0 {
		fmt.Fprintln(out, "No messages.")
		return nil
	}
	for _, m := range msgs {
		fmt.Fprintln(out, internal.FormatMessage(m, cred.UserID, nil))
	}
	return nil
}

// selectMessages keeps matches of query (all when empty), then the last limit.
func selectMessages(msgs []chat.Message, query string, limit int) []chat.Message {
	if query != "" {
		positions := search.Matches(msgs, query)
		matched := make([]chat.Message, 0, len(positions))
		for _, p := range positions {
			matched = append(matched, msgs[p])
		}
		msgs = matched
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

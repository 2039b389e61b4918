package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/tinyland-inc/picochat/cmd/picochat/internal"
	"github.com/tinyland-inc/picochat/pkg/logger"
	"github.com/tinyland-inc/picochat/pkg/metrics"
	"github.com/tinyland-inc/picochat/pkg/session"
)

type options struct {
	As    string
	Peer  string
	Debug bool
}

func chatCmd(ctx context.Context, opts options) error {
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

	rl, rlErr := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s > ", internal.Logo),
		HistoryFile:     filepath.Join(internal.GetHomeDir(), "chat_history"),
		HistoryLimit:    200,
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
	var out io.Writer = os.Stdout
	if rlErr == nil {
		defer rl.Close()
		out = rl.Stdout()
	}

	r := newREPL(out, cfg)
	rt, err := internal.Connect(ctx, cfg, cred,
		session.WithNotifier(r),
		session.WithEventHook(r.onEvent),
		session.WithScroll(r.scrollTo),
	)
	if err != nil {
		return err
	}
	r.attach(rt.Session)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			logger.WarnCF("chat", "Shutdown incomplete", map[string]any{"error": err.Error()})
		}
	}()

	if rt.Metrics != nil {
		stop := serveMetrics(cfg.Metrics.Listen, rt.Metrics)
		defer stop()
	}

	if err := rt.Session.RefreshContacts(ctx); err != nil {
		logger.WarnCF("chat", "Roster request failed", map[string]any{"error": err.Error()})
	}

	fmt.Fprintf(out, "%s Signed in as %s. Type /help for commands, /quit to leave.\n\n", internal.Logo, cred.UserID)
	if opts.Peer != "" {
		r.exec(ctx, "/open "+opts.Peer)
	}

	if rlErr != nil {
		fmt.Fprintf(out, "Error initializing readline: %v\n", rlErr)
		fmt.Fprintln(out, "Falling back to simple input mode...")
		simpleLoop(ctx, r, os.Stdin)
		return nil
	}

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "\nGoodbye!")
				return nil
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}
		if r.exec(ctx, line) {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
	}
}

func simpleLoop(ctx context.Context, r *repl, in io.Reader) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(r.out, "%s > ", internal.Logo)
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(r.out, "Error reading input: %v\n", err)
			continue
		}
		if r.exec(ctx, line) {
			fmt.Fprintln(r.out, "Goodbye!")
			return
		}
	}
}

// serveMetrics exposes the Prometheus registry until the returned func is called.
func serveMetrics(addr string, m *metrics.Metrics) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("chat", "Metrics server failed", map[string]any{"error": err.Error()})
		}
	}()
	logger.InfoCF("chat", "Metrics server listening", map[string]any{"addr": addr})

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func splitCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	name, rest, _ := strings.Cut(line, " ")
	return strings.ToLower(name), strings.TrimSpace(rest)
}

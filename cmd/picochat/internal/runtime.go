package internal

import (
	"context"
	"errors"
	"net/http"

	"github.com/tinyland-inc/picochat/pkg/api"
	"github.com/tinyland-inc/picochat/pkg/auth"
	"github.com/tinyland-inc/picochat/pkg/bus"
	"github.com/tinyland-inc/picochat/pkg/config"
	"github.com/tinyland-inc/picochat/pkg/metrics"
	"github.com/tinyland-inc/picochat/pkg/realtime"
	"github.com/tinyland-inc/picochat/pkg/session"
)

// Runtime is a connected session with everything it owns.
type Runtime struct {
	Config  *config.Config
	Cred    *auth.AuthCredential
	API     *api.Client
	Bus     *bus.MessageBus
	Channel *realtime.Channel
	Session *session.Session
	Metrics *metrics.Metrics

	cancel context.CancelFunc
	done   chan error
}

// NewChannel builds the realtime channel for cred.
func NewChannel(cfg *config.Config, cred *auth.AuthCredential, mb *bus.MessageBus) *realtime.Channel {
	opts := []realtime.Option{
		realtime.WithHandshakeTimeout(cfg.HandshakeTimeout()),
		realtime.WithPingInterval(cfg.PingInterval()),
		realtime.WithEmitRate(cfg.Realtime.EmitRate, cfg.Realtime.EmitBurst),
	}
	if cred.AccessToken != "" {
		h := http.Header{}
		h.Set("Authorization", "Bearer "+cred.AccessToken)
		opts = append(opts, realtime.WithHeader(h))
	}
	return realtime.NewChannel(cfg.RealtimeURL(), cred.UserID, mb, opts...)
}

// Connect starts the realtime channel and runs a session on top of it until
// Close is called.
func Connect(ctx context.Context, cfg *config.Config, cred *auth.AuthCredential, opts ...session.Option) (*Runtime, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	rt := &Runtime{
		Config:  cfg,
		Cred:    cred,
		API:     NewAPIClient(cfg, cred),
		Bus:     bus.NewMessageBus(),
		Metrics: m,
		done:    make(chan error, 1),
	}
	rt.Channel = NewChannel(cfg, cred, rt.Bus)
	if err := rt.Channel.Start(ctx); err != nil {
		return nil, err
	}

	base := []session.Option{
		session.WithLocation(loc),
		session.WithMetrics(m),
		session.WithMaxUpload(cfg.Media.MaxUploadBytes),
	}
	rt.Session = session.New(cred.UserID, rt.Bus, rt.Channel, rt.API, rt.API, append(base, opts...)...)

	runCtx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	go func() { rt.done <- rt.Session.Run(runCtx) }()
	return rt, nil
}

// Close waits for pending persistence, then disconnects.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.Session.Synchronizer().Wait()
	stopErr := rt.Channel.Stop(ctx)
	rt.Bus.Close()
	rt.cancel()
	runErr := <-rt.done
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return errors.Join(stopErr, runErr)
}

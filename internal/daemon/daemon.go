// Package daemon runs the server side of statusdeck: the event-ingest unix
// socket and the snapshot TCP port, both feeding one registry.
package daemon

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/twistedxcom/statusdeck/internal/config"
	"github.com/twistedxcom/statusdeck/internal/logging"
	"github.com/twistedxcom/statusdeck/internal/registry"
)

// Daemon owns the registry and both listeners.
type Daemon struct {
	cfg    *config.Config
	reg    *registry.Registry
	ingest *IngestListener
	query  *SnapshotServer
}

// New wires a daemon from configuration.
func New(cfg *config.Config) *Daemon {
	reg := registry.New()
	return &Daemon{
		cfg:    cfg,
		reg:    reg,
		ingest: NewIngestListener(cfg.SocketPath, reg),
		query:  NewSnapshotServer(cfg.QueryAddr, reg, cfg.IdleTimeout()),
	}
}

// Registry exposes the session registry (used by tests).
func (d *Daemon) Registry() *registry.Registry {
	return d.reg
}

// QueryAddr returns the bound snapshot address.
func (d *Daemon) QueryAddr() string {
	return d.query.Addr()
}

// Run binds both listeners and serves until ctx is canceled. Either bind
// failing aborts startup; there is no retry.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.cfg.EnsureBaseDir(); err != nil {
		return err
	}
	if err := d.ingest.Bind(); err != nil {
		return err
	}
	if err := d.query.Bind(); err != nil {
		d.ingest.Close()
		return err
	}

	logging.ForComponent(logging.CompIngest).Info("daemon_started",
		slog.String("socket", d.cfg.SocketPath),
		slog.String("query_addr", d.query.Addr()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.ingest.Serve(gctx) })
	g.Go(func() error { return d.query.Serve(gctx) })
	return g.Wait()
}

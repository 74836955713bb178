package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/feed"
	"github.com/alanyoungcy/sniperbot/internal/service"
)

// injectChannel receives operator-injected mint signals. Distinct from the
// "mints" channel the bot publishes to, so a bot never consumes its own
// mirror traffic.
const injectChannel = "inject_mints"

// SnipeMode runs the full pipeline: the new-token feed drives the execution
// coordinator, the price monitor drives the risk engine, and the status
// reporter and trade archiver run on their intervals.
func (a *App) SnipeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting snipe mode")

	a.reconcilePositions(ctx, deps)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Monitor.Run(ctx)
	})

	handle := func(ctx context.Context, sig domain.MintSignal) {
		a.publishMint(ctx, deps, sig)
		outcome := deps.Coordinator.ExecuteTrade(ctx, sig)
		a.logger.InfoContext(ctx, "mint signal handled",
			slog.String("token", sig.TokenAddress),
			slog.String("status", string(outcome.Status)),
		)
	}

	mintFeed := feed.NewMintFeed(a.cfg.Feed.WsURL, handle, a.logger)
	g.Go(func() error {
		defer mintFeed.Close()
		return mintFeed.Run(ctx)
	})

	// Operators can PUBLISH a MintSignal to this channel to push a token
	// into the buy pipeline by hand; it flows through the same screening
	// and queueing as stream-discovered tokens.
	busFeed := feed.NewBusFeed(deps.SignalBus, injectChannel, handle, a.logger)
	g.Go(func() error {
		return busFeed.Run(ctx)
	})

	a.startShared(ctx, g, deps)

	return g.Wait()
}

// MonitorMode manages already-open positions without taking new ones: the
// feed is not started and the coordinator only reacts to operator signals.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	a.reconcilePositions(ctx, deps)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Monitor.Run(ctx)
	})

	a.startShared(ctx, g, deps)

	return g.Wait()
}

// startShared starts the goroutines common to every mode: the status
// reporter, the trade archiver when enabled, and the operator signal watcher.
func (a *App) startShared(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	reporter := service.NewStatusReporter(
		a.cfg.Mode,
		deps.Engine,
		deps.Coordinator,
		deps.Balance,
		deps.TradeStore,
		deps.PriceCache,
		deps.Events,
		a.cfg.Status.Interval.Duration,
		a.logger,
	)
	g.Go(func() error {
		return reporter.Run(ctx)
	})

	if deps.Archiver != nil {
		job := service.NewArchiveJob(
			deps.Archiver,
			a.cfg.Archive.RetentionDays,
			a.cfg.Archive.Interval.Duration,
			a.logger,
		)
		g.Go(func() error {
			return job.Run(ctx)
		})
	}

	g.Go(func() error {
		return a.watchOperatorSignals(ctx, reporter, deps)
	})
}

// watchOperatorSignals handles the two operator signals: SIGUSR1 triggers an
// immediate status report, SIGUSR2 triggers an emergency liquidation of every
// tracked position.
func (a *App) watchOperatorSignals(ctx context.Context, reporter *service.StatusReporter, deps *Dependencies) error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				a.logger.InfoContext(ctx, "status report requested")
				reporter.Report(ctx)
			case syscall.SIGUSR2:
				a.logger.WarnContext(ctx, "emergency stop requested")
				if errs := deps.Coordinator.EmergencyStop(ctx); len(errs) > 0 {
					for _, err := range errs {
						a.logger.ErrorContext(ctx, "emergency liquidation failure",
							slog.String("error", err.Error()))
					}
				}
			}
		}
	}
}

// publishMint mirrors an incoming mint signal onto the bus so external
// consumers see what the bot saw, whether or not it trades.
func (a *App) publishMint(ctx context.Context, deps *Dependencies, sig domain.MintSignal) {
	payload, err := json.Marshal(sig)
	if err != nil {
		return
	}
	if err := deps.SignalBus.Publish(ctx, "mints", payload); err != nil {
		a.logger.DebugContext(ctx, "mint publish failed",
			slog.String("token", sig.TokenAddress),
			slog.String("error", err.Error()),
		)
	}
}

// reconcilePositions adopts positions the execution service still holds from
// a previous run. Their original entries are gone with the process, so each
// one is re-registered at its current market price, which restarts the stop
// floor and ladder relative to now. Positions with no quotable price are left
// for the operator to close by hand.
func (a *App) reconcilePositions(ctx context.Context, deps *Dependencies) {
	open, err := deps.Trader.ListOpenPositions(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "position reconcile skipped",
			slog.String("error", err.Error()))
		return
	}

	for _, p := range open {
		price, err := deps.Prices.Price(ctx, p.TokenAddress)
		if err != nil {
			a.logger.ErrorContext(ctx, "cannot adopt position, no price",
				slog.String("token", p.TokenAddress),
				slog.String("position_id", p.PositionID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if _, err := deps.Engine.Register(ctx, p.TokenAddress, "", p.PositionID, price, p.Size); err != nil {
			a.logger.ErrorContext(ctx, "cannot adopt position",
				slog.String("token", p.TokenAddress),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.logger.InfoContext(ctx, "adopted open position from previous run",
			slog.String("token", p.TokenAddress),
			slog.String("position_id", p.PositionID),
			slog.Float64("price", price),
		)
	}
}

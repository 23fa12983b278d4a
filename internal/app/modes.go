package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stakestore/stakestore/internal/approval"
	"github.com/stakestore/stakestore/internal/catalog"
	"github.com/stakestore/stakestore/internal/chain"
	"github.com/stakestore/stakestore/internal/crypto"
	"github.com/stakestore/stakestore/internal/domain"
	"github.com/stakestore/stakestore/internal/feed"
	"github.com/stakestore/stakestore/internal/holdings"
	"github.com/stakestore/stakestore/internal/mint"
	"github.com/stakestore/stakestore/internal/orchestrator"
	"github.com/stakestore/stakestore/internal/platform/pendle"
	"github.com/stakestore/stakestore/internal/redemption"
	"github.com/stakestore/stakestore/internal/server"
	"github.com/stakestore/stakestore/internal/server/handler"
	"github.com/stakestore/stakestore/internal/server/ws"
)

// core bundles the domain services shared by the application modes.
type core struct {
	catalog     *catalog.Catalog
	gateway     *chain.EthGateway
	orch        *orchestrator.Orchestrator
	holdings    *holdings.Tracker
	redemptions *redemption.Builder
	startedAt   time.Time
}

// buildCore constructs the chain gateway, venue client, catalog, and
// orchestrator. withSigner controls whether the operator key is loaded;
// server mode runs read-only and never signs.
func (a *App) buildCore(ctx context.Context, deps *Dependencies, withSigner bool) (*core, error) {
	privateKey := ""
	if withSigner {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    a.cfg.Wallet.PrivateKey,
			EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      a.cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("load operator key: %w", err)
		}
		privateKey = key
	}

	gateway, err := chain.NewEthGateway(
		ctx,
		a.cfg.Chain.RPCURL,
		privateKey,
		a.cfg.Chain.ChainID,
		a.cfg.Chain.ConfirmTimeout.Duration,
		a.logger,
	)
	if err != nil {
		return nil, fmt.Errorf("chain gateway: %w", err)
	}

	venue := pendle.NewClient(a.cfg.Pendle.BaseURL, a.cfg.Chain.ChainID)

	cat := catalog.New(venue, deps.CatalogCache, a.logger)
	if err := cat.WarmFromCache(ctx); err != nil {
		a.logger.WarnContext(ctx, "catalog warm from cache failed",
			slog.String("error", err.Error()),
		)
	}

	// The drive pipeline only runs with a signer; server mode constructs the
	// orchestrator for Submit/Get/Cancel/Resume alone.
	var approver orchestrator.Approver
	var quotes orchestrator.QuoteSource
	var tx orchestrator.TxSubmitter
	if withSigner {
		approver = approval.NewManager(gateway, a.cfg.Chain.Spender, a.logger)
		quotes = mint.NewCoordinator(
			venue,
			gateway.SignerAddress(),
			a.cfg.Workflow.QuoteRetries,
			a.cfg.Workflow.RetryBackoff.Duration,
			a.logger,
		)
		tx = gateway
	}

	orch := orchestrator.New(
		deps.WorkflowStore,
		deps.AuditStore,
		deps.LockManager,
		deps.SignalBus,
		cat,
		approver,
		quotes,
		tx,
		deps.Notifier,
		orchestrator.Config{
			MaxConcurrent: a.cfg.Workflow.MaxConcurrent,
			IntakeBuffer:  a.cfg.Workflow.IntakeBuffer,
			LockTTL:       a.cfg.Workflow.LockTTL.Duration,
		},
		a.logger,
	)

	return &core{
		catalog:     cat,
		gateway:     gateway,
		orch:        orch,
		holdings:    holdings.NewTracker(cat, gateway, a.cfg.Workflow.HoldingsConcurrency, a.logger),
		redemptions: redemption.NewBuilder(cat, venue, a.cfg.Workflow.DefaultSlippage, a.logger),
		startedAt:   time.Now().UTC(),
	}, nil
}

// ServerMode serves the REST and WebSocket API without signing anything.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	c, err := a.buildCore(ctx, deps, false)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.catalog.RunLoop(ctx, a.cfg.Workflow.CatalogRefresh.Duration)
	})

	a.startHTTPServer(ctx, g, deps, c)

	return g.Wait()
}

// WorkerMode runs the workflow drivers, intent listener, catalog refresh,
// and archival loop with no HTTP surface.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	c, err := a.buildCore(ctx, deps, true)
	if err != nil {
		return fmt.Errorf("worker mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startWorkers(ctx, g, deps, c)

	return g.Wait()
}

// FullMode runs the worker subsystems and the HTTP server in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	c, err := a.buildCore(ctx, deps, true)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startWorkers(ctx, g, deps, c)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, c)
	}

	return g.Wait()
}

// startWorkers adds the worker goroutines to the errgroup: catalog refresh,
// workflow drivers, on-chain intent listener, and the archival loop.
func (a *App) startWorkers(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	g.Go(func() error {
		return c.catalog.RunLoop(ctx, a.cfg.Workflow.CatalogRefresh.Duration)
	})

	g.Go(func() error {
		return c.orch.Run(ctx)
	})

	// Intent listener: on-chain StakeInitiated events become stake requests.
	if a.cfg.Chain.WsURL != "" && a.cfg.Chain.StakeContract != "" {
		sink := make(chan domain.StakeRequest, a.cfg.Workflow.IntakeBuffer)
		listener, err := feed.NewIntentListener(
			a.cfg.Chain.WsURL,
			a.cfg.Chain.StakeContract,
			a.cfg.Workflow.DefaultSlippage,
			sink,
			a.logger,
		)
		if err != nil {
			a.logger.WarnContext(ctx, "intent listener disabled",
				slog.String("error", err.Error()),
			)
		} else {
			g.Go(func() error {
				return listener.Run(ctx)
			})
			g.Go(func() error {
				for {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case req, ok := <-sink:
						if !ok {
							return nil
						}
						if _, err := c.orch.Submit(ctx, req); err != nil {
							a.logger.WarnContext(ctx, "on-chain intent rejected",
								slog.String("request_id", req.RequestID),
								slog.String("error", err.Error()),
							)
						}
					}
				}
			})
		}
	} else {
		a.logger.InfoContext(ctx, "chain.ws_url or chain.stake_contract not set, skipping intent listener")
	}

	// Archival loop: copy old terminal workflows and audit entries to S3.
	if deps.Archiver != nil {
		g.Go(func() error {
			a.runArchiveLoop(ctx, deps)
			return nil
		})
	}
}

// runArchiveLoop periodically archives terminal workflows and audit entries
// older than the retention window. Archival is copy-only, so failures are
// logged and retried on the next tick.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) {
	interval := a.cfg.Workflow.ArchiveInterval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	runOnce := func() {
		cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Workflow.ArchiveRetentionDays)

		n, err := deps.Archiver.ArchiveWorkflows(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "workflow archival failed",
				slog.String("error", err.Error()),
			)
		} else if n > 0 {
			a.logger.InfoContext(ctx, "archived workflows",
				slog.Int64("count", n),
				slog.Time("cutoff", cutoff),
			)
		}

		n, err = deps.Archiver.ArchiveAuditLog(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "audit archival failed",
				slog.String("error", err.Error()),
			)
		} else if n > 0 {
			a.logger.InfoContext(ctx, "archived audit entries",
				slog.Int64("count", n),
				slog.Time("cutoff", cutoff),
			)
		}
	}

	runOnce()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: c.startedAt,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.cfg.Mode, c.startedAt, a.logger),
		Stakes: handler.NewStakeHandler(
			c.orch,
			deps.WorkflowStore,
			a.cfg.Workflow.DefaultSlippage,
			a.logger,
		),
		Markets:     handler.NewMarketHandler(c.catalog, a.logger),
		Holdings:    handler.NewHoldingsHandler(c.holdings, a.logger),
		Redemptions: handler.NewRedemptionHandler(c.redemptions, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  time.Duration(a.cfg.Server.RateWindowSecs) * time.Second,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/backend"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/catalog"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/config"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/db"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/handoff"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/journal"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/logger"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/migrate"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/notify"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/obs"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/order"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/paystatus"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/poller"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/seal"
)

// app is the wiring shared by the subcommands. Optional integrations stay
// nil when they are not configured.
type app struct {
	cfg config.Config
	log *slog.Logger
	api *backend.Client

	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	log := logger.Init(cfg.LogLevel, cfg.LogFormat)

	a := &app{cfg: cfg, log: log, api: backend.New(cfg.BackendURL, cfg.BackendToken, cfg.HTTPTimeout)}

	shutdown, err := obs.InitTracer(ctx, cfg.ServiceName, Version, cfg.OTLPEndpoint)
	if err != nil {
		log.Warn("tracing disabled", "err", err)
	} else {
		a.closers = append(a.closers, func() { _ = shutdown(context.Background()) })
	}
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) catalog() *catalog.Catalog { return catalog.New(a.api) }

func (a *app) statusSource() (poller.StatusSource, error) {
	if a.cfg.StatusSource == "omise" {
		c, err := paystatus.NewOmiseClient(a.cfg.OmisePublicKey, a.cfg.OmiseSecretKey)
		if err != nil {
			return nil, err
		}
		return paystatus.NewOmise(c, nil), nil
	}
	return order.NewBackendStatus(a.api), nil
}

func (a *app) pollOptions() poller.Options {
	return poller.Options{
		Budget:        a.cfg.PollBudget,
		Interval:      a.cfg.PollInterval,
		CountdownStep: a.cfg.CountdownStep,
		Logger:        a.log,
	}
}

func (a *app) poller() (*poller.Poller, error) {
	src, err := a.statusSource()
	if err != nil {
		return nil, err
	}
	return poller.New(src, a.pollOptions()), nil
}

// journal opens the Postgres journal when DATABASE_URL is set and falls back
// to an in-memory one.
func (a *app) journal(ctx context.Context) (journal.Journal, error) {
	if a.cfg.DatabaseURL == "" {
		return journal.NewMemory(), nil
	}
	d, err := a.openDB(ctx)
	if err != nil {
		return nil, err
	}
	var s *seal.Sealer
	if len(a.cfg.JournalKey) > 0 {
		if s, err = seal.New(a.cfg.JournalKey); err != nil {
			return nil, err
		}
	}
	return journal.NewRepo(d, s), nil
}

func (a *app) openDB(ctx context.Context) (*db.DB, error) {
	d, err := db.Open(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, d.Close)
	if err := migrate.Up(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (a *app) notifier() notify.Notifier {
	if a.cfg.AMQPURL == "" {
		return notify.Nop{}
	}
	p, err := notify.Dial(a.cfg.AMQPURL, a.cfg.AMQPExchange)
	if err != nil {
		a.log.Warn("outcome notifications disabled", "err", err)
		return notify.Nop{}
	}
	a.closers = append(a.closers, func() { _ = p.Close() })
	return p
}

var errNoCookieKeys = errors.New("set HANDOFF_SECRET (or COOKIE_HASH_KEY and COOKIE_BLOCK_KEY) to serve the checkout pages; `pickleboom keys` prints fresh ones")

func (a *app) surface() (*handoff.Surface, error) {
	if !a.cfg.HasCookieKeys() {
		return nil, errNoCookieKeys
	}
	return handoff.New(handoff.Options{
		Mode:     handoff.Mode(a.cfg.HandoffMode),
		BaseURL:  a.cfg.BaseURL,
		HashKey:  a.cfg.CookieHashKey,
		BlockKey: a.cfg.CookieBlockKey,
		Logger:   a.log,
	}), nil
}

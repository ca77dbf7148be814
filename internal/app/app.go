package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"barborsa/internal/checkout"
	"barborsa/internal/config"
	"barborsa/internal/decay"
	"barborsa/internal/display"
	"barborsa/internal/market"
	"barborsa/internal/scheduler"
	"barborsa/internal/service"
	"barborsa/internal/store"
	"barborsa/internal/store/memory"
	"barborsa/internal/store/postgres"
	"barborsa/internal/tenant"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) scope() (tenant.Scope, error) {
	return tenant.NewScope(a.Config.Venue.ID)
}

// openStore selects the backing store. With a DSN the venue runs on postgres;
// without one it runs on the in-memory store, which only makes sense for a
// single process.
func (a *App) openStore(ctx context.Context) (store.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory store")
		return memory.New(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	st := postgres.NewStore(pool)
	return st, st.Close, nil
}

func (a *App) newController(st store.Store, scope tenant.Scope) *market.Controller {
	return market.NewController(st, scope, a.Logger)
}

// Run executes the long-running market engine: scheduler-driven event
// sweeping and decay, plus the display websocket endpoint.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	scope, err := a.scope()
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToClock: a.Config.Scheduler.AlignToClock,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	events := a.newController(st, scope)
	ticker := decay.NewTicker(st, scope, events, a.Config.Scheduler.Interval, a.Logger)
	svc := service.New(sched, st, scope, events, ticker, a.Config.Scheduler.AdvisoryLockKey, a.Logger)

	if a.Config.Display.Enabled {
		hub := display.NewHub(st, scope, a.Logger)
		go func() {
			if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("display hub stopped")
			}
		}()
		go a.serveDisplay(ctx, hub)
	}

	a.Logger.Info().Str("venue", scope.Venue()).Msg("starting market engine")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("market engine terminated with error")
		return err
	}

	a.Logger.Info().Msg("market engine stopped")
	return nil
}

func (a *App) serveDisplay(ctx context.Context, hub *display.Hub) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)

	server := &http.Server{Addr: a.Config.Display.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	a.Logger.Info().Str("addr", a.Config.Display.ListenAddr).Msg("display endpoint listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.Logger.Error().Err(err).Msg("display endpoint failed")
	}
}

// SellOptions configure one checkout.
type SellOptions struct {
	Lines         checkout.Cart
	PaymentMethod string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Sales int
}

// ExportOptions hold parameters for exporting the sales history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// EventOptions configure market event commands.
type EventOptions struct {
	Duration time.Duration
}

// ProductOptions hold operator input for a new catalog entry.
type ProductOptions struct {
	ID        string
	Name      string
	Type      string
	BasePrice int64
	Min       int64
	Max       int64
	Stock     int64
}

// SeedOptions configure demo catalog seeding.
type SeedOptions struct {
	Overwrite bool
}

// SimulateOptions configure the demo sales generator.
type SimulateOptions struct {
	Orders  int
	MaxQty  int64
	Payment string
}

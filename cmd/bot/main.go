package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/predictdesk/polyrisk/internal/admin"
	"github.com/predictdesk/polyrisk/internal/breaker"
	"github.com/predictdesk/polyrisk/internal/config"
	"github.com/predictdesk/polyrisk/internal/executor"
	"github.com/predictdesk/polyrisk/internal/feed"
	"github.com/predictdesk/polyrisk/internal/ledger"
	"github.com/predictdesk/polyrisk/internal/logger"
	"github.com/predictdesk/polyrisk/internal/monitoring"
	"github.com/predictdesk/polyrisk/internal/risk"
	"github.com/predictdesk/polyrisk/internal/settlement"
	"github.com/predictdesk/polyrisk/internal/signalsource"
	"github.com/predictdesk/polyrisk/internal/storage"
	"github.com/predictdesk/polyrisk/pkg/reporting"
	"github.com/predictdesk/polyrisk/pkg/types"
)

// engine holds every running component so shutdown can unwind them in
// order.
type engine struct {
	cfg         *config.Config
	journal     *logger.Journal
	store       *storage.PostgresStore
	ledger      *ledger.Ledger
	breaker     *breaker.Machine
	limits      *risk.LimitsHolder
	coordinator *executor.Coordinator
	sweep       *executor.Sweep
	markets     *feed.Store
	feedClient  *feed.Client
	source      *signalsource.RedisSource
	adminServer *admin.Server
	health      *monitoring.HealthChecker
	startedAt   time.Time

	breakerLog []types.CircuitBreakerRecord
	breakerMu  sync.Mutex
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	eng, err := newEngine(cfg)
	if err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	eng.run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	eng.journal.Info("Received signal %v, shutting down", sig)

	cancel()
	eng.shutdown()
}

func newEngine(cfg *config.Config) (*engine, error) {
	journal, err := logger.NewJournal(cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	eng := &engine{
		cfg:       cfg,
		journal:   journal,
		health:    monitoring.NewHealthChecker(),
		startedAt: time.Now(),
	}

	if cfg.Storage.PostgresURL != "" {
		store, err := storage.NewPostgres(cfg.Storage.PostgresURL, journal)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		eng.store = store
		journal.Info("Connected to Postgres")
	} else {
		journal.Warning("No POSTGRES_URL configured, running without durable records")
	}

	eng.limits = risk.NewLimitsHolder(cfg.Limits())

	ledgerOpts := []ledger.Option{}
	if eng.store != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithSink(eng.store))
	}
	eng.ledger = ledger.New(cfg.Risk.StartingCapital, ledgerOpts...)

	breakerOpts := []breaker.Option{
		breaker.WithTransitionCallback(eng.onBreakerTransition),
	}
	if eng.store != nil {
		breakerOpts = append(breakerOpts, breaker.WithSink(eng.store))
	}
	eng.breaker = breaker.New(eng.limits.Get, breakerOpts...)

	eng.markets = feed.NewStore()
	if cfg.Feed.Enabled {
		eng.feedClient = feed.NewClient(cfg.Feed.WebsocketURL, eng.markets, journal)
	} else {
		journal.Warning("No FEED_WS_URL configured, market data must arrive by other means")
	}

	var settler settlement.Settler
	if cfg.Execution.PaperMode {
		settler = settlement.NewPaperSettler(cfg.Execution.PaperSlippagePct, cfg.Execution.FeePct)
		journal.Info("Paper mode: fills simulated at %.2f bps slippage", cfg.Execution.PaperSlippagePct*10000)
	} else {
		settler = settlement.NewGatewaySettler(cfg.Execution.GatewayURL)
		journal.Info("Live mode: orders routed through %s", cfg.Execution.GatewayURL)
	}

	eng.coordinator = executor.New(cfg.Execution, eng.ledger, eng.breaker, eng.limits,
		settler, eng.markets, journal, executor.WithHealth(eng.health))
	eng.sweep = executor.NewSweep(cfg.Execution, eng.ledger, eng.breaker, settler,
		eng.markets, journal, eng.coordinator.Halt)

	if cfg.Signals.Enabled {
		source, err := signalsource.NewRedisSource(cfg.Signals.RedisAddr, cfg.Signals.Stream,
			eng.coordinator, eng.store, journal)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to signal stream: %w", err)
		}
		eng.source = source
		journal.Info("Connected to Redis signal stream %q", cfg.Signals.Stream)
	} else {
		journal.Warning("No REDIS_ADDR configured, signals only via admin API")
	}

	eng.adminServer = admin.NewServer(cfg.Admin.ListenAddr, eng.ledger, eng.breaker,
		eng.limits, eng.coordinator, eng.health, journal)

	return eng, nil
}

func (e *engine) run(ctx context.Context) {
	go e.coordinator.Run(ctx)
	go e.sweep.Run(ctx)

	if e.feedClient != nil {
		e.health.SetFeedConnected(true)
		go e.feedClient.Run(ctx)
	}
	if e.source != nil {
		go func() {
			if err := e.source.Run(ctx); err != nil && ctx.Err() == nil {
				e.journal.Error("Signal source stopped: %v", err)
			}
		}()
	}

	if err := e.adminServer.Start(); err != nil {
		e.journal.Error("Failed to start admin API: %v", err)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", monitoring.NewMetricsHandler())
		mux.Handle("/health", e.health)
		e.journal.Info("Metrics listening on %s", e.cfg.Admin.MetricsAddr)
		if err := http.ListenAndServe(e.cfg.Admin.MetricsAddr, mux); err != nil {
			e.journal.Error("Metrics server: %v", err)
		}
	}()

	e.journal.Info("Engine started with %.2f capital (%s mode)",
		e.cfg.Risk.StartingCapital, map[bool]string{true: "paper", false: "live"}[e.cfg.Execution.PaperMode])
}

// onBreakerTransition fans a breaker event out to the journal, metrics and
// the session log used in the shutdown report.
func (e *engine) onBreakerTransition(rec types.CircuitBreakerRecord) {
	e.journal.Breaker("%s %s: %s", rec.Status, rec.Reason, rec.Detail)
	monitoring.UpdateBreaker(rec)

	e.breakerMu.Lock()
	e.breakerLog = append(e.breakerLog, rec)
	e.breakerMu.Unlock()
}

func (e *engine) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.adminServer.Shutdown(shutdownCtx); err != nil {
		e.journal.Error("Admin API shutdown: %v", err)
	}
	if e.source != nil {
		e.source.Close()
	}

	e.printFinalReport()

	if e.store != nil {
		e.store.Close()
	}
	e.journal.Close()
}

func (e *engine) printFinalReport() {
	final, err := e.ledger.CurrentState()
	if err != nil {
		e.journal.Error("No final state for report: %v", err)
		return
	}

	e.breakerMu.Lock()
	breakers := append([]types.CircuitBreakerRecord{}, e.breakerLog...)
	e.breakerMu.Unlock()

	report := reporting.Build(e.startedAt, e.cfg.Risk.StartingCapital, final,
		e.ledger.AllTrades(), e.ledger.History(), breakers)

	reporting.NewConsoleReporter().PrintSummary(report)

	if e.cfg.Reporting.ExcelExport {
		path := filepath.Join(e.cfg.Reporting.OutputDir,
			fmt.Sprintf("session_%s.xlsx", time.Now().Format("2006-01-02_150405")))
		if err := reporting.NewExcelReporter().WriteXLSX(report, path); err != nil {
			e.journal.Error("Failed to write Excel report: %v", err)
		} else {
			e.journal.Info("Session report written to %s", path)
		}
	}
}

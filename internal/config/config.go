package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/predictdesk/polyrisk/pkg/types"
)

// Config carries everything the engine needs at startup. Values come from
// the environment (a .env file is loaded by the entrypoint when present)
// with defaults suitable for paper trading.
type Config struct {
	Environment string
	LogDir      string

	Risk      RiskConfig
	Execution ExecutionConfig
	Feed      FeedConfig
	Signals   SignalsConfig
	Storage   StorageConfig
	Admin     AdminConfig
	Reporting ReportingConfig
}

// RiskConfig holds starting capital plus the initial risk limits. Limits
// can be changed at runtime through the admin API; these are the boot values.
type RiskConfig struct {
	StartingCapital       float64
	MaxPositionSizePct    float64
	DailyDrawdownLimitPct float64
	MaxCorrelation        float64
	MinMarketLiquidity    float64
	MaxDailyTrades        int
	CooldownAfterLosses   int
	CooldownPeriod        time.Duration
	KellyFraction         float64
	MinEdge               float64
}

// ExecutionConfig controls the coordinator pipeline and the exit sweep.
type ExecutionConfig struct {
	GatewayURL        string
	PaperMode         bool
	PaperSlippagePct  float64
	FeePct            float64
	SettlementTimeout time.Duration
	StalenessWindow   time.Duration
	SlippageTolerance float64
	SweepInterval     time.Duration
	MaxHoldTime       time.Duration
	StopLossPct       float64
}

// FeedConfig points at the market-data websocket.
type FeedConfig struct {
	WebsocketURL string
	Enabled      bool
}

// SignalsConfig points at the Redis stream strategy collaborators publish to.
type SignalsConfig struct {
	RedisAddr string
	Stream    string
	Enabled   bool
}

// StorageConfig points at the Postgres persistence layer. Empty URL runs
// the engine without durable records (paper mode).
type StorageConfig struct {
	PostgresURL string
}

// AdminConfig holds the operator-facing HTTP listeners.
type AdminConfig struct {
	ListenAddr  string
	MetricsAddr string
}

// ReportingConfig controls the shutdown report.
type ReportingConfig struct {
	OutputDir   string
	ExcelExport bool
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Environment: getEnv("ENV", "development"),
		LogDir:      getEnv("LOG_DIR", "logs"),

		Risk: RiskConfig{
			StartingCapital:       getEnvFloat("STARTING_CAPITAL", 50000.0),
			MaxPositionSizePct:    getEnvFloat("MAX_POSITION_SIZE_PCT", 0.02),
			DailyDrawdownLimitPct: getEnvFloat("DAILY_DRAWDOWN_LIMIT_PCT", 0.08),
			MaxCorrelation:        getEnvFloat("MAX_CORRELATION", 0.6),
			MinMarketLiquidity:    getEnvFloat("MIN_MARKET_LIQUIDITY", 5000.0),
			MaxDailyTrades:        getEnvInt("MAX_DAILY_TRADES", 20),
			CooldownAfterLosses:   getEnvInt("COOLDOWN_AFTER_LOSSES", 3),
			CooldownPeriod:        getEnvDuration("COOLDOWN_PERIOD", 60*time.Minute),
			KellyFraction:         getEnvFloat("KELLY_FRACTION", 0.5),
			MinEdge:               getEnvFloat("MIN_EDGE", 0.03),
		},

		Execution: ExecutionConfig{
			GatewayURL:        getEnv("GATEWAY_URL", "http://localhost:8300"),
			PaperMode:         getEnvBool("PAPER_MODE", true),
			PaperSlippagePct:  getEnvFloat("PAPER_SLIPPAGE_PCT", 0.001),
			FeePct:            getEnvFloat("FEE_PCT", 0.01),
			SettlementTimeout: getEnvDuration("SETTLEMENT_TIMEOUT", 30*time.Second),
			StalenessWindow:   getEnvDuration("STALENESS_WINDOW", 5*time.Minute),
			SlippageTolerance: getEnvFloat("SLIPPAGE_TOLERANCE", 0.02),
			SweepInterval:     getEnvDuration("SWEEP_INTERVAL", 10*time.Second),
			MaxHoldTime:       getEnvDuration("MAX_HOLD_TIME", 24*time.Hour),
			StopLossPct:       getEnvFloat("STOP_LOSS_PCT", 0.25),
		},

		Feed: FeedConfig{
			WebsocketURL: getEnv("FEED_WS_URL", ""),
			Enabled:      getEnv("FEED_WS_URL", "") != "",
		},

		Signals: SignalsConfig{
			RedisAddr: getEnv("REDIS_ADDR", ""),
			Stream:    getEnv("SIGNAL_STREAM", "signals"),
			Enabled:   getEnv("REDIS_ADDR", "") != "",
		},

		Storage: StorageConfig{
			PostgresURL: getEnv("POSTGRES_URL", ""),
		},

		Admin: AdminConfig{
			ListenAddr:  getEnv("ADMIN_ADDR", ":8080"),
			MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		},

		Reporting: ReportingConfig{
			OutputDir:   getEnv("REPORT_DIR", "reports"),
			ExcelExport: getEnvBool("REPORT_EXCEL", true),
		},
	}
}

// Limits converts the boot risk config into the runtime limit set.
func (c *Config) Limits() types.RiskLimits {
	return types.RiskLimits{
		MaxPositionSizePct:    c.Risk.MaxPositionSizePct,
		DailyDrawdownLimitPct: c.Risk.DailyDrawdownLimitPct,
		MaxCorrelation:        c.Risk.MaxCorrelation,
		MinMarketLiquidity:    c.Risk.MinMarketLiquidity,
		MaxDailyTrades:        c.Risk.MaxDailyTrades,
		CooldownAfterLosses:   c.Risk.CooldownAfterLosses,
		CooldownPeriod:        c.Risk.CooldownPeriod,
		KellyFraction:         c.Risk.KellyFraction,
		MinEdge:               c.Risk.MinEdge,
	}
}

// Validate catches configuration that cannot possibly trade safely.
func (c *Config) Validate() error {
	if c.Risk.StartingCapital <= 0 {
		return fmt.Errorf("starting capital must be positive, got %.2f", c.Risk.StartingCapital)
	}
	if c.Risk.MaxPositionSizePct <= 0 || c.Risk.MaxPositionSizePct > 1 {
		return fmt.Errorf("max position size pct must be in (0,1], got %.4f", c.Risk.MaxPositionSizePct)
	}
	if c.Risk.KellyFraction <= 0 || c.Risk.KellyFraction > 1 {
		return fmt.Errorf("kelly fraction must be in (0,1], got %.4f", c.Risk.KellyFraction)
	}
	if !c.Execution.PaperMode && c.Execution.GatewayURL == "" {
		return fmt.Errorf("live mode requires GATEWAY_URL")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/predictdesk/polyrisk/pkg/types"
)

var (
	// Signal pipeline metrics
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyrisk_signals_total",
			Help: "Total number of signals processed, by terminal result",
		},
		[]string{"result"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyrisk_rejections_total",
			Help: "Total number of rejected signals, by rule",
		},
		[]string{"reason"},
	)

	// Trading metrics
	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyrisk_trades_total",
			Help: "Total number of trades opened, by side",
		},
		[]string{"side"},
	)

	closesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyrisk_closes_total",
			Help: "Total number of trades closed, by exit reason",
		},
		[]string{"reason"},
	)

	fillSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "polyrisk_fill_size",
			Help:    "Distribution of filled position sizes in capital terms",
			Buckets: prometheus.ExponentialBuckets(10, 2.5, 10),
		},
	)

	// Portfolio metrics
	totalCapital = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyrisk_total_capital",
			Help: "Current total capital",
		},
	)

	availableCapital = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyrisk_available_capital",
			Help: "Capital not committed to open positions",
		},
	)

	dailyDrawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyrisk_daily_drawdown",
			Help: "Realized loss today as a fraction of total capital",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyrisk_open_positions",
			Help: "Number of currently open positions",
		},
	)

	// Breaker metrics
	breakerActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "polyrisk_breaker_active",
			Help: "1 while the named circuit breaker halts trading",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(signalsTotal)
	prometheus.MustRegister(rejectionsTotal)
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(closesTotal)
	prometheus.MustRegister(fillSize)
	prometheus.MustRegister(totalCapital)
	prometheus.MustRegister(availableCapital)
	prometheus.MustRegister(dailyDrawdown)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(breakerActive)
}

// MetricsHandler serves the Prometheus scrape endpoint.
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordSignal counts one signal reaching a terminal status.
func RecordSignal(result types.ExecutionResult) {
	signalsTotal.WithLabelValues(string(result.Status)).Inc()
	if result.Status == types.ExecutionRejected && result.Decision.Reason != "" {
		rejectionsTotal.WithLabelValues(string(result.Decision.Reason)).Inc()
	}
}

// RecordOpen counts one committed trade.
func RecordOpen(side types.Side, size float64) {
	tradesTotal.WithLabelValues(string(side)).Inc()
	fillSize.Observe(size)
}

// RecordClose counts one closed trade by exit reason.
func RecordClose(reason string) {
	closesTotal.WithLabelValues(reason).Inc()
}

// UpdatePortfolio publishes the latest snapshot gauges.
func UpdatePortfolio(snap types.PortfolioSnapshot) {
	totalCapital.Set(snap.TotalCapital)
	availableCapital.Set(snap.AvailableCapital)
	dailyDrawdown.Set(snap.DailyDrawdown)
	openPositions.Set(float64(snap.OpenPositions))
}

// UpdateBreaker publishes a breaker transition.
func UpdateBreaker(rec types.CircuitBreakerRecord) {
	if rec.Status == types.BreakerActive {
		breakerActive.WithLabelValues(string(rec.Reason)).Set(1)
	} else {
		breakerActive.WithLabelValues(string(rec.Reason)).Set(0)
	}
}

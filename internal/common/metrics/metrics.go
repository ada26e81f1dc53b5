package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Poll loop metrics

	// PollTicks tracks completed poll loop ticks
	PollTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirrord",
			Subsystem: "poll",
			Name:      "ticks_total",
			Help:      "Total poll loop ticks",
		},
	)

	// PollMessagesFetched tracks messages fetched per source
	PollMessagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirrord",
			Subsystem: "poll",
			Name:      "messages_fetched_total",
			Help:      "Total messages fetched from source channels",
		},
		[]string{"source"},
	)

	// PollBatchDuration tracks per-source batch processing duration
	PollBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirrord",
			Subsystem: "poll",
			Name:      "batch_duration_seconds",
			Help:      "Time to fetch and dispatch one batch for a source",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// PollSkips tracks skipped poller ticks by reason
	PollSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirrord",
			Subsystem: "poll",
			Name:      "skips_total",
			Help:      "Total poller ticks skipped",
		},
		[]string{"source", "reason"}, // reason: no_session, no_jobs, fetch_error
	)

	// PollFailovers tracks poll-session failover events
	PollFailovers = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirrord",
			Subsystem: "poll",
			Name:      "failovers_total",
			Help:      "Total poll session failover events",
		},
	)

	// Republisher metrics

	// PublishResults tracks republish outcomes
	PublishResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirrord",
			Subsystem: "publish",
			Name:      "results_total",
			Help:      "Total republish attempts by transport and result",
		},
		[]string{"transport", "result"}, // transport: user, bot; result: success, failed
	)

	// PublishDuration tracks republish duration
	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirrord",
			Subsystem: "publish",
			Name:      "duration_seconds",
			Help:      "Time to republish one message",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"transport"},
	)

	// MediaDownloads tracks media download outcomes
	MediaDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirrord",
			Subsystem: "publish",
			Name:      "media_downloads_total",
			Help:      "Total media download attempts",
		},
		[]string{"result"}, // result: ok, too_large, error
	)

	// MediaBytes tracks downloaded media sizes
	MediaBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirrord",
			Subsystem: "publish",
			Name:      "media_bytes",
			Help:      "Size of downloaded media",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	// Job metrics

	// JobCursorAdvances tracks cursor advancement events
	JobCursorAdvances = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirrord",
			Subsystem: "jobs",
			Name:      "cursor_advances_total",
			Help:      "Total job cursor advancement events",
		},
	)

	// JobsActive tracks the number of configured jobs
	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mirrord",
			Subsystem: "jobs",
			Name:      "active",
			Help:      "Number of configured mirror jobs",
		},
	)

	// Session metrics

	// SessionsOnline tracks sessions currently online
	SessionsOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mirrord",
			Subsystem: "session",
			Name:      "online",
			Help:      "Number of sessions currently online",
		},
	)

	// SessionsTotal tracks discovered sessions
	SessionsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mirrord",
			Subsystem: "session",
			Name:      "total",
			Help:      "Number of discovered session files",
		},
	)

	// SessionHealthChecks tracks health probe outcomes
	SessionHealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirrord",
			Subsystem: "session",
			Name:      "health_checks_total",
			Help:      "Total session health probes",
		},
		[]string{"result"}, // result: ok, dead, terminal
	)

	// Join governor metrics

	// JoinAttempts tracks channel join attempts
	JoinAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirrord",
			Subsystem: "join",
			Name:      "attempts_total",
			Help:      "Total channel join attempts",
		},
		[]string{"result"}, // result: ok, flood_wait, private, admin_required, error
	)

	// Notification metrics

	// AlertsSent tracks alerts delivered to the sink
	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirrord",
			Subsystem: "notification",
			Name:      "alerts_sent_total",
			Help:      "Total alerts sent",
		},
		[]string{"event"},
	)

	// AlertsFailed tracks alert delivery failures
	AlertsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirrord",
			Subsystem: "notification",
			Name:      "alerts_failed_total",
			Help:      "Total alert delivery failures",
		},
	)

	// Login metrics

	// LoginsStarted tracks started interactive logins
	LoginsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirrord",
			Subsystem: "login",
			Name:      "started_total",
			Help:      "Total interactive logins started",
		},
	)

	// LoginsCompleted tracks finished interactive logins
	LoginsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirrord",
			Subsystem: "login",
			Name:      "completed_total",
			Help:      "Total interactive logins finished",
		},
		[]string{"result"}, // result: ok, error, expired, cancelled
	)

	// State store metrics

	// StateSnapshotWrites tracks snapshot persistence attempts
	StateSnapshotWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirrord",
			Subsystem: "state",
			Name:      "snapshot_writes_total",
			Help:      "Total snapshot writes",
		},
		[]string{"result"}, // result: ok, error
	)

	// Bot transport metrics

	// BotHTTPRequests tracks bot API calls
	BotHTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirrord",
			Subsystem: "bot",
			Name:      "http_requests_total",
			Help:      "Total bot API HTTP requests",
		},
		[]string{"method", "result"}, // method: sendMessage, sendPhoto, sendDocument
	)

	// BotCircuitBreakerState tracks circuit breaker state
	// 0 = closed (healthy), 1 = open (tripped), 2 = half-open (testing)
	BotCircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mirrord",
			Subsystem: "bot",
			Name:      "circuit_breaker_state",
			Help:      "Bot transport circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)
)

// CircuitBreakerState constants
const (
	CircuitBreakerClosed   = 0
	CircuitBreakerOpen     = 1
	CircuitBreakerHalfOpen = 2
)

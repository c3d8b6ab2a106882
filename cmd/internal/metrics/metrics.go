package metrics

import (
	"net/http"
	"time"

	"github.com/metal-stack/backup-rotator/cmd/internal/retention"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics contains the collected metrics
type Metrics struct {
	totalBackups    prometheus.Counter
	backupSuccess   prometheus.Gauge
	backupSize      prometheus.Gauge
	totalErrors     *prometheus.CounterVec
	retained        *prometheus.GaugeVec
	rotationActions *prometheus.CounterVec
}

// New generates new metrics
func New() *Metrics {
	backupSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "backup_success",
		Help: "is 1 when the last backup was successful, otherwise 0",
	},
	)

	totalBackups := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backup_total_backups",
		Help: "total number of successful backups",
	},
	)

	totalErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backup_errors",
		Help: "total number of errors during backups",
	},
		[]string{"operation"},
	)

	backupSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "backup_size",
		Help: "size of last backup in bytes",
	},
	)

	retained := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backup_retained",
		Help: "number of backups retained per tier",
	},
		[]string{"tier"},
	)

	rotationActions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backup_rotation_actions",
		Help: "total number of applied rotation actions",
	},
		[]string{"action", "tier"},
	)

	return &Metrics{
		totalBackups:    totalBackups,
		backupSuccess:   backupSuccess,
		totalErrors:     totalErrors,
		backupSize:      backupSize,
		retained:        retained,
		rotationActions: rotationActions,
	}
}

// Register registers all metrics at the given registerer
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.backupSuccess,
		m.totalBackups,
		m.totalErrors,
		m.backupSize,
		m.retained,
		m.rotationActions,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Start registers the metrics and starts the metrics server
func (m *Metrics) Start(log *zap.SugaredLogger, addr string) error {
	log.Infow("starting metrics server", "addr", addr)

	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte(`<html>
			<head><title>backup-rotator metrics</title></head>
			<body>
			<h1>backup-rotator metrics</h1>
			<p><a href='/metrics'>Metrics</a></p></body></html>`))
		if err != nil {
			log.Errorw("error handling metrics root endpoint", "error", err)
		}
	})

	go func() {
		server := http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 1 * time.Minute,
		}
		err := server.ListenAndServe()
		if err != nil {
			log.Fatal(err)
		}
	}()

	return nil
}

// CountBackup updates metrics counter
func (m *Metrics) CountBackup(size int64) {
	m.totalBackups.Inc()
	m.backupSuccess.Set(1)
	m.backupSize.Set(float64(size))
}

// CountError increases error counter for the given operation
func (m *Metrics) CountError(op string) {
	m.totalErrors.With(prometheus.Labels{"operation": op}).Inc()
	m.backupSuccess.Set(0)
}

// CountNotifyError increases the error counter for failed status notifications.
// The outcome of the backup itself is not affected.
func (m *Metrics) CountNotifyError() {
	m.totalErrors.With(prometheus.Labels{"operation": "notify"}).Inc()
}

// CountAction increases the counter of applied rotation actions
func (m *Metrics) CountAction(a retention.Action) {
	m.rotationActions.With(prometheus.Labels{"action": string(a.Kind), "tier": a.From.String()}).Inc()
}

// SetRetained updates the number of retained backups per tier
func (m *Metrics) SetRetained(state *retention.State) {
	for _, tier := range retention.Tiers {
		m.retained.With(prometheus.Labels{"tier": tier.String()}).Set(float64(len(state.Tier(tier))))
	}
}

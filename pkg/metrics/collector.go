// Package metrics は生成処理の Prometheus メトリクスを提供します。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
)

// Namespace はすべてのメトリクス名の接頭辞です。
const Namespace = "photo_relay"

// Collector はメトリクスの集合です。並行利用できます。
type Collector struct {
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	pollAttemptsTotal  *prometheus.CounterVec
	loginsTotal        *prometheus.CounterVec
}

// NewCollector は reg にメトリクスを登録します。reg が nil の場合は既定のレジストリを使います。
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		generationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "generations_total",
				Help:      "Total number of generation requests by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "generation_duration_seconds",
				Help:      "End-to-end generation latency in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90, 120},
			},
			[]string{"provider"},
		),
		pollAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "poll_attempts_total",
				Help:      "Total number of job status polls",
			},
			[]string{"provider", "result"},
		),
		loginsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "logins_total",
				Help:      "Total number of login attempts",
			},
			[]string{"result"},
		),
	}
}

// ObserveGeneration は生成 1 件の結果を記録します。kind が空なら成功です。
func (c *Collector) ObserveGeneration(provider string, kind domain.ErrorKind, elapsed time.Duration) {
	outcome := "success"
	if kind != "" {
		outcome = string(kind)
	}
	c.generationsTotal.WithLabelValues(provider, outcome).Inc()
	c.generationDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObservePoll は poller.Poller.OnTick に渡すためのフックです。
func (c *Collector) ObservePoll(provider string, attempt int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.pollAttemptsTotal.WithLabelValues(provider, result).Inc()
}

// ObserveLogin はログイン試行を記録します。
func (c *Collector) ObserveLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.loginsTotal.WithLabelValues(result).Inc()
}

// Package metrics собирает Prometheus-метрики координатора освещения.
// Все методы Collectors допускают nil-получатель: без метрик код работает так же.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lightsync"

// Collectors набор метрик координатора
type Collectors struct {
	writes          *prometheus.CounterVec
	recalculations  *prometheus.CounterVec
	spinRetries     prometheus.Counter
	closingWaits    prometheus.Counter
	syncUnavailable prometheus.Counter
	exclusive       prometheus.Histogram
	pendingPoints   *prometheus.GaugeVec
	tasksSubmitted  prometheus.Counter
	taskFailures    prometheus.Counter
	resendFlushes   prometheus.Counter
	resendRegions   prometheus.Counter
}

// NewCollectors создаёт метрики и регистрирует их в reg.
// nil reg означает prometheus.DefaultRegisterer.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collectors{
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "light_writes_total",
			Help:      "Запросы на запись уровня света по варианту и результату.",
		}, []string{"variant", "result"}),
		recalculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recalculations_total",
			Help:      "Запросы на пересчёт освещения по варианту и результату.",
		}, []string{"variant", "result"}),
		spinRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_spin_retries_total",
			Help:      "Неудачные попытки CAS при захвате Busy.",
		}),
		closingWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_closing_waits_total",
			Help:      "Переходы в ожидание с таймаутом из-за флага Closing.",
		}),
		syncUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_unavailable_total",
			Help:      "Сколько раз рабочий цикл так и не освободился за время ожидания.",
		}),
		exclusive: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exclusive_section_seconds",
			Help:      "Длительность эксклюзивной секции, включая ожидание захвата.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		pendingPoints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_points",
			Help:      "Точки света, ожидающие пересчёта.",
		}, []string{"world", "channel"}),
		tasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "propagation_tasks_submitted_total",
			Help:      "Задачи распространения, отправленные в очередь хоста.",
		}),
		taskFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "propagation_task_failures_total",
			Help:      "Задачи распространения, завершившиеся неудачей.",
		}),
		resendFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resend_flushes_total",
			Help:      "Отправленные пакеты LightUpdate.",
		}),
		resendRegions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resend_regions_total",
			Help:      "Колонны, отправленные в пакетах LightUpdate.",
		}),
	}
	reg.MustRegister(
		c.writes, c.recalculations, c.spinRetries, c.closingWaits, c.syncUnavailable,
		c.exclusive, c.pendingPoints, c.tasksSubmitted, c.taskFailures,
		c.resendFlushes, c.resendRegions,
	)
	return c
}

func (c *Collectors) Write(variant, result string) {
	if c == nil {
		return
	}
	c.writes.WithLabelValues(variant, result).Inc()
}

func (c *Collectors) Recalculate(variant, result string) {
	if c == nil {
		return
	}
	c.recalculations.WithLabelValues(variant, result).Inc()
}

func (c *Collectors) SpinRetry() {
	if c == nil {
		return
	}
	c.spinRetries.Inc()
}

func (c *Collectors) ClosingWait() {
	if c == nil {
		return
	}
	c.closingWaits.Inc()
}

func (c *Collectors) SyncUnavailable() {
	if c == nil {
		return
	}
	c.syncUnavailable.Inc()
}

// ObserveExclusive записывает длительность с момента start
func (c *Collectors) ObserveExclusive(start time.Time) {
	if c == nil {
		return
	}
	c.exclusive.Observe(time.Since(start).Seconds())
}

func (c *Collectors) SetPending(world, channel string, n int) {
	if c == nil {
		return
	}
	c.pendingPoints.WithLabelValues(world, channel).Set(float64(n))
}

func (c *Collectors) TaskSubmitted() {
	if c == nil {
		return
	}
	c.tasksSubmitted.Inc()
}

func (c *Collectors) TaskFailed() {
	if c == nil {
		return
	}
	c.taskFailures.Inc()
}

// ResendFlush учитывает отправленный пакет из regions колонн
func (c *Collectors) ResendFlush(regions int) {
	if c == nil {
		return
	}
	c.resendFlushes.Inc()
	c.resendRegions.Add(float64(regions))
}

package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ravskel/conveyor/internal/domain"
	"github.com/ravskel/conveyor/internal/events"
)

// Метрики ядра. Экспортируются на /metrics стандартным promhttp-handler'ом.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_runs_total",
		Help: "Runs, достигшие терминального статуса, по статусам",
	}, []string{"status"})

	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_tasks_total",
		Help: "Задачи, достигшие терминального статуса, по статусам",
	}, []string{"status"})

	taskRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_task_retries_total",
		Help: "Запланированные повторы задач",
	})

	gateWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_gate_warnings_total",
		Help: "Предупреждения quality gate (warn-правила и advisory-провалы)",
	})

	tasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "conveyor_tasks_in_flight",
		Help: "Задачи, выполняющиеся прямо сейчас",
	})
)

// MetricsSink транслирует события жизненного цикла в Prometheus-метрики.
//
// Sink не хранит состояния: метрики — package-level, как и положено
// prometheus-клиенту; MetricsSink лишь адаптирует их к events.Sink.
type MetricsSink struct{}

// NewMetricsSink создаёт sink метрик.
func NewMetricsSink() *MetricsSink {
	return &MetricsSink{}
}

// Emit реализует events.Sink.
func (*MetricsSink) Emit(_ context.Context, ev events.Event) error {
	switch ev.Kind {
	case events.KindRunStatus:
		if domain.RunStatus(ev.NewStatus).IsTerminal() {
			runsTotal.WithLabelValues(ev.NewStatus).Inc()
		}
	case events.KindTaskStatus:
		if ev.NewStatus == string(domain.TaskStatusRunning) {
			tasksInFlight.Inc()
		}
		if ev.OldStatus == string(domain.TaskStatusRunning) {
			tasksInFlight.Dec()
		}
		if domain.TaskStatus(ev.NewStatus).IsTerminal() {
			tasksTotal.WithLabelValues(ev.NewStatus).Inc()
		}
	case events.KindTaskRetry:
		taskRetriesTotal.Inc()
	case events.KindGateWarning:
		gateWarningsTotal.Inc()
	}
	return nil
}

// Package telemetry — наблюдаемость conveyor поверх потока событий ядра.
//
// logging.go настраивает slog для бинарей (conveyor-server,
// conveyor-scheduler) и даёт хелперы скоупированных логгеров: контроллер
// помечает записи run'а ключами run_id/pipeline, Runner — task_id.
//
// metrics.go реализует events.Sink, переводящий события жизненного цикла
// в Prometheus-метрики: счётчики run'ов и задач по терминальным статусам,
// счётчики повторов и gate-предупреждений, gauge задач в полёте.
// Ядро метрик не считает — оно только эмитит события.
package telemetry

// Package mq публикует события жизненного цикла в RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением (reconnect, graceful shutdown)
//   - topology.go   — объявление exchange, очереди, binding'ов
//   - publisher.go  — Publisher: events.Sink поверх AMQP
//   - consumer.go   — Tailer: подписка на поток событий (conveyor-cli events tail)
//
// Топология одна: topic-exchange conveyor.events, routing key — вид
// события (run.status, task.status, task.retry, gate.warning).
// Аудит-очередь conveyor.events.audit подписана на всё.
package mq

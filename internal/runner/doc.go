// Package runner выполняет одну задачу: вызывает операцию коннектора
// под таймаутом попытки, классифицирует исход, повторяет retryable-сбои
// по политике задачи и отдаёт успешный Dataset в quality gate.
//
// Ошибки уровня задачи никогда не выбрасываются наружу — они
// записываются в TaskRecord и двигают skip-propagation планировщика.
// Runner эмитит событие на каждый переход статуса и сам ничего
// не логирует в формате метрик — это дело sink'ов.
package runner

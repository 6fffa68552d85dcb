// Package state содержит state store — единственный источник правды
// о выполнении run'ов.
//
// Включает:
//   - store.go       — контракт Store и допустимые переходы статусов
//   - fingerprint.go — отпечаток PipelineSpec для детекции дрейфа графа
//   - memory.go      — in-memory реализация (тесты, embedded-режим)
//   - postgres.go    — Postgres реализация поверх pgx (crash-resume)
//
// Переход статуса задачи атомарен per task: in-memory store работает
// под мьютексом с copy-out семантикой, Postgres — через UPDATE,
// охраняемый ожидаемым старым статусом (compare-and-swap).
package state

// Package connector определяет контракт между ядром и коннекторами.
//
// Включает:
//   - connector.go — интерфейсы Extractor/Transformer/Loader/Checker
//   - registry.go  — реестр реализаций по имени
//   - errors.go    — таксономия ошибок коннекторов (retryable/fatal)
//
// Конкретные коннекторы (БД, API, файлы) — внешние коллабораторы.
// Ядро вызывает их через узкие интерфейсы и считает операции
// непрозрачными: возможно медленными, возможно падающими.
package connector

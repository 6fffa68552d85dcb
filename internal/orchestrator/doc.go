// Package orchestrator управляет выполнением run'ов.
//
// Включает:
//   - scheduler.go  — диспатч готовых задач в ограниченный пул воркеров,
//     пересчёт готовности по завершениям, skip-propagation
//   - controller.go — внешний контракт: Submit / Status / Abort / Resume,
//     машина состояний run'а
//   - errors.go     — ошибки контроллера
//
// Orchestrator — «мозг» ядра: он не выполняет задачи сам (это Runner)
// и не хранит состояние (это state store), а решает, что и когда
// запускать, и доводит run до терминального статуса.
package orchestrator

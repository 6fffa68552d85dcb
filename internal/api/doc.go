// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go     — Handler с DI (контроллер, logger)
//   - routes.go      — регистрация маршрутов
//   - middleware.go  — middleware (logging, recovery)
//   - response.go    — унифицированные JSON-ответы и обработка ошибок
//   - dto.go         — Data Transfer Objects (request/response)
//   - run_handler.go — обработчики для /runs
//
// API предоставляет REST endpoints поверх контроллера пайплайнов:
// submit, status, abort, resume.
package api

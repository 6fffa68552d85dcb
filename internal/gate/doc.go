// Package gate содержит quality gate — проверку свежепроизведённого
// Dataset перед тем, как он станет доступен задачам ниже по графу.
//
// Сами правила (not_null, range, пороги строк, схема, custom predicate)
// оценивает внешний Checker-коллаборатор; gate интерпретирует результаты
// по политике задачи: strict / quarantine / advisory. Gate никогда
// не мутирует Dataset — только классифицирует его.
package gate

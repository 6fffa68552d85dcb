// Package engine содержит граф задач пайплайна.
//
// Включает:
//   - graph.go  — построение графа, валидация, поиск циклов, слои
//   - errors.go — ошибки валидации графа
//
// Engine отвечает за понимание структуры пайплайна: какие задачи
// существуют, кто от кого зависит и в каком порядке их можно выполнять.
// Граф строится один раз до старта run и во время выполнения read-only;
// статусы задач живут отдельно, в state store.
package engine

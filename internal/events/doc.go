// Package events определяет контракт наблюдаемости ядра.
//
// Ядро эмитит упорядоченный поток событий жизненного цикла run и задач;
// форматирование, персистентность и метрики — дело внешних sink'ов.
// Контракт — явная эмиссия в Sink, а не регистрация callback'ов:
// поведение ядра не зависит от конкретного примитива конкуренции
// на стороне потребителя.
package events

package connector

import (
	"context"
	"errors"
	"fmt"
)

// Базовые виды ошибок коннекторов.
//
// Retryable или fatal — классификация самого коннектора: ядро не
// пытается угадать по тексту ошибки, а смотрит на обёртку.
var (
	// ErrConnection — не удалось соединиться с источником/приёмником.
	ErrConnection = errors.New("connection error")

	// ErrAuth — ошибка аутентификации/авторизации.
	ErrAuth = errors.New("authentication error")

	// ErrNotFound — источник (таблица, файл, endpoint) не найден.
	ErrNotFound = errors.New("source not found")

	// ErrValidation — входные данные не проходят проверку трансформации.
	ErrValidation = errors.New("validation error")

	// ErrSchema — схема данных не соответствует ожидаемой.
	ErrSchema = errors.New("schema error")

	// ErrWrite — ошибка записи в приёмник.
	ErrWrite = errors.New("write error")

	// ErrConstraint — нарушение ограничения целостности приёмника.
	ErrConstraint = errors.New("constraint violation")

	// ErrUnknownConnector — нет зарегистрированного коннектора с таким именем.
	ErrUnknownConnector = errors.New("unknown connector")

	// ErrKindMismatch — коннектор не реализует требуемую операцию.
	ErrKindMismatch = errors.New("connector does not support operation")
)

// Error — ошибка коннектора с классификацией.
type Error struct {
	// Retryable — повтор попытки имеет смысл (сетевые сбои, блокировки).
	Retryable bool

	// Err — базовая ошибка (одна из Err* или собственная ошибка коннектора).
	Err error
}

// Error реализует интерфейс error.
func (e *Error) Error() string {
	return e.Err.Error()
}

// Unwrap возвращает базовую ошибку.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable помечает ошибку как временную.
func Retryable(err error) error {
	return &Error{Retryable: true, Err: err}
}

// Fatal помечает ошибку как постоянную.
func Fatal(err error) error {
	return &Error{Retryable: false, Err: err}
}

// Retryablef — retryable-ошибка с форматированием.
func Retryablef(format string, args ...any) error {
	return &Error{Retryable: true, Err: fmt.Errorf(format, args...)}
}

// Fatalf — fatal-ошибка с форматированием.
func Fatalf(format string, args ...any) error {
	return &Error{Retryable: false, Err: fmt.Errorf(format, args...)}
}

// IsRetryable сообщает, стоит ли повторять операцию после ошибки.
//
// Ошибки без классификации считаются фатальными: повтор заведомо
// неклассифицированного сбоя — решение коннектора, не ядра.
// Таймаут контекста классифицируется отдельно (Runner'ом).
func IsRetryable(err error) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Retryable
	}
	return false
}

// IsTimeout сообщает, что операция упёрлась в дедлайн попытки.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

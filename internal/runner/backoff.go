package runner

import (
	"math/rand"
	"time"

	"github.com/ravskel/conveyor/internal/domain"
)

// Значения по умолчанию для backoff.
const (
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 30 * time.Second
)

// Delay — чистая функция от (номер попытки, политика) к задержке перед
// следующей попыткой. attempt — номер только что завершившейся попытки,
// начиная с 1.
//
// Кривая задаётся политикой: "fixed" — всегда InitialDelay,
// "exponential" — InitialDelay * 2^(attempt-1) с потолком MaxDelay.
func Delay(attempt int, policy *domain.RetryPolicy) time.Duration {
	if policy == nil {
		return defaultInitialDelay
	}

	initial := time.Duration(policy.InitialDelayMs) * time.Millisecond
	if initial <= 0 {
		initial = defaultInitialDelay
	}

	maxDelay := time.Duration(policy.MaxDelayMs) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	var delay time.Duration
	switch policy.Backoff {
	case domain.BackoffExponential:
		delay = initial
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay >= maxDelay {
				delay = maxDelay
				break
			}
		}
	default:
		// "fixed" или не задано.
		delay = initial
	}

	if delay > maxDelay {
		delay = maxDelay
	}

	return delay
}

// WithJitter добавляет к задержке случайный разброс ±pct процентов.
// pct вне диапазона (0, 100] возвращает задержку без изменений.
func WithJitter(delay time.Duration, pct int) time.Duration {
	if pct <= 0 || pct > 100 {
		return delay
	}
	span := delay * time.Duration(pct) / 100
	if span <= 0 {
		return delay
	}
	// Равномерно в [delay-span, delay+span].
	return delay - span + time.Duration(rand.Int63n(int64(2*span)+1))
}

// NextDelay комбинирует кривую политики с её джиттером.
func NextDelay(attempt int, policy *domain.RetryPolicy) time.Duration {
	delay := Delay(attempt, policy)
	if policy != nil {
		delay = WithJitter(delay, policy.JitterPct)
	}
	return delay
}

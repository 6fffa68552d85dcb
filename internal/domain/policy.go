package domain

// RetryPolicy — политика повторов задачи.
//
// Повторяются только retryable-ошибки коннектора и таймауты.
// Провал quality gate политикой retry не управляется.
type RetryPolicy struct {
	// MaxAttempts — максимальное число попыток (включая первую).
	MaxAttempts int `json:"max_attempts"`

	// Backoff — кривая задержки: "fixed" или "exponential".
	Backoff string `json:"backoff,omitempty"`

	// InitialDelayMs — начальная задержка перед повтором (default: 1000).
	InitialDelayMs int `json:"initial_delay_ms,omitempty"`

	// MaxDelayMs — потолок задержки (default: 30000).
	MaxDelayMs int `json:"max_delay_ms,omitempty"`

	// JitterPct — случайный разброс задержки в процентах (0..100).
	// Ноль — без джиттера, задержка детерминирована.
	JitterPct int `json:"jitter_pct,omitempty"`
}

// Кривые backoff.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// GatePolicy — политика quality gate задачи.
type GatePolicy string

const (
	// GateStrict — любой fail правила: задача FAILED, Dataset отбрасывается,
	// нетолерантные потребители пропускаются.
	GateStrict GatePolicy = "strict"

	// GateQuarantine — fail правила: задача QUARANTINED, Dataset сохраняется
	// с флагом; потреблять его могут только карантин-толерантные задачи.
	GateQuarantine GatePolicy = "quarantine"

	// GateAdvisory — fail правила лишь эмитит warning-событие,
	// задача всё равно SUCCEEDED.
	GateAdvisory GatePolicy = "advisory"
)

// GateSpec — декларация quality gate одной задачи.
type GateSpec struct {
	// Policy — политика реакции на fail (default: strict).
	Policy GatePolicy `json:"policy,omitempty"`

	// Rules — правила валидации, передаваемые внешнему Checker'у.
	Rules []Rule `json:"rules"`
}

// EffectivePolicy возвращает политику с учётом значения по умолчанию.
func (g *GateSpec) EffectivePolicy() GatePolicy {
	if g == nil || g.Policy == "" {
		return GateStrict
	}
	return g.Policy
}

// Rule — одно правило валидации Dataset.
//
// Семантика правила (not_null, range, min_rows, schema, custom predicate)
// принадлежит внешнему Checker-коллаборатору; ядро передаёт правило
// как есть и интерпретирует только статус результата.
type Rule struct {
	// Name — имя правила (для отчётов).
	Name string `json:"name"`

	// Type — тип проверки: not_null, range, min_rows, schema, custom.
	Type string `json:"type"`

	// Column — колонка, к которой применяется правило (если применимо).
	Column string `json:"column,omitempty"`

	// Params — параметры проверки (границы range, пороги и т.д.).
	Params map[string]any `json:"params,omitempty"`
}

// RuleStatus — результат оценки одного правила.
type RuleStatus string

const (
	RulePass RuleStatus = "pass"
	RuleWarn RuleStatus = "warn"
	RuleFail RuleStatus = "fail"
)

// RuleOutcome — результат применения одного правила к Dataset.
type RuleOutcome struct {
	// Rule — имя правила.
	Rule string `json:"rule"`

	// Status — pass, warn или fail.
	Status RuleStatus `json:"status"`

	// Detail — человекочитаемое пояснение (какие строки/значения нарушили).
	Detail string `json:"detail,omitempty"`
}

package connector

import (
	"fmt"

	"github.com/ravskel/conveyor/internal/domain"
)

// Registry — реестр коннекторов по имени.
//
// Одно имя может обслуживать несколько операций: реализация
// регистрируется один раз, а реестр проверяет при выборке, что она
// поддерживает вид задачи (extract/transform/load/check).
type Registry struct {
	connectors map[string]any
}

// NewRegistry создаёт пустой реестр.
// Конкретные коннекторы регистрирует вызывающая сторона —
// ядро не знает их внутренностей.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]any)}
}

// Register добавляет коннектор под именем name.
// impl обязан реализовывать хотя бы один из интерфейсов
// Extractor, Transformer, Loader, Checker.
func (r *Registry) Register(name string, impl any) error {
	switch impl.(type) {
	case Extractor, Transformer, Loader, Checker:
	default:
		return fmt.Errorf("connector %q implements no known operation", name)
	}
	r.connectors[name] = impl
	return nil
}

// MustRegister — Register с паникой при ошибке.
// Удобен для статической регистрации в main.
func (r *Registry) MustRegister(name string, impl any) {
	if err := r.Register(name, impl); err != nil {
		panic(err)
	}
}

// Extractor возвращает Extractor по имени.
func (r *Registry) Extractor(name string) (Extractor, error) {
	impl, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	e, ok := impl.(Extractor)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not extract", ErrKindMismatch, name)
	}
	return e, nil
}

// Transformer возвращает Transformer по имени.
func (r *Registry) Transformer(name string) (Transformer, error) {
	impl, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	t, ok := impl.(Transformer)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not transform", ErrKindMismatch, name)
	}
	return t, nil
}

// Loader возвращает Loader по имени.
func (r *Registry) Loader(name string) (Loader, error) {
	impl, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	l, ok := impl.(Loader)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not load", ErrKindMismatch, name)
	}
	return l, nil
}

// Checker возвращает Checker по имени.
func (r *Registry) Checker(name string) (Checker, error) {
	impl, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	c, ok := impl.(Checker)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not check", ErrKindMismatch, name)
	}
	return c, nil
}

// Supports проверяет, что коннектор name поддерживает вид задачи kind.
// Используется контроллером при валидации пайплайна до старта run.
func (r *Registry) Supports(name string, kind domain.TaskKind) error {
	var err error
	switch kind {
	case domain.TaskKindExtract:
		_, err = r.Extractor(name)
	case domain.TaskKindTransform:
		_, err = r.Transformer(name)
	case domain.TaskKindLoad:
		_, err = r.Loader(name)
	case domain.TaskKindCheck:
		_, err = r.Checker(name)
	default:
		err = fmt.Errorf("unknown task kind %q", kind)
	}
	return err
}

func (r *Registry) lookup(name string) (any, error) {
	impl, ok := r.connectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnector, name)
	}
	return impl, nil
}

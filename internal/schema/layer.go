package schema

import (
	"fmt"
	"maps"

	"github.com/iudanet/crdtstore/internal/crdt"
	"github.com/iudanet/crdtstore/internal/models"
)

// Status результат чтения поля.
type Status uint8

const (
	// Unvalidated значение еще не проверено
	Unvalidated Status = iota
	// Valid значение прошло валидатор текущей версии
	Valid
	// Migrated значение старой версии преобразовано в памяти
	Migrated
	// Invalid значение не прошло валидацию, подставлено значение по умолчанию
	Invalid
	// NotFound значения нет, подставлено значение по умолчанию
	NotFound
)

func (s Status) String() string {
	switch s {
	case Unvalidated:
		return "unvalidated"
	case Valid:
		return "valid"
	case Migrated:
		return "migrated"
	case Invalid:
		return "invalid"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// FieldValue прочитанное значение поля.
type FieldValue struct {
	Value models.Value
	// Reason причина Invalid, оборачивает ErrInvalidShape
	Reason   error
	Name     string
	StableID string
	Status   Status
}

// Record значения всех полей текущей версии в порядке их объявления.
type Record []FieldValue

// Get ищет поле по отображаемому имени.
func (r Record) Get(name string) (FieldValue, bool) {
	for _, fv := range r {
		if fv.Name == name {
			return fv, true
		}
	}
	return FieldValue{}, false
}

// Values возвращает значения по отображаемым именам.
func (r Record) Values() map[string]models.Value {
	out := make(map[string]models.Value, len(r))
	for _, fv := range r {
		out[fv.Name] = fv.Value
	}
	return out
}

// Layer читает и пишет коллекцию через схему.
type Layer struct {
	store  *crdt.KeyedStore
	schema *Schema
}

// NewLayer создает слой схемы над коллекцией.
func NewLayer(store *crdt.KeyedStore, s *Schema) *Layer {
	return &Layer{store: store, schema: s}
}

// Schema returns the schema the layer reads with.
func (l *Layer) Schema() *Schema {
	return l.schema
}

// Read читает все поля текущей версии. Чтение не изменяет коллекцию
// и не завершается ошибкой из-за формы данных.
func (l *Layer) Read() Record {
	raw := maps.Collect(l.store.Entries())

	var (
		migrated map[string]models.Value
		tried    bool
	)

	current := l.schema.Current()
	rec := make(Record, 0, len(current.Fields))

	for _, f := range current.Fields {
		fv := FieldValue{Name: f.DisplayName, StableID: f.StableID, Status: Unvalidated}

		val, present := raw[f.StableID]
		var reason error
		if present {
			if reason = f.validate(val); reason == nil {
				fv.Value, fv.Status = val, Valid
				rec = append(rec, fv)
				continue
			}
		}

		if !tried {
			migrated = l.schema.migrate(raw)
			tried = true
		}

		mv, ok := migrated[f.StableID]
		switch {
		case ok && mv != nil && f.validate(mv) == nil:
			fv.Value, fv.Status = mv, Migrated
		case !present:
			fv.Value, fv.Status = f.defaultValue(), NotFound
		default:
			fv.Value, fv.Status, fv.Reason = f.defaultValue(), Invalid, reason
		}
		rec = append(rec, fv)
	}

	return rec
}

// Get читает одно поле по отображаемому имени.
func (l *Layer) Get(name string) (FieldValue, error) {
	if _, ok := l.schema.Field(name); !ok {
		return FieldValue{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	fv, _ := l.Read().Get(name)
	return fv, nil
}

// Set проверяет значение валидатором текущей версии и записывает его
// под стабильным идентификатором поля.
func (l *Layer) Set(name string, v models.Value) error {
	f, err := l.field(name, v)
	if err != nil {
		return err
	}
	return l.store.Set(f.StableID, v)
}

// Clear удаляет значение поля; последующее чтение вернет значение по умолчанию.
func (l *Layer) Clear(name string) error {
	f, ok := l.schema.Field(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return l.store.Delete(f.StableID)
}

// Upgrade явно записывает в коллекцию значения, которые Read получает
// миграцией. Возвращает количество записанных полей.
func (l *Layer) Upgrade() (int, error) {
	written := 0
	for _, fv := range l.Read() {
		if fv.Status != Migrated {
			continue
		}
		if err := l.store.Set(fv.StableID, fv.Value); err != nil {
			return written, fmt.Errorf("failed to upgrade %q: %w", fv.Name, err)
		}
		written++
	}
	return written, nil
}

func (l *Layer) field(name string, v models.Value) (Field, error) {
	f, ok := l.schema.Field(name)
	if !ok {
		return Field{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if err := f.validate(v); err != nil {
		return Field{}, fmt.Errorf("field %q: %w", name, err)
	}
	return f, nil
}

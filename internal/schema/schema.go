// Package schema задает версионированные схемы полей поверх crdt.KeyedStore.
//
// Записи хранятся под стабильными идентификаторами полей (StableID), поэтому
// переименование поля меняет только DisplayName и не требует миграции данных.
// Чтение через Layer никогда не изменяет хранилище: значения старых версий
// преобразуются в памяти, а невалидные и отсутствующие поля получают значение
// по умолчанию.
package schema

import (
	"errors"
	"fmt"
	"slices"

	"github.com/iudanet/crdtstore/internal/models"
)

// Field описывает одно поле схемы.
type Field struct {
	// Validator проверяет значение; nil принимает любое значение
	Validator Validator
	// Default подставляется для отсутствующих и невалидных значений; nil означает Null
	Default models.Value
	// StableID ключ, под которым значение хранится. Не меняется за время жизни поля
	StableID string
	// DisplayName имя поля для вызывающего кода; можно свободно переименовывать
	DisplayName string
}

func (f Field) validate(v models.Value) error {
	if f.Validator == nil {
		return nil
	}
	err := f.Validator.Validate(v)
	if err != nil && !errors.Is(err, ErrInvalidShape) {
		return fmt.Errorf("%w: %w", ErrInvalidShape, err)
	}
	return err
}

func (f Field) defaultValue() models.Value {
	if f.Default == nil {
		return models.Null{}
	}
	return models.Clone(f.Default)
}

// MigrateFunc переводит значения предыдущей версии (по StableID) в текущую.
// Получает копию, результат не записывается в хранилище.
type MigrateFunc func(values map[string]models.Value) map[string]models.Value

// Version одна версия схемы.
type Version struct {
	// Migrate переводит значения из предыдущей версии; nil оставляет значения как есть
	Migrate MigrateFunc
	Fields  []Field
	Number  int
}

// Schema упорядоченный по номеру список версий. Последняя версия текущая.
type Schema struct {
	versions []Version
}

// New создает схему. Номера версий должны строго возрастать; внутри версии
// StableID и DisplayName уникальны.
func New(versions ...Version) (*Schema, error) {
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: no versions", ErrInvalidSchema)
	}

	for i, v := range versions {
		if i > 0 && v.Number <= versions[i-1].Number {
			return nil, fmt.Errorf("%w: version %d after %d", ErrInvalidSchema, v.Number, versions[i-1].Number)
		}
		if err := checkFields(v.Fields); err != nil {
			return nil, fmt.Errorf("version %d: %w", v.Number, err)
		}
	}

	s := &Schema{versions: make([]Version, len(versions))}
	for i, v := range versions {
		v.Fields = slices.Clone(v.Fields)
		s.versions[i] = v
	}
	return s, nil
}

func checkFields(fields []Field) error {
	ids := make(map[string]struct{}, len(fields))
	names := make(map[string]struct{}, len(fields))

	for _, f := range fields {
		if f.StableID == "" || f.DisplayName == "" {
			return fmt.Errorf("%w: field with empty id or name", ErrInvalidSchema)
		}
		if _, ok := ids[f.StableID]; ok {
			return fmt.Errorf("%w: stable id %q", ErrDuplicateField, f.StableID)
		}
		if _, ok := names[f.DisplayName]; ok {
			return fmt.Errorf("%w: display name %q", ErrDuplicateField, f.DisplayName)
		}
		if f.Default != nil {
			if err := models.Validate(f.Default); err != nil {
				return fmt.Errorf("field %q default: %w", f.DisplayName, err)
			}
		}
		ids[f.StableID] = struct{}{}
		names[f.DisplayName] = struct{}{}
	}
	return nil
}

// Current возвращает текущую (последнюю) версию.
func (s *Schema) Current() Version {
	return s.versions[len(s.versions)-1]
}

// Versions возвращает все версии, от старой к новой.
func (s *Schema) Versions() []Version {
	return slices.Clone(s.versions)
}

// Field ищет поле текущей версии по отображаемому имени.
func (s *Schema) Field(displayName string) (Field, bool) {
	for _, f := range s.Current().Fields {
		if f.DisplayName == displayName {
			return f, true
		}
	}
	return Field{}, false
}

// FieldByID ищет поле текущей версии по стабильному идентификатору.
func (s *Schema) FieldByID(stableID string) (Field, bool) {
	for _, f := range s.Current().Fields {
		if f.StableID == stableID {
			return f, true
		}
	}
	return Field{}, false
}

// Rename возвращает схему, в которой поле stableID текущей версии имеет
// новое отображаемое имя. Исходная схема и хранимые данные не меняются.
func (s *Schema) Rename(stableID, displayName string) (*Schema, error) {
	if displayName == "" {
		return nil, fmt.Errorf("%w: empty display name", ErrInvalidSchema)
	}

	current := s.Current()
	fields := slices.Clone(current.Fields)

	idx := slices.IndexFunc(fields, func(f Field) bool { return f.StableID == stableID })
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, stableID)
	}
	fields[idx].DisplayName = displayName

	if err := checkFields(fields); err != nil {
		return nil, err
	}

	versions := slices.Clone(s.versions)
	current.Fields = fields
	versions[len(versions)-1] = current
	return &Schema{versions: versions}, nil
}

// matches проверяет, что присутствующие значения полей версии v
// проходят ее валидаторы и хотя бы одно поле присутствует.
func (v Version) matches(values map[string]models.Value) bool {
	found := false
	for _, f := range v.Fields {
		val, ok := values[f.StableID]
		if !ok {
			continue
		}
		if f.validate(val) != nil {
			return false
		}
		found = true
	}
	return found
}

// migrate переводит значения в текущую версию. Возвращает nil, если ни одна
// из предыдущих версий не подходит под значения.
func (s *Schema) migrate(values map[string]models.Value) map[string]models.Value {
	last := len(s.versions) - 1
	for from := last - 1; from >= 0; from-- {
		if !s.versions[from].matches(values) {
			continue
		}

		out := cloneValues(values)
		for _, v := range s.versions[from+1:] {
			if v.Migrate != nil {
				out = v.Migrate(out)
			}
		}
		return out
	}
	return nil
}

func cloneValues(values map[string]models.Value) map[string]models.Value {
	out := make(map[string]models.Value, len(values))
	for k, v := range values {
		out[k] = models.Clone(v)
	}
	return out
}

package models

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"unicode/utf8"
)

// ErrInvalidValue возвращается для значений, которые нельзя сохранить в хранилище
// (nil внутри списка или объекта, NaN/Inf, пустая ссылка на коллекцию,
// строки с некорректным UTF-8).
var ErrInvalidValue = errors.New("invalid value")

// Kind обозначает вариант значения.
type Kind uint8

// Варианты значений
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindObject
	KindCollection
)

var kindNames = [...]string{
	KindNull:       "null",
	KindBool:       "bool",
	KindInt:        "int",
	KindFloat:      "float",
	KindString:     "string",
	KindBytes:      "bytes",
	KindList:       "list",
	KindObject:     "object",
	KindCollection: "collection",
}

// String возвращает имя варианта (используется и как тег в wire-формате).
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind возвращает вариант по его имени.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidValue, name)
}

// Value представляет значение, хранимое в Entry.
// Это закрытый интерфейс: реализуют его только типы этого пакета,
// поэтому разбор значения всегда явный (type switch по варианту).
type Value interface {
	Kind() Kind
	value() // sealed
}

// Null пустое значение. Также используется как Value у tombstone записей.
type Null struct{}

// Bool логическое значение.
type Bool bool

// Int целое число.
type Int int64

// Float число с плавающей точкой. NaN и Inf запрещены.
type Float float64

// String строка.
type String string

// Bytes бинарные данные.
type Bytes []byte

// List упорядоченный список значений.
type List []Value

// Object набор именованных значений. Для детерминированного обхода используйте SortedKeys.
type Object map[string]Value

// CollectionRef ссылка на вложенную коллекцию документа.
type CollectionRef struct {
	ID string
}

func (Null) Kind() Kind          { return KindNull }
func (Bool) Kind() Kind          { return KindBool }
func (Int) Kind() Kind           { return KindInt }
func (Float) Kind() Kind         { return KindFloat }
func (String) Kind() Kind        { return KindString }
func (Bytes) Kind() Kind         { return KindBytes }
func (List) Kind() Kind          { return KindList }
func (Object) Kind() Kind        { return KindObject }
func (CollectionRef) Kind() Kind { return KindCollection }

func (Null) value()          {}
func (Bool) value()          {}
func (Int) value()           {}
func (Float) value()         {}
func (String) value()        {}
func (Bytes) value()         {}
func (List) value()          {}
func (Object) value()        {}
func (CollectionRef) value() {}

// SortedKeys возвращает ключи объекта в каноническом порядке.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// Validate проверяет, что значение можно сохранить и канонически закодировать.
func Validate(v Value) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("%w: nil value", ErrInvalidValue)
	case Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite float %v", ErrInvalidValue, f)
		}
	case String:
		// JSON заменяет некорректные байты на U+FFFD, и реплики разошлись бы
		if !utf8.ValidString(string(val)) {
			return fmt.Errorf("%w: string is not valid UTF-8", ErrInvalidValue)
		}
	case List:
		for i, elem := range val {
			if err := Validate(elem); err != nil {
				return fmt.Errorf("list[%d]: %w", i, err)
			}
		}
	case Object:
		for k, elem := range val {
			if !utf8.ValidString(k) {
				return fmt.Errorf("%w: object key %q is not valid UTF-8", ErrInvalidValue, k)
			}
			if err := Validate(elem); err != nil {
				return fmt.Errorf("object[%q]: %w", k, err)
			}
		}
	case CollectionRef:
		if val.ID == "" {
			return fmt.Errorf("%w: empty collection reference", ErrInvalidValue)
		}
		if !utf8.ValidString(val.ID) {
			return fmt.Errorf("%w: collection reference is not valid UTF-8", ErrInvalidValue)
		}
	}
	return nil
}

// Clone создает глубокую копию значения.
func Clone(v Value) Value {
	switch val := v.(type) {
	case Bytes:
		if val == nil {
			return Bytes(nil)
		}
		out := make(Bytes, len(val))
		copy(out, val)
		return out
	case List:
		if val == nil {
			return List(nil)
		}
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case Object:
		if val == nil {
			return Object(nil)
		}
		out := make(Object, len(val))
		for k, elem := range val {
			out[k] = Clone(elem)
		}
		return out
	default:
		return v
	}
}

// Equal сравнивает значения по их канонической форме.
func Equal(a, b Value) bool {
	ca, errA := MarshalCanonical(a)
	cb, errB := MarshalCanonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ca) == string(cb)
}

// ToNative преобразует значение в обычные Go типы (nil, bool, int64, float64,
// string, []byte, []any, map[string]any). Ссылка на коллекцию становится
// объектом {"$ref": id}.
func ToNative(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case Bytes:
		return []byte(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToNative(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToNative(elem)
		}
		return out
	case CollectionRef:
		return map[string]any{"$ref": val.ID}
	default:
		return nil
	}
}

// FromNative строит значение из обычных Go типов. Используется для значений
// по умолчанию из YAML определений схемы.
func FromNative(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case string:
		return String(val), nil
	case []byte:
		return Bytes(val), nil
	case []any:
		out := make(List, len(val))
		for i, elem := range val {
			conv, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			out[i] = conv
		}
		return out, nil
	case map[string]any:
		out := make(Object, len(val))
		for k, elem := range val {
			conv, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			out[k] = conv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidValue, v)
	}
}

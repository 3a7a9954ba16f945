package models

import (
	"encoding/json"
	"fmt"
)

// wireValue представляет значение в JSON формате обмена: {"t": тег, "v": данные}.
type wireValue struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v,omitempty"`
}

// MarshalValue кодирует значение в JSON с явным тегом варианта.
func MarshalValue(v Value) ([]byte, error) {
	if err := Validate(v); err != nil {
		return nil, err
	}
	return marshalValue(v)
}

func marshalValue(v Value) ([]byte, error) {
	var payload any

	switch val := v.(type) {
	case Null:
		return json.Marshal(wireValue{T: KindNull.String()})
	case Bool:
		payload = bool(val)
	case Int:
		payload = int64(val)
	case Float:
		payload = float64(val)
	case String:
		payload = string(val)
	case Bytes:
		payload = []byte(val)
	case CollectionRef:
		payload = val.ID
	case List:
		elems := make([]json.RawMessage, len(val))
		for i, elem := range val {
			data, err := marshalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			elems[i] = data
		}
		payload = elems
	case Object:
		fields := make(map[string]json.RawMessage, len(val))
		for k, elem := range val {
			data, err := marshalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			fields[k] = data
		}
		payload = fields
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidValue, v)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s value: %w", v.Kind(), err)
	}
	return json.Marshal(wireValue{T: v.Kind().String(), V: raw})
}

// UnmarshalValue декодирует значение из JSON формата обмена.
func UnmarshalValue(data []byte) (Value, error) {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	v, err := decodeWire(w)
	if err != nil {
		return nil, err
	}
	if err := Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeWire(w wireValue) (Value, error) {
	if w.T != KindNull.String() && len(w.V) == 0 {
		return nil, fmt.Errorf("%w: missing payload for %q", ErrInvalidValue, w.T)
	}

	switch w.T {
	case KindNull.String():
		return Null{}, nil
	case KindBool.String():
		var b bool
		if err := json.Unmarshal(w.V, &b); err != nil {
			return nil, fmt.Errorf("failed to decode bool: %w", err)
		}
		return Bool(b), nil
	case KindInt.String():
		var n int64
		if err := json.Unmarshal(w.V, &n); err != nil {
			return nil, fmt.Errorf("failed to decode int: %w", err)
		}
		return Int(n), nil
	case KindFloat.String():
		var f float64
		if err := json.Unmarshal(w.V, &f); err != nil {
			return nil, fmt.Errorf("failed to decode float: %w", err)
		}
		return Float(f), nil
	case KindString.String():
		var s string
		if err := json.Unmarshal(w.V, &s); err != nil {
			return nil, fmt.Errorf("failed to decode string: %w", err)
		}
		return String(s), nil
	case KindBytes.String():
		var b []byte
		if err := json.Unmarshal(w.V, &b); err != nil {
			return nil, fmt.Errorf("failed to decode bytes: %w", err)
		}
		return Bytes(b), nil
	case KindCollection.String():
		var id string
		if err := json.Unmarshal(w.V, &id); err != nil {
			return nil, fmt.Errorf("failed to decode collection reference: %w", err)
		}
		return CollectionRef{ID: id}, nil
	case KindList.String():
		var elems []json.RawMessage
		if err := json.Unmarshal(w.V, &elems); err != nil {
			return nil, fmt.Errorf("failed to decode list: %w", err)
		}
		out := make(List, len(elems))
		for i, raw := range elems {
			elem, err := UnmarshalValue(raw)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			out[i] = elem
		}
		return out, nil
	case KindObject.String():
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(w.V, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode object: %w", err)
		}
		out := make(Object, len(fields))
		for k, raw := range fields {
			elem, err := UnmarshalValue(raw)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			out[k] = elem
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidValue, w.T)
	}
}

package models

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf16"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

// HashSize размер контентного хеша значения.
const HashSize = blake2b.Size256

// MarshalCanonical возвращает каноническую форму значения.
// Форма детерминирована на всех репликах и используется только для хеширования
// и сравнения значений, но не для передачи по сети.
//
// Каждое значение кодируется как JSON массив [тег, данные]:
//   - строки нормализуются в NFC, HTML символы не экранируются
//   - ключи объектов сортируются по UTF-16 code units
//   - float записывается строкой в кратчайшей форме
//   - bytes записываются в base64 (std)
func MarshalCanonical(v Value) ([]byte, error) {
	if err := Validate(v); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash возвращает BLAKE2b-256 хеш канонической формы значения.
func Hash(v Value) ([HashSize]byte, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return [HashSize]byte{}, err
	}
	return blake2b.Sum256(data), nil
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case Null:
		buf.WriteString(`["n"]`)
	case Bool:
		buf.WriteString(`["b",`)
		buf.WriteString(strconv.FormatBool(bool(val)))
		buf.WriteByte(']')
	case Int:
		buf.WriteString(`["i",`)
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		buf.WriteByte(']')
	case Float:
		buf.WriteString(`["f","`)
		buf.WriteString(strconv.FormatFloat(float64(val), 'g', -1, 64))
		buf.WriteString(`"]`)
	case String:
		buf.WriteString(`["s",`)
		if err := writeCanonicalString(buf, string(val)); err != nil {
			return err
		}
		buf.WriteByte(']')
	case Bytes:
		buf.WriteString(`["x","`)
		buf.WriteString(base64.StdEncoding.EncodeToString(val))
		buf.WriteString(`"]`)
	case List:
		buf.WriteString(`["l",[`)
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("list[%d]: %w", i, err)
			}
		}
		buf.WriteString(`]]`)
	case Object:
		buf.WriteString(`["o",{`)
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("object[%q]: %w", k, err)
			}
		}
		buf.WriteString(`}]`)
	case CollectionRef:
		buf.WriteString(`["c",`)
		if err := writeCanonicalString(buf, val.ID); err != nil {
			return err
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidValue, v)
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return fmt.Errorf("failed to encode string: %w", err)
	}
	// Encoder добавляет перевод строки
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// compareKeys сравнивает строки по UTF-16 code units (порядок RFC 8785).
// Обычное сравнение строк в Go работает по UTF-8 и дает другой порядок.
func compareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}

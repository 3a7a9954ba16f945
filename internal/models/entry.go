package models

import "bytes"

// Entry представляет атомарную единицу хранения CRDT хранилища.
// Каждая локальная запись (set или delete) порождает новую Entry со свежим
// логическим timestamp; старые версии ключа не изменяются.
type Entry struct {
	Value     Value  // Value сохраненное значение (Null для tombstone)
	Key       string // Key ключ записи внутри коллекции
	Timestamp uint64 // Timestamp логическое время записи (строго растет в пределах реплики)
	ReplicaID uint32 // ReplicaID идентификатор реплики, создавшей запись
	Tombstone bool   // Tombstone флаг удаления ключа
}

// Compare определяет порядок двух записей одного ключа по правилу LWW:
// 1. Больший Timestamp
// 2. При равных Timestamp больший ReplicaID
// 3. При равных ReplicaID больший контентный хеш значения
// 4. При совпадающем хеше tombstone побеждает значение
// 5. Побайтовое сравнение исходного кодирования значения: каноническая форма
// нормализует строки в NFC, и NFC и NFD варианты одного текста дают один хеш
// Возвращает -1, 0 или 1. Порядок полный: 0 означает идентичные записи.
func Compare(a, b *Entry) int {
	switch {
	case a.Timestamp > b.Timestamp:
		return 1
	case a.Timestamp < b.Timestamp:
		return -1
	}

	switch {
	case a.ReplicaID > b.ReplicaID:
		return 1
	case a.ReplicaID < b.ReplicaID:
		return -1
	}

	// Совпадение timestamp и replicaID возможно только после сброса часов
	ha, hb := a.contentHash(), b.contentHash()
	if c := bytes.Compare(ha[:], hb[:]); c != 0 {
		return c
	}

	switch {
	case a.Tombstone && !b.Tombstone:
		return 1
	case !a.Tombstone && b.Tombstone:
		return -1
	}

	return bytes.Compare(a.rawValue(), b.rawValue())
}

// IsNewerThan возвращает true, если запись e побеждает other при разрешении конфликта.
func (e *Entry) IsNewerThan(other *Entry) bool {
	return Compare(e, other) > 0
}

// contentHash возвращает хеш значения. Значения проверяются при записи,
// поэтому ошибка здесь означает поврежденную запись; такая запись получает
// нулевой хеш и проигрывает любой корректной.
func (e *Entry) contentHash() [HashSize]byte {
	v := e.Value
	if v == nil || e.Tombstone {
		v = Null{}
	}
	h, err := Hash(v)
	if err != nil {
		return [HashSize]byte{}
	}
	return h
}

// rawValue возвращает кодирование значения без нормализации.
func (e *Entry) rawValue() []byte {
	if e.Value == nil || e.Tombstone {
		return nil
	}
	data, err := MarshalValue(e.Value)
	if err != nil {
		return nil
	}
	return data
}

// Clone создает глубокую копию записи.
func (e *Entry) Clone() *Entry {
	return &Entry{
		Key:       e.Key,
		Value:     Clone(e.Value),
		Timestamp: e.Timestamp,
		ReplicaID: e.ReplicaID,
		Tombstone: e.Tombstone,
	}
}

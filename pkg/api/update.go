// Package api содержит формат обмена состоянием и обновлениями между репликами.
package api

import "encoding/json"

// UpdateVersion текущая версия формата обновлений.
const UpdateVersion = 1

// DocumentUpdate представляет состояние или дельту документа
type DocumentUpdate struct {
	Collections []CollectionUpdate `json:"collections"`
	Version     int                `json:"version"`
}

// CollectionUpdate представляет состояние или дельту одной коллекции
type CollectionUpdate struct {
	ID      string        `json:"id"`
	Items   []LogItem     `json:"items"`
	Deleted []DeleteRange `json:"deleted,omitempty"`
}

// LogItem представляет элемент лога коллекции
type LogItem struct {
	Entry    Entry       `json:"entry"`
	Position [][2]uint32 `json:"position"` // пары (digit, replica)
	Seq      uint64      `json:"seq"`
	Replica  uint32      `json:"replica"`
}

// Entry представляет запись ключа
type Entry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"` // значение с тегом варианта: {"t": ..., "v": ...}
	Timestamp uint64          `json:"ts"`
	ReplicaID uint32          `json:"replica_id"`
	Tombstone bool            `json:"tombstone,omitempty"`
}

// DeleteRange диапазон удаленных порядковых номеров реплики (включительно)
type DeleteRange struct {
	Start   uint64 `json:"start"`
	End     uint64 `json:"end"`
	Replica uint32 `json:"replica"`
}

package crdt

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/iudanet/crdtstore/internal/models"
	"github.com/iudanet/crdtstore/pkg/api"
)

// toCollectionUpdate переводит лог в формат обмена.
// Порядок элементов и диапазонов детерминирован.
func toCollectionUpdate(id string, log *AppendLog) (api.CollectionUpdate, error) {
	cu := api.CollectionUpdate{
		ID:    id,
		Items: make([]api.LogItem, 0, log.Len()),
	}

	for it := range log.All() {
		entry, err := toWireEntry(it.Entry)
		if err != nil {
			return api.CollectionUpdate{}, fmt.Errorf("failed to encode item %s: %w", it.ID, err)
		}

		pos := make([][2]uint32, len(it.Position))
		for i, ident := range it.Position {
			pos[i] = [2]uint32{ident.Digit, ident.Replica}
		}

		cu.Items = append(cu.Items, api.LogItem{
			Replica:  it.ID.Replica,
			Seq:      it.ID.Seq,
			Position: pos,
			Entry:    entry,
		})
	}

	for _, replica := range log.deleted.Replicas() {
		for _, r := range log.deleted[replica] {
			cu.Deleted = append(cu.Deleted, api.DeleteRange{Replica: replica, Start: r.Start, End: r.End})
		}
	}

	return cu, nil
}

func toWireEntry(e *models.Entry) (api.Entry, error) {
	value := e.Value
	if value == nil {
		value = models.Null{}
	}
	raw, err := models.MarshalValue(value)
	if err != nil {
		return api.Entry{}, err
	}
	return api.Entry{
		Key:       e.Key,
		Value:     raw,
		Timestamp: e.Timestamp,
		ReplicaID: e.ReplicaID,
		Tombstone: e.Tombstone,
	}, nil
}

// fromCollectionUpdate восстанавливает лог из формата обмена.
// Любая ошибка оборачивает ErrMalformedUpdate.
func fromCollectionUpdate(replica uint32, cu api.CollectionUpdate) (*AppendLog, error) {
	deleted := make(DeleteSet)
	for _, r := range cu.Deleted {
		if r.Start == 0 || r.End < r.Start {
			return nil, fmt.Errorf("%w: invalid delete range %d:[%d,%d]", ErrMalformedUpdate, r.Replica, r.Start, r.End)
		}
		deleted.AddRange(r.Replica, SeqRange{Start: r.Start, End: r.End})
	}

	items := make([]Item, 0, len(cu.Items))
	for _, li := range cu.Items {
		id := ItemID{Replica: li.Replica, Seq: li.Seq}
		if li.Seq == 0 {
			return nil, fmt.Errorf("%w: item %s has zero seq", ErrMalformedUpdate, id)
		}
		if len(li.Position) == 0 {
			return nil, fmt.Errorf("%w: item %s has empty position", ErrMalformedUpdate, id)
		}
		if li.Entry.Key == "" {
			return nil, fmt.Errorf("%w: item %s has empty key", ErrMalformedUpdate, id)
		}
		if !utf8.ValidString(li.Entry.Key) {
			return nil, fmt.Errorf("%w: item %s key is not valid UTF-8", ErrMalformedUpdate, id)
		}

		value, err := models.UnmarshalValue(li.Entry.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: item %s: %w", ErrMalformedUpdate, id, err)
		}
		if li.Entry.Tombstone {
			value = models.Null{}
		}

		pos := make(Position, len(li.Position))
		for i, p := range li.Position {
			pos[i] = Identifier{Digit: p[0], Replica: p[1]}
		}

		items = append(items, Item{
			ID:       id,
			Position: pos,
			Entry: &models.Entry{
				Key:       li.Entry.Key,
				Value:     value,
				Timestamp: li.Entry.Timestamp,
				ReplicaID: li.Entry.ReplicaID,
				Tombstone: li.Entry.Tombstone,
			},
		})
	}

	return restoreLog(replica, items, deleted), nil
}

// EncodeLog кодирует лог коллекции id в JSON формат обмена.
func EncodeLog(id string, log *AppendLog) ([]byte, error) {
	cu, err := toCollectionUpdate(id, log)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cu)
}

// DecodeLog декодирует лог коллекции, закодированный EncodeLog.
// Возвращает идентификатор коллекции и лог для реплики replica.
func DecodeLog(data []byte, replica uint32) (string, *AppendLog, error) {
	var cu api.CollectionUpdate
	if err := json.Unmarshal(data, &cu); err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrMalformedUpdate, err)
	}
	log, err := fromCollectionUpdate(replica, cu)
	if err != nil {
		return "", nil, err
	}
	return cu.ID, log, nil
}

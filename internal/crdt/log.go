package crdt

import (
	"cmp"
	"fmt"
	"iter"
	"slices"

	"github.com/iudanet/crdtstore/internal/models"
)

// ItemID глобально уникальный идентификатор элемента лога.
// Seq порядковый номер внутри реплики, начинается с 1.
type ItemID struct {
	Replica uint32
	Seq     uint64
}

func (id ItemID) String() string {
	return fmt.Sprintf("%d:%d", id.Replica, id.Seq)
}

func compareItemID(a, b ItemID) int {
	if c := cmp.Compare(a.Replica, b.Replica); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

// Item элемент лога. Entry после добавления в лог не изменяется.
type Item struct {
	Entry    *models.Entry
	Position Position
	ID       ItemID
}

func compareItems(a, b Item) int {
	if c := a.Position.Compare(b.Position); c != 0 {
		return c
	}
	return compareItemID(a.ID, b.ID)
}

// StateVector для каждой реплики хранит наибольший Seq, до которого
// включительно известны все элементы (живые или удаленные).
type StateVector map[uint32]uint64

// Clone возвращает копию вектора.
func (sv StateVector) Clone() StateVector {
	out := make(StateVector, len(sv))
	for k, v := range sv {
		out[k] = v
	}
	return out
}

// AppendLog упорядоченный сливаемый лог записей.
// Порядок элементов определяется плотными позициями (Position), а не временем записи,
// поэтому параллельные добавления разных реплик сохраняются оба и упорядочиваются
// по идентификатору реплики.
//
// Физически удаленные элементы запоминаются в delete set: слияние логов означает
// объединение элементов минус объединение delete set'ов, что дает коммутативную,
// ассоциативную и идемпотентную операцию.
//
// AppendLog не потокобезопасен; синхронизацию обеспечивает KeyedStore.
type AppendLog struct {
	present map[ItemID]struct{}
	deleted DeleteSet
	items   []Item
	seq     uint64
	replica uint32
}

// NewAppendLog создает пустой лог для реплики.
func NewAppendLog(replica uint32) *AppendLog {
	return &AppendLog{
		present: make(map[ItemID]struct{}),
		deleted: make(DeleteSet),
		replica: replica,
	}
}

// Replica возвращает идентификатор реплики, которая пишет в лог.
func (l *AppendLog) Replica() uint32 {
	return l.replica
}

func (l *AppendLog) nextID() ItemID {
	l.seq++
	return ItemID{Replica: l.replica, Seq: l.seq}
}

// Append добавляет запись в конец лога.
func (l *AppendLog) Append(entry *models.Entry) Item {
	var last Position
	if n := len(l.items); n > 0 {
		last = l.items[n-1].Position
	}

	item := Item{
		ID:       l.nextID(),
		Position: between(last, nil, l.replica),
		Entry:    entry,
	}
	l.items = append(l.items, item)
	l.present[item.ID] = struct{}{}

	return item
}

// Insert вставляет запись так, чтобы она оказалась на позиции index.
// Допустимые значения index: от 0 до Len() включительно.
func (l *AppendLog) Insert(index int, entry *models.Entry) (Item, error) {
	if index < 0 || index > len(l.items) {
		return Item{}, fmt.Errorf("failed to insert at %d (len %d): %w", index, len(l.items), ErrIndexOutOfRange)
	}
	if index == len(l.items) {
		return l.Append(entry), nil
	}

	var prev Position
	if index > 0 {
		prev = l.items[index-1].Position
	}

	item := Item{
		ID:       l.nextID(),
		Position: between(prev, l.items[index].Position, l.replica),
		Entry:    entry,
	}
	l.insertSorted(item)

	return item, nil
}

// At возвращает элемент на позиции index.
func (l *AppendLog) At(index int) (Item, error) {
	if index < 0 || index >= len(l.items) {
		return Item{}, fmt.Errorf("failed to get item %d (len %d): %w", index, len(l.items), ErrIndexOutOfRange)
	}
	return l.items[index], nil
}

// Delete физически удаляет элемент на позиции index и запоминает его в delete set.
func (l *AppendLog) Delete(index int) (Item, error) {
	item, err := l.At(index)
	if err != nil {
		return Item{}, err
	}

	l.items = slices.Delete(l.items, index, index+1)
	delete(l.present, item.ID)
	l.deleted.Add(item.ID)

	return item, nil
}

// Remove удаляет элементы с указанными идентификаторами.
// Идентификаторы запоминаются в delete set даже если элементов в логе нет,
// чтобы они не вернулись при последующих слияниях.
// Возвращает физически удаленные элементы.
func (l *AppendLog) Remove(ids ...ItemID) []Item {
	if len(ids) == 0 {
		return nil
	}

	drop := make(map[ItemID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
		l.deleted.Add(id)
	}

	return l.dropWhere(func(it Item) bool {
		_, ok := drop[it.ID]
		return ok
	})
}

func (l *AppendLog) dropWhere(match func(Item) bool) []Item {
	var removed []Item
	l.items = slices.DeleteFunc(l.items, func(it Item) bool {
		if !match(it) {
			return false
		}
		removed = append(removed, it)
		delete(l.present, it.ID)
		return true
	})
	return removed
}

// Merge сливает other в текущий лог.
// Возвращает добавленные элементы и элементы, удаленные из-за delete set'а other.
// other не изменяется.
func (l *AppendLog) Merge(other *AppendLog) (added, removed []Item) {
	if other == nil || other == l {
		return nil, nil
	}

	l.deleted.Merge(other.deleted)
	removed = l.dropWhere(func(it Item) bool { return l.deleted.Contains(it.ID) })

	for _, it := range other.items {
		if _, ok := l.present[it.ID]; ok || l.deleted.Contains(it.ID) {
			continue
		}
		it = Item{ID: it.ID, Position: it.Position.Clone(), Entry: it.Entry.Clone()}
		added = append(added, it)
		l.present[it.ID] = struct{}{}
	}

	if len(added) > 0 {
		l.items = append(l.items, added...)
		slices.SortFunc(l.items, compareItems)
	}
	l.observeSeq()

	return added, removed
}

// insertSorted вставляет элемент с сохранением порядка.
func (l *AppendLog) insertSorted(item Item) {
	i, _ := slices.BinarySearchFunc(l.items, item, compareItems)
	l.items = slices.Insert(l.items, i, item)
	l.present[item.ID] = struct{}{}
}

// observeSeq продвигает локальный счетчик за все известные Seq своей реплики,
// например после восстановления из снапшота.
func (l *AppendLog) observeSeq() {
	for _, it := range l.items {
		if it.ID.Replica == l.replica && it.ID.Seq > l.seq {
			l.seq = it.ID.Seq
		}
	}
	if ranges := l.deleted[l.replica]; len(ranges) > 0 {
		l.seq = max(l.seq, ranges[len(ranges)-1].End)
	}
}

// All возвращает итератор по элементам в порядке лога.
func (l *AppendLog) All() iter.Seq[Item] {
	return func(yield func(Item) bool) {
		for _, it := range l.items {
			if !yield(it) {
				return
			}
		}
	}
}

// Entries возвращает записи в порядке лога.
func (l *AppendLog) Entries() []*models.Entry {
	out := make([]*models.Entry, len(l.items))
	for i, it := range l.items {
		out[i] = it.Entry
	}
	return out
}

// Len возвращает количество элементов в логе.
func (l *AppendLog) Len() int {
	return len(l.items)
}

// Deleted возвращает копию delete set'а.
func (l *AppendLog) Deleted() DeleteSet {
	return l.deleted.Clone()
}

// Clone возвращает независимую копию лога.
func (l *AppendLog) Clone() *AppendLog {
	out := NewAppendLog(l.replica)
	out.seq = l.seq
	out.deleted = l.deleted.Clone()
	out.items = make([]Item, len(l.items))
	for i, it := range l.items {
		out.items[i] = Item{ID: it.ID, Position: it.Position.Clone(), Entry: it.Entry.Clone()}
		out.present[it.ID] = struct{}{}
	}
	return out
}

// StateVector вычисляет вектор состояния лога.
func (l *AppendLog) StateVector() StateVector {
	known := l.deleted.Clone()
	for _, it := range l.items {
		known.Add(it.ID)
	}

	sv := make(StateVector, len(known))
	for replica, ranges := range known {
		if len(ranges) > 0 && ranges[0].Start <= 1 {
			sv[replica] = ranges[0].End
		}
	}
	return sv
}

// Since возвращает дельту: элементы, не покрытые вектором sv, и полный delete set.
// Пустой (или nil) вектор дает полное состояние.
func (l *AppendLog) Since(sv StateVector) *AppendLog {
	out := NewAppendLog(l.replica)
	out.deleted = l.deleted.Clone()
	for _, it := range l.items {
		if it.ID.Seq <= sv[it.ID.Replica] {
			continue
		}
		out.items = append(out.items, Item{ID: it.ID, Position: it.Position.Clone(), Entry: it.Entry.Clone()})
		out.present[it.ID] = struct{}{}
	}
	return out
}

// MaxTimestamp возвращает наибольший timestamp среди записей лога.
func (l *AppendLog) MaxTimestamp() uint64 {
	var ts uint64
	for _, it := range l.items {
		ts = max(ts, it.Entry.Timestamp)
	}
	return ts
}

// restoreLog собирает лог из декодированных элементов.
func restoreLog(replica uint32, items []Item, deleted DeleteSet) *AppendLog {
	l := NewAppendLog(replica)
	if deleted != nil {
		l.deleted = deleted
	}
	for _, it := range items {
		if _, ok := l.present[it.ID]; ok || l.deleted.Contains(it.ID) {
			continue
		}
		l.items = append(l.items, it)
		l.present[it.ID] = struct{}{}
	}
	slices.SortFunc(l.items, compareItems)
	l.observeSeq()
	return l
}

package crdt

import (
	"slices"
	"strings"

	"github.com/iudanet/crdtstore/internal/models"
)

// candidate запись лога, участвующая в разрешении конфликта по ключу.
type candidate struct {
	entry *models.Entry
	id    ItemID
}

// keyChange описывает смену победителя по ключу.
// before/after равны nil, если победителя не было (или не стало).
type keyChange struct {
	before *models.Entry
	after  *models.Entry
	key    string
}

// CompactingIndex представляет индекс key -> Entry поверх AppendLog.
// Для каждого ключа хранит всех кандидатов из лога и победителя по правилу LWW
// (см. models.Compare). Кандидаты, не являющиеся победителями, подлежат
// удалению из лога при компактизации.
//
// Индекс не владеет записями и не потокобезопасен: он изменяется только
// под блокировкой KeyedStore.
type CompactingIndex struct {
	members map[string]map[ItemID]*models.Entry
	winners map[string]candidate
	keys    map[ItemID]string
}

// NewCompactingIndex создает пустой индекс.
func NewCompactingIndex() *CompactingIndex {
	return &CompactingIndex{
		members: make(map[string]map[ItemID]*models.Entry),
		winners: make(map[string]candidate),
		keys:    make(map[ItemID]string),
	}
}

// Resolve выбирает победителя среди записей одного ключа.
// Функция чистая и тотальная: для непустого набора всегда возвращает ровно
// одну запись, независимо от порядка кандидатов. Для пустого набора возвращает nil.
func Resolve(candidates []*models.Entry) *models.Entry {
	var winner *models.Entry
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if winner == nil || models.Compare(c, winner) > 0 {
			winner = c
		}
	}
	return winner
}

// RebuildFrom перестраивает индекс по всем элементам лога.
func (x *CompactingIndex) RebuildFrom(log *AppendLog) {
	clear(x.members)
	clear(x.winners)
	clear(x.keys)

	for it := range log.All() {
		x.Apply(it)
	}
}

// Apply учитывает новый элемент лога. Повторное применение элемента ничего не меняет.
// Возвращает изменение победителя и true, если победитель сменился.
func (x *CompactingIndex) Apply(item Item) (keyChange, bool) {
	key := item.Entry.Key
	if _, ok := x.keys[item.ID]; ok {
		return keyChange{}, false
	}

	set, ok := x.members[key]
	if !ok {
		set = make(map[ItemID]*models.Entry)
		x.members[key] = set
	}
	set[item.ID] = item.Entry
	x.keys[item.ID] = key

	current, exists := x.winners[key]
	if exists && models.Compare(item.Entry, current.entry) <= 0 {
		return keyChange{}, false
	}

	x.winners[key] = candidate{id: item.ID, entry: item.Entry}

	change := keyChange{key: key, after: item.Entry}
	if exists {
		change.before = current.entry
	}
	return change, true
}

// Forget убирает элементы из индекса (например, после удаления из лога).
// Если удален победитель, он выбирается заново среди оставшихся кандидатов.
func (x *CompactingIndex) Forget(ids []ItemID) []keyChange {
	touched := make(map[string]struct{})
	for _, id := range ids {
		key, ok := x.keys[id]
		if !ok {
			continue
		}
		delete(x.keys, id)
		delete(x.members[key], id)
		touched[key] = struct{}{}
	}

	var changes []keyChange
	for key := range touched {
		prev := x.winners[key]
		if _, alive := x.members[key][prev.id]; alive {
			continue
		}

		change := keyChange{key: key, before: prev.entry}
		if next, ok := x.resolveKey(key); ok {
			x.winners[key] = next
			change.after = next.entry
		} else {
			delete(x.winners, key)
			delete(x.members, key)
		}
		changes = append(changes, change)
	}

	slices.SortFunc(changes, func(a, b keyChange) int { return strings.Compare(a.key, b.key) })
	return changes
}

func (x *CompactingIndex) resolveKey(key string) (candidate, bool) {
	var best candidate
	found := false
	for id, e := range x.members[key] {
		if !found || models.Compare(e, best.entry) > 0 {
			best = candidate{id: id, entry: e}
			found = true
		}
	}
	return best, found
}

// Get возвращает запись-победителя для ключа (в том числе tombstone).
func (x *CompactingIndex) Get(key string) (*models.Entry, bool) {
	w, ok := x.winners[key]
	if !ok {
		return nil, false
	}
	return w.entry, true
}

// Keys возвращает отсортированный список ключей с живым (не удаленным) значением.
func (x *CompactingIndex) Keys() []string {
	keys := make([]string, 0, len(x.winners))
	for key, w := range x.winners {
		if !w.entry.Tombstone {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

// Len возвращает количество ключей с живым значением.
func (x *CompactingIndex) Len() int {
	n := 0
	for _, w := range x.winners {
		if !w.entry.Tombstone {
			n++
		}
	}
	return n
}

// Size возвращает количество записей, на которые ссылается индекс.
func (x *CompactingIndex) Size() int {
	return len(x.keys)
}

// Losers возвращает элементы, подлежащие удалению из лога при логическом времени now:
// проигравшие кандидаты с Timestamp + horizon <= now, а также все записи ключа,
// победитель которого tombstone старше retention (retention 0 хранит tombstone бессрочно).
func (x *CompactingIndex) Losers(horizon, retention, now uint64) []ItemID {
	var out []ItemID
	for key, set := range x.members {
		w := x.winners[key]
		dropKey := retention > 0 && w.entry.Tombstone && expired(w.entry.Timestamp, retention, now)

		for id, e := range set {
			if dropKey || (id != w.id && expired(e.Timestamp, horizon, now)) {
				out = append(out, id)
			}
		}
	}
	slices.SortFunc(out, compareItemID)
	return out
}

// expired проверяет ts + age <= now без переполнения.
func expired(ts, age, now uint64) bool {
	return now >= ts && now-ts >= age
}

package crdt

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/crdtstore/internal/models"
)

func createTestEntry(key string, value models.Value, ts uint64, replica uint32) *models.Entry {
	return &models.Entry{Key: key, Value: value, Timestamp: ts, ReplicaID: replica}
}

func logKeys(l *AppendLog) []string {
	var keys []string
	for it := range l.All() {
		keys = append(keys, it.Entry.Key)
	}
	return keys
}

func TestBetween(t *testing.T) {
	tests := []struct {
		name string
		p, q Position
	}{
		{name: "empty log", p: nil, q: nil},
		{name: "after single", p: Position{{8, 1}}, q: nil},
		{name: "before single", p: nil, q: Position{{8, 1}}},
		{name: "adjacent digits", p: Position{{8, 1}}, q: Position{{9, 2}}},
		{name: "same digit different replica", p: Position{{8, 1}}, q: Position{{8, 2}}},
		{name: "q extends p", p: Position{{8, 1}}, q: Position{{8, 1}, {1, 3}}},
		{name: "no room before one", p: nil, q: Position{{1, 1}}},
		{name: "deep positions", p: Position{{8, 1}, {0, 0}, {3, 2}}, q: Position{{8, 1}, {0, 0}, {4, 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := between(tt.p, tt.q, 7)

			if len(tt.p) > 0 {
				assert.Equal(t, 1, got.Compare(tt.p), "result %v must be after %v", got, tt.p)
			}
			if len(tt.q) > 0 {
				assert.Equal(t, -1, got.Compare(tt.q), "result %v must be before %v", got, tt.q)
			}
			assert.Equal(t, uint32(7), got[len(got)-1].Replica, "last identifier carries the replica")
		})
	}
}

func TestBetween_RepeatedInsertsStayOrdered(t *testing.T) {
	// Многократная вставка в одно и то же место исчерпывает промежуток
	// и должна уходить на следующий уровень, сохраняя порядок
	lo, hi := Position{{8, 1}}, Position{{9, 1}}
	for i := 0; i < 100; i++ {
		mid := between(lo, hi, 2)
		require.Equal(t, 1, mid.Compare(lo))
		require.Equal(t, -1, mid.Compare(hi))
		hi = mid
	}
}

func TestDeleteSet_AddRange(t *testing.T) {
	d := make(DeleteSet)

	d.Add(ItemID{Replica: 1, Seq: 5})
	d.Add(ItemID{Replica: 1, Seq: 3})
	d.Add(ItemID{Replica: 1, Seq: 4})
	d.AddRange(1, SeqRange{Start: 10, End: 12})
	d.Add(ItemID{Replica: 2, Seq: 1})

	assert.Equal(t, []SeqRange{{Start: 3, End: 5}, {Start: 10, End: 12}}, d[1], "adjacent ids must coalesce")
	assert.True(t, d.Contains(ItemID{Replica: 1, Seq: 11}))
	assert.False(t, d.Contains(ItemID{Replica: 1, Seq: 6}))
	assert.False(t, d.Contains(ItemID{Replica: 3, Seq: 1}))
	assert.Equal(t, uint64(7), d.Len())

	d.AddRange(1, SeqRange{Start: 1, End: 20})
	assert.Equal(t, []SeqRange{{Start: 1, End: 20}}, d[1], "covering range absorbs everything")
	assert.Equal(t, []uint32{1, 2}, d.Replicas())
}

func TestDeleteSet_MergeIsCommutative(t *testing.T) {
	a := DeleteSet{1: {{Start: 1, End: 2}}, 2: {{Start: 5, End: 5}}}
	b := DeleteSet{1: {{Start: 3, End: 4}, {Start: 9, End: 9}}}

	ab := a.Clone()
	ab.Merge(b)
	ba := b.Clone()
	ba.Merge(a)

	assert.Equal(t, ab, ba)
	assert.Equal(t, []SeqRange{{Start: 1, End: 4}, {Start: 9, End: 9}}, ab[1])

	// Идемпотентность
	again := ab.Clone()
	again.Merge(b)
	assert.Equal(t, ab, again)
}

func TestAppendLog_Append(t *testing.T) {
	l := NewAppendLog(1)

	first := l.Append(createTestEntry("a", models.Int(1), 1, 1))
	second := l.Append(createTestEntry("b", models.Int(2), 2, 1))

	assert.Equal(t, ItemID{Replica: 1, Seq: 1}, first.ID)
	assert.Equal(t, ItemID{Replica: 1, Seq: 2}, second.ID)
	assert.Equal(t, -1, first.Position.Compare(second.Position))
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, []string{"a", "b"}, logKeys(l))
}

func TestAppendLog_InsertAndDelete(t *testing.T) {
	l := NewAppendLog(1)
	l.Append(createTestEntry("a", models.Null{}, 1, 1))
	l.Append(createTestEntry("c", models.Null{}, 2, 1))

	_, err := l.Insert(1, createTestEntry("b", models.Null{}, 3, 1))
	require.NoError(t, err)
	_, err = l.Insert(0, createTestEntry("start", models.Null{}, 4, 1))
	require.NoError(t, err)
	_, err = l.Insert(l.Len(), createTestEntry("end", models.Null{}, 5, 1))
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "a", "b", "c", "end"}, logKeys(l))

	removed, err := l.Delete(2)
	require.NoError(t, err)
	assert.Equal(t, "b", removed.Entry.Key)
	assert.True(t, l.Deleted().Contains(removed.ID))

	_, err = l.Insert(10, createTestEntry("x", models.Null{}, 6, 1))
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = l.Delete(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = l.At(l.Len())
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestAppendLog_InsertAfterNeighbourRemoved(t *testing.T) {
	l := NewAppendLog(1)
	l.Append(createTestEntry("a", models.Null{}, 1, 1))
	mid := l.Append(createTestEntry("b", models.Null{}, 2, 1))
	l.Append(createTestEntry("c", models.Null{}, 3, 1))

	l.Remove(mid.ID)
	_, err := l.Insert(1, createTestEntry("x", models.Null{}, 4, 1))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "x", "c"}, logKeys(l))
}

func TestAppendLog_ConcurrentAppendsKeepBoth(t *testing.T) {
	r1 := NewAppendLog(1)
	r2 := NewAppendLog(2)

	// Обе реплики добавляют запись в пустой лог: позиции совпадают по разряду
	r1.Append(createTestEntry("from1", models.Null{}, 100, 1))
	r2.Append(createTestEntry("from2", models.Null{}, 1, 2))

	a := r1.Clone()
	a.Merge(r2)
	b := r2.Clone()
	b.Merge(r1)

	// Порядок определяется репликой, а не временем записи
	assert.Equal(t, []string{"from1", "from2"}, logKeys(a))
	assert.Equal(t, logKeys(a), logKeys(b))
}

func TestAppendLog_MergeProperties(t *testing.T) {
	build := func(replica uint32, keys ...string) *AppendLog {
		l := NewAppendLog(replica)
		for i, k := range keys {
			l.Append(createTestEntry(k, models.String(k), uint64(i+1), replica))
		}
		return l
	}

	a := build(1, "a1", "a2", "a3")
	b := build(2, "b1", "b2")
	c := build(3, "c1")
	a.Remove(ItemID{Replica: 1, Seq: 2})

	// (a ⊔ b) ⊔ c
	left := a.Clone()
	left.Merge(b)
	left.Merge(c)

	// a ⊔ (b ⊔ c)
	bc := b.Clone()
	bc.Merge(c)
	right := a.Clone()
	right.Merge(bc)

	// c ⊔ b ⊔ a
	reversed := c.Clone()
	reversed.Merge(b)
	reversed.Merge(a)

	assert.Equal(t, logKeys(left), logKeys(right), "merge must be associative")
	assert.Equal(t, logKeys(left), logKeys(reversed), "merge must be commutative")
	assert.NotContains(t, logKeys(left), "a2")

	before := logKeys(left)
	added, removed := left.Merge(right)
	assert.Empty(t, added, "merge must be idempotent")
	assert.Empty(t, removed)
	assert.Equal(t, before, logKeys(left))
}

func TestAppendLog_MergeNeverResurrects(t *testing.T) {
	origin := NewAppendLog(1)
	item := origin.Append(createTestEntry("k", models.Int(1), 1, 1))

	stale := origin.Clone()
	origin.Remove(item.ID)

	// Устаревшая копия еще содержит элемент; после слияния он не возвращается
	added, _ := origin.Merge(stale)
	assert.Empty(t, added)
	assert.Equal(t, 0, origin.Len())

	_, removed := stale.Merge(origin)
	require.Len(t, removed, 1)
	assert.Equal(t, item.ID, removed[0].ID)
	assert.Equal(t, 0, stale.Len())
}

func TestAppendLog_StateVectorAndSince(t *testing.T) {
	l := NewAppendLog(1)
	for i := 1; i <= 4; i++ {
		l.Append(createTestEntry("k", models.Int(i), uint64(i), 1))
	}
	l.Remove(ItemID{Replica: 1, Seq: 1}, ItemID{Replica: 1, Seq: 2})

	remote := NewAppendLog(2)
	remote.Append(createTestEntry("r", models.Null{}, 1, 2))
	l.Merge(remote)

	sv := l.StateVector()
	assert.Equal(t, StateVector{1: 4, 2: 1}, sv, "removed items count as known")

	delta := l.Since(StateVector{1: 3})
	var ids []ItemID
	for it := range delta.All() {
		ids = append(ids, it.ID)
	}
	// элемент реплики 2 стоит раньше: его позиция 8@2 меньше 32@1
	assert.Equal(t, []ItemID{{Replica: 2, Seq: 1}, {Replica: 1, Seq: 4}}, ids)
	assert.True(t, delta.Deleted().Contains(ItemID{Replica: 1, Seq: 1}), "delta carries the delete set")

	assert.Equal(t, l.Len(), l.Since(nil).Len())
}

func TestAppendLog_StateVectorGap(t *testing.T) {
	l := NewAppendLog(9)
	partial := NewAppendLog(1)
	partial.Append(createTestEntry("a", models.Null{}, 1, 1))
	partial.Append(createTestEntry("b", models.Null{}, 2, 1))
	partial.Append(createTestEntry("c", models.Null{}, 3, 1))

	// Получаем только третий элемент: непрерывный префикс пуст
	l.Merge(partial.Since(StateVector{1: 2}))
	assert.Equal(t, StateVector{}, l.StateVector())
}

func TestAppendLog_SeqContinuesAfterRestore(t *testing.T) {
	l := NewAppendLog(1)
	l.Append(createTestEntry("a", models.Null{}, 1, 1))
	l.Append(createTestEntry("b", models.Null{}, 2, 1))

	restored := NewAppendLog(1)
	restored.Merge(l)
	next := restored.Append(createTestEntry("c", models.Null{}, 3, 1))

	assert.Equal(t, uint64(3), next.ID.Seq, "restored replica must not reuse sequence numbers")
}

func TestAppendLog_CloneIsIndependent(t *testing.T) {
	l := NewAppendLog(1)
	l.Append(createTestEntry("a", models.List{models.Int(1)}, 1, 1))

	clone := l.Clone()
	l.Append(createTestEntry("b", models.Null{}, 2, 1))
	l.Entries()[0].Value.(models.List)[0] = models.Int(42)

	assert.Equal(t, 1, clone.Len())
	assert.Equal(t, models.List{models.Int(1)}, clone.Entries()[0].Value)
	assert.Equal(t, uint64(2), l.MaxTimestamp())
}

func TestAppendLog_AllStopsEarly(t *testing.T) {
	l := NewAppendLog(1)
	for i := 0; i < 5; i++ {
		l.Append(createTestEntry("k", models.Int(i), uint64(i+1), 1))
	}

	var seen []int64
	for it := range l.All() {
		seen = append(seen, int64(it.Entry.Value.(models.Int)))
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []int64{0, 1}, seen)
	assert.True(t, slices.IsSortedFunc(slices.Collect(l.All()), compareItems))
}

package crdt

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/crdtstore/internal/models"
)

func TestNewCompactingIndex(t *testing.T) {
	x := NewCompactingIndex()

	require.NotNil(t, x)
	assert.Equal(t, 0, x.Len(), "New index should be empty")
	assert.Equal(t, 0, x.Size(), "New index should reference no entries")
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		candidates []*models.Entry
		expected   models.Value
	}{
		{
			name: "highest timestamp wins",
			candidates: []*models.Entry{
				createTestEntry("k", models.String("old"), 3, 9),
				createTestEntry("k", models.String("new"), 5, 1),
			},
			expected: models.String("new"),
		},
		{
			name: "equal timestamps, highest replica wins",
			candidates: []*models.Entry{
				createTestEntry("k", models.String("r2"), 5, 2),
				createTestEntry("k", models.String("r7"), 5, 7),
				createTestEntry("k", models.String("r3"), 5, 3),
			},
			expected: models.String("r7"),
		},
		{
			name: "tombstone with higher timestamp wins",
			candidates: []*models.Entry{
				createTestEntry("k", models.String("value"), 5, 1),
				{Key: "k", Value: models.Null{}, Timestamp: 6, ReplicaID: 1, Tombstone: true},
			},
			expected: models.Null{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			winner := Resolve(tt.candidates)
			require.NotNil(t, winner)
			assert.True(t, models.Equal(tt.expected, winner.Value), "got %v", winner.Value)
		})
	}

	assert.Nil(t, Resolve(nil), "empty candidate set has no winner")
}

func TestResolve_OrderIndependent(t *testing.T) {
	candidates := []*models.Entry{
		createTestEntry("k", models.String("a"), 7, 1),
		createTestEntry("k", models.String("b"), 7, 1),
		createTestEntry("k", models.String("c"), 7, 1),
		createTestEntry("k", models.Int(1), 6, 9),
		{Key: "k", Value: models.Null{}, Timestamp: 7, ReplicaID: 1, Tombstone: true},
	}
	expected := Resolve(candidates)

	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 50; i++ {
		rng.Shuffle(len(candidates), func(a, b int) { candidates[a], candidates[b] = candidates[b], candidates[a] })
		assert.Same(t, expected, Resolve(candidates))
	}
}

func TestResolve_NormalizationFormsAreOrderIndependent(t *testing.T) {
	nfc := createTestEntry("k", models.String("\u00e9"), 4, 3)
	nfd := createTestEntry("k", models.String("e\u0301"), 4, 3)

	first := Resolve([]*models.Entry{nfc, nfd})
	second := Resolve([]*models.Entry{nfd, nfc})
	assert.Same(t, first, second)

	// Инкрементальный индекс выбирает того же победителя при любом порядке
	for _, order := range [][]*models.Entry{{nfc, nfd}, {nfd, nfc}} {
		x := NewCompactingIndex()
		l := NewAppendLog(1)
		for _, e := range order {
			x.Apply(l.Append(e))
		}
		winner, ok := x.Get("k")
		require.True(t, ok)
		assert.Same(t, first, winner)
	}
}

func TestCompactingIndex_Apply(t *testing.T) {
	x := NewCompactingIndex()
	l := NewAppendLog(1)

	first := l.Append(createTestEntry("k", models.String("v1"), 10, 1))
	ch, changed := x.Apply(first)
	assert.True(t, changed, "First apply should change winner")
	assert.Nil(t, ch.before)
	assert.Equal(t, "k", ch.key)

	// Более старая запись не меняет победителя
	older := l.Append(createTestEntry("k", models.String("v0"), 5, 1))
	_, changed = x.Apply(older)
	assert.False(t, changed, "Older entry should not replace winner")

	newer := l.Append(createTestEntry("k", models.String("v2"), 20, 1))
	ch, changed = x.Apply(newer)
	assert.True(t, changed)
	assert.Same(t, first.Entry, ch.before)
	assert.Same(t, newer.Entry, ch.after)

	// Повторное применение ничего не меняет
	_, changed = x.Apply(newer)
	assert.False(t, changed)

	e, ok := x.Get("k")
	require.True(t, ok)
	assert.Equal(t, models.String("v2"), e.Value)
	assert.Equal(t, 3, x.Size())
	assert.Equal(t, 1, x.Len())
}

func TestCompactingIndex_TombstoneHidesKey(t *testing.T) {
	x := NewCompactingIndex()
	l := NewAppendLog(1)

	x.Apply(l.Append(createTestEntry("a", models.Int(1), 1, 1)))
	x.Apply(l.Append(createTestEntry("b", models.Int(2), 2, 1)))
	x.Apply(l.Append(&models.Entry{Key: "a", Value: models.Null{}, Timestamp: 3, ReplicaID: 1, Tombstone: true}))

	assert.Equal(t, []string{"b"}, x.Keys())
	assert.Equal(t, 1, x.Len())

	e, ok := x.Get("a")
	require.True(t, ok, "tombstone is still the winner of its key")
	assert.True(t, e.Tombstone)
}

func TestCompactingIndex_RebuildFrom(t *testing.T) {
	l := NewAppendLog(1)
	incremental := NewCompactingIndex()
	for i, v := range []string{"x", "y", "z"} {
		incremental.Apply(l.Append(createTestEntry("k", models.String(v), uint64(i+1), 1)))
	}
	incremental.Apply(l.Append(createTestEntry("other", models.Bool(true), 4, 1)))

	rebuilt := NewCompactingIndex()
	rebuilt.Apply(l.Append(createTestEntry("stale", models.Null{}, 9, 1)))
	l.Remove(ItemID{Replica: 1, Seq: 5})
	rebuilt.RebuildFrom(l)

	assert.Equal(t, incremental.Keys(), rebuilt.Keys())
	for _, key := range incremental.Keys() {
		a, _ := incremental.Get(key)
		b, _ := rebuilt.Get(key)
		assert.Same(t, a, b)
	}
}

func TestCompactingIndex_Losers(t *testing.T) {
	x := NewCompactingIndex()
	l := NewAppendLog(1)

	x.Apply(l.Append(createTestEntry("k", models.Int(1), 10, 1)))    // 1:1
	x.Apply(l.Append(createTestEntry("k", models.Int(2), 50, 1)))    // 1:2
	x.Apply(l.Append(createTestEntry("k", models.Int(3), 100, 1)))   // 1:3 winner
	x.Apply(l.Append(createTestEntry("solo", models.Int(4), 5, 1)))  // 1:4 winner
	x.Apply(l.Append(createTestEntry("gone", models.Int(5), 20, 1))) // 1:5
	x.Apply(l.Append(&models.Entry{Key: "gone", Value: models.Null{}, Timestamp: 30, ReplicaID: 1, Tombstone: true}))

	tests := []struct {
		name      string
		expected  []ItemID
		horizon   uint64
		retention uint64
		now       uint64
	}{
		{
			name:     "zero horizon drops every loser",
			horizon:  0,
			now:      100,
			expected: []ItemID{{1, 1}, {1, 2}, {1, 5}},
		},
		{
			name:     "horizon keeps recent losers",
			horizon:  60,
			now:      100,
			expected: []ItemID{{1, 1}, {1, 5}},
		},
		{
			name:     "nothing is old enough",
			horizon:  1000,
			now:      100,
			expected: nil,
		},
		{
			name:      "expired tombstone drops the whole key",
			horizon:   1000,
			retention: 50,
			now:       100,
			expected:  []ItemID{{1, 5}, {1, 6}},
		},
		{
			name:      "fresh tombstone is retained",
			horizon:   1000,
			retention: 80,
			now:       100,
			expected:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, x.Losers(tt.horizon, tt.retention, tt.now))
		})
	}
}

func TestCompactingIndex_ForgetWinnerReresolves(t *testing.T) {
	x := NewCompactingIndex()
	l := NewAppendLog(1)

	low := l.Append(createTestEntry("k", models.String("low"), 1, 1))
	high := l.Append(createTestEntry("k", models.String("high"), 2, 1))
	x.Apply(low)
	x.Apply(high)

	changes := x.Forget([]ItemID{high.ID})
	require.Len(t, changes, 1)
	assert.Same(t, high.Entry, changes[0].before)
	assert.Same(t, low.Entry, changes[0].after)

	changes = x.Forget([]ItemID{low.ID})
	require.Len(t, changes, 1)
	assert.Nil(t, changes[0].after)
	_, ok := x.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, x.Size())

	// Забытые и неизвестные идентификаторы игнорируются
	assert.Empty(t, x.Forget([]ItemID{low.ID, {Replica: 9, Seq: 9}}))
}

func TestCompactingIndex_ForgetLoserKeepsWinner(t *testing.T) {
	x := NewCompactingIndex()
	l := NewAppendLog(1)

	low := l.Append(createTestEntry("k", models.String("low"), 1, 1))
	x.Apply(low)
	x.Apply(l.Append(createTestEntry("k", models.String("high"), 2, 1)))

	assert.Empty(t, x.Forget([]ItemID{low.ID}), "forgetting a loser is not a visible change")
	assert.Equal(t, 1, x.Size())
}

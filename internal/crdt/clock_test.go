package crdt

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frozenTime возвращает источник времени, который никогда не двигается.
func frozenTime(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

// newTestClock создает часы с остановленным физическим временем (0 ms),
// поэтому выдаваемые значения идут подряд: 1, 2, 3...
func newTestClock(replica uint32) *LogicalClock {
	return NewLogicalClockWithReplica(replica).WithNow(frozenTime(0))
}

func TestNewLogicalClock(t *testing.T) {
	clock := NewLogicalClock()

	require.NotNil(t, clock)
	assert.Equal(t, uint64(0), clock.Current(), "Initial counter should be 0")
	assert.NotZero(t, clock.ReplicaID(), "ReplicaID should not be zero")
}

func TestNewLogicalClockWithReplica(t *testing.T) {
	clock := NewLogicalClockWithReplica(42)

	require.NotNil(t, clock)
	assert.Equal(t, uint64(0), clock.Current())
	assert.Equal(t, uint32(42), clock.ReplicaID(), "ReplicaID should match provided value")
}

func TestLogicalClock_Next_FrozenWallClock(t *testing.T) {
	clock := newTestClock(1)

	tests := []struct {
		name          string
		expectedValue uint64
	}{
		{"First tick", 1},
		{"Second tick", 2},
		{"Third tick", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedValue, clock.Next())
			assert.Equal(t, tt.expectedValue, clock.Current())
		})
	}
}

func TestLogicalClock_Next_FollowsWallClock(t *testing.T) {
	wall := int64(1_000)
	clock := NewLogicalClockWithReplica(1).WithNow(func() time.Time { return time.UnixMilli(wall) })

	assert.Equal(t, uint64(1_000), clock.Next(), "first value should jump to wall clock")
	assert.Equal(t, uint64(1_001), clock.Next(), "wall clock did not move, counter should advance")

	wall = 5_000
	assert.Equal(t, uint64(5_000), clock.Next())
}

func TestLogicalClock_Next_WallClockMovesBackward(t *testing.T) {
	wall := int64(10_000)
	clock := NewLogicalClockWithReplica(1).WithNow(func() time.Time { return time.UnixMilli(wall) })

	first := clock.Next()

	// Системное время ушло назад на несколько секунд
	wall = 2_000
	second := clock.Next()
	third := clock.Next()

	assert.Greater(t, second, first)
	assert.Greater(t, third, second)
}

func TestLogicalClock_Next_Monotonicity(t *testing.T) {
	clock := NewLogicalClock()

	var previous uint64
	for i := 0; i < 1000; i++ {
		current := clock.Next()
		assert.Greater(t, current, previous, "Next should always increase")
		previous = current
	}
}

func TestLogicalClock_Observe(t *testing.T) {
	tests := []struct {
		name     string
		local    uint64
		remote   uint64
		expected uint64
	}{
		{name: "remote greater than local", local: 5, remote: 10, expected: 11},
		{name: "remote less than local", local: 15, remote: 10, expected: 16},
		{name: "remote equal to local", local: 10, remote: 10, expected: 11},
		{name: "both are zero", local: 0, remote: 0, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newTestClock(1)
			clock.SetTimestamp(tt.local)

			clock.Observe(tt.remote)

			assert.Equal(t, tt.expected, clock.Next())
		})
	}
}

func TestLogicalClock_SetTimestamp(t *testing.T) {
	clock := newTestClock(1)

	clock.SetTimestamp(100)
	assert.Equal(t, uint64(100), clock.Current())
	assert.Equal(t, uint64(101), clock.Next())
}

func TestReplicaFromUUID(t *testing.T) {
	assert.NotZero(t, ReplicaFromUUID(uuid.UUID{}), "zero is reserved")

	id := uuid.New()
	assert.Equal(t, ReplicaFromUUID(id), ReplicaFromUUID(id), "derivation must be stable")
}

func TestLogicalClock_ConcurrentNext(t *testing.T) {
	clock := newTestClock(1)
	iterations := 1000
	goroutines := 10

	var mu sync.Mutex
	seen := make(map[uint64]bool, iterations*goroutines)

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				ts := clock.Next()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Len(t, seen, goroutines*iterations, "Concurrent Next calls must never repeat a value")
	assert.Equal(t, uint64(goroutines*iterations), clock.Current())
}

func BenchmarkLogicalClock_Next(b *testing.B) {
	clock := NewLogicalClock()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		clock.Next()
	}
}

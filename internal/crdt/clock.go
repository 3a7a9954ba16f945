package crdt

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogicalClock представляет логические часы реплики в стиле Лампорта,
// привязанные к физическому времени: next = max(last + 1, wallClock).
// Значения строго растут в пределах процесса, даже если системное время
// стоит на месте или уходит назад.
type LogicalClock struct {
	now     func() time.Time // источник физического времени
	last    uint64           // последнее выданное или увиденное значение
	replica uint32           // идентификатор реплики
	mu      sync.Mutex       // мьютекс для потокобезопасности
}

// NewLogicalClock создает новые часы со случайным идентификатором реплики,
// полученным из UUID.
func NewLogicalClock() *LogicalClock {
	return NewLogicalClockWithReplica(ReplicaFromUUID(uuid.New()))
}

// NewLogicalClockWithReplica создает часы с заданным идентификатором реплики.
// Используется для тестирования или восстановления состояния.
func NewLogicalClockWithReplica(replica uint32) *LogicalClock {
	return &LogicalClock{
		now:     time.Now,
		replica: replica,
	}
}

// WithNow подменяет источник физического времени (для тестов и симуляций).
func (c *LogicalClock) WithNow(now func() time.Time) *LogicalClock {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = now
	return c
}

// Next возвращает новый timestamp для локальной записи.
// Никогда не блокируется надолго и никогда не возвращает ошибку.
func (c *LogicalClock) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.last + 1
	if wall := c.wallMillis(); wall > next {
		next = wall
	}
	c.last = next

	return next
}

// Observe учитывает timestamp, полученный от другой реплики.
// Согласно алгоритму Лампорта последующие локальные записи будут больше
// всех уже увиденных.
func (c *LogicalClock) Observe(remote uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote > c.last {
		c.last = remote
	}
}

// Current возвращает последнее выданное или увиденное значение без изменения часов.
func (c *LogicalClock) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.last
}

// SetTimestamp устанавливает счетчик в заданное значение.
// Используется для восстановления состояния часов (например, после перезапуска).
func (c *LogicalClock) SetTimestamp(timestamp uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = timestamp
}

// ReplicaID возвращает идентификатор реплики.
func (c *LogicalClock) ReplicaID() uint32 {
	return c.replica
}

func (c *LogicalClock) wallMillis() uint64 {
	ms := c.now().UnixMilli()
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}

// ReplicaFromUUID сворачивает UUID в 32-битный идентификатор реплики.
// Ноль зарезервирован и никогда не возвращается.
func ReplicaFromUUID(id uuid.UUID) uint32 {
	replica := binary.BigEndian.Uint32(id[:4]) ^ binary.BigEndian.Uint32(id[12:])
	if replica == 0 {
		replica = 1
	}
	return replica
}

package crdt

import (
	"io"
	"log/slog"
	"time"
)

// DefaultCompactEvery количество локальных записей между автоматическими компактизациями.
const DefaultCompactEvery = 64

// Option настраивает KeyedStore или Document.
type Option func(*options)

type options struct {
	clock              *LogicalClock
	logger             *slog.Logger
	horizon            time.Duration
	tombstoneRetention time.Duration
	compactEvery       int
	collectOrphans     bool
}

func newOptions(opts []Option) options {
	o := options{compactEvery: DefaultCompactEvery}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = NewLogicalClock()
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// WithClock задает логические часы. Document передает свои часы всем коллекциям.
func WithClock(clock *LogicalClock) Option {
	return func(o *options) { o.clock = clock }
}

// WithReplicaID создает часы с заданным идентификатором реплики.
func WithReplicaID(replica uint32) Option {
	return func(o *options) { o.clock = NewLogicalClockWithReplica(replica) }
}

// WithLogger задает логгер.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCompactionHorizon задает минимальный возраст проигравшей записи,
// после которого она удаляется из лога.
func WithCompactionHorizon(d time.Duration) Option {
	return func(o *options) { o.horizon = d }
}

// WithCompactEvery задает число локальных записей между автоматическими
// компактизациями. 0 отключает автоматическую компактизацию после записей.
func WithCompactEvery(n int) Option {
	return func(o *options) { o.compactEvery = max(n, 0) }
}

// WithTombstoneRetention задает срок хранения победивших tombstone.
// 0 хранит их бессрочно.
func WithTombstoneRetention(d time.Duration) Option {
	return func(o *options) { o.tombstoneRetention = d }
}

// WithCollectOrphans включает удаление вложенных коллекций,
// недостижимых из корневых, при Document.Compact.
func WithCollectOrphans(enabled bool) Option {
	return func(o *options) { o.collectOrphans = enabled }
}

func millis(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d.Milliseconds())
}

package crdt

import (
	"bytes"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/iudanet/crdtstore/internal/models"
)

// KeyedStore представляет сливаемое key-value хранилище поверх AppendLog
// и CompactingIndex.
//
// Все мутации выполняются по одной под мьютексом. Слияние и компактизация
// дополнительно захватывают флаг обслуживания: повторный запуск во время
// уже идущей операции отклоняется с ErrReentrantMutation.
type KeyedStore struct {
	clock  *LogicalClock
	log    *AppendLog
	index  *CompactingIndex
	events *dispatcher
	logger *slog.Logger
	owner  *Document
	id     string
	opts   options
	writes int // локальные записи с последней компактизации
	mu     sync.RWMutex
	busy   atomic.Bool
	closed atomic.Bool
}

// NewKeyedStore создает пустое хранилище с идентификатором коллекции id.
func NewKeyedStore(id string, opts ...Option) *KeyedStore {
	return newKeyedStore(id, newOptions(opts))
}

func newKeyedStore(id string, o options) *KeyedStore {
	return &KeyedStore{
		id:     id,
		clock:  o.clock,
		log:    NewAppendLog(o.clock.ReplicaID()),
		index:  NewCompactingIndex(),
		events: newDispatcher(),
		logger: o.logger.With(slog.String("collection", id)),
		opts:   o,
	}
}

// ID возвращает идентификатор коллекции.
func (s *KeyedStore) ID() string {
	return s.id
}

// Get возвращает текущее значение ключа. Чтение не изменяет хранилище.
func (s *KeyedStore) Get(key string) (models.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.index.Get(key)
	if !ok || e.Tombstone {
		return nil, false
	}
	return models.Clone(e.Value), true
}

// Has проверяет наличие живого значения ключа.
func (s *KeyedStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.index.Get(key)
	return ok && !e.Tombstone
}

// Set записывает значение ключа со свежим логическим timestamp.
// Предыдущая запись остается в логе до компактизации.
func (s *KeyedStore) Set(key string, value models.Value) error {
	if err := models.Validate(value); err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return s.write(key, models.Clone(value), false)
}

// Delete записывает tombstone для ключа. Tombstone участвует в разрешении
// конфликтов наравне с обычными записями.
func (s *KeyedStore) Delete(key string) error {
	return s.write(key, models.Null{}, true)
}

func (s *KeyedStore) write(key string, value models.Value, tombstone bool) error {
	if key == "" {
		return ErrEmptyKey
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}

	s.mu.Lock()
	entry := &models.Entry{
		Key:       key,
		Value:     value,
		Timestamp: s.clock.Next(),
		ReplicaID: s.clock.ReplicaID(),
		Tombstone: tombstone,
	}
	item := s.log.Append(entry)

	var changes []keyChange
	if ch, ok := s.index.Apply(item); ok {
		changes = append(changes, ch)
	}
	s.events.enqueue(buildEvent(s.id, OriginLocal, changes))

	s.writes++
	if s.opts.compactEvery > 0 && s.writes >= s.opts.compactEvery {
		// занятый флаг означает идущее обслуживание; компактизация будет позже
		if s.busy.CompareAndSwap(false, true) {
			s.compactLocked()
			s.busy.Store(false)
		}
	}
	s.mu.Unlock()

	localWritesTotal.Inc()
	s.events.drain()
	return nil
}

// Entries возвращает снимок содержимого, отсортированный по ключу.
// Итератор можно пройти повторно; последующие изменения хранилища в нем не видны.
func (s *KeyedStore) Entries() iter.Seq2[string, models.Value] {
	s.mu.RLock()
	keys := s.index.Keys()
	values := make([]models.Value, len(keys))
	for i, key := range keys {
		e, _ := s.index.Get(key)
		values[i] = models.Clone(e.Value)
	}
	s.mu.RUnlock()

	return func(yield func(string, models.Value) bool) {
		for i, key := range keys {
			if !yield(key, models.Clone(values[i])) {
				return
			}
		}
	}
}

// Keys возвращает отсортированный список ключей с живым значением.
func (s *KeyedStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.index.Keys()
}

// Len возвращает количество ключей с живым значением.
func (s *KeyedStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.index.Len()
}

// LogLen возвращает количество элементов в логе (включая tombstone и еще не
// удаленные проигравшие записи).
func (s *KeyedStore) LogLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.log.Len()
}

// Snapshot возвращает независимую копию лога.
func (s *KeyedStore) Snapshot() *AppendLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.log.Clone()
}

// StateVector возвращает вектор состояния лога.
func (s *KeyedStore) StateVector() StateVector {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.log.StateVector()
}

// Observe подписывает fn на изменения хранилища.
// Обработчики вызываются после снятия блокировки хранилища; изменения,
// сделанные из обработчика, ставятся в очередь и доставляются следом.
func (s *KeyedStore) Observe(fn func(ChangeEvent)) *Subscription {
	return s.events.subscribe(fn)
}

// Merge сливает с хранилищем лог другой реплики.
// Конфликты разрешаются детерминированно и ошибками не являются.
func (s *KeyedStore) Merge(other *AppendLog) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if !s.busy.CompareAndSwap(false, true) {
		reentrantRejections.Inc()
		return fmt.Errorf("failed to merge into %s: %w", s.id, ErrReentrantMutation)
	}

	s.mu.Lock()
	added, removed := s.log.Merge(other)

	var changes []keyChange
	if len(removed) > 0 {
		ids := make([]ItemID, len(removed))
		for i, it := range removed {
			ids[i] = it.ID
		}
		changes = append(changes, s.index.Forget(ids)...)
	}

	var maxTS uint64
	for _, it := range added {
		maxTS = max(maxTS, it.Entry.Timestamp)
		if ch, ok := s.index.Apply(it); ok {
			changes = append(changes, ch)
		}
	}
	s.clock.Observe(maxTS)

	compacted := s.compactLocked()
	s.events.enqueue(buildEvent(s.id, OriginRemote, collapse(changes)))
	s.mu.Unlock()

	mergesTotal.Inc()
	mergedItemsTotal.Add(len(added))
	s.logger.Debug("merged remote state",
		slog.Int("added", len(added)),
		slog.Int("removed", len(removed)),
		slog.Int("compacted", compacted),
	)

	// флаг снимается до доставки событий: обработчик может запустить новое слияние
	s.busy.Store(false)
	s.events.drain()
	return nil
}

// collapse склеивает последовательные изменения одного ключа:
// остается исходное before и итоговое after.
func collapse(changes []keyChange) []keyChange {
	if len(changes) < 2 {
		return changes
	}

	pos := make(map[string]int, len(changes))
	out := make([]keyChange, 0, len(changes))
	for _, ch := range changes {
		if i, ok := pos[ch.key]; ok {
			out[i].after = ch.after
			continue
		}
		pos[ch.key] = len(out)
		out = append(out, ch)
	}
	return out
}

// Compact удаляет из лога проигравшие записи старше горизонта компактизации.
// Возвращает количество удаленных элементов.
func (s *KeyedStore) Compact() (int, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}
	if !s.busy.CompareAndSwap(false, true) {
		reentrantRejections.Inc()
		return 0, fmt.Errorf("failed to compact %s: %w", s.id, ErrReentrantMutation)
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.compactLocked(), nil
}

// compactLocked выполняет компактизацию. Вызывается под s.mu и флагом busy.
func (s *KeyedStore) compactLocked() int {
	s.writes = 0

	losers := s.index.Losers(millis(s.opts.horizon), millis(s.opts.tombstoneRetention), s.clock.Current())
	if len(losers) == 0 {
		return 0
	}

	removed := s.log.Remove(losers...)
	s.index.Forget(losers)

	compactedItemsTotal.Add(len(removed))
	s.logger.Debug("compacted log",
		slog.Int("removed", len(removed)),
		slog.Int("remaining", s.log.Len()),
	)
	return len(removed)
}

// EncodeState кодирует полное состояние лога.
func (s *KeyedStore) EncodeState() ([]byte, error) {
	return s.EncodeUpdate(nil)
}

// EncodeUpdate кодирует дельту относительно вектора состояния получателя.
func (s *KeyedStore) EncodeUpdate(sv StateVector) ([]byte, error) {
	data, err := EncodeLog(s.id, s.delta(sv))
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", s.id, err)
	}
	return data, nil
}

func (s *KeyedStore) delta(sv StateVector) *AppendLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.log.Since(sv)
}

// ApplyUpdate применяет состояние или дельту, закодированную EncodeUpdate.
// Повторное применение и применение в любом порядке дают одинаковый результат.
func (s *KeyedStore) ApplyUpdate(data []byte) error {
	id, log, err := DecodeLog(data, s.clock.ReplicaID())
	if err == nil && id != "" && id != s.id {
		err = fmt.Errorf("%w: update for collection %q", ErrMalformedUpdate, id)
	}
	if err != nil {
		malformedUpdatesTotal.Inc()
		s.logger.Warn("rejected malformed update", slog.String("error", err.Error()))
		return err
	}
	return s.Merge(log)
}

// Dump возвращает детерминированное текстовое представление лога и индекса.
func (s *KeyedStore) Dump() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "collection %s\n", s.id)

	buf.WriteString("log:\n")
	for it := range s.log.All() {
		fmt.Fprintf(&buf, "  %s pos=%s %s\n", it.ID, formatPosition(it.Position), formatEntry(it.Entry))
	}

	buf.WriteString("deleted:\n")
	for _, replica := range s.log.deleted.Replicas() {
		for _, r := range s.log.deleted[replica] {
			fmt.Fprintf(&buf, "  %d:[%d,%d]\n", replica, r.Start, r.End)
		}
	}

	buf.WriteString("index:\n")
	for _, key := range s.index.Keys() {
		e, _ := s.index.Get(key)
		fmt.Fprintf(&buf, "  %s\n", formatEntry(e))
	}

	return buf.Bytes()
}

func formatPosition(p Position) string {
	buf := make([]byte, 0, len(p)*8)
	for i, ident := range p {
		if i > 0 {
			buf = append(buf, '.')
		}
		buf = strconv.AppendUint(buf, uint64(ident.Digit), 10)
		buf = append(buf, '@')
		buf = strconv.AppendUint(buf, uint64(ident.Replica), 10)
	}
	return string(buf)
}

func formatEntry(e *models.Entry) string {
	if e.Tombstone {
		return fmt.Sprintf("%q ts=%d replica=%d tombstone", e.Key, e.Timestamp, e.ReplicaID)
	}
	value, err := models.MarshalCanonical(e.Value)
	if err != nil {
		value = []byte("<invalid>")
	}
	return fmt.Sprintf("%q ts=%d replica=%d value=%s", e.Key, e.Timestamp, e.ReplicaID, value)
}

// Close закрывает хранилище: последующие мутации возвращают ErrStoreClosed,
// подписки отменяются.
func (s *KeyedStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.events.close()
	return nil
}

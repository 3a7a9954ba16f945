package crdt

import (
	"maps"
	"slices"
	"sync"

	"github.com/iudanet/crdtstore/internal/models"
)

// Origin источник изменения.
type Origin uint8

const (
	// OriginLocal локальная запись (Set/Delete)
	OriginLocal Origin = iota
	// OriginRemote слияние с удаленным состоянием (Merge/ApplyUpdate)
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// ChangeEvent описывает видимые изменения коллекции после одной мутации.
// Ключи в каждом списке отсортированы.
type ChangeEvent struct {
	Collection string
	Added      []string
	Updated    []string
	Removed    []string
	Origin     Origin
}

// Empty возвращает true, если событие не содержит изменений.
func (e ChangeEvent) Empty() bool {
	return len(e.Added) == 0 && len(e.Updated) == 0 && len(e.Removed) == 0
}

// buildEvent переводит смену победителей в видимые изменения ключей.
// Tombstone считается отсутствием значения.
func buildEvent(collection string, origin Origin, changes []keyChange) ChangeEvent {
	ev := ChangeEvent{Collection: collection, Origin: origin}
	for _, ch := range changes {
		was := ch.before != nil && !ch.before.Tombstone
		now := ch.after != nil && !ch.after.Tombstone

		switch {
		case !was && now:
			ev.Added = append(ev.Added, ch.key)
		case was && !now:
			ev.Removed = append(ev.Removed, ch.key)
		case was && now && !models.Equal(ch.before.Value, ch.after.Value):
			ev.Updated = append(ev.Updated, ch.key)
		}
	}
	slices.Sort(ev.Added)
	slices.Sort(ev.Updated)
	slices.Sort(ev.Removed)
	return ev
}

// Subscription подписка на события коллекции.
type Subscription struct {
	d    *dispatcher
	once sync.Once
	id   uint64
}

// Unsubscribe отменяет подписку. Повторный вызов безопасен.
// События, уже поставленные в очередь, подписчику не доставляются.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.d.mu.Lock()
		delete(s.d.subs, s.id)
		s.d.mu.Unlock()
	})
}

// dispatcher очередь событий коллекции.
// Мутации только ставят события в очередь под блокировкой хранилища;
// доставка выполняется после снятия блокировки. Если обработчик сам изменяет
// хранилище, новые события попадают в ту же очередь и доставляются
// текущим циклом доставки, без повторного входа.
type dispatcher struct {
	subs     map[uint64]func(ChangeEvent)
	queue    []ChangeEvent
	mu       sync.Mutex
	nextID   uint64
	draining bool
}

func newDispatcher() *dispatcher {
	return &dispatcher{subs: make(map[uint64]func(ChangeEvent))}
}

func (d *dispatcher) subscribe(fn func(ChangeEvent)) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	d.subs[d.nextID] = fn
	return &Subscription{d: d, id: d.nextID}
}

func (d *dispatcher) enqueue(ev ChangeEvent) {
	if ev.Empty() {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.subs) == 0 {
		return
	}
	d.queue = append(d.queue, ev)
}

// drain доставляет события из очереди. Вызов во время доставки
// (из обработчика) сразу возвращается: событие доставит внешний цикл.
func (d *dispatcher) drain() {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true

	done := false
	defer func() {
		// обработчик паникует: снимаем флаг, чтобы очередь не зависла
		if !done {
			d.mu.Lock()
			d.draining = false
			d.mu.Unlock()
		}
	}()

	for {
		if len(d.queue) == 0 {
			d.draining = false
			done = true
			d.mu.Unlock()
			return
		}
		ev := d.queue[0]
		d.queue = d.queue[1:]
		ids := slices.Sorted(maps.Keys(d.subs))
		d.mu.Unlock()

		for _, id := range ids {
			d.mu.Lock()
			fn, ok := d.subs[id]
			d.mu.Unlock()
			if ok {
				fn(ev)
			}
		}

		d.mu.Lock()
	}
}

func (d *dispatcher) close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	clear(d.subs)
	d.queue = nil
}

package crdt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/iudanet/crdtstore/internal/models"
	"github.com/iudanet/crdtstore/pkg/api"
)

// Префиксы идентификаторов коллекций
const (
	RootPrefix   = "root/"
	NestedPrefix = "nested/"
)

// DeclarationState состояние имени в реестре корневых коллекций.
type DeclarationState uint8

const (
	// NotDeclared коллекция с таким именем не объявлена
	NotDeclared DeclarationState = iota
	// Declared коллекция объявлена (локально или пришла со слиянием)
	Declared
)

// Declaration результат поиска корневой коллекции по имени.
type Declaration struct {
	Ref   models.CollectionRef
	State DeclarationState
}

// DocumentVector векторы состояния всех коллекций документа.
type DocumentVector map[string]StateVector

// Document представляет реплику документа: реестр коллекций с общими
// логическими часами.
//
// Корневые коллекции идентифицируются именем (root/<name>), поэтому
// объявления одного имени разными репликами сливаются в одну коллекцию.
// Вложенные коллекции получают случайный идентификатор (nested/<uuid>) и
// записываются в ключ родителя как обычное значение: при параллельном
// назначении побеждает одна ссылка, содержимое проигравшей коллекции
// через этот ключ больше недоступно.
type Document struct {
	collections *xsync.MapOf[string, *KeyedStore]
	clock       *LogicalClock
	logger      *slog.Logger
	opts        options
	closed      atomic.Bool
}

// New создает пустой документ.
func New(opts ...Option) *Document {
	o := newOptions(opts)
	return &Document{
		collections: xsync.NewMapOf[string, *KeyedStore](),
		clock:       o.clock,
		logger:      o.logger,
		opts:        o,
	}
}

// ReplicaID возвращает идентификатор реплики документа.
func (d *Document) ReplicaID() uint32 {
	return d.clock.ReplicaID()
}

// Clock возвращает логические часы документа.
func (d *Document) Clock() *LogicalClock {
	return d.clock
}

// collection возвращает коллекцию по идентификатору, создавая пустую при отсутствии.
func (d *Document) collection(id string) *KeyedStore {
	store, _ := d.collections.LoadOrCompute(id, func() *KeyedStore {
		s := newKeyedStore(id, d.opts)
		s.owner = d
		return s
	})
	return store
}

// Collection возвращает коллекцию по идентификатору, если она известна документу.
func (d *Document) Collection(id string) (*KeyedStore, bool) {
	return d.collections.Load(id)
}

// DeclareRoot возвращает корневую коллекцию name, создавая ее при необходимости.
// Операция идемпотентна; одноименные коллекции разных реплик сливаются.
func (d *Document) DeclareRoot(name string) (*KeyedStore, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if !utf8.ValidString(name) {
		return nil, fmt.Errorf("%w: collection name %q", ErrInvalidKey, name)
	}
	if d.closed.Load() {
		return nil, ErrStoreClosed
	}
	return d.collection(RootPrefix + name), nil
}

// Lookup возвращает состояние объявления корневой коллекции name.
func (d *Document) Lookup(name string) Declaration {
	id := RootPrefix + name
	if _, ok := d.collections.Load(id); ok {
		return Declaration{State: Declared, Ref: models.CollectionRef{ID: id}}
	}
	return Declaration{State: NotDeclared}
}

// AssignNested создает новую вложенную коллекцию и записывает ссылку на нее
// в ключ key родителя. Ранее записанная под этим ключом коллекция отвязывается.
// Для данных, которые могут создаваться параллельно, key должен быть уникальным.
func (d *Document) AssignNested(parent *KeyedStore, key string) (*KeyedStore, error) {
	if parent == nil || parent.owner != d {
		return nil, ErrForeignCollection
	}
	if d.closed.Load() {
		return nil, ErrStoreClosed
	}

	child := d.collection(NestedPrefix + uuid.NewString())
	if err := parent.Set(key, models.CollectionRef{ID: child.ID()}); err != nil {
		d.collections.Delete(child.ID())
		return nil, fmt.Errorf("failed to assign nested collection: %w", err)
	}
	return child, nil
}

// Nested возвращает вложенную коллекцию, на которую ссылается ключ key родителя.
// Если содержимое коллекции еще не пришло, в реестре регистрируется пустая
// коллекция: записи в нее и пришедшее позже содержимое попадают в одно место.
// Пустая коллекция видна в Collections, но не в StateVector и не в обновлениях.
func (d *Document) Nested(parent *KeyedStore, key string) (*KeyedStore, bool) {
	if parent == nil || parent.owner != d {
		return nil, false
	}
	v, ok := parent.Get(key)
	if !ok {
		return nil, false
	}
	ref, ok := v.(models.CollectionRef)
	if !ok {
		return nil, false
	}
	// содержимое коллекции может прийти позже ссылки
	return d.collection(ref.ID), true
}

// Collections возвращает отсортированный список идентификаторов коллекций.
func (d *Document) Collections() []string {
	ids := make([]string, 0, d.collections.Size())
	d.collections.Range(func(id string, _ *KeyedStore) bool {
		ids = append(ids, id)
		return true
	})
	slices.Sort(ids)
	return ids
}

// StateVector возвращает векторы состояния всех непустых коллекций.
func (d *Document) StateVector() DocumentVector {
	dv := make(DocumentVector)
	d.collections.Range(func(id string, s *KeyedStore) bool {
		if sv := s.StateVector(); len(sv) > 0 {
			dv[id] = sv
		}
		return true
	})
	return dv
}

// EncodeState кодирует полное состояние документа.
func (d *Document) EncodeState() ([]byte, error) {
	return d.EncodeUpdate(nil)
}

// EncodeUpdate кодирует дельту относительно векторов состояния получателя.
// Коллекции без новых элементов и без удалений пропускаются.
func (d *Document) EncodeUpdate(dv DocumentVector) ([]byte, error) {
	update := api.DocumentUpdate{Version: api.UpdateVersion}

	for _, id := range d.Collections() {
		store, ok := d.collections.Load(id)
		if !ok {
			continue
		}

		delta := store.delta(dv[id])
		if delta.Len() == 0 && len(delta.deleted) == 0 {
			continue
		}

		cu, err := toCollectionUpdate(id, delta)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", id, err)
		}
		update.Collections = append(update.Collections, cu)
	}

	data, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal update: %w", err)
	}
	return data, nil
}

// ApplyUpdate применяет состояние или дельту, закодированную EncodeUpdate.
// Обновление проверяется целиком до применения: некорректное обновление
// не изменяет документ.
func (d *Document) ApplyUpdate(data []byte) error {
	if d.closed.Load() {
		return ErrStoreClosed
	}

	logs, err := d.decodeUpdate(data)
	if err != nil {
		malformedUpdatesTotal.Inc()
		d.logger.Warn("rejected malformed update", slog.String("error", err.Error()))
		return err
	}

	for _, id := range slices.Sorted(maps.Keys(logs)) {
		if err := d.collection(id).Merge(logs[id]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) decodeUpdate(data []byte) (map[string]*AppendLog, error) {
	var update api.DocumentUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedUpdate, err)
	}
	if update.Version != api.UpdateVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedUpdate, update.Version)
	}

	logs := make(map[string]*AppendLog, len(update.Collections))
	for _, cu := range update.Collections {
		if !validCollectionID(cu.ID) {
			return nil, fmt.Errorf("%w: invalid collection id %q", ErrMalformedUpdate, cu.ID)
		}
		log, err := fromCollectionUpdate(d.clock.ReplicaID(), cu)
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", cu.ID, err)
		}
		if prev, ok := logs[cu.ID]; ok {
			prev.Merge(log)
			continue
		}
		logs[cu.ID] = log
	}
	return logs, nil
}

func validCollectionID(id string) bool {
	for _, prefix := range []string{RootPrefix, NestedPrefix} {
		if rest, ok := strings.CutPrefix(id, prefix); ok && rest != "" {
			return utf8.ValidString(rest)
		}
	}
	return false
}

// DecodeState восстанавливает документ из состояния, закодированного EncodeState.
// Логические часы продвигаются за наибольший сохраненный timestamp.
func DecodeState(data []byte, opts ...Option) (*Document, error) {
	d := New(opts...)
	if err := d.ApplyUpdate(data); err != nil {
		return nil, err
	}
	return d, nil
}

// Compact выполняет компактизацию всех коллекций и, если включено
// WithCollectOrphans, удаляет вложенные коллекции, недостижимые из корневых.
// Возвращает количество удаленных элементов логов.
func (d *Document) Compact() (int, error) {
	if d.closed.Load() {
		return 0, ErrStoreClosed
	}

	total := 0
	for _, id := range d.Collections() {
		store, ok := d.collections.Load(id)
		if !ok {
			continue
		}
		n, err := store.Compact()
		if err != nil {
			return total, err
		}
		total += n
	}

	if d.opts.collectOrphans {
		orphans := d.collectOrphans()
		if len(orphans) > 0 {
			d.logger.Debug("released orphaned collections", slog.Int("count", len(orphans)))
		}
	}
	return total, nil
}

// collectOrphans удаляет вложенные коллекции, до которых нельзя дойти
// по ссылкам от корневых коллекций.
func (d *Document) collectOrphans() []string {
	reachable := make(map[string]struct{})
	var queue []string
	for _, id := range d.Collections() {
		if strings.HasPrefix(id, RootPrefix) {
			reachable[id] = struct{}{}
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		store, ok := d.collections.Load(id)
		if !ok {
			continue
		}
		for _, v := range store.Entries() {
			for _, ref := range collectRefs(v, nil) {
				if _, seen := reachable[ref]; !seen {
					reachable[ref] = struct{}{}
					queue = append(queue, ref)
				}
			}
		}
	}

	var orphans []string
	for _, id := range d.Collections() {
		if _, ok := reachable[id]; ok {
			continue
		}
		if store, loaded := d.collections.LoadAndDelete(id); loaded {
			_ = store.Close()
			orphans = append(orphans, id)
		}
	}
	return orphans
}

// collectRefs собирает идентификаторы коллекций, на которые ссылается значение.
func collectRefs(v models.Value, out []string) []string {
	switch val := v.(type) {
	case models.CollectionRef:
		out = append(out, val.ID)
	case models.List:
		for _, item := range val {
			out = collectRefs(item, out)
		}
	case models.Object:
		for _, item := range val {
			out = collectRefs(item, out)
		}
	}
	return out
}

// Close закрывает документ и все его коллекции.
func (d *Document) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.collections.Range(func(_ string, s *KeyedStore) bool {
		_ = s.Close()
		return true
	})
	return nil
}

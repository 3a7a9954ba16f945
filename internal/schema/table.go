package schema

import (
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/iudanet/crdtstore/internal/crdt"
	"github.com/iudanet/crdtstore/internal/models"
)

// Table таблица строк: корневая коллекция, в которой каждый ключ (ID строки)
// ссылается на вложенную коллекцию с полями строки. ID строк случайные,
// поэтому строки, вставленные разными репликами, не конфликтуют.
type Table struct {
	doc    *crdt.Document
	root   *crdt.KeyedStore
	schema *Schema
	name   string
}

// NewTable объявляет корневую коллекцию name и возвращает таблицу над ней.
func NewTable(doc *crdt.Document, name string, s *Schema) (*Table, error) {
	root, err := doc.DeclareRoot(name)
	if err != nil {
		return nil, fmt.Errorf("failed to declare table %q: %w", name, err)
	}
	return &Table{doc: doc, root: root, schema: s, name: name}, nil
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Insert проверяет значения и создает строку. Возвращает ID строки.
func (t *Table) Insert(values map[string]models.Value) (string, error) {
	if err := t.check(values); err != nil {
		return "", err
	}

	id := uuid.NewString()
	child, err := t.doc.AssignNested(t.root, id)
	if err != nil {
		return "", fmt.Errorf("failed to create row: %w", err)
	}

	if err := t.write(NewLayer(child, t.schema), values); err != nil {
		return "", err
	}
	return id, nil
}

// Row возвращает слой схемы над строкой id.
func (t *Table) Row(id string) (*Layer, error) {
	v, ok := t.root.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRowNotFound, id)
	}
	if _, isRef := v.(models.CollectionRef); !isRef {
		return nil, fmt.Errorf("row %q: %w", id, crdt.ErrNotCollection)
	}

	child, ok := t.doc.Nested(t.root, id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRowNotFound, id)
	}
	return NewLayer(child, t.schema), nil
}

// Rows перебирает строки в порядке ID. Ключи, не ссылающиеся на коллекцию,
// пропускаются.
func (t *Table) Rows() iter.Seq2[string, Record] {
	return func(yield func(string, Record) bool) {
		for id, v := range t.root.Entries() {
			if _, isRef := v.(models.CollectionRef); !isRef {
				continue
			}
			child, ok := t.doc.Nested(t.root, id)
			if !ok {
				continue
			}
			if !yield(id, NewLayer(child, t.schema).Read()) {
				return
			}
		}
	}
}

// Len возвращает количество строк.
func (t *Table) Len() int {
	n := 0
	for range t.Rows() {
		n++
	}
	return n
}

// Update проверяет значения и записывает их в строку id.
func (t *Table) Update(id string, values map[string]models.Value) error {
	row, err := t.Row(id)
	if err != nil {
		return err
	}
	if err := t.check(values); err != nil {
		return err
	}
	return t.write(row, values)
}

// Delete удаляет строку id. Содержимое строки остается во вложенной
// коллекции до ее освобождения компактизацией документа.
func (t *Table) Delete(id string) error {
	if !t.root.Has(id) {
		return fmt.Errorf("%w: %q", ErrRowNotFound, id)
	}
	return t.root.Delete(id)
}

func (t *Table) check(values map[string]models.Value) error {
	for _, name := range slices.Sorted(maps.Keys(values)) {
		f, ok := t.schema.Field(name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
		if err := f.validate(values[name]); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}

func (t *Table) write(row *Layer, values map[string]models.Value) error {
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if err := row.Set(name, values[name]); err != nil {
			return fmt.Errorf("failed to write %q: %w", name, err)
		}
	}
	return nil
}

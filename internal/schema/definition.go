package schema

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/iudanet/crdtstore/internal/models"
)

// Definition декларативное описание схемы (YAML). Функции миграции
// задаются в коде и передаются в Build.
//
//	name: todo
//	versions:
//	  - number: 1
//	    fields:
//	      - id: f_title
//	        name: title
//	        cue: 'string & !=""'
//	        default: untitled
type Definition struct {
	Name     string              `yaml:"name"`
	Versions []VersionDefinition `yaml:"versions"`
}

// VersionDefinition описание одной версии.
type VersionDefinition struct {
	Fields []FieldDefinition `yaml:"fields"`
	Number int               `yaml:"number"`
}

// FieldDefinition описание поля. Если задан cue, используется CUE
// ограничение; иначе kinds ограничивает варианты значения; без обоих
// принимается любое значение.
type FieldDefinition struct {
	Default any      `yaml:"default"`
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	CUE     string   `yaml:"cue"`
	Kinds   []string `yaml:"kinds"`
}

// LoadDefinition читает определение схемы из YAML. Неизвестные ключи
// считаются ошибкой.
func LoadDefinition(r io.Reader) (*Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty definition", ErrInvalidSchema)
		}
		return nil, fmt.Errorf("failed to decode schema definition: %w", err)
	}
	return &def, nil
}

// LoadDefinitionFile читает определение схемы из файла.
func LoadDefinitionFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadDefinition(f)
}

// Build строит схему. migrations сопоставляет номеру версии функцию
// миграции из предыдущей версии.
func (d *Definition) Build(migrations map[int]MigrateFunc) (*Schema, error) {
	versions := make([]Version, 0, len(d.Versions))
	known := make(map[int]struct{}, len(d.Versions))

	for _, vd := range d.Versions {
		v := Version{Number: vd.Number, Migrate: migrations[vd.Number]}
		known[vd.Number] = struct{}{}

		for _, fd := range vd.Fields {
			f, err := fd.field()
			if err != nil {
				return nil, fmt.Errorf("version %d field %q: %w", vd.Number, fd.Name, err)
			}
			v.Fields = append(v.Fields, f)
		}
		versions = append(versions, v)
	}

	for number := range migrations {
		if _, ok := known[number]; !ok {
			return nil, fmt.Errorf("%w: migration for unknown version %d", ErrInvalidSchema, number)
		}
	}

	return New(versions...)
}

func (fd FieldDefinition) field() (Field, error) {
	f := Field{StableID: fd.ID, DisplayName: fd.Name}

	switch {
	case fd.CUE != "":
		v, err := CUE(fd.CUE)
		if err != nil {
			return Field{}, err
		}
		f.Validator = v
	case len(fd.Kinds) > 0:
		kinds := make([]models.Kind, len(fd.Kinds))
		for i, name := range fd.Kinds {
			k, err := models.ParseKind(name)
			if err != nil {
				return Field{}, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
			}
			kinds[i] = k
		}
		f.Validator = OfKind(kinds...)
	}

	if fd.Default != nil {
		def, err := models.FromNative(fd.Default)
		if err != nil {
			return Field{}, fmt.Errorf("%w: default: %w", ErrInvalidSchema, err)
		}
		if err := f.validate(def); err != nil {
			return Field{}, fmt.Errorf("%w: default: %w", ErrInvalidSchema, err)
		}
		f.Default = def
	}

	return f, nil
}

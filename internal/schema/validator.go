package schema

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/iudanet/crdtstore/internal/models"
)

// Validator проверяет форму значения поля.
// Ошибка валидации оборачивает ErrInvalidShape.
type Validator interface {
	Validate(v models.Value) error
}

// ValidatorFunc адаптер обычной функции к Validator.
type ValidatorFunc func(v models.Value) error

// Validate calls f(v).
func (f ValidatorFunc) Validate(v models.Value) error {
	return f(v)
}

// Any принимает любое значение.
func Any() Validator {
	return ValidatorFunc(func(models.Value) error { return nil })
}

// OfKind принимает значения перечисленных вариантов.
func OfKind(kinds ...models.Kind) Validator {
	return ValidatorFunc(func(v models.Value) error {
		if v == nil {
			return fmt.Errorf("%w: nil value", ErrInvalidShape)
		}
		if slices.Contains(kinds, v.Kind()) {
			return nil
		}
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = k.String()
		}
		return fmt.Errorf("%w: got %s, want %s", ErrInvalidShape, v.Kind(), strings.Join(names, " | "))
	})
}

// CUEValidator проверяет значение CUE ограничением, например `string & !=""`
// или `{name: string, age: int & >=0}`. Значение переводится в CUE через
// models.ToNative; ссылка на коллекцию выглядит как {"$ref": id}.
type CUEValidator struct {
	ctx        *cue.Context
	constraint cue.Value
	expr       string
	mu         sync.Mutex // cue.Context не рассчитан на конкурентное использование
}

// CUE компилирует выражение ограничения.
func CUE(expr string) (*CUEValidator, error) {
	ctx := cuecontext.New()
	constraint := ctx.CompileString(expr)
	if err := constraint.Err(); err != nil {
		return nil, fmt.Errorf("%w: compile %q: %s", ErrInvalidSchema, expr, cueerrors.Details(err, nil))
	}
	return &CUEValidator{ctx: ctx, constraint: constraint, expr: expr}, nil
}

// MustCUE как CUE, но паникует при ошибке компиляции.
// Предназначен для ограничений, заданных в коде.
func MustCUE(expr string) *CUEValidator {
	v, err := CUE(expr)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate unifies v with the constraint and requires a concrete result.
func (c *CUEValidator) Validate(v models.Value) error {
	if v == nil {
		return fmt.Errorf("%w: nil value", ErrInvalidShape)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	encoded := c.ctx.Encode(models.ToNative(v))
	if err := encoded.Err(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidShape, cueerrors.Details(err, nil))
	}

	if err := c.constraint.Unify(encoded).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidShape, strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}

// String returns the constraint expression.
func (c *CUEValidator) String() string {
	return c.expr
}

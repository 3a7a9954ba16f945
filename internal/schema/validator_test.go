package schema

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/crdtstore/internal/models"
)

func TestOfKind(t *testing.T) {
	v := OfKind(models.KindInt, models.KindFloat)

	tests := []struct {
		value   models.Value
		name    string
		wantErr bool
	}{
		{name: "int", value: models.Int(1)},
		{name: "float", value: models.Float(1.5)},
		{name: "string", value: models.String("1"), wantErr: true},
		{name: "null", value: models.Null{}, wantErr: true},
		{name: "nil", value: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidShape)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCUE(t *testing.T) {
	tests := []struct {
		value   models.Value
		name    string
		expr    string
		wantErr bool
	}{
		{name: "non-empty string", expr: `string & !=""`, value: models.String("x")},
		{name: "empty string rejected", expr: `string & !=""`, value: models.String(""), wantErr: true},
		{name: "wrong kind rejected", expr: `string`, value: models.Int(1), wantErr: true},
		{name: "int range", expr: `int & >=0 & <=10`, value: models.Int(10)},
		{name: "int out of range", expr: `int & >=0 & <=10`, value: models.Int(11), wantErr: true},
		{name: "float is a number", expr: `number`, value: models.Float(0.5)},
		{name: "bytes", expr: `bytes`, value: models.Bytes("raw")},
		{name: "null", expr: `null`, value: models.Null{}},
		{name: "enum", expr: `"light" | "dark"`, value: models.String("dark")},
		{name: "enum miss", expr: `"light" | "dark"`, value: models.String("blue"), wantErr: true},
		{name: "list of ints", expr: `[...int]`, value: models.List{models.Int(1), models.Int(2)}},
		{name: "list with foreign element", expr: `[...int]`, value: models.List{models.Int(1), models.String("2")}, wantErr: true},
		{
			name:  "object shape",
			expr:  `{name: string, age?: int}`,
			value: models.Object{"name": models.String("ann"), "extra": models.Bool(true)},
		},
		{
			name:    "object missing required field",
			expr:    `{name: string}`,
			value:   models.Object{"age": models.Int(3)},
			wantErr: true,
		},
		{
			name:  "collection reference",
			expr:  `{"$ref": =~"^nested/"}`,
			value: models.CollectionRef{ID: "nested/abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := CUE(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, v.String())

			err = v.Validate(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidShape)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCUE_CompileError(t *testing.T) {
	_, err := CUE(`string &`)
	assert.ErrorIs(t, err, ErrInvalidSchema)

	assert.Panics(t, func() { MustCUE(`{`) })
	assert.NotPanics(t, func() { MustCUE(`int`) })
}

func TestCUE_ConcurrentValidate(t *testing.T) {
	v := MustCUE(`int & >0`)

	var wg sync.WaitGroup
	errs := make([]error, 32)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = v.Validate(models.Int(int64(i)))
		}(i)
	}
	wg.Wait()

	assert.ErrorIs(t, errs[0], ErrInvalidShape)
	for _, err := range errs[1:] {
		assert.NoError(t, err)
	}
}

func TestValidatorFunc(t *testing.T) {
	called := false
	v := ValidatorFunc(func(models.Value) error {
		called = true
		return nil
	})

	require.NoError(t, v.Validate(models.Int(1)))
	assert.True(t, called)
	assert.NoError(t, Any().Validate(models.Null{}))
}

package request

import "strings"

// State is the externally visible state of a series.
type State struct {
	Data    any
	Err     error
	Params  []any
	Loading bool
}

// StateField names the fields touched by a state mutation.
type StateField uint8

const (
	FieldData StateField = 1 << iota
	FieldError
	FieldParams
	FieldLoading
)

func (f StateField) Has(o StateField) bool {
	return f&o == o
}

func (f StateField) String() string {
	var parts []string
	for _, x := range []struct {
		f    StateField
		name string
	}{
		{FieldData, "data"},
		{FieldError, "error"},
		{FieldParams, "params"},
		{FieldLoading, "loading"},
	} {
		if f.Has(x.f) {
			parts = append(parts, x.name)
		}
	}
	return strings.Join(parts, "|")
}

// apply copies the selected fields of src into s.
func (s *State) apply(fields StateField, src State) {
	if fields.Has(FieldData) {
		s.Data = src.Data
	}
	if fields.Has(FieldError) {
		s.Err = src.Err
	}
	if fields.Has(FieldParams) {
		s.Params = src.Params
	}
	if fields.Has(FieldLoading) {
		s.Loading = src.Loading
	}
}

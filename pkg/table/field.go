package table

import (
	"encoding/json"
	"fmt"
)

const (
	sideInput  = "input"
	sideOutput = "output"
)

// Field is a typed request or response field.
type Field struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Type        FieldType `json:"type" yaml:"type"`
	Default     any       `json:"default" yaml:"default"`
}

// Registry declares the input and output fields of a table. Inputs and
// outputs are independent namespaces; both keep declaration order.
type Registry struct {
	inputs    []Field
	outputs   []Field
	inputIdx  map[string]int
	outputIdx map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		inputIdx:  make(map[string]int),
		outputIdx: make(map[string]int),
	}
}

// AddInput declares a request field. A nil default becomes the zero value of typ.
func (r *Registry) AddInput(name string, typ FieldType, description string, def any) error {
	return r.add(sideInput, name, typ, description, def)
}

// AddOutput declares a response field. A nil default becomes the zero value of typ.
func (r *Registry) AddOutput(name string, typ FieldType, description string, def any) error {
	return r.add(sideOutput, name, typ, description, def)
}

// Input returns the request field with the given name.
func (r *Registry) Input(name string) (Field, bool) {
	i, ok := r.inputIdx[name]
	if !ok {
		return Field{}, false
	}
	return r.inputs[i], true
}

// Output returns the response field with the given name.
func (r *Registry) Output(name string) (Field, bool) {
	i, ok := r.outputIdx[name]
	if !ok {
		return Field{}, false
	}
	return r.outputs[i], true
}

// Inputs returns the request fields in declaration order.
func (r *Registry) Inputs() []Field {
	out := make([]Field, len(r.inputs))
	copy(out, r.inputs)
	return out
}

// Outputs returns the response fields in declaration order.
func (r *Registry) Outputs() []Field {
	out := make([]Field, len(r.outputs))
	copy(out, r.outputs)
	return out
}

// Defaults returns a response populated with every output default.
func (r *Registry) Defaults() Response {
	resp := make(Response, len(r.outputs))
	for _, f := range r.outputs {
		resp[f.Name] = f.Default
	}
	return resp
}

func (r *Registry) add(side, name string, typ FieldType, description string, def any) error {
	if name == "" {
		return fmt.Errorf("%s field name cannot be empty", side)
	}
	if !typ.Valid() {
		return &InvalidTypeError{Field: name, Type: string(typ)}
	}

	idx := r.inputIdx
	if side == sideOutput {
		idx = r.outputIdx
	}
	if _, exists := idx[name]; exists {
		return &DuplicateFieldError{Side: side, Name: name}
	}

	value := zeroValue(typ)
	if def != nil {
		v, ok := NormalizeValue(typ, def)
		if !ok {
			return &TypeMismatchError{FieldName: name, ExpectedType: typ, ActualType: TypeName(def), Source: "default"}
		}
		value = v
	}

	f := Field{Name: name, Description: description, Type: typ, Default: value}
	if side == sideOutput {
		idx[name] = len(r.outputs)
		r.outputs = append(r.outputs, f)
	} else {
		idx[name] = len(r.inputs)
		r.inputs = append(r.inputs, f)
	}
	return nil
}

func (r *Registry) clone() *Registry {
	c := &Registry{
		inputs:    make([]Field, len(r.inputs)),
		outputs:   make([]Field, len(r.outputs)),
		inputIdx:  make(map[string]int, len(r.inputIdx)),
		outputIdx: make(map[string]int, len(r.outputIdx)),
	}
	copy(c.inputs, r.inputs)
	copy(c.outputs, r.outputs)
	for k, v := range r.inputIdx {
		c.inputIdx[k] = v
	}
	for k, v := range r.outputIdx {
		c.outputIdx[k] = v
	}
	return c
}

func zeroValue(t FieldType) any {
	switch t {
	case TypeNumber:
		return float64(0)
	case TypeBoolean:
		return false
	default:
		return ""
	}
}

// NormalizeValue converts v to the canonical Go type of t: float64, bool or
// string. It reports false when v is not of type t. Numbers are never parsed
// from strings and booleans are never derived from numbers.
func NormalizeValue(t FieldType, v any) (any, bool) {
	switch t {
	case TypeNumber:
		return toFloat64(v)
	case TypeBoolean:
		b, ok := v.(bool)
		return b, ok
	case TypeString:
		s, ok := v.(string)
		return s, ok
	default:
		return nil, false
	}
}

// InferType returns the field type of a Go value and the value in canonical form.
func InferType(v any) (FieldType, any, bool) {
	switch val := v.(type) {
	case bool:
		return TypeBoolean, val, true
	case string:
		return TypeString, val, true
	}
	if f, ok := toFloat64(v); ok {
		return TypeNumber, f, true
	}
	return "", nil, false
}

// TypeName describes the type of v in field type vocabulary for error messages.
func TypeName(v any) string {
	if v == nil {
		return "null"
	}
	if t, _, ok := InferType(v); ok {
		return string(t)
	}
	return fmt.Sprintf("%T", v)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

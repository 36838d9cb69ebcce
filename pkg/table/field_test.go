package table

import (
	"errors"
	"testing"
)

func TestRegistry_AddFields(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(r *Registry) error
		wantErr   error
		wantAny   bool
		wantInput string
	}{
		{
			name: "input field",
			setup: func(r *Registry) error {
				return r.AddInput("age", TypeNumber, "Age", 30)
			},
			wantInput: "age",
		},
		{
			name: "duplicate input",
			setup: func(r *Registry) error {
				if err := r.AddInput("age", TypeNumber, "", nil); err != nil {
					return err
				}
				return r.AddInput("age", TypeString, "", nil)
			},
			wantErr: ErrDuplicateField,
		},
		{
			name: "same name on both sides",
			setup: func(r *Registry) error {
				if err := r.AddInput("plan", TypeString, "", nil); err != nil {
					return err
				}
				return r.AddOutput("plan", TypeString, "", nil)
			},
			wantInput: "plan",
		},
		{
			name: "invalid type",
			setup: func(r *Registry) error {
				return r.AddInput("age", FieldType("date"), "", nil)
			},
			wantErr: ErrInvalidType,
		},
		{
			name: "default of wrong type",
			setup: func(r *Registry) error {
				return r.AddOutput("premium", TypeNumber, "", "cheap")
			},
			wantErr: ErrTypeMismatch,
		},
		{
			name: "empty name",
			setup: func(r *Registry) error {
				return r.AddInput("", TypeNumber, "", nil)
			},
			wantAny: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := tt.setup(r)

			if tt.wantAny {
				if err == nil {
					t.Fatal("setup() error = nil, want an error")
				}
				return
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("setup() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("setup() unexpected error: %v", err)
			}
			if _, ok := r.Input(tt.wantInput); !ok {
				t.Errorf("Input(%q) not found", tt.wantInput)
			}
		})
	}
}

func TestRegistry_Defaults(t *testing.T) {
	r := NewRegistry()
	mustNil(t, r.AddOutput("plan", TypeString, "", nil))
	mustNil(t, r.AddOutput("premium", TypeNumber, "", 1500))
	mustNil(t, r.AddOutput("eligible", TypeBoolean, "", nil))

	defaults := r.Defaults()
	if defaults["plan"] != "" {
		t.Errorf("plan default = %v, want empty string", defaults["plan"])
	}
	if defaults["premium"] != float64(1500) {
		t.Errorf("premium default = %v (%T), want float64 1500", defaults["premium"], defaults["premium"])
	}
	if defaults["eligible"] != false {
		t.Errorf("eligible default = %v, want false", defaults["eligible"])
	}

	outputs := r.Outputs()
	if len(outputs) != 3 || outputs[0].Name != "plan" || outputs[2].Name != "eligible" {
		t.Errorf("Outputs() = %+v, want declaration order", outputs)
	}
}

func TestParseFieldType(t *testing.T) {
	tests := []struct {
		in      string
		want    FieldType
		wantErr bool
	}{
		{in: "number", want: TypeNumber},
		{in: "Boolean", want: TypeBoolean},
		{in: " string ", want: TypeString},
		{in: "date", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFieldType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFieldType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidType) {
					t.Errorf("ParseFieldType(%q) error = %v, want ErrInvalidType", tt.in, err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseFieldType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name   string
		typ    FieldType
		in     any
		want   any
		wantOK bool
	}{
		{name: "int to number", typ: TypeNumber, in: 42, want: float64(42), wantOK: true},
		{name: "uint8 to number", typ: TypeNumber, in: uint8(7), want: float64(7), wantOK: true},
		{name: "float32 to number", typ: TypeNumber, in: float32(1.5), want: float64(1.5), wantOK: true},
		{name: "numeric string is not a number", typ: TypeNumber, in: "42", wantOK: false},
		{name: "bool is not a number", typ: TypeNumber, in: true, wantOK: false},
		{name: "bool", typ: TypeBoolean, in: true, want: true, wantOK: true},
		{name: "number is not a bool", typ: TypeBoolean, in: 1, wantOK: false},
		{name: "string", typ: TypeString, in: "monthly", want: "monthly", wantOK: true},
		{name: "nil string", typ: TypeString, in: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeValue(tt.typ, tt.in)
			if ok != tt.wantOK {
				t.Fatalf("NormalizeValue(%s, %v) ok = %v, want %v", tt.typ, tt.in, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("NormalizeValue(%s, %v) = %v, want %v", tt.typ, tt.in, got, tt.want)
			}
		})
	}
}

func mustNil(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

package table

import (
	"context"
	"errors"
	"testing"
)

func TestPredicate_Evaluate(t *testing.T) {
	number := Field{Name: "deductible_preference", Type: TypeNumber}
	str := Field{Name: "medical_service_frequency", Type: TypeString}
	boolean := Field{Name: "chronic", Type: TypeBoolean}

	resolver := StaticResolver{
		"max_deductible": 1000,
		"plan_name":      "HSA",
	}

	tests := []struct {
		name      string
		predicate Predicate
		field     Field
		value     any
		resolver  Resolver
		wantMatch bool
		wantErr   error
	}{
		{name: "between lower bound inclusive", predicate: Between(number.Name, 500, 1000), field: number, value: 500, wantMatch: true},
		{name: "between upper bound inclusive", predicate: Between(number.Name, 500, 1000), field: number, value: 1000, wantMatch: true},
		{name: "between above", predicate: Between(number.Name, 500, 1000), field: number, value: 1000.5, wantMatch: false},
		{name: "between below", predicate: Between(number.Name, 500, 1000), field: number, value: 499, wantMatch: false},
		{name: "greater than", predicate: GreaterThan(number.Name, 60), field: number, value: 65, wantMatch: true},
		{name: "greater than is strict", predicate: GreaterThan(number.Name, 60), field: number, value: 60, wantMatch: false},
		{name: "less than", predicate: LessThan(number.Name, 60), field: number, value: int64(59), wantMatch: true},
		{name: "number equals across kinds", predicate: Equals(number.Name, 750), field: number, value: 750.0, wantMatch: true},
		{name: "number one of", predicate: OneOf(number.Name, 1, 2, 3), field: number, value: 2, wantMatch: true},
		{name: "string equals", predicate: Equals(str.Name, "monthly"), field: str, value: "monthly", wantMatch: true},
		{name: "string equals is case sensitive", predicate: Equals(str.Name, "monthly"), field: str, value: "Monthly", wantMatch: false},
		{name: "string one of", predicate: OneOf(str.Name, "weekly", "monthly"), field: str, value: "monthly", wantMatch: true},
		{name: "string one of miss", predicate: OneOf(str.Name, "weekly", "yearly"), field: str, value: "monthly", wantMatch: false},
		{name: "boolean equals", predicate: Equals(boolean.Name, true), field: boolean, value: true, wantMatch: true},
		{name: "boolean equals false", predicate: Equals(boolean.Name, false), field: boolean, value: true, wantMatch: false},
		{name: "reference bound", predicate: Between(number.Name, 500, Ref("max_deductible")), field: number, value: 1000, resolver: resolver, wantMatch: true},
		{name: "string reference", predicate: Equals(str.Name, Ref("plan_name")), field: str, value: "HSA", resolver: resolver, wantMatch: true},
		{name: "request value of wrong type", predicate: Equals(number.Name, 1), field: number, value: "1", wantErr: ErrTypeMismatch},
		{name: "literal of wrong type", predicate: Equals(str.Name, 5), field: str, value: "5", wantErr: ErrTypeMismatch},
		{name: "unsupported operator for boolean", predicate: GreaterThan(boolean.Name, true), field: boolean, value: true, wantErr: ErrUnsupportedOperator},
		{name: "unsupported operator for string", predicate: Between(str.Name, "a", "z"), field: str, value: "m", wantErr: ErrUnsupportedOperator},
		{name: "unknown reference", predicate: Equals(number.Name, Ref("missing")), field: number, value: 1, resolver: resolver, wantErr: ErrUnknownReference},
		{name: "reference without resolver", predicate: Equals(number.Name, Ref("max_deductible")), field: number, value: 1, wantErr: ErrUnknownReference},
		{name: "reference of wrong type", predicate: Equals(str.Name, Ref("max_deductible")), field: str, value: "x", resolver: resolver, wantErr: ErrTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.predicate.Evaluate(context.Background(), tt.field, tt.value, tt.resolver)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Evaluate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Evaluate() unexpected error: %v", err)
			}
			if got != tt.wantMatch {
				t.Errorf("Evaluate() = %v, want %v", got, tt.wantMatch)
			}
		})
	}
}

func TestPredicate_ResolvesOnEveryCall(t *testing.T) {
	calls := 0
	limit := 1000.0
	resolver := ResolverFunc(func(_ context.Context, name string) (FieldType, any, error) {
		calls++
		return TypeNumber, limit, nil
	})
	field := Field{Name: "deductible_preference", Type: TypeNumber}
	p := Between(field.Name, 500, Ref("max_deductible"))

	got, err := p.Evaluate(context.Background(), field, 2000, resolver)
	if err != nil || got {
		t.Fatalf("first Evaluate() = %v, %v; want false, nil", got, err)
	}

	limit = 2001
	got, err = p.Evaluate(context.Background(), field, 2000, resolver)
	if err != nil || !got {
		t.Fatalf("second Evaluate() = %v, %v; want true, nil", got, err)
	}

	if calls != 2 {
		t.Errorf("resolver called %d times, want 2", calls)
	}
}

func TestPredicate_ResolverFailure(t *testing.T) {
	boom := errors.New("store unavailable")
	resolver := ResolverFunc(func(context.Context, string) (FieldType, any, error) {
		return "", nil, boom
	})
	field := Field{Name: "age", Type: TypeNumber}

	_, err := Equals("age", Ref("limit")).Evaluate(context.Background(), field, 1, resolver)
	if !errors.Is(err, boom) {
		t.Errorf("Evaluate() error = %v, want wrapped %v", err, boom)
	}
	if errors.Is(err, ErrUnknownReference) {
		t.Errorf("Evaluate() error = %v, should not be an unknown reference", err)
	}
}

func TestNewPredicate_Arity(t *testing.T) {
	tests := []struct {
		name     string
		op       Operator
		operands []Operand
		wantErr  bool
	}{
		{name: "equals one operand", op: OpEquals, operands: []Operand{Lit(1)}},
		{name: "equals two operands", op: OpEquals, operands: []Operand{Lit(1), Lit(2)}, wantErr: true},
		{name: "between two operands", op: OpBetween, operands: []Operand{Lit(1), Ref("max")}},
		{name: "between one operand", op: OpBetween, operands: []Operand{Lit(1)}, wantErr: true},
		{name: "one of empty", op: OpOneOf, wantErr: true},
		{name: "unknown operator", op: Operator("contains"), operands: []Operand{Lit("x")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPredicate("field", tt.op, tt.operands...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewPredicate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPredicate_String(t *testing.T) {
	tests := []struct {
		predicate Predicate
		want      string
	}{
		{predicate: Between("age", 18, 35), want: "age between 18 and 35"},
		{predicate: Equals("frequency", "monthly"), want: `frequency = "monthly"`},
		{predicate: OneOf("frequency", "weekly", Ref("default_frequency")), want: `frequency one of ["weekly", $default_frequency]`},
		{predicate: GreaterThan("income", 200000), want: "income > 200000"},
		{predicate: LessThan("score", 0.5), want: "score < 0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.predicate.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPredicate_ReferencesAndEqual(t *testing.T) {
	p := Between("deductible_preference", Ref("min_deductible"), Ref("max_deductible"))
	refs := p.References()
	if len(refs) != 2 || refs[0] != "min_deductible" || refs[1] != "max_deductible" {
		t.Errorf("References() = %v", refs)
	}

	if !Equals("age", 30).Equal(Equals("age", 30.0)) {
		t.Error("Equal() should treat 30 and 30.0 as the same literal")
	}
	if Equals("age", 30).Equal(Equals("age", Ref("thirty"))) {
		t.Error("Equal() should distinguish literals from references")
	}
}

func TestOperand_EmptyReference(t *testing.T) {
	empty := Ref("")
	if !empty.IsRef() {
		t.Fatal("Ref(\"\").IsRef() = false, want a reference")
	}
	if empty.Equal(Lit(nil)) {
		t.Error("Ref(\"\").Equal(Lit(nil)) = true, want references distinct from literals")
	}

	field := Field{Name: "age", Type: TypeNumber}
	resolvers := []struct {
		name     string
		resolver Resolver
	}{
		{name: "no resolver"},
		{name: "static resolver", resolver: StaticResolver{"": 30}},
	}
	for _, tt := range resolvers {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Equals("age", empty).Evaluate(context.Background(), field, 30, tt.resolver)
			if !errors.Is(err, ErrUnknownReference) {
				t.Errorf("Evaluate() error = %v, want ErrUnknownReference", err)
			}
			if errors.Is(err, ErrTypeMismatch) {
				t.Errorf("Evaluate() error = %v, should not be a type mismatch", err)
			}
		})
	}

	tbl := New("Ages")
	err := tbl.Edit(context.Background(), func(b *Builder) error {
		if err := b.AddInput("age", TypeNumber, "", nil); err != nil {
			return err
		}
		_, err := b.AppendRow(All(Equals("age", Ref(""))).Then(Outcome{}))
		return err
	})
	if !errors.Is(err, ErrUnknownReference) {
		t.Errorf("Edit() error = %v, want ErrUnknownReference", err)
	}
}

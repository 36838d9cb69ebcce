package table

import (
	"context"
	"errors"
	"testing"
)

// newHealthTable builds the health insurance plan selector used across tests.
func newHealthTable(t *testing.T, resolver Resolver, opts ...Option) *Table {
	t.Helper()
	ctx := context.Background()

	opts = append([]Option{WithResolver(resolver)}, opts...)
	tbl := New("Health Insurance Account Selector", opts...)

	err := tbl.Edit(ctx, func(b *Builder) error {
		inputs := []struct {
			name string
			typ  FieldType
		}{
			{"age", TypeNumber},
			{"income", TypeNumber},
			{"chronic", TypeBoolean},
			{"deductible_preference", TypeNumber},
			{"medical_service_frequency", TypeString},
		}
		for _, in := range inputs {
			if err := b.AddInput(in.name, in.typ, "", nil); err != nil {
				return err
			}
		}
		if err := b.AddOutput("recommended_plan", TypeString, "Recommended plan", nil); err != nil {
			return err
		}
		if err := b.AddOutput("estimated_premium", TypeNumber, "Estimated premium", nil); err != nil {
			return err
		}

		rows := []Row{
			All(
				Between("age", 18, 35),
				Between("income", 50000, 75000),
				Equals("chronic", true),
				Between("deductible_preference", 500, 1000),
				Equals("medical_service_frequency", "monthly"),
			).Then(Outcome{"recommended_plan": "HSA", "estimated_premium": 2000}),
			Any(
				GreaterThan("age", 60),
				GreaterThan("income", 200000),
				Equals("chronic", false),
			).Then(Outcome{"recommended_plan": "PPO", "estimated_premium": 5000}),
			Fallback().Then(Outcome{"recommended_plan": "Unknown"}),
		}
		for _, r := range rows {
			if _, err := b.AppendRow(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("building table: %v", err)
	}
	return tbl
}

func TestSolve_HealthInsuranceScenario(t *testing.T) {
	tbl := newHealthTable(t, nil)

	decision, err := tbl.Solve(context.Background(), Request{
		"age":                       25,
		"income":                    60000,
		"chronic":                   true,
		"deductible_preference":     750,
		"medical_service_frequency": "monthly",
	})
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}

	if decision.Response["recommended_plan"] != "HSA" {
		t.Errorf("recommended_plan = %v, want HSA", decision.Response["recommended_plan"])
	}
	if decision.Response["estimated_premium"] != float64(2000) {
		t.Errorf("estimated_premium = %v, want 2000", decision.Response["estimated_premium"])
	}
	if decision.RowIndex != 0 || decision.Fallback {
		t.Errorf("decision = row %d fallback %v, want row 0 explicit", decision.RowIndex, decision.Fallback)
	}
	if decision.RowID == "" {
		t.Error("decision has no row id")
	}
}

func TestSolve_RowSemantics(t *testing.T) {
	tbl := newHealthTable(t, nil)

	tests := []struct {
		name         string
		request      Request
		wantPlan     string
		wantPremium  float64
		wantIndex    int
		wantFallback bool
	}{
		{
			name:        "ANY row matches on age alone",
			request:     Request{"age": 65, "income": 30000, "chronic": true},
			wantPlan:    "PPO",
			wantPremium: 5000,
			wantIndex:   1,
		},
		{
			name:        "ANY row matches on chronic false",
			request:     Request{"age": 40, "income": 30000, "chronic": false},
			wantPlan:    "PPO",
			wantPremium: 5000,
			wantIndex:   1,
		},
		{
			name:         "ALL row fails on one predicate and falls through",
			request:      Request{"age": 25, "income": 60000, "chronic": true, "deductible_preference": 1500, "medical_service_frequency": "monthly"},
			wantPlan:     "Unknown",
			wantPremium:  0,
			wantIndex:    2,
			wantFallback: true,
		},
		{
			name:        "first match wins over a later matching row",
			request:     Request{"age": 25, "income": 60000, "chronic": true, "deductible_preference": 500, "medical_service_frequency": "monthly"},
			wantPlan:    "HSA",
			wantPremium: 2000,
			wantIndex:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := tbl.Solve(context.Background(), tt.request)
			if err != nil {
				t.Fatalf("Solve() error = %v", err)
			}
			if got := decision.Response["recommended_plan"]; got != tt.wantPlan {
				t.Errorf("recommended_plan = %v, want %v", got, tt.wantPlan)
			}
			if got := decision.Response["estimated_premium"]; got != tt.wantPremium {
				t.Errorf("estimated_premium = %v, want %v", got, tt.wantPremium)
			}
			if decision.RowIndex != tt.wantIndex {
				t.Errorf("RowIndex = %d, want %d", decision.RowIndex, tt.wantIndex)
			}
			if decision.Fallback != tt.wantFallback {
				t.Errorf("Fallback = %v, want %v", decision.Fallback, tt.wantFallback)
			}
		})
	}
}

func TestSolve_FirstMatchWinsEvenWhenLaterRowMatches(t *testing.T) {
	ctx := context.Background()
	tbl := New("tiers")
	mustNil(t, tbl.AddInput("score", TypeNumber, "", nil))
	mustNil(t, tbl.AddOutput("tier", TypeString, "", nil))

	_, err := tbl.AppendRow(ctx, All(GreaterThan("score", 10)).Then(Outcome{"tier": "silver"}))
	mustNil(t, err)
	_, err = tbl.AppendRow(ctx, Any(GreaterThan("score", 50)).Then(Outcome{"tier": "gold"}))
	mustNil(t, err)

	decision, err := tbl.Solve(ctx, Request{"score": 90})
	mustNil(t, err)
	if decision.Response["tier"] != "silver" {
		t.Errorf("tier = %v, want silver", decision.Response["tier"])
	}
}

func TestSolve_NoMatchWithoutFallback(t *testing.T) {
	ctx := context.Background()
	tbl := New("no fallback")
	mustNil(t, tbl.AddInput("age", TypeNumber, "", nil))
	mustNil(t, tbl.AddOutput("plan", TypeString, "", nil))
	_, err := tbl.AppendRow(ctx, All(GreaterThan("age", 60)).Then(Outcome{"plan": "senior"}))
	mustNil(t, err)

	_, err = tbl.Solve(ctx, Request{"age": 20})
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("Solve() error = %v, want ErrNoMatch", err)
	}
	var noMatch *NoMatchError
	if !errors.As(err, &noMatch) || noMatch.Rows != 1 {
		t.Errorf("Solve() error = %#v, want NoMatchError with 1 row", err)
	}
}

func TestSolve_SchemaStep(t *testing.T) {
	tests := []struct {
		name     string
		settings *Settings
		request  Request
		wantErr  error
		wantPlan string
	}{
		{
			name:     "unknown field rejected with validation",
			settings: DefaultSettings(),
			request:  Request{"age": 70, "shoe_size": 44},
			wantErr:  ErrSchemaValidation,
		},
		{
			name:     "unknown field ignored without validation",
			settings: DefaultSettings().WithSchemaValidation(false),
			request:  Request{"age": 70, "shoe_size": 44},
			wantPlan: "PPO",
		},
		{
			name:     "wrong type rejected with validation",
			settings: DefaultSettings(),
			request:  Request{"age": "seventy"},
			wantErr:  ErrSchemaValidation,
		},
		{
			name:     "wrong type fails evaluation without validation",
			settings: DefaultSettings().WithSchemaValidation(false),
			request:  Request{"age": "seventy"},
			wantErr:  ErrTypeMismatch,
		},
		{
			name:     "missing field rejected when all properties required",
			settings: DefaultSettings().WithRequireAllProperties(true),
			request:  Request{"age": 70},
			wantErr:  ErrSchemaValidation,
		},
		{
			name:     "missing fields take defaults",
			settings: DefaultSettings(),
			request:  Request{},
			wantPlan: "PPO", // chronic defaults to false
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := newHealthTable(t, nil, WithSettings(tt.settings))
			decision, err := tbl.Solve(context.Background(), tt.request)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Solve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Solve() unexpected error: %v", err)
			}
			if got := decision.Response["recommended_plan"]; got != tt.wantPlan {
				t.Errorf("recommended_plan = %v, want %v", got, tt.wantPlan)
			}
		})
	}
}

func TestSolve_EvaluationErrorLocatesRow(t *testing.T) {
	tbl := newHealthTable(t, nil, WithSettings(DefaultSettings().WithSchemaValidation(false)))

	_, err := tbl.Solve(context.Background(), Request{"age": "twenty"})
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("Solve() error = %v, want EvaluationError", err)
	}
	if evalErr.RowIndex != 0 || evalErr.Field != "age" || evalErr.Operator != OpBetween || evalErr.RowID == "" {
		t.Errorf("EvaluationError = %+v, want row 0, field age, operator between", evalErr)
	}
}

func TestSolve_DynamicReferenceLiveness(t *testing.T) {
	ctx := context.Background()
	values := map[string]any{"max_deductible": 1000}
	resolver := ResolverFunc(func(_ context.Context, name string) (FieldType, any, error) {
		return StaticResolver(values).Resolve(ctx, name)
	})

	tbl := New("deductibles", WithResolver(resolver))
	mustNil(t, tbl.AddInput("deductible_preference", TypeNumber, "", nil))
	mustNil(t, tbl.AddOutput("matched", TypeBoolean, "", false))
	_, err := tbl.AppendRow(ctx, All(
		Between("deductible_preference", 500, Ref("max_deductible")),
	).Then(Outcome{"matched": true}))
	mustNil(t, err)
	_, err = tbl.AppendRow(ctx, Fallback())
	mustNil(t, err)
	mustNil(t, tbl.Validate(ctx))
	mustNil(t, tbl.MarkPublished())

	req := Request{"deductible_preference": 2000}
	decision, err := tbl.Solve(ctx, req)
	mustNil(t, err)
	if decision.Response["matched"] != false {
		t.Fatalf("before update matched = %v, want false", decision.Response["matched"])
	}

	values["max_deductible"] = 2001
	decision, err = tbl.Solve(ctx, req)
	mustNil(t, err)
	if decision.Response["matched"] != true {
		t.Errorf("after update matched = %v, want true", decision.Response["matched"])
	}
	if tbl.State() != StatePublished {
		t.Errorf("State() = %s, want PUBLISHED", tbl.State())
	}
}

func TestBind_RejectsInvalidPredicates(t *testing.T) {
	resolver := StaticResolver{"max_deductible": 1000, "label": "gold"}

	tests := []struct {
		name    string
		row     Row
		wantErr error
	}{
		{name: "string field bound to number reference", row: All(Equals("medical_service_frequency", Ref("max_deductible"))), wantErr: ErrTypeMismatch},
		{name: "number field bound to string literal", row: All(Equals("age", "old")), wantErr: ErrTypeMismatch},
		{name: "unknown reference", row: All(Equals("age", Ref("nope"))), wantErr: ErrUnknownReference},
		{name: "undeclared input", row: All(Equals("height", 180)), wantErr: ErrFieldNotFound},
		{name: "unsupported operator", row: All(GreaterThan("chronic", true)), wantErr: ErrUnsupportedOperator},
		{name: "undeclared output", row: All(Equals("age", 1)).Then(Outcome{"discount": 5}), wantErr: ErrFieldNotFound},
		{name: "outcome of wrong type", row: All(Equals("age", 1)).Then(Outcome{"estimated_premium": "high"}), wantErr: ErrTypeMismatch},
		{name: "two predicates on one field", row: All(GreaterThan("age", 1), LessThan("age", 9)), wantErr: ErrInvalidTableStructure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := newHealthTable(t, resolver)
			before := tbl.Revision()

			_, err := tbl.InsertRow(context.Background(), 0, tt.row)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("InsertRow() error = %v, want %v", err, tt.wantErr)
			}
			if tbl.Revision() != before || len(tbl.Rows()) != 3 {
				t.Errorf("table changed after failed insert: revision %d, rows %d", tbl.Revision(), len(tbl.Rows()))
			}
		})
	}
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	tbl := newHealthTable(t, nil)

	if tbl.State() != StatePending {
		t.Fatalf("new table state = %s, want PENDING", tbl.State())
	}
	if err := tbl.MarkPublished(); !errors.Is(err, ErrNotValidated) {
		t.Fatalf("MarkPublished() on pending table error = %v, want ErrNotValidated", err)
	}

	mustNil(t, tbl.Validate(ctx))
	if tbl.State() != StateValid {
		t.Fatalf("state after Validate = %s, want VALID", tbl.State())
	}
	mustNil(t, tbl.MarkPublished())

	row := tbl.Rows()[0]
	if err := tbl.ReplaceOutcome(row.ID, "estimated_premium", 2500); !errors.Is(err, ErrTablePublished) {
		t.Fatalf("edit on published table error = %v, want ErrTablePublished", err)
	}

	tbl.Reopen()
	if tbl.State() != StatePending {
		t.Fatalf("state after Reopen = %s, want PENDING", tbl.State())
	}
	mustNil(t, tbl.ReplaceOutcome(row.ID, "estimated_premium", 2500))
	if tbl.State() != StatePending {
		t.Errorf("state after edit = %s, want PENDING", tbl.State())
	}

	mustNil(t, tbl.Validate(ctx))
	if tbl.State() != StateValid {
		t.Errorf("state after revalidation = %s, want VALID", tbl.State())
	}
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("require fallback", func(t *testing.T) {
		tbl := New("strict", WithSettings(DefaultSettings().WithRequireFallback(true)))
		mustNil(t, tbl.AddInput("age", TypeNumber, "", nil))
		_, err := tbl.AppendRow(ctx, All(GreaterThan("age", 1)))
		mustNil(t, err)

		if err := tbl.Validate(ctx); !errors.Is(err, ErrInvalidTableStructure) {
			t.Fatalf("Validate() error = %v, want ErrInvalidTableStructure", err)
		}
		if tbl.State() != StatePending {
			t.Errorf("state after failed Validate = %s, want PENDING", tbl.State())
		}
	})

	t.Run("reference removed from store", func(t *testing.T) {
		values := StaticResolver{"limit": 10}
		tbl := New("refs", WithResolver(values))
		mustNil(t, tbl.AddInput("age", TypeNumber, "", nil))
		_, err := tbl.AppendRow(ctx, All(LessThan("age", Ref("limit"))))
		mustNil(t, err)

		delete(values, "limit")
		if err := tbl.Validate(ctx); !errors.Is(err, ErrUnknownReference) {
			t.Fatalf("Validate() error = %v, want ErrUnknownReference", err)
		}
	})

	t.Run("reference type changed in store", func(t *testing.T) {
		values := StaticResolver{"limit": 10}
		tbl := New("refs", WithResolver(values))
		mustNil(t, tbl.AddInput("age", TypeNumber, "", nil))
		_, err := tbl.AppendRow(ctx, All(LessThan("age", Ref("limit"))))
		mustNil(t, err)

		values["limit"] = "ten"
		if err := tbl.Validate(ctx); !errors.Is(err, ErrTypeMismatch) {
			t.Fatalf("Validate() error = %v, want ErrTypeMismatch", err)
		}
	})
}

func TestReferences(t *testing.T) {
	ctx := context.Background()
	resolver := StaticResolver{"max_deductible": 1000, "min_deductible": 500, "senior_age": 60}
	tbl := newHealthTable(t, resolver)

	row := tbl.FindRows(Pattern{Field: "deductible_preference", Operator: OpBetween})[0]
	mustNil(t, tbl.ReplacePredicate(ctx, row.ID, "deductible_preference",
		Between("deductible_preference", Ref("min_deductible"), Ref("max_deductible"))))

	got := tbl.References()
	if len(got) != 2 || got[0] != "max_deductible" || got[1] != "min_deductible" {
		t.Errorf("References() = %v, want [max_deductible min_deductible]", got)
	}
	if !tbl.IsReferenced("max_deductible") {
		t.Error("IsReferenced(max_deductible) = false, want true")
	}
	if tbl.IsReferenced("senior_age") {
		t.Error("IsReferenced(senior_age) = true, want false")
	}
}

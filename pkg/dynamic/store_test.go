package dynamic

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"mercator-hq/verdict/pkg/table"
)

// backends returns a fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(SQLiteConfig{Path: filepath.Join(t.TempDir(), "values.db")}, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(nil),
		"sqlite": sqlite,
	}
}

func TestStore_SetGet(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			tests := []struct {
				name     string
				value    any
				wantType table.FieldType
				want     any
			}{
				{name: "max_deductible", value: 1000, wantType: table.TypeNumber, want: float64(1000)},
				{name: "rate", value: 0.25, wantType: table.TypeNumber, want: 0.25},
				{name: "enabled", value: true, wantType: table.TypeBoolean, want: true},
				{name: "default_plan", value: "HSA", wantType: table.TypeString, want: "HSA"},
			}

			for _, tt := range tests {
				if _, err := store.Set(ctx, tt.name, tt.value); err != nil {
					t.Fatalf("Set(%s) error = %v", tt.name, err)
				}
				got, err := store.Get(ctx, tt.name)
				if err != nil {
					t.Fatalf("Get(%s) error = %v", tt.name, err)
				}
				if got.Type != tt.wantType || got.Value != tt.want {
					t.Errorf("Get(%s) = %s %v, want %s %v", tt.name, got.Type, got.Value, tt.wantType, tt.want)
				}
			}

			// Upsert replaces both value and type.
			if _, err := store.Set(ctx, "max_deductible", "unlimited"); err != nil {
				t.Fatalf("Set() upsert error = %v", err)
			}
			got, err := store.Get(ctx, "max_deductible")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Type != table.TypeString || got.Value != "unlimited" {
				t.Errorf("after upsert Get() = %s %v, want string unlimited", got.Type, got.Value)
			}

			list, err := store.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(list) != 4 || list[0].Name != "default_plan" {
				t.Errorf("List() = %d values starting %q, want 4 sorted by name", len(list), list[0].Name)
			}
		})
	}
}

func TestStore_InvalidInput(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := store.Set(ctx, "", 1); !errors.Is(err, ErrInvalidName) {
				t.Errorf("Set(empty name) error = %v, want ErrInvalidName", err)
			}
			if _, err := store.Set(ctx, "9lives", 1); !errors.Is(err, ErrInvalidName) {
				t.Errorf("Set(9lives) error = %v, want ErrInvalidName", err)
			}
			if _, err := store.Set(ctx, "list", []int{1}); !errors.Is(err, ErrInvalidValue) {
				t.Errorf("Set(slice) error = %v, want ErrInvalidValue", err)
			}
			if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrValueNotFound) {
				t.Errorf("Get(missing) error = %v, want ErrValueNotFound", err)
			}
		})
	}
}

func TestStore_DeleteReferenced(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			resolver := NewResolver(store)

			if _, err := store.Set(ctx, "max_deductible", 1000); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if _, err := store.Set(ctx, "unused", 1); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			tbl := table.New("deductibles", table.WithResolver(resolver))
			if err := tbl.AddInput("deductible_preference", table.TypeNumber, "", nil); err != nil {
				t.Fatal(err)
			}
			if _, err := tbl.AppendRow(ctx, table.All(
				table.Between("deductible_preference", 500, table.Ref("max_deductible")),
			)); err != nil {
				t.Fatalf("AppendRow() error = %v", err)
			}
			store.SetReferenceChecker(tbl)

			err := store.Delete(ctx, "max_deductible")
			if !errors.Is(err, ErrStillReferenced) {
				t.Fatalf("Delete(referenced) error = %v, want ErrStillReferenced", err)
			}
			var refErr *ReferencedError
			if !errors.As(err, &refErr) || refErr.Name != "max_deductible" {
				t.Errorf("Delete(referenced) error = %#v, want ReferencedError", err)
			}
			if _, err := store.Get(ctx, "max_deductible"); err != nil {
				t.Errorf("referenced value was removed: %v", err)
			}

			if err := store.Delete(ctx, "unused"); err != nil {
				t.Errorf("Delete(unreferenced) error = %v", err)
			}
			if err := store.Delete(ctx, "unused"); !errors.Is(err, ErrValueNotFound) {
				t.Errorf("second Delete() error = %v, want ErrValueNotFound", err)
			}
		})
	}
}

func TestResolver_Liveness(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Set(ctx, "max_deductible", 1000); err != nil {
				t.Fatal(err)
			}

			tbl := table.New("deductibles", table.WithResolver(NewResolver(store)))
			if err := tbl.AddInput("deductible_preference", table.TypeNumber, "", nil); err != nil {
				t.Fatal(err)
			}
			if err := tbl.AddOutput("matched", table.TypeBoolean, "", false); err != nil {
				t.Fatal(err)
			}
			if _, err := tbl.AppendRow(ctx, table.All(
				table.Between("deductible_preference", 500, table.Ref("max_deductible")),
			).Then(table.Outcome{"matched": true})); err != nil {
				t.Fatal(err)
			}
			if _, err := tbl.AppendRow(ctx, table.Fallback()); err != nil {
				t.Fatal(err)
			}

			req := table.Request{"deductible_preference": 2000}
			before, err := tbl.Solve(ctx, req)
			if err != nil {
				t.Fatalf("Solve() error = %v", err)
			}
			if _, err := store.Set(ctx, "max_deductible", 2001); err != nil {
				t.Fatal(err)
			}
			after, err := tbl.Solve(ctx, req)
			if err != nil {
				t.Fatalf("Solve() error = %v", err)
			}

			if before.Response["matched"] != false || after.Response["matched"] != true {
				t.Errorf("matched before/after = %v/%v, want false/true", before.Response["matched"], after.Response["matched"])
			}
		})
	}
}

func TestResolver_TypeMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	if _, err := store.Set(ctx, "threshold", 10); err != nil {
		t.Fatal(err)
	}

	tbl := table.New("frequency", table.WithResolver(NewResolver(store)))
	if err := tbl.AddInput("medical_service_frequency", table.TypeString, "", nil); err != nil {
		t.Fatal(err)
	}

	_, err := tbl.AppendRow(ctx, table.All(table.Equals("medical_service_frequency", table.Ref("threshold"))))
	if !errors.Is(err, table.ErrTypeMismatch) {
		t.Errorf("AppendRow() error = %v, want ErrTypeMismatch", err)
	}

	_, err = tbl.AppendRow(ctx, table.All(table.Equals("medical_service_frequency", table.Ref("nope"))))
	if !errors.Is(err, table.ErrUnknownReference) {
		t.Errorf("AppendRow() error = %v, want ErrUnknownReference", err)
	}
}

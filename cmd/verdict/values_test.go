package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/verdict/pkg/cli"
	"mercator-hq/verdict/pkg/dynamic"
	"mercator-hq/verdict/pkg/table"
)

func TestValuesCommands(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := runCommand(t, "-c", cfg, "values", "set", "income_cap", "50000")
	if err != nil {
		t.Fatalf("values set error = %v", err)
	}
	if !strings.Contains(out, "income_cap") || !strings.Contains(out, "50000") {
		t.Errorf("set output = %q", out)
	}

	if _, err := runCommand(t, "-c", cfg, "values", "set", "region", "north"); err != nil {
		t.Fatalf("values set region error = %v", err)
	}

	out, err = runCommand(t, "-c", cfg, "values", "get", "income_cap", "--format", "json")
	if err != nil {
		t.Fatalf("values get error = %v", err)
	}
	var v dynamic.Value
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("get output is not a value: %v\n%s", err, out)
	}
	if v.Name != "income_cap" || v.Type != table.TypeNumber || v.Value != float64(50000) {
		t.Errorf("value = %+v, want number income_cap 50000", v)
	}

	out, err = runCommand(t, "-c", cfg, "values", "list", "-f", "csv")
	if err != nil {
		t.Fatalf("values list error = %v", err)
	}
	for _, want := range []string{"income_cap", "region", "north"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	_, err = runCommand(t, "-c", cfg, "values", "get", "missing")
	if !errors.Is(err, dynamic.ErrValueNotFound) {
		t.Errorf("get missing error = %v, want ErrValueNotFound", err)
	}
}

func TestValuesDelete_ReferenceCheck(t *testing.T) {
	cfg := writeTestConfig(t)

	if _, err := runCommand(t, "-c", cfg, "values", "set", "income_cap", "50000"); err != nil {
		t.Fatal(err)
	}
	if _, err := runCommand(t, "-c", cfg, "values", "set", "unused", "1"); err != nil {
		t.Fatal(err)
	}

	// health-plans in testdata/tables references $income_cap.
	_, err := runCommand(t, "-c", cfg, "values", "delete", "income_cap")
	if !errors.Is(err, dynamic.ErrStillReferenced) {
		t.Fatalf("delete error = %v, want ErrStillReferenced", err)
	}

	// The reference check must not reseed the stored value.
	out, err := runCommand(t, "-c", cfg, "values", "get", "income_cap", "-f", "json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "50000") {
		t.Errorf("income_cap changed by the reference check:\n%s", out)
	}

	if _, err := runCommand(t, "-c", cfg, "values", "delete", "unused"); err != nil {
		t.Errorf("delete unused error = %v", err)
	}

	out, err = runCommand(t, "-c", cfg, "values", "delete", "income_cap", "--force")
	if err != nil {
		t.Fatalf("delete --force error = %v", err)
	}
	if !strings.Contains(out, "✓ deleted income_cap") {
		t.Errorf("delete output = %q", out)
	}
}

// withoutTablesDir points workspace.tables_dir of the config at path to a
// directory that does not exist.
func withoutTablesDir(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(filepath.Dir(path), "no-tables")
	data = []byte(strings.Replace(string(data), "tables_dir: testdata/tables", "tables_dir: "+missing, 1))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestValuesDelete_ReferencedByPublishedVersion(t *testing.T) {
	cfg := writeTestConfig(t)
	withoutTablesDir(t, cfg)

	if _, err := runCommand(t, "-c", cfg, "publish", "-t", healthTable); err != nil {
		t.Fatal(err)
	}

	_, err := runCommand(t, "-c", cfg, "values", "delete", "income_cap")
	if !errors.Is(err, dynamic.ErrStillReferenced) {
		t.Fatalf("delete error = %v, want ErrStillReferenced", err)
	}
	if !strings.Contains(err.Error(), "health-plans@v1") {
		t.Errorf("delete error = %v, want the referencing version", err)
	}

	if _, err := runCommand(t, "-c", cfg, "values", "get", "income_cap"); err != nil {
		t.Errorf("values get error = %v after a refused delete", err)
	}
	out, err := runCommand(t, "-c", cfg, "serve", "--dry-run", "--published")
	if err != nil {
		t.Errorf("serve --dry-run --published error = %v\n%s", err, out)
	}
}

func TestValuesDelete_DoesNotSeedOtherValues(t *testing.T) {
	cfg := writeTestConfig(t)

	if _, err := runCommand(t, "-c", cfg, "values", "set", "unused", "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := runCommand(t, "-c", cfg, "values", "delete", "unused"); err != nil {
		t.Fatalf("delete error = %v", err)
	}

	out, err := runCommand(t, "-c", cfg, "values", "list", "-f", "json")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"income_cap", "unused"} {
		if strings.Contains(out, name) {
			t.Errorf("values list contains %s after delete:\n%s", name, out)
		}
	}
}

func TestValuesSet_InvalidType(t *testing.T) {
	_, err := runCommand(t, "values", "set", "cap", "lots", "--type", "number")
	if cli.ExitCode(err) != cli.ExitConfigError {
		t.Errorf("error = %v, want config error", err)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		typ     string
		want    any
		wantErr bool
	}{
		{name: "json number", raw: "42.5", want: 42.5},
		{name: "json boolean", raw: "true", want: true},
		{name: "json string", raw: `"north"`, want: "north"},
		{name: "bare string", raw: "north", want: "north"},
		{name: "forced string", raw: "007", typ: "string", want: "007"},
		{name: "forced number", raw: "7", typ: "number", want: float64(7)},
		{name: "forced boolean", raw: "false", typ: "boolean", want: false},
		{name: "bad number", raw: "seven", typ: "number", wantErr: true},
		{name: "bad boolean", raw: "maybe", typ: "boolean", wantErr: true},
		{name: "unknown type", raw: "1", typ: "integer", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseValue(tt.raw, tt.typ)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseValue() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/verdict/pkg/cli"
	"mercator-hq/verdict/pkg/config"
	"mercator-hq/verdict/pkg/dynamic"
	"mercator-hq/verdict/pkg/gitsource"
	"mercator-hq/verdict/pkg/table"
	"mercator-hq/verdict/pkg/tablefile"
	"mercator-hq/verdict/pkg/workspace"
)

var valuesFlags struct {
	format    string
	valueType string
	force     bool
}

var valuesCmd = &cobra.Command{
	Use:   "values",
	Short: "Manage Dynamic Values",
	Long: `Read and write the Dynamic Values stored in the configured backend.

Dynamic Values are named constants that table predicates reference with
"$name". Changing a value changes the outcome of every table using it on
the next solve, without republishing.

Examples:
  verdict values list
  verdict values set income_cap 50000
  verdict values set region '"north"'
  verdict values set premium_enabled true
  verdict values set code 007 --type string
  verdict values get income_cap --format json
  verdict values delete income_cap`,
}

var valuesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every value",
	Args:  cobra.NoArgs,
	RunE:  listValues,
}

var valuesGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print one value",
	Args:  cobra.ExactArgs(1),
	RunE:  getValue,
}

var valuesSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Create or replace a value",
	Long: `Create or replace a value. The value is parsed as JSON when possible
(numbers, true/false, quoted strings) and kept as a string otherwise;
--type forces the type.`,
	Args: cobra.ExactArgs(2),
	RunE: setValue,
}

var valuesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a value",
	Long: `Delete a value. A value still referenced by a table under
workspace.tables_dir, by the git clone (workspace.source: git) or by the
latest published version of a rule is not deleted; --force skips the
check.`,
	Args: cobra.ExactArgs(1),
	RunE: deleteValue,
}

func init() {
	rootCmd.AddCommand(valuesCmd)
	valuesCmd.AddCommand(valuesListCmd, valuesGetCmd, valuesSetCmd, valuesDeleteCmd)

	valuesCmd.PersistentFlags().StringVarP(&valuesFlags.format, "format", "f", "text", "output format (text, json, csv)")
	valuesSetCmd.Flags().StringVar(&valuesFlags.valueType, "type", "", "force the value type (string, number, boolean)")
	valuesDeleteCmd.Flags().BoolVar(&valuesFlags.force, "force", false, "delete even if tables reference the value")
}

// valueList prints as a table.
type valueList []*dynamic.Value

// TableHeader implements cli.Tabular.
func (l valueList) TableHeader() []string {
	return []string{"Name", "Type", "Value", "Updated"}
}

// TableRows implements cli.Tabular.
func (l valueList) TableRows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, v := range l {
		rows = append(rows, []string{v.Name, string(v.Type), formatValue(v.Value), v.UpdatedAt.Format(time.RFC3339)})
	}
	return rows
}

func openValues() (*config.Config, dynamic.Store, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cfg, true)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := openValueStore(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, store, logger, nil
}

func printValues(cmd *cobra.Command, values valueList) error {
	format, err := cli.ParseOutputFormat(valuesFlags.format)
	if err != nil || format == cli.FormatJUnit {
		return cli.NewConfigError("format", fmt.Sprintf("unknown format %q (expected text, json or csv)", valuesFlags.format))
	}
	if format == cli.FormatJSON && len(values) == 1 {
		return cli.NewFormatter(format).FormatTo(out(cmd), values[0])
	}
	return cli.NewFormatter(format).FormatTo(out(cmd), values)
}

func listValues(cmd *cobra.Command, args []string) error {
	_, store, _, err := openValues()
	if err != nil {
		return err
	}
	defer store.Close()

	values, err := store.List(context.Background())
	if err != nil {
		return cli.NewCommandError("values list", err)
	}
	return printValues(cmd, values)
}

func getValue(cmd *cobra.Command, args []string) error {
	_, store, _, err := openValues()
	if err != nil {
		return err
	}
	defer store.Close()

	v, err := store.Get(context.Background(), args[0])
	if err != nil {
		return cli.NewCommandError("values get", err)
	}
	return printValues(cmd, valueList{v})
}

func setValue(cmd *cobra.Command, args []string) error {
	value, err := parseValue(args[1], valuesFlags.valueType)
	if err != nil {
		return cli.NewConfigError("value", err.Error())
	}

	_, store, _, err := openValues()
	if err != nil {
		return err
	}
	defer store.Close()

	v, err := store.Set(context.Background(), args[0], value)
	if err != nil {
		return cli.NewCommandError("values set", err)
	}
	return printValues(cmd, valueList{v})
}

func deleteValue(cmd *cobra.Command, args []string) error {
	cfg, store, _, err := openValues()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	var refs valueReferences
	if !valuesFlags.force {
		refs, err = collectReferences(ctx, cfg)
		if err != nil {
			return cli.NewCommandError("values delete", fmt.Errorf("reference check: %w", err))
		}
		store.SetReferenceChecker(refs)
	}

	if err := store.Delete(ctx, args[0]); err != nil {
		if errors.Is(err, dynamic.ErrStillReferenced) {
			err = fmt.Errorf("%w (used by %s)", err, strings.Join(refs[args[0]], ", "))
		}
		return cli.NewCommandError("values delete", err)
	}
	fmt.Fprintf(out(cmd), "✓ deleted %s\n", args[0])
	return nil
}

// valueReferences maps a Dynamic Value name to the tables referencing it.
type valueReferences map[string][]string

// IsReferenced implements dynamic.ReferenceChecker.
func (r valueReferences) IsReferenced(name string) bool {
	return len(r[name]) > 0
}

func (r valueReferences) add(doc *tablefile.Document, source string) {
	for _, name := range doc.References() {
		r[name] = append(r[name], source)
	}
}

// collectReferences reads every table the host can serve: the files under
// workspace.tables_dir, the git clone when the source is git and the latest
// published versions. Documents are parsed only, so no value is resolved
// or written.
func collectReferences(ctx context.Context, cfg *config.Config) (valueReferences, error) {
	refs := make(valueReferences)

	addDir := func(dir string) error {
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			return nil
		} else if err != nil {
			return err
		}
		docs, err := tablefile.LoadDir(dir)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			refs.add(doc, doc.Source)
		}
		return nil
	}

	if err := addDir(cfg.Workspace.TablesDir); err != nil {
		return nil, err
	}

	if cfg.Workspace.Source == "git" {
		repo, err := gitsource.NewRepository(cfg.Workspace.Git)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(repo.TablesPath()); errors.Is(err, fs.ErrNotExist) {
			if err := repo.Clone(ctx); err != nil {
				return nil, err
			}
		}
		if err := addDir(repo.TablesPath()); err != nil {
			return nil, err
		}
	}

	repo, err := workspace.OpenRepository(cfg.Workspace.Repository)
	if err != nil {
		return nil, err
	}
	defer repo.Close()
	latest, err := repo.Latest(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range latest {
		source := fmt.Sprintf("%s@v%d", v.Slug, v.Version)
		doc, err := tablefile.Parse([]byte(v.Document), source)
		if err != nil {
			return nil, err
		}
		refs.add(doc, source)
	}
	return refs, nil
}

// parseValue converts a command line argument to a value of the given type.
func parseValue(raw, typ string) (any, error) {
	switch table.FieldType(typ) {
	case "":
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v, nil
		}
		return raw, nil
	case table.TypeString:
		return raw, nil
	case table.TypeNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return f, nil
	case table.TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", raw)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown type %q (expected string, number or boolean)", typ)
	}
}

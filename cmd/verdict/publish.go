package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/verdict/pkg/cli"
	"mercator-hq/verdict/pkg/config"
	"mercator-hq/verdict/pkg/dynamic"
	"mercator-hq/verdict/pkg/tablefile"
	"mercator-hq/verdict/pkg/workspace"
)

var publishFlags struct {
	tablePath string
	dir       string
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish tables to the version repository",
	Long: `Validate table files and save each as a new version in the repository
configured by workspace.repository.url.

Tables with continuous_testing run their tests first; a failing critical
test blocks the publish. Publishing a table identical to its latest
version does not create a new version; rows without an id get a new one
on every load, so keep the ids written by "verdict render --format yaml"
to publish idempotently.

Examples:
  verdict publish --table tables/health.yaml
  verdict publish --dir tables/
  VERDICT_WORKSPACE_REPOSITORY_URL=postgres://verdict@db/verdict verdict publish --dir tables/`,
	RunE: runPublish,
}

var versionsCmd = &cobra.Command{
	Use:   "versions <slug>",
	Short: "List the published versions of a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  listVersions,
}

func init() {
	rootCmd.AddCommand(publishCmd, versionsCmd)

	publishCmd.Flags().StringVarP(&publishFlags.tablePath, "table", "t", "", "table file to publish")
	publishCmd.Flags().StringVarP(&publishFlags.dir, "dir", "d", "", "directory of table files to publish")
}

// openRepositoryWorkspace opens the configured value store and repository
// and loads the latest published version of every rule. A failed load only
// costs the unchanged-version check, so it is logged and ignored.
func openRepositoryWorkspace(ctx context.Context, cfg *config.Config) (*workspace.Workspace, dynamic.Store, func(), error) {
	logger, err := newLogger(cfg, true)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := openValueStore(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	repo, err := workspace.OpenRepository(cfg.Workspace.Repository)
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	cleanup := func() {
		repo.Close()
		store.Close()
	}

	ws := workspace.New(store,
		workspace.WithRepository(repo),
		workspace.WithSettings(workspace.SettingsFromConfig(cfg.Engine)),
		workspace.WithLogger(logger.With("component", "workspace")),
	)
	if err := ws.Load(ctx); err != nil {
		logger.Warn("published versions not loaded", "error", err)
	}
	return ws, store, cleanup, nil
}

func runPublish(cmd *cobra.Command, args []string) error {
	var docs []*tablefile.Document
	switch {
	case publishFlags.tablePath != "" && publishFlags.dir != "":
		return cli.NewConfigError("table", "use either --table or --dir, not both")
	case publishFlags.tablePath != "":
		doc, err := tablefile.LoadFile(publishFlags.tablePath)
		if err != nil {
			return cli.NewCommandError("publish", err)
		}
		docs = []*tablefile.Document{doc}
	case publishFlags.dir != "":
		loaded, err := tablefile.LoadDir(publishFlags.dir)
		if err != nil {
			return cli.NewCommandError("publish", err)
		}
		docs = loaded
	default:
		return cli.NewConfigError("table", "--table or --dir is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	ws, store, cleanup, err := openRepositoryWorkspace(ctx, cfg)
	if err != nil {
		return cli.NewCommandError("publish", err)
	}
	defer cleanup()

	w := out(cmd)
	var errs []error
	for _, doc := range docs {
		prev := 0
		if rule, err := ws.Get(doc.Slug); err == nil {
			prev = rule.Version
		}

		if err := keepStoredValues(ctx, doc, store); err != nil {
			return cli.NewCommandError("publish", err)
		}
		if _, err := ws.Import(ctx, doc); err != nil {
			fmt.Fprintf(w, "✗ %s: %v\n", doc.Slug, err)
			errs = append(errs, err)
			continue
		}
		v, err := ws.Publish(ctx, doc.Slug)
		if err != nil {
			fmt.Fprintf(w, "✗ %s: %v\n", doc.Slug, err)
			var blocked *workspace.PublishBlockedError
			if errors.As(err, &blocked) {
				for _, f := range blocked.Failures {
					fmt.Fprintf(w, "  - %s\n", f.Test.Name)
				}
			}
			errs = append(errs, err)
			continue
		}

		if v.Version == prev {
			fmt.Fprintf(w, "✓ %s unchanged at v%d\n", doc.Slug, v.Version)
		} else {
			fmt.Fprintf(w, "✓ %s published as v%d (%s)\n", doc.Slug, v.Version, v.Checksum[:12])
		}
	}

	if len(errs) > 0 {
		return cli.NewCommandError("publish", fmt.Errorf("%d of %d tables not published", len(errs), len(docs)))
	}
	return nil
}

func listVersions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	repo, err := workspace.OpenRepository(cfg.Workspace.Repository)
	if err != nil {
		return cli.NewCommandError("versions", err)
	}
	defer repo.Close()

	store := dynamic.NewMemoryStore(logger)
	defer store.Close()
	ws := workspace.New(store, workspace.WithRepository(repo), workspace.WithLogger(logger))

	versions, err := ws.Versions(context.Background(), args[0])
	if err != nil {
		return cli.NewCommandError("versions", err)
	}
	if len(versions) == 0 {
		return cli.NewCommandError("versions", fmt.Errorf("%w: %s has no published versions", workspace.ErrVersionNotFound, args[0]))
	}

	tab := cli.Table{Title: args[0], Header: []string{"Version", "Published", "Checksum"}}
	for _, v := range versions {
		tab.Rows = append(tab.Rows, []string{
			fmt.Sprintf("v%d", v.Version),
			v.PublishedAt.Format(time.RFC3339),
			v.Checksum[:12],
		})
	}
	return cli.NewFormatter(cli.FormatText).FormatTo(out(cmd), tab)
}

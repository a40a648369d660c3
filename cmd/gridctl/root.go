package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/dealerdesk/internal/definition"
	"github.com/pitabwire/dealerdesk/internal/lookup"
	"github.com/pitabwire/dealerdesk/internal/metadata"
	"github.com/pitabwire/dealerdesk/internal/openapi"
	"github.com/pitabwire/dealerdesk/internal/store"
	"github.com/pitabwire/dealerdesk/model"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	defs     []string
	schemas  []string
	include  []string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "gridctl",
		Short: "Inspect dealerdesk definitions offline",
		Long: `gridctl loads dealerdesk domain definitions and exercises the table and
form engines against local JSON data.

Examples:
  # Check every definition file
  gridctl validate ./definitions

  # Second page of active dealerships, sorted by the first column
  gridctl table dealerships --data seed/dealership.json --filter status=active --sort 0 --page 2

  # Values the user form starts with for an existing record
  gridctl defaults user-form --record user.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringSliceVar(&opts.defs, "defs", []string{"./definitions"}, "definition directories")
	root.PersistentFlags().StringSliceVar(&opts.schemas, "schemas", []string{"./schemas"}, "OpenAPI document directories")
	root.PersistentFlags().StringSliceVar(&opts.include, "include", []string{"**/*.yaml", "**/*.yml"}, "definition file globs")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(
		newValidateCmd(opts),
		newTableCmd(opts),
		newDefaultsCmd(opts),
	)
	return root
}

// logger writes human-readable logs to the command's stderr.
func (o *globalOptions) logger(cmd *cobra.Command) *zap.Logger {
	level, err := zapcore.ParseLevel(o.logLevel)
	if err != nil {
		level = zapcore.WarnLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(cmd.ErrOrStderr()), level)
	return zap.New(core)
}

// loadRegistry loads and validates definitions from dirs into a new registry.
func (o *globalOptions) loadRegistry(dirs []string, logger *zap.Logger) (*definition.Registry, definition.Report, error) {
	registry := definition.NewRegistry(nil)
	reloader := &definition.Reloader{
		Loader:      definition.NewLoader(o.include...),
		Validator:   definition.NewValidator(),
		Registry:    registry,
		Directories: dirs,
		Logger:      logger,
	}
	report, err := reloader.Reload()
	return registry, report, err
}

// seededStore returns an in-memory store holding the records of a seed file.
// An empty path yields an empty store.
func seededStore(ctx context.Context, path string) (store.Store, error) {
	s := store.NewMemoryStore()
	if path == "" {
		return s, nil
	}
	seed, err := store.LoadSeed(path)
	if err != nil {
		return nil, err
	}
	if _, err := store.Seed(ctx, s, seed); err != nil {
		return nil, err
	}
	return s, nil
}

// checkSchemaRefs resolves the OpenAPI schema every form declares.
func checkSchemaRefs(registry *definition.Registry, dirs []string) []openapi.RefError {
	var refs []openapi.SchemaRef
	for _, id := range registry.FormIDs() {
		f, _ := registry.GetForm(id)
		if f.Schema != nil {
			refs = append(refs, openapi.SchemaRef{Spec: f.Schema.Spec, Name: f.Schema.Name})
		}
	}
	return openapi.NewIndex(dirs...).Check(refs)
}

func newValidateCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate [dir...]",
		Short: "Load and validate definition files",
		Long:  "Load every definition file under the given directories (default --defs) and report errors and warnings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dirs := args
			if len(dirs) == 0 {
				dirs = opts.defs
			}
			registry, report, err := opts.loadRegistry(dirs, zap.NewNop())
			if err != nil && !errors.Is(err, definition.ErrInvalidDefinitions) {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				for _, e := range report.Errors {
					fmt.Fprintf(out, "error   %s [%s] %s\n", e.Path, e.Code, e.Message)
				}
				for _, w := range report.Warnings {
					fmt.Fprintf(out, "warning %s [%s] %s\n", w.Path, w.Code, w.Message)
				}
			}
			if !report.OK() {
				return fmt.Errorf("%d definition errors", len(report.Errors))
			}

			refErrs := checkSchemaRefs(registry, opts.schemas)
			for _, e := range refErrs {
				fmt.Fprintf(cmd.ErrOrStderr(), "error   %s\n", e.Error())
			}
			if len(refErrs) > 0 {
				return fmt.Errorf("%d unresolved schema references", len(refErrs))
			}
			if !asJSON {
				fmt.Fprintf(out, "ok: %d tables and forms, %d warnings\n", registry.Len(), len(report.Warnings))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

type tableOptions struct {
	data     string
	search   string
	filters  []string
	sorts    []int
	page     int
	pageSize int
	asJSON   bool
}

func newTableCmd(opts *globalOptions) *cobra.Command {
	to := &tableOptions{}
	cmd := &cobra.Command{
		Use:   "table <tableId>",
		Short: "Render a table view",
		Long: `Render one page of a table over the records of a seed file.

--sort may be repeated; each occurrence clicks that column header, so
"--sort 0 --sort 0" sorts the first column descending.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			logger := opts.logger(cmd)
			registry, _, err := opts.loadRegistry(opts.defs, logger)
			if err != nil {
				return err
			}
			records, err := seededStore(ctx, to.data)
			if err != nil {
				return err
			}

			provider := metadata.NewTableProvider(registry, records, metadata.TableDefaults{ItemsPerPage: to.pageSize}, logger)
			engine, err := provider.Open(ctx, args[0], nil)
			if err != nil {
				return err
			}
			defer engine.Close()

			if to.search != "" {
				engine.SetSearch(to.search)
			}
			for _, f := range to.filters {
				key, value, ok := strings.Cut(f, "=")
				if !ok {
					return fmt.Errorf("filter %q must be key=value", f)
				}
				if err := engine.SetFilter(key, value); err != nil {
					return err
				}
			}
			for _, col := range to.sorts {
				if err := engine.ToggleSort(col); err != nil {
					return err
				}
			}
			engine.SetPage(to.page)

			view := engine.View()
			if to.asJSON {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			return writeTableText(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVar(&to.data, "data", "", "seed file mapping collections to records")
	cmd.Flags().StringVar(&to.search, "search", "", "search term")
	cmd.Flags().StringArrayVar(&to.filters, "filter", nil, "filter as key=value (repeatable)")
	cmd.Flags().IntSliceVar(&to.sorts, "sort", nil, "column index to click (repeatable)")
	cmd.Flags().IntVar(&to.page, "page", 1, "1-based page")
	cmd.Flags().IntVar(&to.pageSize, "page-size", 0, "rows per page when the table does not declare one")
	cmd.Flags().BoolVar(&to.asJSON, "json", false, "print the view as JSON")
	return cmd
}

func newDefaultsCmd(opts *globalOptions) *cobra.Command {
	var recordPath, dataPath string
	cmd := &cobra.Command{
		Use:   "defaults <formId>",
		Short: "Print the initial values of a form",
		Long:  "Print the flat values a form starts with, for a new record or for the record in --record.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			logger := opts.logger(cmd)
			registry, _, err := opts.loadRegistry(opts.defs, logger)
			if err != nil {
				return err
			}
			records, err := seededStore(ctx, dataPath)
			if err != nil {
				return err
			}

			var record model.Record
			if recordPath != "" {
				data, err := os.ReadFile(recordPath)
				if err != nil {
					return fmt.Errorf("reading record: %w", err)
				}
				if err := json.Unmarshal(data, &record); err != nil {
					return fmt.Errorf("parsing record %s: %w", recordPath, err)
				}
			}

			provider := metadata.NewFormProvider(metadata.FormDeps{
				Registry: registry,
				Store:    records,
				Lookups:  lookup.NewProvider(registry, records, nil, 0, 0, nil),
				SpecDirs: opts.schemas,
				Logger:   logger,
			})
			values, err := provider.Defaults(ctx, args[0], record)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), values)
		},
	}
	cmd.Flags().StringVar(&recordPath, "record", "", "JSON file with the record being edited")
	cmd.Flags().StringVar(&dataPath, "data", "", "seed file used to resolve lookups")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

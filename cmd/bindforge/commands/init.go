package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bindforge/bindforge/pkg/config"
	"github.com/bindforge/bindforge/pkg/stores"
)

const samplePlan = `// Strategy plan for the sample unit library.
symbols: "unit.symbols.json"

resources: [
	{
		name:    "Index"
		create:  "make_index"
		destroy: "free_index"
	},
	{
		name:    "Unit"
		create:  "parse_unit"
		destroy: "free_unit"
		prefix:  "unit_"
		methods: [{c: "unit_diag_count"}, {c: "unit_save"}]
		views: [{name: "spelling", ptr: "unit_spelling", length: "len"}]
	},
]

errors: [{function: "unit_save", rule: "nonZeroIsError"}]
ownership: [{owner: "Index", child: "Unit"}]
`

const sampleSymbols = `{
  "types": [
    {"name": "Index", "kind": "handle"},
    {"name": "Unit", "kind": "handle"}
  ],
  "functions": [
    {"name": "make_index", "params": [{"name": "exclude", "type": "int"}], "returns": "Index"},
    {"name": "free_index", "params": [{"name": "idx", "type": "Index"}]},
    {"name": "parse_unit", "params": [{"name": "idx", "type": "Index"}, {"name": "path", "type": "const char *"}], "returns": "Unit"},
    {"name": "free_unit", "params": [{"name": "u", "type": "Unit"}]},
    {"name": "unit_diag_count", "params": [{"name": "u", "type": "Unit"}], "returns": "unsigned"},
    {"name": "unit_save", "params": [{"name": "u", "type": "Unit"}, {"name": "path", "type": "const char *"}], "returns": "int"},
    {"name": "unit_spelling", "params": [{"name": "u", "type": "Unit"}, {"name": "len", "type": "size_t *", "direction": "out"}], "returns": "const char *"}
  ]
}
`

func newInitCommand() *cobra.Command {
	var (
		dir   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a bindforge workspace",
		Long: `Initialize a workspace with a bindforge.yaml, a sample plan with its symbol
table, and the generation history database.

Existing files are left alone unless --force is given.`,
		Example: `  # Initialize the current directory
  bindforge init

  # Initialize another directory, replacing existing files
  bindforge init --dir bindings --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := stdout(cmd)

			cfgPath := filepath.Join(dir, "bindforge.yaml")
			if cmd.Flags().Changed("config") {
				cfgPath = configPath
			}

			log.Info().
				Str("dir", dir).
				Str("config", cfgPath).
				Bool("force", force).
				Msg("Initializing workspace")

			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}

			cfg := config.DefaultToolConfig()
			written, err := writeIfAbsent(cfgPath, force, func(path string) error {
				return config.WriteToolConfig(path, cfg)
			})
			if err != nil {
				return err
			}
			report(out, cfgPath, written)

			files := []struct {
				name    string
				content string
			}{
				{"plan.cue", samplePlan},
				{"unit.symbols.json", sampleSymbols},
			}
			for _, f := range files {
				path := filepath.Join(dir, f.name)
				content := f.content
				written, err := writeIfAbsent(path, force, func(path string) error {
					return os.WriteFile(path, []byte(content), 0o644)
				})
				if err != nil {
					return err
				}
				report(out, path, written)
			}

			dbPath := cfg.History.Path
			if !filepath.IsAbs(dbPath) {
				dbPath = filepath.Join(dir, dbPath)
			}
			store, err := stores.Open(ctx, dbPath)
			if err != nil {
				return fmt.Errorf("failed to initialize history: %w", err)
			}
			if err := store.Close(); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Initialized history database: %s\n", dbPath)

			fmt.Fprintf(out, "\nWorkspace initialized.\n\n")
			fmt.Fprintf(out, "Next steps:\n")
			if filepath.Clean(dir) != "." {
				fmt.Fprintf(out, "  cd %s\n", dir)
			}
			fmt.Fprintf(out, "  bindforge validate plan.cue\n")
			fmt.Fprintf(out, "  bindforge generate plan.cue --out model.json\n")
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "workspace directory")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")

	return cmd
}

// writeIfAbsent calls write unless path exists and force is false.
func writeIfAbsent(path string, force bool, write func(string) error) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := write(path); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

func report(out io.Writer, path string, written bool) {
	if written {
		fmt.Fprintf(out, "✓ Created %s\n", path)
		return
	}
	fmt.Fprintf(out, "✓ Kept existing %s\n", path)
}

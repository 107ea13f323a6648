package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bindforge/bindforge/pkg/config"
	"github.com/bindforge/bindforge/pkg/engine"
)

func newValidateCommand(version string) *cobra.Command {
	var (
		symbolsPath   string
		allowWarnings bool
	)

	cmd := &cobra.Command{
		Use:   "validate <plan>",
		Short: "Check a plan against its symbol table",
		Long: `Validate runs plan validation and builds the ownership graph without producing
a model. Lint policies are not evaluated and the run is not recorded.`,
		Example: `  bindforge validate plan.cue
  bindforge validate plan.yaml --symbols build/clang.symbols.json --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := openSession(ctx, version, sessionOptions{noHistory: true, noPolicies: true})
			if err != nil {
				return err
			}
			defer func() { _ = s.Close(ctx) }()

			if !cmd.Flags().Changed("allow-warnings") {
				allowWarnings = s.cfg.Generate.AllowWarnings
			}

			pp, err := s.loadPlan(ctx, args[0])
			if err != nil {
				return err
			}
			if symbolsPath == "" {
				symbolsPath = pp.SymbolsPath()
			}
			table, err := loadSymbols(symbolsPath)
			if err != nil {
				return err
			}

			opts := s.tel.EngineOptions(engine.Options{AllowWarnings: allowWarnings})
			if hook := pp.NamingHookPath(); hook != "" {
				namer, err := config.LoadStarlarkNamer(hook, s.cfg.Naming.Timeout)
				if err != nil {
					return engine.NewHookError("failed to load naming hook", err).WithCode(engine.ErrCodeNamingHook)
				}
				opts.Namer = namer
			}

			vp, diags := engine.Validate(ctx, pp.Plan.ToStrategyPlan(), table, opts)
			var graph *engine.OwnershipGraph
			if vp != nil {
				var graphDiags engine.Diagnostics
				graph, graphDiags = engine.BuildOwnershipGraph(vp)
				diags.Append(graphDiags)
			}
			if err := ctx.Err(); err != nil {
				return engine.NewCanceledError(engine.StageValidate, err)
			}

			diags = diags.Sorted()
			g := &generation{}
			if diags.HasFatal(allowWarnings) {
				g.err = engine.NewRejectedError(diags)
			} else {
				g.result = &engine.Result{Diagnostics: diags}
			}
			if err := reportDiagnostics(cmd, g); err != nil {
				return err
			}
			if g.err != nil {
				return g.err
			}

			resources := 0
			if graph != nil {
				resources = len(graph.Nodes)
			}
			log.Info().
				Str("plan", args[0]).
				Int("resources", resources).
				Int("diagnostics", len(diags)).
				Msg("Plan is valid")
			if !jsonOutput {
				fmt.Fprintf(stdout(cmd), "%s: ok (%d resources, %d diagnostics)\n", args[0], resources, len(diags))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&symbolsPath, "symbols", "", "symbol table path (overrides the plan)")
	cmd.Flags().BoolVar(&allowWarnings, "allow-warnings", false, "do not reject the plan on warnings")

	return cmd
}

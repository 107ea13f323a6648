package commands

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bindforge/bindforge/pkg/emit"
)

func newGenerateCommand(version string) *cobra.Command {
	var (
		symbolsPath   string
		out           string
		format        string
		dotPath       string
		strict        bool
		allowWarnings bool
		metricsFile   string
		noHistory     bool
	)

	cmd := &cobra.Command{
		Use:   "generate <plan>",
		Short: "Generate the binding model for a plan",
		Long: `Generate resolves a strategy plan against its symbol table and writes the
binding model. Nothing is written when the plan is rejected; every diagnostic of
the run is reported instead.

Lint policies run on the resolved model. In strict mode error-severity
violations reject the plan.`,
		Example: `  # Write the model to stdout
  bindforge generate plan.cue

  # Write YAML and the ownership graph
  bindforge generate plan.cue --out model.yaml --dot ownership.dot

  # Fail on policy errors, keep going on warnings
  bindforge generate plan.cue --strict --allow-warnings`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := openSession(ctx, version, sessionOptions{
				strict:      strict,
				noHistory:   noHistory,
				metricsFile: metricsFile,
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := s.Close(ctx); err != nil {
					log.Warn().Err(err).Msg("Failed to flush telemetry")
				}
			}()

			if !cmd.Flags().Changed("allow-warnings") {
				allowWarnings = s.cfg.Generate.AllowWarnings
			}
			if out == "" {
				out = s.cfg.Generate.Out
			}
			if !cmd.Flags().Changed("format") && s.cfg.Generate.Format != "" {
				format = s.cfg.Generate.Format
			}
			outFormat, err := emit.ParseFormat(format)
			if err != nil {
				return err
			}
			if out != "" && !cmd.Flags().Changed("format") {
				outFormat = emit.FormatForPath(out, outFormat)
			}

			log.Info().
				Str("plan", args[0]).
				Bool("strict", s.cfg.Policy.Strict).
				Bool("allow_warnings", allowWarnings).
				Msg("Generating binding model")

			g := s.generate(ctx, args[0], symbolsPath, allowWarnings)
			if err := reportDiagnostics(cmd, g); err != nil {
				return err
			}
			if g.err != nil {
				return g.err
			}

			if err := writeArtifacts(cmd, g, version, out, outFormat, dotPath); err != nil {
				return err
			}

			log.Info().
				Str("run_id", g.runID).
				Int("resources", len(g.result.Model.Resources)).
				Int("callbacks", len(g.result.Model.Callbacks)).
				Int("diagnostics", len(g.result.Diagnostics)).
				Msg("Generation succeeded")
			return nil
		},
	}

	cmd.Flags().StringVar(&symbolsPath, "symbols", "", "symbol table path (overrides the plan)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	cmd.Flags().StringVar(&dotPath, "dot", "", "also write the ownership graph as DOT to this path")
	cmd.Flags().BoolVar(&strict, "strict", false, "make error-severity policy violations fatal")
	cmd.Flags().BoolVar(&allowWarnings, "allow-warnings", false, "do not reject the plan on warnings")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record the run in the history database")

	return cmd
}

// reportDiagnostics prints the diagnostics of a run to stderr, as JSON with --json.
func reportDiagnostics(cmd *cobra.Command, g *generation) error {
	diags := g.Diagnostics()
	if len(diags) == 0 {
		return nil
	}
	format := emit.FormatText
	if jsonOutput {
		format = emit.FormatJSON
	}
	if err := emit.WriteDiagnostics(stderr(cmd), diags, format); err != nil {
		return fmt.Errorf("failed to report diagnostics: %w", err)
	}
	return nil
}

// writeArtifacts writes the model document to out (stdout when empty) and the
// ownership graph to dotPath when set.
func writeArtifacts(cmd *cobra.Command, g *generation, version, out string, format emit.Format, dotPath string) error {
	doc := emit.NewDocument(g.planName, version, g.result)
	write := func(w io.Writer) error { return emit.WriteDocument(w, doc, format) }
	if out == "" {
		if err := write(stdout(cmd)); err != nil {
			return err
		}
	} else {
		if err := emit.WriteFile(out, write); err != nil {
			return err
		}
		log.Info().Str("path", out).Msg("Binding model written")
	}

	if dotPath != "" {
		err := emit.WriteFile(dotPath, func(w io.Writer) error {
			return emit.WriteDOT(w, g.result.Model.Graph)
		})
		if err != nil {
			return err
		}
		log.Info().Str("path", dotPath).Msg("Ownership graph written")
	}
	return nil
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/bindforge/bindforge/pkg/emit"
)

func newGraphCommand(version string) *cobra.Command {
	var (
		symbolsPath string
		dot         bool
	)

	cmd := &cobra.Command{
		Use:   "graph <plan>",
		Short: "Show the ownership graph of a plan",
		Long: `Graph resolves a plan and prints the order in which resource instances are
disposed, children before their owners. With --dot the graph is printed in
Graphviz DOT instead.`,
		Example: `  bindforge graph plan.cue
  bindforge graph plan.cue --dot | dot -Tsvg > ownership.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := openSession(ctx, version, sessionOptions{noHistory: true, noPolicies: true})
			if err != nil {
				return err
			}
			defer func() { _ = s.Close(ctx) }()

			g := s.generate(ctx, args[0], symbolsPath, true)
			if err := reportDiagnostics(cmd, g); err != nil {
				return err
			}
			if g.err != nil {
				return g.err
			}

			if dot {
				return emit.WriteDOT(stdout(cmd), g.result.Model.Graph)
			}
			return emit.WriteDisposalOrder(stdout(cmd), g.result.Model.Graph)
		},
	}

	cmd.Flags().StringVar(&symbolsPath, "symbols", "", "symbol table path (overrides the plan)")
	cmd.Flags().BoolVar(&dot, "dot", false, "print Graphviz DOT")

	return cmd
}

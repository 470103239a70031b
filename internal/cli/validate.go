package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/formload/internal/config"
	"github.com/wesleyorama2/formload/internal/loadtest/engine"
	"github.com/wesleyorama2/formload/internal/uiclient/memapp"
)

func newValidateCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config>",
		Short: "Check a test configuration without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			config.ApplyEnv(cfg, os.LookupEnv)

			// The engine resolves scenario names and executors, so building
			// one against the simulator checks everything a run would.
			eng, err := engine.NewEngine(cfg, memapp.New(memapp.DefaultOptions()), engine.WithLogger(g.log()))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ %s is valid\n", args[0])
			fmt.Fprintf(out, "  name:     %s\n", cfg.Name)
			target := cfg.Target.Endpoint
			if target == "" {
				target = "built-in simulator"
			}
			fmt.Fprintf(out, "  target:   %s\n", target)
			fmt.Fprintf(out, "  planned:  %s\n", eng.MaxDuration())

			names := make([]string, 0, len(cfg.Scenarios))
			for name := range cfg.Scenarios {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				sc := cfg.Scenarios[name]
				fmt.Fprintf(out, "  group %-16s %s (%s)\n", name, sc.Scenario, sc.Executor)
			}
			return nil
		},
	}
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/formload/internal/loadtest/executor"
	"github.com/wesleyorama2/formload/internal/scenario"
)

var scenarioDescriptions = map[string]string{
	"open-sales-order-list":       "open the sales order list and close it",
	"open-customer-list":          "open the customer list and close it",
	"open-item-list":              "open the item list and close it",
	"lookup-random-customer":      "open a new sales order and look up a random customer",
	"create-and-post-sales-order": "create a sales order with random lines, then post, ship and invoice it",
}

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the available scenarios and executors",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Scenarios:")
			for _, name := range scenario.Names() {
				fmt.Fprintf(out, "  %-28s %s\n", name, scenarioDescriptions[name])
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Executors:")
			for _, t := range []executor.Type{
				executor.TypeConstantVUs,
				executor.TypeRampingVUs,
				executor.TypePerVUIterations,
				executor.TypeSharedIterations,
			} {
				fmt.Fprintf(out, "  %s\n", t)
			}
		},
	}
}

package commands

import (
	"fmt"
	"strings"

	"github.com/andri/cardwallet/pkg/coin"
	"github.com/andri/cardwallet/pkg/output"
	"github.com/spf13/cobra"
)

// CoinsOptions holds options for the coins command
type CoinsOptions struct {
	Output string
}

// newCoinsCmd creates the coins subcommand
func newCoinsCmd() *cobra.Command {
	opts := &CoinsOptions{}

	cmd := &cobra.Command{
		Use:   "coins [name]",
		Short: "List supported coins",
		Long:  "List the coin apps of the device, or show one coin by name or symbol.",
		Example: `  cardwallet coins
  cardwallet coins eth -o yaml`,
		Args: cobra.MaximumNArgs(1),
		ValidArgsFunction: func(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			var names []string
			for _, c := range coin.All() {
				if strings.HasPrefix(strings.ToLower(c.Name), strings.ToLower(toComplete)) {
					names = append(names, c.Name+"\t"+c.Symbol)
				}
			}
			return names, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoins(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "table", "output format: table, json, yaml")

	return cmd
}

func runCoins(cmd *cobra.Command, args []string, opts *CoinsOptions) error {
	format, err := output.ParseFormat(opts.Output)
	if err != nil {
		return err
	}

	coins := coin.All()
	if len(args) == 1 {
		c, ok := coin.Find(args[0])
		if !ok {
			if suggestion, found := coin.Suggest(args[0]); found {
				return fmt.Errorf("unknown coin %q, did you mean %q?", args[0], suggestion)
			}
			return fmt.Errorf("unknown coin %q", args[0])
		}
		coins = []coin.Coin{c}
	}

	return output.Render(cmd.OutOrStdout(), format, &output.Report{Coins: output.NewCoinReports(coins)})
}

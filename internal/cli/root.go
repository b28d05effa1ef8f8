package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root tollgate command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tollgate",
		Short: "Rate-limited, identity-gated edge endpoint",
		Long: `Tollgate answers each caller with what the edge knows about its network
location, after charging the caller's address against a rate limit and, outside
public environments, verifying an access token.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newTestCmd(),
		newReplayCmd(),
		newGenerateCmd(),
		newStatsCmd(),
		newConfigCmd(),
	)

	return root
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Tollgate/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Tollgate configuration files",
	}

	var output string
	initCmd := &cobra.Command{
		Use:     "init",
		Short:   "Write an example config JSON file",
		Example: `  tollgate config init --output tollgate.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteExample(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote example config to %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVar(&output, "output", "tollgate.json", "output file path")

	var path string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a config file for errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", path)
			return nil
		},
	}
	validateCmd.Flags().StringVar(&path, "file", "tollgate.json", "config file to check")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}

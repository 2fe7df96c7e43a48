package cmd

import (
	"github.com/spf13/cobra"

	"github.com/initia-labs/soldebug/config"
)

func SetVersion(version, commit string) {
	config.SetBuildInfo(version, commit)
}

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "soldebug",
		Short:         "Source-level debugger for EVM transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(inspectCmd())
	cmd.AddCommand(debugCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("%s (%s)\n", config.Version, config.CommitHash)
		},
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	command := NewImpactdCommand()
	if err := command.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewImpactdCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "impactd [command]",
		Short:         "Impact Story backend",
		Long:          "Serves the form actions and page data of the Impact Story application",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewMigrateCommand())

	return cmd
}

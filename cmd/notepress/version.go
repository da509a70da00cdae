package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print the notepress version",
	Annotations: map[string]string{"skipConfig": "true"},
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "notepress v%s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package main

import (
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the datarefresh version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("datarefresh %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

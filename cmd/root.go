/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bugtrail",
	Short: "Bugtrail account API server and client",
	Long: `Bugtrail account API server and client.

Run the HTTP API with "bugtrail server", apply database migrations with
"bugtrail migrate up", and drive the account flows from a terminal with
"bugtrail account".`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

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
	Use:   "imagebot",
	Short: "LINE bot that turns text messages into generated images",
	Long: "imagebot receives LINE webhook deliveries, sends each text message as a prompt to the " +
		"ComfyUI Lambda, stores the image in S3 and pushes a presigned link back to the user.",
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

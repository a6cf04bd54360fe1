package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Version information (set by ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// A .env next to the binary is optional
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		showVersion bool
		configPath  string
	)

	rootCmd := &cobra.Command{
		Use:   "imgdedup",
		Short: "Store uploads without duplicates",
		Long: `imgdedup accepts batches of images and documents and keeps only the
first of each group of duplicates. Documents are compared byte for byte,
images by perceptual hash so re-encoded or resized copies are caught too.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd)
				return nil
			}
			// Show help if no subcommand is provided
			return cmd.Help()
		},
	}

	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "version for imgdedup")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (.json or .toml)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd)
		},
	}

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newScanCmd(&configPath),
		newConfigCmd(&configPath),
		versionCmd,
	)
	return rootCmd
}

func printVersion(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "imgdedup version %s\n", version)
	if version != "dev" {
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	}
}

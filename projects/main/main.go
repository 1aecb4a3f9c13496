package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/open-control-systems/device-poller/components/core"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "Failed to load .env file: ", err)
	}

	rootCmd := &cobra.Command{
		Use:           "device-poller",
		Short:         "Device-management controller poller",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				core.LogErr.Printf("device-poller: failed to print help: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(newRunCommand())

	if err := rootCmd.Execute(); err != nil {
		core.LogErr.Printf("device-poller: %v\n", err)
		_ = core.Sync()

		os.Exit(1)
	}
}

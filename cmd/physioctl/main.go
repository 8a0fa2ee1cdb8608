// Command physioctl runs operator tasks that have no HTTP surface: schema
// migrations and tenant provisioning.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	rootCmd := &cobra.Command{
		Use:           "physioctl",
		Short:         "PhysioCapture operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(migrateCmd(log), clinicCmd(log))

	if err := rootCmd.Execute(); err != nil {
		log.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

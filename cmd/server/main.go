// cmd/server/main.go
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/SyedDaiam9101/headpose-service/internal/config"
)

const serviceName = "headpose-service"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Head pose estimation over gRPC and HTTP",
		Long: `headpose-service estimates yaw, pitch and roll for face regions in images.
Regions can be supplied by the caller or found by an optional face detector.
Results are returned to the caller and published to Redis when configured.`,
		SilenceUsage: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC and HTTP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	config.Flags(serve.Flags())

	root.AddCommand(serve)
	return root
}

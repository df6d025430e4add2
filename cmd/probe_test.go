// File: cmd/probe_test.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/voicepilot/internal/config"
)

// newProbeCmd exposes the config that PersistentPreRunE stored.
func newProbeCmd(seen func(*config.Config)) *cobra.Command {
	return &cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			seen(cfg)
			return nil
		},
	}
}

// File: cmd/describe.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/observability"
	"github.com/xkilldash9x/voicepilot/internal/service"
)

func newDescribeCmd(factory service.ComponentFactory) *cobra.Command {
	var find, target string
	describeCmd := &cobra.Command{
		Use:   "describe",
		Short: "Describes the current screen, or locates an element with --find",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if target != "" {
				cfg.SetDesktopTargetURL(target)
			}
			return runDescribe(cmd.Context(), observability.GetLogger(), cfg, factory, find, cmd.OutOrStdout())
		},
	}
	describeCmd.Flags().StringVarP(&find, "find", "f", "", "describe an element to locate instead of the whole screen")
	describeCmd.Flags().StringVar(&target, "target", "", "override desktop.target_url")
	return describeCmd
}

func runDescribe(ctx context.Context, logger *zap.Logger, cfg config.Interface, factory service.ComponentFactory, find string, out io.Writer) error {
	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()

	if find == "" {
		desc, err := components.Orchestrator.DescribeScreen(ctx)
		if err != nil {
			return fmt.Errorf("failed to describe screen: %w", err)
		}
		fmt.Fprintln(out, desc)
		return nil
	}

	loc, err := components.Orchestrator.FindElement(ctx, find)
	if err != nil {
		return fmt.Errorf("failed to find element: %w", err)
	}
	if !loc.Found {
		fmt.Fprintf(out, "%q not found on screen\n", find)
		return nil
	}
	fmt.Fprintf(out, "%q at (%.0f, %.0f), confidence %.2f\n", find, loc.X, loc.Y, loc.Confidence)
	return nil
}

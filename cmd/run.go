// File: cmd/run.go
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/api/schemas"
	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/observability"
	"github.com/xkilldash9x/voicepilot/internal/orchestrator"
	"github.com/xkilldash9x/voicepilot/internal/service"
)

type runOptions struct {
	yes        bool
	noConfirm  bool
	safetyMode bool
	target     string
}

func newRunCmd(factory service.ComponentFactory) *cobra.Command {
	var opts runOptions
	runCmd := &cobra.Command{
		Use:   "run [command...]",
		Short: "Runs a single spoken-style command against the desktop",
		Example: `  voicepilot run open chrome
  voicepilot run --yes "press ctrl s"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if opts.noConfirm {
				cfg.SetSafetyRequireConfirmation(false)
			}
			if opts.safetyMode {
				cfg.SetSafetySafetyMode(true)
			}
			if opts.target != "" {
				cfg.SetDesktopTargetURL(opts.target)
			}
			text := strings.Join(args, " ")
			return runCommand(cmd.Context(), observability.GetLogger(), cfg, factory, text, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
	runCmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "approve every confirmation request")
	runCmd.Flags().BoolVar(&opts.noConfirm, "no-confirm", false, "disable confirmation requests (validation still applies)")
	runCmd.Flags().BoolVar(&opts.safetyMode, "safety-mode", false, "require confirmation for every key press and drag")
	runCmd.Flags().StringVar(&opts.target, "target", "", "override desktop.target_url")
	return runCmd
}

// terminalSender prints each outbound message as a JSON line and answers
// confirmation requests from in.
type terminalSender struct {
	mu     sync.Mutex
	out    io.Writer
	in     *bufio.Reader
	yes    bool
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

func (s *terminalSender) send(msg schemas.Message) {
	frame, err := schemas.EncodeMessage(msg)
	if err != nil {
		s.logger.Error("Failed to encode message", zap.Error(err))
		return
	}
	s.mu.Lock()
	fmt.Fprintln(s.out, string(frame))
	s.mu.Unlock()

	req, ok := msg.(schemas.ConfirmationRequestMessage)
	if !ok {
		return
	}
	// The gate registered the request before sending it, so answering inline
	// resolves the wait that follows.
	approved := s.yes || s.prompt(req)
	s.orch.HandleConfirmationResponse(req.ConfirmationID, approved)
}

func (s *terminalSender) prompt(req schemas.ConfirmationRequestMessage) bool {
	s.mu.Lock()
	fmt.Fprintf(s.out, "Allow %q? [y/N]: ", req.Action.Description)
	s.mu.Unlock()
	line, err := s.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// runCommand builds the pipeline and processes one command.
func runCommand(ctx context.Context, logger *zap.Logger, cfg config.Interface, factory service.ComponentFactory, text string, in io.Reader, out io.Writer, opts runOptions) error {
	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()

	sender := &terminalSender{
		out:    out,
		in:     bufio.NewReader(in),
		yes:    opts.yes,
		orch:   components.Orchestrator,
		logger: logger,
	}

	outcome := components.Orchestrator.ProcessCommand(ctx, text, sender.send)
	if !outcome.Handled {
		fmt.Fprintf(out, "Not a computer control command: %s\n", outcome.Reason)
		return nil
	}
	if !outcome.Success {
		return fmt.Errorf("command %s: %s", outcome.Status, outcome.Reason)
	}
	return nil
}

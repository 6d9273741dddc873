// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/observability"
	"github.com/xkilldash9x/pagepilot/internal/service"
)

var (
	runStartURL      string
	runMaxIterations int
	runOwner         string
	runQuiet         bool
)

var runCmd = &cobra.Command{
	Use:   `run "task description"`,
	Short: "Run a single browsing task to completion.",
	Long: `Starts a task, streams its progress to the terminal, and exits with the
task's outcome. Interrupt (Ctrl-C) aborts the task cleanly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(cmd.Context(), args[0])
	},
}

func init() {
	runCmd.Flags().StringVar(&runStartURL, "url", "", "URL to open before the first iteration")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "iteration cap (0 uses the configured default)")
	runCmd.Flags().StringVar(&runOwner, "owner", "cli", "session owner identifier")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "suppress progress output, print only the outcome")
	rootCmd.AddCommand(runCmd)
}

func runTask(ctx context.Context, description string) error {
	logger := observability.GetLogger()

	components, err := service.NewComponentFactory().Create(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Shutdown()

	session, err := components.Store.CreateSession(ctx, runOwner)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer func() {
		if err := components.Store.EndSession(context.Background(), session.ID); err != nil {
			logger.Warn("Failed to end session.", zap.String("session_id", session.ID), zap.Error(err))
		}
	}()

	events, unsubscribe := components.Bus.Subscribe()
	defer unsubscribe()
	if !runQuiet {
		go printEvents(events, components)
	}

	task, err := components.Supervisor.StartTask(ctx, description, schemas.TaskOptions{
		SessionID:     session.ID,
		StartURL:      runStartURL,
		MaxIterations: runMaxIterations,
	})
	if err != nil {
		return fmt.Errorf("failed to start task: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupt received; aborting task.")
		if err := components.Supervisor.Abort(task.ID); err != nil {
			logger.Warn("Abort failed.", zap.Error(err))
		}
	}()

	final, err := components.Supervisor.WaitTask(ctx, task.ID)
	if err != nil {
		return err
	}
	printOutcome(final)

	if final.Status != schemas.TaskCompleted {
		return fmt.Errorf("task ended with status %s", final.Status)
	}
	if len(final.Actions) > 0 {
		promptValidation(ctx, components, final.ID)
	}
	return nil
}

// promptValidation asks the operator to confirm the run before its actions
// are stored as a replayable sequence. Model-reported completion alone is not
// enough to memorize a sequence.
func promptValidation(ctx context.Context, components *service.Components, taskID string) {
	fmt.Print("\nSave this run's actions as a validated sequence for replay? [y/N]: ")
	var answer string
	_, _ = fmt.Scanln(&answer)
	if answer != "y" && answer != "yes" {
		return
	}
	if err := components.Supervisor.ValidateTask(ctx, taskID); err != nil {
		fmt.Printf("  (could not save sequence: %v)\n", err)
		return
	}
	fmt.Println("  Sequence saved.")
}

// printEvents renders the live progress stream and turns handoff requests
// into an interactive prompt.
func printEvents(events <-chan schemas.Event, components *service.Components) {
	for ev := range events {
		switch ev.Type {
		case schemas.EventAIThinking:
			fmt.Printf("  [thinking] %v\n", ev.Payload)
		case schemas.EventActionExecuted:
			fmt.Printf("  [action]   %v\n", ev.Payload)
		case schemas.EventActionError:
			fmt.Printf("  [error]    %v\n", ev.Payload)
		case schemas.EventTaskStatusChanged:
			fmt.Printf("  [status]   %v\n", ev.Payload)
		case schemas.EventHandoffRequested:
			if req, ok := ev.Payload.(schemas.HandoffRequest); ok {
				go promptHandoff(components, req)
			}
		}
	}
}

// promptHandoff asks the operator to finish the manual step in the browser
// window and report back.
func promptHandoff(components *service.Components, req schemas.HandoffRequest) {
	fmt.Printf("\n  HUMAN NEEDED: %s\n", req.Instruction)
	fmt.Print("  Complete the step in the browser, then press Enter to continue (or type 'cancel'): ")

	var answer string
	// Scanln returns an error on a bare newline; that still means continue.
	_, _ = fmt.Scanln(&answer)
	if answer == "cancel" || answer == "n" {
		if err := components.Handoff.Cancel(req.ID); err != nil {
			fmt.Printf("  (handoff already settled: %v)\n", err)
		}
		return
	}
	if err := components.Handoff.Continue(req.ID); err != nil {
		fmt.Printf("  (handoff already settled: %v)\n", err)
	}
}

func printOutcome(task schemas.Task) {
	fmt.Printf("\nTask %s\n", task.ID)
	fmt.Printf("  Status:     %s\n", task.Status)
	fmt.Printf("  Iterations: %d\n", task.Iterations)
	fmt.Printf("  Duration:   %s\n", task.Duration.Round(time.Millisecond))
	fmt.Printf("  Actions:    %d\n", len(task.Actions))
	if task.Result != "" {
		fmt.Printf("  Result:     %s\n", task.Result)
	}
	if task.Error != "" {
		fmt.Printf("  Error:      %s\n", task.Error)
	}
}

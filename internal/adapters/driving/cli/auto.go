package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarry-labs/quarry-cli/internal/core/ports/driving"
)

var (
	flagAutoIterations int
	flagAutoTimeout    time.Duration
)

var autoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Run the campaign loop until a stopping condition",
	Long: `Runs iterations back to back until the iteration budget is spent,
the candidate pool is exhausted or the timeout elapses. The timeout is
checked between iterations, so an in-flight iteration always completes.`,
	RunE: runAuto,
}

func init() {
	autoCmd.Flags().IntVarP(&flagAutoIterations, "iterations", "n", 10,
		"maximum number of iterations")
	autoCmd.Flags().DurationVar(&flagAutoTimeout, "timeout", 0,
		"stop after this duration (0 = no timeout)")
	rootCmd.AddCommand(autoCmd)
}

func runAuto(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	campaign, ledger, err := buildCampaign(settings)
	if err != nil {
		return err
	}
	defer ledger.Close()

	timeout := flagAutoTimeout
	if timeout == 0 {
		timeout = settings.Timeout
	}

	cmd.Printf("Running up to %d iterations...\n", flagAutoIterations)
	completed, err := autoWithProgress(context.Background(), cmd, campaign, driving.AutoLoopOptions{
		Iterations: flagAutoIterations,
		Timeout:    timeout,
		Initialize: true,
	})
	if err != nil {
		return fmt.Errorf("auto loop failed after %d iterations: %w", completed, err)
	}

	status, statusErr := campaign.Status(context.Background())
	if statusErr == nil {
		cmd.Printf("Completed %d iterations: %d seed, %d candidates, %d discoveries.\n",
			completed, status.SeedSize, status.CandidateSize, status.TotalDiscoveries)
	} else {
		cmd.Printf("Completed %d iterations.\n", completed)
	}
	return nil
}

// autoWithProgress runs the auto loop while displaying progress updates.
func autoWithProgress(
	ctx context.Context,
	cmd *cobra.Command,
	runner driving.CampaignRunner,
	opts driving.AutoLoopOptions,
) (int, error) {
	type loopResult struct {
		completed int
		err       error
	}

	resultCh := make(chan loopResult, 1)
	go func() {
		completed, err := runner.AutoLoop(ctx, opts)
		resultCh <- loopResult{completed: completed, err: err}
	}()

	// Poll status every 500ms
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastIteration := -1
	for {
		select {
		case res := <-resultCh:
			if lastIteration >= 0 {
				cmd.Println()
			}
			return res.completed, res.err
		case <-ticker.C:
			// Best effort; a status error just skips the update
			status, err := runner.Status(ctx)
			if err == nil && status.Iteration > lastIteration {
				cmd.Printf("\rIteration %d, %d discoveries", status.Iteration, status.TotalDiscoveries)
				lastIteration = status.Iteration
			}
		}
	}
}

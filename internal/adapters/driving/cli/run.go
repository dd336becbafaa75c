package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [iterations]",
	Short: "Run campaign iterations",
	Long: `Runs one or more campaign iterations: the agent selects candidates,
the experiment evaluates them, acquired rows join the seed and the
analyzer updates the discovery count. Each iteration is committed
atomically before the next starts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	iterations := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid iteration count %q", args[0])
		}
		iterations = n
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	campaign, ledger, err := buildCampaign(settings)
	if err != nil {
		return err
	}
	defer ledger.Close()

	ctx := context.Background()
	if _, err := campaign.Initialize(ctx); err != nil {
		return fmt.Errorf("initialise campaign: %w", err)
	}

	for i := 0; i < iterations; i++ {
		rec, err := campaign.Run(ctx)
		if err != nil {
			return fmt.Errorf("iteration failed: %w", err)
		}
		cmd.Printf("Iteration %d: %d selected, %d acquired, %d failed, %d new discoveries (%d total).\n",
			rec.Iteration, len(rec.Selected), len(rec.Acquired), len(rec.Failed),
			rec.Summary.NewDiscoveries, rec.Summary.TotalDiscoveries)
	}
	return nil
}

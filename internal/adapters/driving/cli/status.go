package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarry-labs/quarry-cli/internal/adapters/driven/storage/sqlite"
)

var flagStatusHistory int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show campaign progress",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&flagStatusHistory, "history", 5,
		"number of recent iterations to show (0 = none)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
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

	status, err := campaign.Status(ctx)
	if err != nil {
		return err
	}

	cmd.Println("Campaign Status")
	cmd.Println("===============")
	cmd.Printf("  Iteration:   %d\n", status.Iteration)
	cmd.Printf("  Seed:        %d rows\n", status.SeedSize)
	cmd.Printf("  Candidates:  %d rows\n", status.CandidateSize)
	cmd.Printf("  Discoveries: %d\n", status.TotalDiscoveries)

	if flagStatusHistory > 0 {
		if err := printHistory(ctx, cmd, ledger, flagStatusHistory); err != nil {
			return err
		}
	}
	return nil
}

func printHistory(ctx context.Context, cmd *cobra.Command, ledger *sqlite.Ledger, limit int) error {
	records, err := ledger.History(ctx, limit)
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	cmd.Println()
	cmd.Println("Recent Iterations")
	cmd.Println("-----------------")
	for _, rec := range records {
		cmd.Printf("  #%d  %d acquired, %d failed, %d new discoveries  (%s)\n",
			rec.Iteration, len(rec.Acquired), len(rec.Failed),
			rec.Summary.NewDiscoveries, rec.EndedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialise a campaign",
	Long: `Creates the iteration-0 campaign state: draws the initial seed from
the candidate pool (create_seed rows) and persists the snapshot. When a
snapshot already exists it is restored instead and any pending seed
creation is skipped.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	campaign, ledger, err := buildCampaign(settings)
	if err != nil {
		return err
	}
	defer ledger.Close()

	restored, err := campaign.Initialize(context.Background())
	if err != nil {
		return fmt.Errorf("initialise campaign: %w", err)
	}

	status, err := campaign.Status(context.Background())
	if err != nil {
		return err
	}

	if restored {
		cmd.Printf("Restored existing campaign at iteration %d.\n", status.Iteration)
		if settings.CreateSeed > 0 {
			cmd.Println("Note: configured seed creation was skipped in favour of the snapshot.")
		}
	} else {
		cmd.Println("Campaign initialised.")
	}
	cmd.Printf("Seed: %d rows, candidates: %d rows.\n", status.SeedSize, status.CandidateSize)
	return nil
}

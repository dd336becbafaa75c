package cli

import (
	"github.com/spf13/cobra"

	"github.com/quarry-labs/quarry-cli/internal/adapters/driven/config/file"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage campaign settings",
	RunE:  runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default settings file",
	Long:  `Writes the default settings to the config file so they can be edited.`,
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	store, err := file.NewSettingsStore(flagConfigDir)
	if err != nil {
		return err
	}
	settings, err := store.Load()
	if err != nil {
		return err
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Pool]")
	cmd.Printf("  Path: %s\n", orUnset(settings.PoolPath))
	cmd.Printf("  Key column: %s\n", settings.KeyColumn)
	cmd.Printf("  Composition column: %s\n", orUnset(settings.CompositionColumn))
	cmd.Printf("  Label column: %s\n", orUnset(settings.LabelColumn))
	cmd.Println()

	cmd.Println("[Agent]")
	cmd.Printf("  Strategy: %s\n", settings.Agent)
	cmd.Printf("  Queries per iteration: %d\n", settings.NQuery)
	cmd.Printf("  Initial seed size: %d\n", settings.CreateSeed)
	if settings.Agent == "committee" {
		cmd.Printf("  Committee members: %d\n", settings.Members)
		cmd.Printf("  Training fraction: %g\n", settings.TrainingFraction)
		cmd.Printf("  Alpha: %g\n", settings.Alpha)
		cmd.Printf("  Exploit fraction: %g\n", settings.ExploitFraction)
	}
	cmd.Println()

	cmd.Println("[Experiment]")
	cmd.Printf("  Oracle: %s\n", settings.Experiment)
	if settings.Experiment == "filedrop" {
		cmd.Printf("  Exchange directory: %s\n", orUnset(settings.ExchangeDir))
	}
	if settings.EvalsPerSecond > 0 {
		cmd.Printf("  Throttle: %g evaluations/s (burst %d)\n",
			settings.EvalsPerSecond, settings.EvalBurst)
	}
	cmd.Println()

	cmd.Println("[Analysis]")
	cmd.Printf("  Stability threshold: %g\n", settings.StabilityThreshold)
	cmd.Println()

	cmd.Printf("Settings file: %s\n", store.Path())
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	store, err := file.NewSettingsStore(flagConfigDir)
	if err != nil {
		return err
	}
	if err := store.Save(file.DefaultSettings()); err != nil {
		return err
	}
	cmd.Printf("Wrote default settings to %s\n", store.Path())
	return nil
}

func orUnset(v string) string {
	if v == "" {
		return "(not set)"
	}
	return v
}

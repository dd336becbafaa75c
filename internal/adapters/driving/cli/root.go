// Package cli provides the cobra command tree for the quarry CLI.
package cli

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarry-labs/quarry-cli/internal/adapters/driven/config/file"
	"github.com/quarry-labs/quarry-cli/internal/adapters/driven/storage/snapshot"
	"github.com/quarry-labs/quarry-cli/internal/adapters/driven/storage/sqlite"
	"github.com/quarry-labs/quarry-cli/internal/agents/committee"
	"github.com/quarry-labs/quarry-cli/internal/agents/random"
	"github.com/quarry-labs/quarry-cli/internal/analysis/stability"
	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driven"
	"github.com/quarry-labs/quarry-cli/internal/core/services"
	"github.com/quarry-labs/quarry-cli/internal/datasets/csv"
	"github.com/quarry-labs/quarry-cli/internal/experiments/filedrop"
	"github.com/quarry-labs/quarry-cli/internal/experiments/tabulated"
	"github.com/quarry-labs/quarry-cli/internal/experiments/throttle"
	"github.com/quarry-labs/quarry-cli/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	flagVerbose   bool
	flagConfigDir string
	flagPool      string
)

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "Sequential learning campaigns over candidate pools",
	Long: `Quarry runs sequential learning campaigns: an agent picks promising
candidates from a pool, an experiment evaluates them, an analyzer counts
discoveries and the loop repeats with the enlarged training set.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(flagVerbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config", "",
		"config directory (default ~/.quarry)")
	rootCmd.PersistentFlags().StringVar(&flagPool, "pool", "",
		"candidate pool CSV file (overrides the configured pool)")
}

// Execute runs the command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadSettings reads the persisted settings, applying the --pool
// override.
func loadSettings() (file.Settings, error) {
	store, err := file.NewSettingsStore(flagConfigDir)
	if err != nil {
		return file.Settings{}, err
	}
	settings, err := store.Load()
	if err != nil {
		return file.Settings{}, err
	}
	if flagPool != "" {
		settings.PoolPath = flagPool
	}
	return settings, nil
}

// buildCampaign assembles the campaign controller from settings. The
// returned ledger must be closed by the caller.
func buildCampaign(settings file.Settings) (*services.Campaign, *sqlite.Ledger, error) {
	if settings.PoolPath == "" {
		return nil, nil, fmt.Errorf("no candidate pool configured (set pool_path or pass --pool): %w",
			domain.ErrConfiguration)
	}

	pool, err := csv.Load(settings.PoolPath, csv.Options{
		KeyColumn:         settings.KeyColumn,
		CompositionColumn: settings.CompositionColumn,
		LabelColumn:       settings.LabelColumn,
	})
	if err != nil {
		return nil, nil, err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	if settings.Seed != 0 {
		rng = rand.New(rand.NewSource(settings.Seed))
	}

	agent, err := buildAgent(settings, rng)
	if err != nil {
		return nil, nil, err
	}
	experiment, err := buildExperiment(settings, pool)
	if err != nil {
		return nil, nil, err
	}

	store, err := snapshot.NewStore(campaignDir(settings))
	if err != nil {
		return nil, nil, err
	}
	ledger, err := sqlite.NewLedger(settings.DataDir)
	if err != nil {
		return nil, nil, err
	}

	// The pool may carry precomputed labels; the initial seed draw
	// adopts them, and agents only ever read candidate features.
	campaign := services.NewCampaign(
		agent,
		experiment,
		stability.New(settings.StabilityThreshold),
		store,
		ledger,
		services.CampaignConfig{
			Pool:       pool,
			CreateSeed: settings.CreateSeed,
			Rand:       rng,
		},
	)
	return campaign, ledger, nil
}

func buildAgent(settings file.Settings, rng *rand.Rand) (driven.Agent, error) {
	switch settings.Agent {
	case "random":
		return random.New(settings.NQuery, rng)
	case "committee":
		return committee.New(committee.Config{
			NQuery:           settings.NQuery,
			Members:          settings.Members,
			TrainingFraction: settings.TrainingFraction,
			Alpha:            settings.Alpha,
			ExploitFraction:  settings.ExploitFraction,
			Rand:             rng,
		})
	default:
		return nil, fmt.Errorf("unknown agent %q (want random or committee): %w",
			settings.Agent, domain.ErrConfiguration)
	}
}

func buildExperiment(settings file.Settings, pool domain.Dataset) (driven.Experiment, error) {
	var experiment driven.Experiment
	switch settings.Experiment {
	case "", "tabulated":
		experiment = tabulated.New(pool)
	case "filedrop":
		exchangeDir := settings.ExchangeDir
		if exchangeDir == "" {
			exchangeDir = filepath.Join(dataRoot(settings), "exchange")
		}
		fd, err := filedrop.New(exchangeDir)
		if err != nil {
			return nil, err
		}
		experiment = fd
	default:
		return nil, fmt.Errorf("unknown experiment %q (want tabulated or filedrop): %w",
			settings.Experiment, domain.ErrConfiguration)
	}

	if settings.EvalsPerSecond > 0 {
		return throttle.New(experiment, settings.EvalsPerSecond, settings.EvalBurst)
	}
	return experiment, nil
}

// dataRoot resolves the data directory, defaulting beside the config.
func dataRoot(settings file.Settings) string {
	if settings.DataDir != "" {
		return settings.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quarry"
	}
	return filepath.Join(home, ".quarry", "data")
}

func campaignDir(settings file.Settings) string {
	if settings.DataDir == "" {
		return "" // snapshot store applies its own default
	}
	return filepath.Join(settings.DataDir, "campaign")
}

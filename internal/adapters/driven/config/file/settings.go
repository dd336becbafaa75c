package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// configFileName is the settings file within the config directory.
const configFileName = "config.toml"

// Settings holds the campaign tunables persisted between invocations.
type Settings struct {
	// DataDir is where snapshots and the ledger live.
	DataDir string `toml:"data_dir"`

	// PoolPath is the candidate pool CSV file.
	PoolPath string `toml:"pool_path"`

	// KeyColumn, CompositionColumn and LabelColumn name the special
	// CSV columns; remaining numeric columns are features.
	KeyColumn         string `toml:"key_column"`
	CompositionColumn string `toml:"composition_column"`
	LabelColumn       string `toml:"label_column"`

	// Agent selects the hypothesis strategy: "random" or "committee".
	Agent string `toml:"agent"`

	// NQuery is how many candidates the agent requests per iteration.
	NQuery int `toml:"n_query"`

	// CreateSeed draws this many pool rows as the initial seed on a
	// fresh campaign.
	CreateSeed int `toml:"create_seed"`

	// Committee tunables.
	Members          int     `toml:"members"`
	TrainingFraction float64 `toml:"training_fraction"`
	Alpha            float64 `toml:"alpha"`
	ExploitFraction  float64 `toml:"exploit_fraction"`

	// Experiment selects the oracle: "tabulated" replays labels shipped
	// with the pool, "filedrop" hands batches to an external evaluator
	// through ExchangeDir.
	Experiment  string `toml:"experiment"`
	ExchangeDir string `toml:"exchange_dir"`

	// EvalsPerSecond throttles experiment calls when positive; EvalBurst
	// is the token bucket capacity.
	EvalsPerSecond float64 `toml:"evals_per_second"`
	EvalBurst      int     `toml:"eval_burst"`

	// StabilityThreshold is the analyzer's discovery cutoff.
	StabilityThreshold float64 `toml:"stability_threshold"`

	// Timeout bounds an auto loop. Zero means no timeout.
	Timeout time.Duration `toml:"timeout"`

	// Seed fixes the random source for reproducible campaigns.
	// Zero means time-seeded.
	Seed int64 `toml:"seed"`
}

// DefaultSettings returns sensible defaults for a new campaign.
func DefaultSettings() Settings {
	return Settings{
		KeyColumn:          "id",
		CompositionColumn:  "composition",
		LabelColumn:        "delta_e",
		Agent:              "random",
		NQuery:             10,
		CreateSeed:         100,
		Members:            10,
		TrainingFraction:   0.5,
		Alpha:              0.5,
		ExploitFraction:    1.0,
		Experiment:         "tabulated",
		EvalBurst:          1,
		StabilityThreshold: 0.05,
	}
}

// SettingsStore loads and saves Settings from the config directory.
type SettingsStore struct {
	mu       sync.RWMutex
	filePath string
}

// NewSettingsStore creates a settings store.
// If configDir is empty, defaults to ~/.quarry.
func NewSettingsStore(configDir string) (*SettingsStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		configDir = filepath.Join(home, ".quarry")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	return &SettingsStore{
		filePath: filepath.Join(configDir, configFileName),
	}, nil
}

// Path returns the settings file path.
func (s *SettingsStore) Path() string {
	return s.filePath
}

// Load reads settings from disk, applying defaults for a missing file.
// Unknown keys in the file are ignored.
func (s *SettingsStore) Load() (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := DefaultSettings()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, fmt.Errorf("reading settings: %w", err)
	}

	if err := toml.Unmarshal(data, &settings); err != nil {
		return DefaultSettings(), fmt.Errorf("parsing settings: %w", err)
	}
	return settings, nil
}

// Save writes settings to disk.
func (s *SettingsStore) Save(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

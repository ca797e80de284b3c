// Package config holds the settings shared by the reefscan tools.
//
// Settings come from three layers: built-in defaults, an optional YAML file,
// and environment overrides for service credentials. Command-line flags are
// applied last by each tool.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when no -config flag is given.
const DefaultPath = "reefscan.yaml"

// Config is the root configuration document.
type Config struct {
	// Classes optionally fixes the class order. When empty the order is the
	// sorted folder enumeration of the training directory.
	Classes   []string       `yaml:"classes"`
	ImageSize int            `yaml:"image_size"`
	Dataset   DatasetConfig  `yaml:"dataset"`
	Backbone  BackboneConfig `yaml:"backbone"`
	Train     TrainConfig    `yaml:"train"`
	Eval      EvalConfig     `yaml:"eval"`
	Predict   PredictConfig  `yaml:"predict"`
	Server    ServerConfig   `yaml:"server"`
	Log       LogConfig      `yaml:"log"`
}

// DatasetConfig controls balancing and splitting.
type DatasetConfig struct {
	RawDir      string     `yaml:"raw_dir"`
	OutputDir   string     `yaml:"output_dir"`
	AugmentDir  string     `yaml:"augment_dir"` // empty = <output_dir>/.augmented
	TargetCount int        `yaml:"target_count"`
	ValFraction float64    `yaml:"val_fraction"`
	Seed        int64      `yaml:"seed"` // 0 = time based
	FlipProb    float64    `yaml:"flip_prob"`
	Brightness  [2]float64 `yaml:"brightness"`
	Contrast    [2]float64 `yaml:"contrast"`
}

// BackboneConfig selects the frozen feature trunk.
type BackboneConfig struct {
	Kind        string     `yaml:"kind"` // "dnn" or "hsv"
	ModelPath   string     `yaml:"model_path"`
	ConfigPath  string     `yaml:"config_path"`
	OutputLayer string     `yaml:"output_layer"`
	Scale       float64    `yaml:"scale"`
	Mean        [3]float64 `yaml:"mean"`
	SwapRB      bool       `yaml:"swap_rb"`
	HSVBins     int        `yaml:"hsv_bins"`
	CacheDir    string     `yaml:"cache_dir"` // empty disables the feature cache
}

// TrainConfig holds the training hyperparameters.
type TrainConfig struct {
	TrainDir      string         `yaml:"train_dir"`
	ValDir        string         `yaml:"val_dir"`
	BatchSize     int            `yaml:"batch_size"`
	Epochs        int            `yaml:"epochs"`
	LearningRate  float64        `yaml:"learning_rate"`
	HiddenUnits   []int          `yaml:"hidden_units"`
	Dropout       float64        `yaml:"dropout"`
	ProjectionDim int            `yaml:"projection_dim"`
	Patience      int            `yaml:"patience"`
	ClassWeights  bool           `yaml:"class_weights"`
	Seed          int64          `yaml:"seed"`
	ModelOut      string         `yaml:"model_out"`
	LiteOut       string         `yaml:"lite_out"`
	CurvesOut     string         `yaml:"curves_out"`
	FineTune      FineTuneConfig `yaml:"fine_tune"`
}

// FineTuneConfig controls the optional second phase.
type FineTuneConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Epochs       int     `yaml:"epochs"`
	LearningRate float64 `yaml:"learning_rate"`
	UnfreezeLast int     `yaml:"unfreeze_last"`
}

// EvalConfig controls the evaluator.
type EvalConfig struct {
	ModelPath string `yaml:"model_path"`
	ValDir    string `yaml:"val_dir"`
	PlotPath  string `yaml:"plot_path"`
	Show      bool   `yaml:"show"`
}

// PredictConfig controls the inference tool.
type PredictConfig struct {
	ModelPath string   `yaml:"model_path"`
	Images    []string `yaml:"images"`
}

// ServerConfig controls the HTTP service.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ModelPath    string        `yaml:"model_path"`
	MaxUploadMB  int           `yaml:"max_upload_mb"`
	DBDriver     string        `yaml:"db_driver"` // "sqlite" or "postgres"
	DBDSN        string        `yaml:"db_dsn"`
	DBTimeout    time.Duration `yaml:"db_timeout"`
	RedisAddr    string        `yaml:"redis_addr"` // empty disables caching
	RedisPass    string        `yaml:"redis_password"`
	RedisDB      int           `yaml:"redis_db"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	CacheSpace   string        `yaml:"cache_namespace"`
	RunMigration bool          `yaml:"run_migrations"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ImageSize: 224,
		Dataset: DatasetConfig{
			RawDir:      "dataset_raw",
			OutputDir:   "dataset",
			TargetCount: 720,
			ValFraction: 0.2,
			FlipProb:    0.5,
			Brightness:  [2]float64{0.7, 1.3},
			Contrast:    [2]float64{0.7, 1.3},
		},
		Backbone: BackboneConfig{
			Kind:    "hsv",
			Scale:   1.0 / 255.0,
			SwapRB:  true,
			HSVBins: 8,
		},
		Train: TrainConfig{
			TrainDir:      "dataset/train",
			ValDir:        "dataset/val",
			BatchSize:     16,
			Epochs:        20,
			LearningRate:  1e-3,
			HiddenUnits:   []int{128},
			Dropout:       0.3,
			ProjectionDim: 64,
			Patience:      5,
			ClassWeights:  true,
			ModelOut:      "coral_model.json",
			LiteOut:       "coral_model.lite",
			FineTune: FineTuneConfig{
				Epochs:       10,
				LearningRate: 1e-5,
				UnfreezeLast: 1,
			},
		},
		Eval: EvalConfig{
			ModelPath: "coral_model_finetuned.json",
			ValDir:    "dataset/val",
			PlotPath:  "confusion_matrix.png",
		},
		Predict: PredictConfig{
			ModelPath: "coral_model_finetuned.lite",
		},
		Server: ServerConfig{
			Addr:        ":8080",
			ModelPath:   "coral_model_finetuned.lite",
			MaxUploadMB: 10,
			DBDriver:    "sqlite",
			DBDSN:       "reefscan.db",
			DBTimeout:   60 * time.Second,
			CacheTTL:    24 * time.Hour,
			CacheSpace:  "reefscan",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML file over the defaults. A missing file at DefaultPath is
// not an error; a missing explicitly named file is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg.ApplyEnv()
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides service credentials from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("REEFSCAN_DB_DRIVER"); v != "" {
		c.Server.DBDriver = v
	}
	if v := os.Getenv("REEFSCAN_DB_DSN"); v != "" {
		c.Server.DBDSN = v
	}
	if v := os.Getenv("REEFSCAN_REDIS_ADDR"); v != "" {
		c.Server.RedisAddr = v
	}
	if v := os.Getenv("REEFSCAN_REDIS_PASSWORD"); v != "" {
		c.Server.RedisPass = v
	}
	if v := os.Getenv("REEFSCAN_RUN_MIGRATIONS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Server.RunMigration = b
		}
	}
}

// Validate checks value ranges. It does not check that paths exist.
func (c *Config) Validate() error {
	if c.ImageSize < 8 {
		return fmt.Errorf("image_size must be at least 8, got %d", c.ImageSize)
	}

	d := c.Dataset
	if d.TargetCount < 1 {
		return fmt.Errorf("dataset.target_count must be positive, got %d", d.TargetCount)
	}
	if d.ValFraction < 0 || d.ValFraction >= 1 {
		return fmt.Errorf("dataset.val_fraction must be in [0,1), got %g", d.ValFraction)
	}
	if d.FlipProb < 0 || d.FlipProb > 1 {
		return fmt.Errorf("dataset.flip_prob must be in [0,1], got %g", d.FlipProb)
	}
	if err := checkRange("dataset.brightness", d.Brightness); err != nil {
		return err
	}
	if err := checkRange("dataset.contrast", d.Contrast); err != nil {
		return err
	}

	switch c.Backbone.Kind {
	case "hsv":
		if c.Backbone.HSVBins < 1 {
			return fmt.Errorf("backbone.hsv_bins must be positive, got %d", c.Backbone.HSVBins)
		}
	case "dnn":
		if c.Backbone.ModelPath == "" {
			return fmt.Errorf("backbone.model_path is required for the dnn backbone")
		}
	default:
		return fmt.Errorf("unknown backbone.kind %q", c.Backbone.Kind)
	}

	t := c.Train
	if t.BatchSize < 1 || t.Epochs < 1 {
		return fmt.Errorf("train.batch_size and train.epochs must be positive")
	}
	if t.LearningRate <= 0 {
		return fmt.Errorf("train.learning_rate must be positive, got %g", t.LearningRate)
	}
	if len(t.HiddenUnits) < 1 || len(t.HiddenUnits) > 2 {
		return fmt.Errorf("train.hidden_units must list one or two layer sizes, got %v", t.HiddenUnits)
	}
	for _, u := range t.HiddenUnits {
		if u < 1 {
			return fmt.Errorf("train.hidden_units must be positive, got %v", t.HiddenUnits)
		}
	}
	if t.Dropout < 0 || t.Dropout >= 1 {
		return fmt.Errorf("train.dropout must be in [0,1), got %g", t.Dropout)
	}
	if t.ProjectionDim < 1 {
		return fmt.Errorf("train.projection_dim must be positive, got %d", t.ProjectionDim)
	}
	// Checked even when disabled: a resumed run always fine-tunes.
	if t.FineTune.Epochs < 1 || t.FineTune.LearningRate <= 0 {
		return fmt.Errorf("train.fine_tune needs positive epochs and learning_rate")
	}
	if t.FineTune.UnfreezeLast < 0 {
		return fmt.Errorf("train.fine_tune.unfreeze_last must not be negative")
	}

	switch c.Server.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown server.db_driver %q", c.Server.DBDriver)
	}
	return nil
}

func checkRange(name string, r [2]float64) error {
	if r[0] <= 0 || r[1] < r[0] {
		return fmt.Errorf("%s must be a positive [min, max] range, got %v", name, r)
	}
	return nil
}

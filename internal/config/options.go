package config

import (
	"reefscan/internal/backbone"
	"reefscan/internal/dataset"
	"reefscan/internal/scan"
	"reefscan/internal/train"
)

// BackboneSpec describes the configured trunk.
func (c *Config) BackboneSpec() backbone.Spec {
	b := c.Backbone
	return backbone.Spec{
		Kind:        b.Kind,
		InputSize:   c.ImageSize,
		ModelPath:   b.ModelPath,
		ConfigPath:  b.ConfigPath,
		OutputLayer: b.OutputLayer,
		Scale:       b.Scale,
		Mean:        b.Mean,
		SwapRB:      b.SwapRB,
		Bins:        b.HSVBins,
	}
}

// BalanceOptions returns the balancer settings.
func (c *Config) BalanceOptions() dataset.BalanceOptions {
	d := c.Dataset
	return dataset.BalanceOptions{
		RawDir:      d.RawDir,
		OutputDir:   d.OutputDir,
		AugmentDir:  d.AugmentDir,
		TargetCount: d.TargetCount,
		ValFraction: d.ValFraction,
		Seed:        d.Seed,
	}
}

// AugmentParams returns the augmentation ranges.
func (c *Config) AugmentParams() dataset.AugmentParams {
	d := c.Dataset
	return dataset.AugmentParams{
		FlipProb:   d.FlipProb,
		Brightness: d.Brightness,
		Contrast:   d.Contrast,
	}
}

// TrainOptions returns the trainer settings.
func (c *Config) TrainOptions() train.Options {
	t := c.Train
	return train.Options{
		TrainDir:      t.TrainDir,
		ValDir:        t.ValDir,
		Classes:       c.Classes,
		HiddenUnits:   t.HiddenUnits,
		Dropout:       t.Dropout,
		ProjectionDim: t.ProjectionDim,
		BatchSize:     t.BatchSize,
		Epochs:        t.Epochs,
		LearningRate:  t.LearningRate,
		Patience:      t.Patience,
		ClassWeights:  t.ClassWeights,
		Seed:          t.Seed,
		FineTune: train.FineTuneOptions{
			Enabled:      t.FineTune.Enabled,
			Epochs:       t.FineTune.Epochs,
			LearningRate: t.FineTune.LearningRate,
			UnfreezeLast: t.FineTune.UnfreezeLast,
		},
		ModelOut:  t.ModelOut,
		LiteOut:   t.LiteOut,
		CurvesOut: t.CurvesOut,
	}
}

// DBOptions returns the scan database settings.
func (c *Config) DBOptions() scan.DBOptions {
	s := c.Server
	return scan.DBOptions{
		Driver:  s.DBDriver,
		DSN:     s.DBDSN,
		Timeout: s.DBTimeout,
		Migrate: s.RunMigration,
	}
}

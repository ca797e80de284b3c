// Command train fits a coral condition classifier on a frozen feature trunk
// and exports it as a full JSON artifact and a compact lite artifact. With
// fine-tuning enabled a second phase unfreezes the top of the trunk and
// writes *_finetuned artifacts.
//
// Usage: train [options]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"reefscan/internal/backbone"
	"reefscan/internal/config"
	"reefscan/internal/logging"
	"reefscan/internal/nn"
	"reefscan/internal/train"
	"reefscan/internal/version"
)

var (
	flagConfig   = flag.String("config", "", "Config file (default reefscan.yaml if present)")
	flagTrainDir = flag.String("train", "", "Training directory with one folder per class")
	flagValDir   = flag.String("val", "", "Validation directory with one folder per class")
	flagEpochs   = flag.Int("epochs", 0, "Epochs of the initial phase")
	flagFineTune = flag.Bool("finetune", false, "Run the fine-tuning phase after the initial phase")
	flagResume   = flag.String("resume", "", "Fine-tune an existing full artifact instead of training a new head")
	flagOut      = flag.String("out", "", "Full artifact output path")
	flagLite     = flag.String("lite", "", "Lite artifact output path")
	flagCurves   = flag.String("curves", "", "Save training curves to this PNG")
	flagNoCache  = flag.Bool("no-cache", false, "Do not use the feature cache")
	flagVerbose  = flag.Bool("v", false, "Verbose logging")
	flagVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *flagVersion {
		fmt.Println(version.String("train"))
		return
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error in config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	spec := cfg.BackboneSpec()
	fmt.Printf("Loading backbone: %s\n", spec.Name())
	ext, err := backbone.New(spec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading backbone: %v\n", err)
		os.Exit(1)
	}
	defer ext.Close()

	var cache *backbone.Cache
	if cfg.Backbone.CacheDir != "" && !*flagNoCache {
		cache, err = backbone.OpenCache(cfg.Backbone.CacheDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening feature cache: %v\n", err)
			os.Exit(1)
		}
		defer cache.Close()
	}
	feat := backbone.NewFeaturizer(ext, spec.InputSize, cache, log)

	opts := cfg.TrainOptions()
	opts.ResumeFrom = *flagResume
	t := train.New(opts, spec, feat, log)
	t.OnEpoch = func(phase string, s nn.EpochStats) {
		fmt.Printf("  [%s] epoch %3d: loss=%.4f acc=%.4f val_loss=%.4f val_acc=%.4f\n",
			phase, s.Epoch, s.Loss, s.Accuracy, s.ValLoss, s.ValAccuracy)
	}

	fmt.Printf("Training on %s (validation: %s)\n", opts.TrainDir, valLabel(opts.ValDir))
	res, err := t.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error training: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Classes: %v\n", res.Classes)
	fmt.Printf("Samples: %d train, %d val\n", res.TrainCount, res.ValCount)
	if res.ClassWeights != nil {
		fmt.Printf("Class weights: %.3f\n", res.ClassWeights)
	}
	if cache != nil {
		hits, misses := feat.CacheStats()
		fmt.Printf("Feature cache: %d hits, %d misses\n", hits, misses)
	}
	for _, p := range res.Phases {
		h := p.History
		fmt.Printf("Phase %s: %d epochs, best epoch %d", p.Phase, len(h.Epochs), h.BestEpoch)
		if h.Stopped {
			fmt.Print(" (stopped early)")
		}
		fmt.Println()
		fmt.Printf("  saved %s and %s (%s)\n", p.ModelPath, p.LitePath, humanize.Bytes(uint64(p.LiteSize)))
		if p.CurvesOut != "" {
			fmt.Printf("  curves: %s\n", p.CurvesOut)
		}
	}
	fmt.Println("Model training complete.")
}

func applyFlags(cfg *config.Config) {
	if *flagTrainDir != "" {
		cfg.Train.TrainDir = *flagTrainDir
	}
	if *flagValDir != "" {
		cfg.Train.ValDir = *flagValDir
	}
	if *flagEpochs > 0 {
		cfg.Train.Epochs = *flagEpochs
	}
	if *flagFineTune {
		cfg.Train.FineTune.Enabled = true
	}
	if *flagOut != "" {
		cfg.Train.ModelOut = *flagOut
	}
	if *flagLite != "" {
		cfg.Train.LiteOut = *flagLite
	}
	if *flagCurves != "" {
		cfg.Train.CurvesOut = *flagCurves
	}
	if *flagVerbose {
		cfg.Log.Level = "debug"
	}
}

func valLabel(dir string) string {
	if dir == "" {
		return "none"
	}
	return dir
}

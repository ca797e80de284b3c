// Command balance brings every class of a raw dataset to the same image
// count by augmentation, then splits each class into train and validation
// folders.
//
// Usage: balance [options]
package main

import (
	"flag"
	"fmt"
	"os"

	"reefscan/internal/config"
	"reefscan/internal/dataset"
	"reefscan/internal/logging"
	"reefscan/internal/version"
)

var (
	flagConfig  = flag.String("config", "", "Config file (default reefscan.yaml if present)")
	flagRaw     = flag.String("raw", "", "Raw dataset directory with one folder per class")
	flagOut     = flag.String("out", "", "Output directory for train/ and val/")
	flagTarget  = flag.Int("target", 0, "Images per class after balancing")
	flagVal     = flag.Float64("val", -1, "Fraction of each class held out for validation")
	flagSeed    = flag.Int64("seed", 0, "Random seed (0 = time based)")
	flagVerbose = flag.Bool("v", false, "Verbose logging")
	flagVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *flagVersion {
		fmt.Println(version.String("balance"))
		return
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *flagRaw != "" {
		cfg.Dataset.RawDir = *flagRaw
	}
	if *flagOut != "" {
		cfg.Dataset.OutputDir = *flagOut
	}
	if *flagTarget > 0 {
		cfg.Dataset.TargetCount = *flagTarget
	}
	if *flagVal >= 0 {
		cfg.Dataset.ValFraction = *flagVal
	}
	if *flagSeed != 0 {
		cfg.Dataset.Seed = *flagSeed
	}
	if *flagVerbose {
		cfg.Log.Level = "debug"
	}
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

	opts := cfg.BalanceOptions()
	fmt.Printf("Balancing %s -> %s (%d images per class, %.0f%% validation)\n",
		opts.RawDir, opts.OutputDir, opts.TargetCount, opts.ValFraction*100)

	b := dataset.NewBalancer(opts, dataset.NewCVAugmenter(cfg.AugmentParams()), log)
	reports, err := b.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error balancing dataset: %v\n", err)
		os.Exit(1)
	}

	for _, r := range reports {
		fmt.Printf("  %-20s %4d original, %4d augmented -> %4d train, %4d val\n",
			r.Class, r.Originals, r.Augmented, r.Train, r.Val)
	}
	fmt.Println("Dataset balancing and train/val split completed!")
}

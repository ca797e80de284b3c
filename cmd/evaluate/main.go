// Command evaluate scores a trained artifact against a labelled validation
// tree and prints a classification report and confusion matrix.
//
// Usage: evaluate [options]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"reefscan/internal/backbone"
	"reefscan/internal/config"
	"reefscan/internal/eval"
	"reefscan/internal/logging"
	"reefscan/internal/predict"
	"reefscan/internal/version"
	"reefscan/ui/confusion"
)

var (
	flagConfig   = flag.String("config", "", "Config file (default reefscan.yaml if present)")
	flagModel    = flag.String("model", "", "Artifact to evaluate (full or lite)")
	flagValDir   = flag.String("val", "", "Validation directory with one folder per class")
	flagPlot     = flag.String("plot", "", "Save the confusion-matrix heatmap to this PNG")
	flagModelDir = flag.String("model-dir", "", "Directory holding the DNN trunk files, if moved")
	flagShow     = flag.Bool("show", false, "Open the results in a window")
	flagMisses   = flag.Bool("misses", false, "List misclassified images")
	flagVerbose  = flag.Bool("v", false, "Verbose logging")
	flagVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *flagVersion {
		fmt.Println(version.String("evaluate"))
		return
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *flagModel != "" {
		cfg.Eval.ModelPath = *flagModel
	}
	if *flagValDir != "" {
		cfg.Eval.ValDir = *flagValDir
	}
	if *flagPlot != "" {
		cfg.Eval.PlotPath = *flagPlot
	}
	if *flagShow {
		cfg.Eval.Show = true
	}
	if *flagVerbose {
		cfg.Log.Level = "debug"
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	opts := predict.Options{ModelDir: *flagModelDir}
	if cfg.Backbone.CacheDir != "" {
		cache, err := backbone.OpenCache(cfg.Backbone.CacheDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening feature cache: %v\n", err)
			os.Exit(1)
		}
		defer cache.Close()
		opts.Cache = cache
	}

	fmt.Printf("Loading model: %s\n", cfg.Eval.ModelPath)
	p, err := predict.Load(cfg.Eval.ModelPath, opts, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading model: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	fmt.Printf("Evaluating on %s\n", cfg.Eval.ValDir)
	res, err := eval.Evaluate(p, cfg.Eval.ValDir, func(done, total int) {
		if done%50 == 0 || done == total {
			fmt.Printf("  scored %d/%d images\n", done, total)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error evaluating: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n--- Classification Report ---")
	fmt.Println(res.Report.String())
	fmt.Println("--- Confusion Matrix ---")
	fmt.Println(eval.FormatMatrix(res.Classes, res.Confusion))

	if *flagMisses {
		misses := res.Misclassified()
		fmt.Printf("--- Misclassified (%d) ---\n", len(misses))
		for _, i := range misses {
			fmt.Printf("  %s: %s -> %s\n", filepath.Base(res.Paths[i]), res.Classes[res.Truth[i]], res.Classes[res.Pred[i]])
		}
	}

	if cfg.Eval.PlotPath != "" {
		if err := eval.SaveHeatmap(cfg.Eval.PlotPath, res.Classes, res.Confusion); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving heatmap: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Heatmap saved to %s\n", cfg.Eval.PlotPath)
	}

	if cfg.Eval.Show {
		title := fmt.Sprintf("Confusion matrix: %s", filepath.Base(cfg.Eval.ModelPath))
		if err := confusion.Show(title, res); err != nil {
			fmt.Fprintf(os.Stderr, "Error showing results: %v\n", err)
			os.Exit(1)
		}
	}
}

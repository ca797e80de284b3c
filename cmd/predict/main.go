// Command predict classifies images with a trained artifact.
//
// Usage: predict [options] <image> [image...]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"reefscan/internal/config"
	"reefscan/internal/logging"
	"reefscan/internal/predict"
	"reefscan/internal/stress"
	"reefscan/internal/version"
)

var (
	flagConfig   = flag.String("config", "", "Config file (default reefscan.yaml if present)")
	flagModel    = flag.String("model", "", "Artifact to load (lite or full)")
	flagModelDir = flag.String("model-dir", "", "Directory holding the DNN trunk files, if moved")
	flagJSON     = flag.Bool("json", false, "Print predictions as JSON")
	flagSeverity = flag.Bool("severity", false, "Also print the severity score of each image")
	flagVerbose  = flag.Bool("v", false, "Verbose logging")
	flagVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *flagVersion {
		fmt.Println(version.String("predict"))
		return
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *flagModel != "" {
		cfg.Predict.ModelPath = *flagModel
	}
	images := flag.Args()
	if len(images) == 0 {
		images = cfg.Predict.Images
	}
	if len(images) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <image> [image...]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
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

	p, err := predict.Load(cfg.Predict.ModelPath, predict.Options{ModelDir: *flagModelDir}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading model: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	var scorer *stress.Scorer
	if *flagSeverity {
		if scorer, err = stress.NewScorer(p.Classes()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	preds, err := p.PredictFiles(images)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error predicting: %v\n", err)
		os.Exit(1)
	}

	if *flagJSON {
		data, err := json.MarshalIndent(preds, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding predictions: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	for _, pred := range preds {
		fmt.Printf("Image: %s\n", pred.Path)
		fmt.Println("Prediction scores:", predict.RoundScores(pred.Scores, 4))
		fmt.Printf("Predicted class: %s (%.2f%%)\n", pred.Label, pred.Confidence)
		if scorer != nil {
			sev, err := scorer.Severity(pred.Scores)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error scoring severity: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Severity: %.2f / %d\n", sev, stress.MaxSeverity)
		}
		fmt.Println()
	}
}

// Command countimages prints the number of images in each class folder of a
// dataset directory.
//
// Usage: countimages [options] [dataset-dir]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"reefscan/internal/config"
	"reefscan/internal/dataset"
	"reefscan/internal/version"
)

var (
	flagConfig  = flag.String("config", "", "Config file (default reefscan.yaml if present)")
	flagVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *flagVersion {
		fmt.Println(version.String("countimages"))
		return
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	root := cfg.Dataset.RawDir
	if flag.NArg() > 0 {
		root = flag.Arg(0)
	}

	counts, err := dataset.CountImages(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error counting images: %v\n", err)
		os.Exit(1)
	}

	var total int64
	for _, c := range counts {
		fmt.Printf("%s: %d images\n", c.Class, c.Count)
		total += int64(c.Count)
	}
	fmt.Printf("Total: %s images in %d classes\n", humanize.Comma(total), len(counts))
}

package dataset

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"reefscan/internal/logging"
)

// AugmentedPrefix marks generated files. Files carrying it are never counted
// as originals.
const AugmentedPrefix = "aug_"

// BalanceOptions configures one balancing run.
type BalanceOptions struct {
	RawDir      string  // per-class folders of original images
	OutputDir   string  // receives train/<class> and val/<class>
	AugmentDir  string  // per-class augmented images; defaults to <OutputDir>/.augmented
	TargetCount int     // images per class before splitting
	ValFraction float64 // share of each class copied to val
	Seed        int64   // 0 picks a time-based seed
}

// ClassReport describes what happened to one class.
type ClassReport struct {
	Class     string
	Originals int
	Augmented int
	Train     int
	Val       int
}

// Total is the number of images written for the class.
func (r ClassReport) Total() int { return r.Train + r.Val }

// Balancer grows every class to a target count with augmented copies and
// splits the result into train and validation folders.
type Balancer struct {
	opts BalanceOptions
	aug  Augmenter
	rng  *rand.Rand
	log  *zap.SugaredLogger
}

// NewBalancer creates a balancer. A nil logger disables logging.
func NewBalancer(opts BalanceOptions, aug Augmenter, log *zap.SugaredLogger) *Balancer {
	if opts.AugmentDir == "" {
		opts.AugmentDir = filepath.Join(opts.OutputDir, ".augmented")
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Balancer{
		opts: opts,
		aug:  aug,
		rng:  rand.New(rand.NewSource(seed)),
		log:  logging.OrNop(log),
	}
}

// TrainDir returns the training output root.
func (b *Balancer) TrainDir() string { return filepath.Join(b.opts.OutputDir, "train") }

// ValDir returns the validation output root.
func (b *Balancer) ValDir() string { return filepath.Join(b.opts.OutputDir, "val") }

// Run balances every class found under RawDir, in sorted order. The first
// error aborts the run.
func (b *Balancer) Run() ([]ClassReport, error) {
	if err := b.checkOptions(); err != nil {
		return nil, err
	}

	classes, err := ClassDirs(b.opts.RawDir)
	if err != nil {
		return nil, err
	}

	reports := make([]ClassReport, 0, len(classes))
	for _, class := range classes {
		report, err := b.balanceClass(class)
		if err != nil {
			return reports, fmt.Errorf("class %s: %w", class, err)
		}
		b.log.Infow("balanced class",
			"class", class,
			"originals", report.Originals,
			"augmented", report.Augmented,
			"train", report.Train,
			"val", report.Val)
		reports = append(reports, report)
	}
	return reports, nil
}

func (b *Balancer) checkOptions() error {
	if b.opts.TargetCount < 0 {
		return fmt.Errorf("target count must be non-negative, got %d", b.opts.TargetCount)
	}
	if b.opts.ValFraction < 0 || b.opts.ValFraction > 1 {
		return fmt.Errorf("validation fraction must be in [0,1], got %g", b.opts.ValFraction)
	}

	raw, err := filepath.Abs(b.opts.RawDir)
	if err != nil {
		return fmt.Errorf("failed to resolve raw dir: %w", err)
	}
	// Output inside raw would be listed as classes on the next run; raw
	// inside a written dir would be overwritten.
	for _, dir := range []string{b.opts.OutputDir, b.TrainDir(), b.ValDir(), b.opts.AugmentDir} {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", dir, err)
		}
		if within(abs, raw) {
			return fmt.Errorf("output directory %s lies inside the raw dataset %s", dir, b.opts.RawDir)
		}
		if dir != b.opts.OutputDir && within(raw, abs) {
			return fmt.Errorf("output directory %s would overwrite the raw dataset", dir)
		}
	}
	return nil
}

// within reports whether path equals dir or lies below it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

type entry struct {
	name string
	path string
}

func (b *Balancer) balanceClass(class string) (ClassReport, error) {
	report := ClassReport{Class: class}

	srcDir := filepath.Join(b.opts.RawDir, class)
	names, err := ListImages(srcDir)
	if err != nil {
		return report, err
	}

	var set []entry
	for _, name := range names {
		if strings.HasPrefix(name, AugmentedPrefix) {
			continue
		}
		set = append(set, entry{name: name, path: filepath.Join(srcDir, name)})
	}
	report.Originals = len(set)

	augDir := filepath.Join(b.opts.AugmentDir, class)
	if err := resetDir(augDir); err != nil {
		return report, err
	}

	if len(set) < b.opts.TargetCount {
		if len(set) == 0 {
			return report, ErrEmptyClass
		}
		originals := set
		for len(set) < b.opts.TargetCount {
			src := originals[b.rng.Intn(len(originals))]
			name := fmt.Sprintf("%s%d_%s", AugmentedPrefix, len(set), src.name)
			dst := filepath.Join(augDir, name)
			if err := b.aug.Augment(src.path, dst, b.rng); err != nil {
				return report, fmt.Errorf("failed to augment %s: %w", src.path, err)
			}
			set = append(set, entry{name: name, path: dst})
			report.Augmented++
		}
	}

	b.rng.Shuffle(len(set), func(i, j int) { set[i], set[j] = set[j], set[i] })
	split := SplitIndex(len(set), b.opts.ValFraction)

	if err := copyInto(filepath.Join(b.TrainDir(), class), set[:split]); err != nil {
		return report, err
	}
	if err := copyInto(filepath.Join(b.ValDir(), class), set[split:]); err != nil {
		return report, err
	}
	report.Train = split
	report.Val = len(set) - split
	return report, nil
}

// SplitIndex returns the number of training images for a class of count
// images.
func SplitIndex(count int, valFraction float64) int {
	return int(math.Round(float64(count) * (1 - valFraction)))
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

func copyInto(dir string, files []entry) error {
	if err := resetDir(dir); err != nil {
		return err
	}
	for _, f := range files {
		if err := copyFile(f.path, filepath.Join(dir, f.name)); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

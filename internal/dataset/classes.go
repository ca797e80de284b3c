// Package dataset handles the on-disk image dataset: class folder
// enumeration, balancing by augmentation and the train/validation split.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	reefimage "reefscan/internal/image"
)

var (
	// ErrNoClasses is returned when a dataset root has no class folders.
	ErrNoClasses = errors.New("no class folders found")
	// ErrEmptyClass is returned when a class has no images to augment from.
	ErrEmptyClass = errors.New("class has no images")
	// ErrClassMismatch is returned when folder names disagree with the
	// class list a model was trained on.
	ErrClassMismatch = errors.New("class folders do not match model classes")
)

// Sample is one labelled image. Label indexes the class list it was
// enumerated against.
type Sample struct {
	Path  string
	Class string
	Label int
}

// ClassCount is the number of images in one class folder.
type ClassCount struct {
	Class string
	Count int
}

// ClassDirs returns the sorted names of the subdirectories of root.
func ClassDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset root: %w", err)
	}

	var classes []string
	for _, e := range entries {
		if e.IsDir() && e.Name()[0] != '.' {
			classes = append(classes, e.Name())
		}
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("%s: %w", root, ErrNoClasses)
	}
	sort.Strings(classes)
	return classes, nil
}

// ListImages returns the sorted file names of the dataset images in dir.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && reefimage.IsDatasetImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// CountImages returns the per-class image counts under root.
func CountImages(root string) ([]ClassCount, error) {
	classes, err := ClassDirs(root)
	if err != nil {
		return nil, err
	}

	counts := make([]ClassCount, 0, len(classes))
	for _, cls := range classes {
		names, err := ListImages(filepath.Join(root, cls))
		if err != nil {
			return nil, err
		}
		counts = append(counts, ClassCount{Class: cls, Count: len(names)})
	}
	return counts, nil
}

// ResolveClasses decides the class order for training. An explicit list wins
// but must name exactly the folders present under root; otherwise the sorted
// folder names are used.
func ResolveClasses(root string, explicit []string) ([]string, error) {
	folders, err := ClassDirs(root)
	if err != nil {
		return nil, err
	}
	if len(explicit) == 0 {
		return folders, nil
	}

	want := append([]string(nil), explicit...)
	sort.Strings(want)
	if len(want) != len(folders) {
		return nil, fmt.Errorf("%w: folders %v, configured %v", ErrClassMismatch, folders, explicit)
	}
	for i := range want {
		if want[i] != folders[i] {
			return nil, fmt.Errorf("%w: folders %v, configured %v", ErrClassMismatch, folders, explicit)
		}
	}
	return append([]string(nil), explicit...), nil
}

// Enumerate lists every image under root in a fixed order: class folders
// sorted by name, files sorted by name. Labels index classes. A folder that
// is not in classes yields ErrClassMismatch; classes without a folder are
// allowed (a validation split may lack a class).
func Enumerate(root string, classes []string) ([]Sample, error) {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	folders, err := ClassDirs(root)
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for _, folder := range folders {
		label, ok := index[folder]
		if !ok {
			return nil, fmt.Errorf("%w: unknown folder %q in %s", ErrClassMismatch, folder, root)
		}
		names, err := ListImages(filepath.Join(root, folder))
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			samples = append(samples, Sample{
				Path:  filepath.Join(root, folder, name),
				Class: folder,
				Label: label,
			})
		}
	}
	return samples, nil
}

// LabelCounts returns how many samples carry each label.
func LabelCounts(samples []Sample, numClasses int) []int {
	counts := make([]int, numClasses)
	for _, s := range samples {
		counts[s.Label]++
	}
	return counts
}

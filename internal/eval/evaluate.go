package eval

import (
	"fmt"

	"reefscan/internal/dataset"
	"reefscan/internal/nn"
)

// Classifier scores one image file. Scores are indexed like Classes.
type Classifier interface {
	Classes() []string
	ScoreFile(path string) ([]float64, error)
}

// Result is the outcome of scoring a labelled tree. Paths, Truth and Pred
// are index-aligned in enumeration order.
type Result struct {
	Classes   []string
	Paths     []string
	Truth     []int
	Pred      []int
	Confusion [][]int
	Report    Report
}

// Evaluate scores every image under dir. Class folders are visited in
// sorted order and files in name order, never shuffled. A folder naming a
// class the classifier does not know is an error.
func Evaluate(c Classifier, dir string, progress func(done, total int)) (*Result, error) {
	classes := c.Classes()
	samples, err := dataset.Enumerate(dir, classes)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no images under %s", dir)
	}

	res := &Result{
		Classes: classes,
		Paths:   make([]string, len(samples)),
		Truth:   make([]int, len(samples)),
		Pred:    make([]int, len(samples)),
	}
	for i, s := range samples {
		scores, err := c.ScoreFile(s.Path)
		if err != nil {
			return nil, err
		}
		res.Paths[i] = s.Path
		res.Truth[i] = s.Label
		res.Pred[i] = nn.Argmax(scores)
		if progress != nil {
			progress(i+1, len(samples))
		}
	}

	res.Confusion, err = ConfusionMatrix(res.Truth, res.Pred, len(classes))
	if err != nil {
		return nil, err
	}
	res.Report = NewReport(classes, res.Confusion)
	return res, nil
}

// Misclassified returns the indices of wrongly predicted images.
func (r *Result) Misclassified() []int {
	var out []int
	for i := range r.Truth {
		if r.Truth[i] != r.Pred[i] {
			out = append(out, i)
		}
	}
	return out
}

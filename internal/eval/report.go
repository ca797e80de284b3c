// Package eval scores a classifier against a labelled image tree and
// renders the results.
package eval

import (
	"fmt"
	"strings"
)

// ConfusionMatrix counts predictions: rows are true classes, columns are
// predicted classes.
func ConfusionMatrix(truth, pred []int, n int) ([][]int, error) {
	if len(truth) != len(pred) {
		return nil, fmt.Errorf("%d true labels but %d predictions", len(truth), len(pred))
	}
	cm := make([][]int, n)
	for i := range cm {
		cm[i] = make([]int, n)
	}
	for i := range truth {
		if truth[i] < 0 || truth[i] >= n || pred[i] < 0 || pred[i] >= n {
			return nil, fmt.Errorf("label out of range at %d: true %d, predicted %d", i, truth[i], pred[i])
		}
		cm[truth[i]][pred[i]]++
	}
	return cm, nil
}

// Metrics are precision, recall and F1 for one class or an average.
type Metrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report is a per-class classification report.
type Report struct {
	Classes  []Metrics `json:"classes"`
	Accuracy float64   `json:"accuracy"`
	Macro    Metrics   `json:"macro_avg"`
	Weighted Metrics   `json:"weighted_avg"`
	Total    int       `json:"total"`
}

// NewReport derives the report from a confusion matrix. Undefined ratios
// (no predictions or no support) are 0.
func NewReport(classes []string, cm [][]int) Report {
	n := len(classes)
	r := Report{Classes: make([]Metrics, n)}

	predicted := make([]int, n)
	correct := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			predicted[j] += cm[i][j]
			r.Total += cm[i][j]
		}
		correct += cm[i][i]
	}

	for i, name := range classes {
		support := 0
		for _, v := range cm[i] {
			support += v
		}
		m := Metrics{
			Label:     name,
			Precision: ratio(cm[i][i], predicted[i]),
			Recall:    ratio(cm[i][i], support),
			Support:   support,
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes[i] = m
	}

	r.Accuracy = ratio(correct, r.Total)
	r.Macro = Metrics{Label: "macro avg", Support: r.Total}
	r.Weighted = Metrics{Label: "weighted avg", Support: r.Total}
	for _, m := range r.Classes {
		r.Macro.Precision += m.Precision / float64(n)
		r.Macro.Recall += m.Recall / float64(n)
		r.Macro.F1 += m.F1 / float64(n)
		if r.Total > 0 {
			w := float64(m.Support) / float64(r.Total)
			r.Weighted.Precision += m.Precision * w
			r.Weighted.Recall += m.Recall * w
			r.Weighted.F1 += m.F1 * w
		}
	}
	return r
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// String formats the report in the familiar classification_report layout.
func (r Report) String() string {
	width := len(r.Weighted.Label)
	for _, m := range r.Classes {
		width = max(width, len(m.Label))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s  %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	row := func(m Metrics) {
		fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", width, m.Label, m.Precision, m.Recall, m.F1, m.Support)
	}
	for _, m := range r.Classes {
		row(m)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.Total)
	row(r.Macro)
	row(r.Weighted)
	return b.String()
}

// FormatMatrix renders the confusion matrix as an aligned text table.
func FormatMatrix(classes []string, cm [][]int) string {
	const header = "true \\ pred"
	width := len(header)
	for _, c := range classes {
		width = max(width, len(c))
	}
	cell := 5
	for _, row := range cm {
		for _, v := range row {
			cell = max(cell, len(fmt.Sprint(v))+1)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s", width, header)
	for i := range classes {
		fmt.Fprintf(&b, " %*d", cell, i)
	}
	b.WriteString("\n")
	for i, row := range cm {
		fmt.Fprintf(&b, "%*s", width, classes[i])
		for _, v := range row {
			fmt.Fprintf(&b, " %*d", cell, v)
		}
		b.WriteString("\n")
	}
	return b.String()
}

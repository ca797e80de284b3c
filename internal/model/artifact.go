// Package model defines the trained classifier artifacts.
//
// A full artifact is indented JSON holding float64 weights, the training
// history and everything needed to resume fine-tuning. A lite artifact is a
// compact binary holding int8 quantised weights for inference only. Both
// persist the ordered class list, which is the only mapping from output
// index to label.
package model

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"reefscan/internal/backbone"
	"reefscan/internal/nn"
)

// FormatVersion is bumped on incompatible artifact changes.
const FormatVersion = 1

// Training phases.
const (
	PhaseInitial   = "initial"
	PhaseFineTuned = "finetuned"
)

// FineTunedSuffix is appended to artifact names written after fine-tuning.
const FineTunedSuffix = "_finetuned"

var (
	// ErrUnknownFormat is returned for files that are neither artifact kind.
	ErrUnknownFormat = errors.New("unknown model format")
	// ErrIncompatible is returned when an artifact's layers do not agree
	// with its class list or trunk.
	ErrIncompatible = errors.New("incompatible model artifact")
)

// Artifact is a trained classifier.
type Artifact struct {
	FormatVersion int            `json:"format_version"`
	ID            string         `json:"id"`
	Phase         string         `json:"phase"`
	CreatedAt     time.Time      `json:"created_at"`
	Classes       []string       `json:"classes"`
	Backbone      backbone.Spec  `json:"backbone"`
	Layers        []nn.LayerSpec `json:"layers"`
	History       []nn.History   `json:"history,omitempty"`
}

// New snapshots net into an artifact.
func New(classes []string, spec backbone.Spec, net *nn.Network, phase string, history []nn.History) *Artifact {
	return &Artifact{
		FormatVersion: FormatVersion,
		ID:            uuid.NewString(),
		Phase:         phase,
		CreatedAt:     time.Now().UTC(),
		Classes:       append([]string(nil), classes...),
		Backbone:      spec,
		Layers:        net.Specs(),
		History:       history,
	}
}

// Network rebuilds the classifier network. rng drives dropout when the
// network is trained further and may be nil.
func (a *Artifact) Network(rng *rand.Rand) (*nn.Network, error) {
	net, err := nn.FromSpecs(a.Layers, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	if got := net.OutputDim(); got != len(a.Classes) {
		return nil, fmt.Errorf("%w: %d outputs for %d classes", ErrIncompatible, got, len(a.Classes))
	}
	return net, nil
}

// Validate checks the header fields shared by both formats.
func (a *Artifact) Validate() error {
	if a.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: format version %d, want %d", ErrIncompatible, a.FormatVersion, FormatVersion)
	}
	if len(a.Classes) == 0 {
		return fmt.Errorf("%w: no classes", ErrIncompatible)
	}
	if len(a.Layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrIncompatible)
	}
	return nil
}

// ClassIndex returns the output index of label, or -1.
func (a *Artifact) ClassIndex(label string) int {
	for i, c := range a.Classes {
		if c == label {
			return i
		}
	}
	return -1
}

// PhasePath inserts suffix before the extension of path:
// "coral_model.json" becomes "coral_model_finetuned.json".
func PhasePath(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}

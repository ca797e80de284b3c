// Package stress turns classifier scores and field measurements into a
// reef-patch stress assessment.
package stress

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownClass is returned for a class name with no severity level.
	ErrUnknownClass = errors.New("class has no severity level")
	// ErrNoPredictions is returned when a patch has no scored images.
	ErrNoPredictions = errors.New("no predictions provided")
)

// Severity levels by class name. Dead is the worst outcome.
var severityLevels = map[string]int{
	"Healthy":           0,
	"Bleached_Mild":     1,
	"Bleached_Moderate": 2,
	"Bleached_Severe":   3,
	"Dead":              4,
}

// MaxSeverity is the highest severity level.
const MaxSeverity = 4

// DeadLabel is the class that always implies low recovery.
const DeadLabel = "Dead"

// Factor names used for the main stress factor.
const (
	FactorTemperature   = "Temperature"
	FactorPollution     = "Pollution"
	FactorAcidification = "Acidification"
)

// Recovery outlooks.
const (
	RecoveryLow      = "Low"
	RecoveryModerate = "Moderate"
	RecoveryHigh     = "High"
)

// Weights of the final stress index.
const (
	PatchWeight       = 0.5
	TemperatureWeight = 0.3
	PollutionWeight   = 0.2
)

// SeverityLevel returns the level of a class name.
func SeverityLevel(class string) (int, error) {
	lvl, ok := severityLevels[class]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	return lvl, nil
}

// Levels maps an ordered class list to severity levels.
func Levels(classes []string) ([]int, error) {
	out := make([]int, len(classes))
	for i, c := range classes {
		lvl, err := SeverityLevel(c)
		if err != nil {
			return nil, err
		}
		out[i] = lvl
	}
	return out, nil
}

// Scorer computes severities for score vectors ordered like its classes.
type Scorer struct {
	classes []string
	levels  []int
}

// NewScorer resolves the severity level of every class.
func NewScorer(classes []string) (*Scorer, error) {
	levels, err := Levels(classes)
	if err != nil {
		return nil, err
	}
	return &Scorer{classes: append([]string(nil), classes...), levels: levels}, nil
}

// Classes returns the class order the scorer expects.
func (s *Scorer) Classes() []string { return s.classes }

// Severity returns the expected severity of one score vector, in [0, 4].
func (s *Scorer) Severity(scores []float64) (float64, error) {
	if len(scores) != len(s.levels) {
		return 0, fmt.Errorf("expected %d scores, got %d", len(s.levels), len(scores))
	}
	var sum float64
	for i, p := range scores {
		sum += p * float64(s.levels[i])
	}
	return sum, nil
}

// PatchStress averages severity over every image of a patch.
func (s *Scorer) PatchStress(predictions [][]float64) (float64, error) {
	if len(predictions) == 0 {
		return 0, ErrNoPredictions
	}
	var total float64
	for _, scores := range predictions {
		sev, err := s.Severity(scores)
		if err != nil {
			return 0, err
		}
		total += sev
	}
	return total / float64(len(predictions)), nil
}

// PatchLabel is the dominant class over a patch.
type PatchLabel struct {
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	AverageScores []float64 `json:"average_scores"`
}

// PatchLabel averages the score vectors and picks the highest class; the
// first class wins a tie.
func (s *Scorer) PatchLabel(predictions [][]float64) (PatchLabel, error) {
	if len(predictions) == 0 {
		return PatchLabel{}, ErrNoPredictions
	}
	avg := make([]float64, len(s.classes))
	for _, scores := range predictions {
		if len(scores) != len(avg) {
			return PatchLabel{}, fmt.Errorf("expected %d scores, got %d", len(avg), len(scores))
		}
		for i, p := range scores {
			avg[i] += p
		}
	}
	best := 0
	for i := range avg {
		avg[i] /= float64(len(predictions))
		if avg[i] > avg[best] {
			best = i
		}
	}
	return PatchLabel{Label: s.classes[best], Confidence: avg[best], AverageScores: avg}, nil
}

// TemperatureStress grades sea-surface temperature in degrees Celsius.
func TemperatureStress(temp float64) float64 {
	switch {
	case temp <= 29:
		return 0.2
	case temp <= 31:
		return 0.6
	default:
		return 1.0
	}
}

// PollutionStress grades a water quality index (higher is cleaner).
func PollutionStress(wqi float64) float64 {
	switch {
	case wqi >= 80:
		return 0.2
	case wqi >= 60:
		return 0.6
	default:
		return 1.0
	}
}

// AcidStress grades seawater pH.
func AcidStress(ph float64) float64 {
	switch {
	case ph >= 8 && ph <= 8.4:
		return 0.2
	case ph >= 7.7:
		return 0.6
	default:
		return 1.0
	}
}

// Label names a graded stress value.
func Label(v float64) string {
	switch {
	case v >= 1.0:
		return "HIGH"
	case v >= 0.6:
		return "MODERATE"
	default:
		return "LOW"
	}
}

// Index combines normalised patch stress with the temperature and
// pollution grades.
func Index(normalizedPatch, temp, pollution float64) float64 {
	return PatchWeight*normalizedPatch + TemperatureWeight*temp + PollutionWeight*pollution
}

// MainFactor returns the factor with the highest grade, preferring
// temperature, then pollution, on ties.
func MainFactor(temp, pollution, acid float64) string {
	name, best := FactorTemperature, temp
	if pollution > best {
		name, best = FactorPollution, pollution
	}
	if acid > best {
		name = FactorAcidification
	}
	return name
}

// Recovery estimates the recovery outlook of a patch.
func Recovery(label string, fsi float64) string {
	switch {
	case label == DeadLabel:
		return RecoveryLow
	case fsi > 0.7:
		return RecoveryLow
	case fsi > 0.4:
		return RecoveryModerate
	default:
		return RecoveryHigh
	}
}

// Conditions are the field measurements taken with a patch.
type Conditions struct {
	SurfaceTemp float64 `json:"surface_temp"`
	WQI         float64 `json:"wqi"`
	PH          float64 `json:"ph"`
}

// Assessment is the full stress result for one patch.
type Assessment struct {
	PatchLabel
	PatchStress      float64 `json:"patch_stress"`
	FinalStressIndex float64 `json:"final_stress_index"`
	MainFactor       string  `json:"main_stress_factor"`
	Recovery         string  `json:"recovery"`
	TempStress       float64 `json:"temp_stress"`
	PollutionStress  float64 `json:"pollution_stress"`
	AcidStress       float64 `json:"acid_stress"`
}

// Assess scores a patch of images under the given conditions.
func (s *Scorer) Assess(predictions [][]float64, cond Conditions) (Assessment, error) {
	label, err := s.PatchLabel(predictions)
	if err != nil {
		return Assessment{}, err
	}
	patch, err := s.PatchStress(predictions)
	if err != nil {
		return Assessment{}, err
	}

	temp := TemperatureStress(cond.SurfaceTemp)
	poll := PollutionStress(cond.WQI)
	acid := AcidStress(cond.PH)
	fsi := Index(patch/MaxSeverity, temp, poll)

	return Assessment{
		PatchLabel:       label,
		PatchStress:      patch,
		FinalStressIndex: fsi,
		MainFactor:       MainFactor(temp, poll, acid),
		Recovery:         Recovery(label.Label, fsi),
		TempStress:       temp,
		PollutionStress:  poll,
		AcidStress:       acid,
	}, nil
}

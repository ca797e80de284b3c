package stress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var modelOrder = []string{"Bleached_Mild", "Bleached_Moderate", "Bleached_Severe", "Dead", "Healthy"}

func newScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(modelOrder)
	require.NoError(t, err)
	return s
}

func TestLevelsFollowClassNames(t *testing.T) {
	levels, err := Levels(modelOrder)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 0}, levels)

	shuffled, err := Levels([]string{"Dead", "Healthy"})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 0}, shuffled)

	_, err = Levels([]string{"Healthy", "Algae"})
	assert.ErrorIs(t, err, ErrUnknownClass)
}

func TestSeverity(t *testing.T) {
	s := newScorer(t)

	sev, err := s.Severity([]float64{0, 0, 0, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, 4.0, sev)

	sev, err = s.Severity([]float64{0.5, 0, 0, 0, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sev, 1e-12)

	_, err = s.Severity([]float64{1})
	assert.Error(t, err)
}

func TestPatchStressAndLabel(t *testing.T) {
	s := newScorer(t)
	preds := [][]float64{
		{0, 0, 0, 1, 0},
		{0, 0, 0, 0, 1},
		{0.2, 0, 0, 0.6, 0.2},
	}

	patch, err := s.PatchStress(preds)
	require.NoError(t, err)
	assert.InDelta(t, (4+0+2.6)/3.0, patch, 1e-12)

	label, err := s.PatchLabel(preds)
	require.NoError(t, err)
	assert.Equal(t, "Dead", label.Label)
	assert.InDelta(t, 1.6/3, label.Confidence, 1e-12)
	assert.Len(t, label.AverageScores, 5)

	_, err = s.PatchStress(nil)
	assert.ErrorIs(t, err, ErrNoPredictions)
	_, err = s.PatchLabel(nil)
	assert.ErrorIs(t, err, ErrNoPredictions)
}

func TestPatchLabelTieKeepsFirst(t *testing.T) {
	s := newScorer(t)
	label, err := s.PatchLabel([][]float64{{0.5, 0.5, 0, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, "Bleached_Mild", label.Label)
}

func TestEnvironmentThresholds(t *testing.T) {
	tests := []struct {
		name string
		fn   func(float64) float64
		in   float64
		want float64
	}{
		{"temp cool", TemperatureStress, 28, 0.2},
		{"temp edge low", TemperatureStress, 29, 0.2},
		{"temp warm", TemperatureStress, 30.5, 0.6},
		{"temp edge high", TemperatureStress, 31, 0.6},
		{"temp hot", TemperatureStress, 31.1, 1.0},
		{"wqi clean", PollutionStress, 80, 0.2},
		{"wqi fair", PollutionStress, 60, 0.6},
		{"wqi poor", PollutionStress, 59.9, 1.0},
		{"ph ideal low", AcidStress, 8, 0.2},
		{"ph ideal high", AcidStress, 8.4, 0.2},
		{"ph alkaline", AcidStress, 8.5, 0.6},
		{"ph slightly acid", AcidStress, 7.7, 0.6},
		{"ph acid", AcidStress, 7.6, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.in))
		})
	}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "LOW", Label(0.2))
	assert.Equal(t, "MODERATE", Label(0.6))
	assert.Equal(t, "HIGH", Label(1.0))
}

func TestMainFactor(t *testing.T) {
	assert.Equal(t, FactorTemperature, MainFactor(0.6, 0.6, 0.6))
	assert.Equal(t, FactorPollution, MainFactor(0.2, 1.0, 1.0))
	assert.Equal(t, FactorAcidification, MainFactor(0.2, 0.6, 1.0))
	assert.Equal(t, FactorTemperature, MainFactor(1.0, 0.2, 0.6))
}

func TestRecovery(t *testing.T) {
	assert.Equal(t, RecoveryLow, Recovery("Dead", 0.1))
	assert.Equal(t, RecoveryLow, Recovery("Healthy", 0.71))
	assert.Equal(t, RecoveryModerate, Recovery("Healthy", 0.7))
	assert.Equal(t, RecoveryModerate, Recovery("Healthy", 0.41))
	assert.Equal(t, RecoveryHigh, Recovery("Healthy", 0.4))
}

func TestAssess(t *testing.T) {
	s := newScorer(t)
	a, err := s.Assess(
		[][]float64{{0, 0, 0, 0, 1}, {0, 0, 0, 0, 1}},
		Conditions{SurfaceTemp: 28, WQI: 85, PH: 8.1},
	)
	require.NoError(t, err)
	assert.Equal(t, "Healthy", a.Label)
	assert.Equal(t, 0.0, a.PatchStress)
	assert.InDelta(t, 0.3*0.2+0.2*0.2, a.FinalStressIndex, 1e-12)
	assert.Equal(t, FactorTemperature, a.MainFactor)
	assert.Equal(t, RecoveryHigh, a.Recovery)

	a, err = s.Assess(
		[][]float64{{0, 0, 0, 1, 0}},
		Conditions{SurfaceTemp: 32, WQI: 50, PH: 7.5},
	)
	require.NoError(t, err)
	assert.Equal(t, "Dead", a.Label)
	assert.InDelta(t, 0.5+0.3+0.2, a.FinalStressIndex, 1e-12)
	assert.Equal(t, RecoveryLow, a.Recovery)

	_, err = s.Assess(nil, Conditions{})
	assert.ErrorIs(t, err, ErrNoPredictions)
}

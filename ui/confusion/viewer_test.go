package confusion

import (
	"testing"

	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/theme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"

	"reefscan/internal/eval"
)

func sampleResult() *eval.Result {
	classes := []string{"Dead", "Healthy"}
	cm := [][]int{{3, 1}, {0, 4}}
	return &eval.Result{Classes: classes, Confusion: cm, Report: eval.NewReport(classes, cm)}
}

func TestRenderHeatmap(t *testing.T) {
	img, err := RenderHeatmap([]string{"Dead", "Healthy"}, [][]int{{3, 1}, {0, 4}}, 3*vg.Inch)
	require.NoError(t, err)
	assert.Positive(t, img.Bounds().Dx())
	assert.Equal(t, img.Bounds().Dx(), img.Bounds().Dy())
}

func TestNewView(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	view, err := NewView(sampleResult())
	require.NoError(t, err)
	tabs, ok := view.(*container.AppTabs)
	require.True(t, ok)
	assert.Len(t, tabs.Items, 3)
	assert.Equal(t, "Counts", tabs.Items[1].Text)
}

func TestCountsCell(t *testing.T) {
	res := sampleResult()
	assert.Equal(t, "true \\ pred", countsCell(res.Classes, res.Confusion, 0, 0))
	assert.Equal(t, "Healthy", countsCell(res.Classes, res.Confusion, 0, 2))
	assert.Equal(t, "Dead", countsCell(res.Classes, res.Confusion, 1, 0))
	assert.Equal(t, "1", countsCell(res.Classes, res.Confusion, 1, 2))
}

func TestReefTheme(t *testing.T) {
	th := &reefTheme{}
	assert.NotEqual(t, theme.DefaultTheme().Color(theme.ColorNamePrimary, theme.VariantLight),
		th.Color(theme.ColorNamePrimary, theme.VariantLight))
	assert.Equal(t, float32(13), th.Size(theme.SizeNameText))
	assert.Equal(t, theme.DefaultTheme().Size(theme.SizeNamePadding), th.Size(theme.SizeNamePadding))
}

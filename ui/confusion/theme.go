package confusion

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// reefTheme tints the default theme with reef colours.
type reefTheme struct{}

var _ fyne.Theme = (*reefTheme)(nil)

func (t *reefTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNamePrimary:
		return color.NRGBA{R: 0x00, G: 0x77, B: 0xB6, A: 0xFF} // ocean blue
	case theme.ColorNameSelection:
		return color.NRGBA{R: 0xFF, G: 0x7F, B: 0x50, A: 0x80} // coral
	default:
		return theme.DefaultTheme().Color(name, variant)
	}
}

func (t *reefTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (t *reefTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (t *reefTheme) Size(name fyne.ThemeSizeName) float32 {
	if name == theme.SizeNameText {
		return 13
	}
	return theme.DefaultTheme().Size(name)
}

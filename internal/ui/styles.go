package ui

import "github.com/charmbracelet/lipgloss"

// Theme is the active color scheme, chosen at startup from the terminal
// background.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

var currentTheme Theme = ThemeDark

type palette struct {
	Bg, Surface, Border, Text, TextDim lipgloss.Color
	Accent, Green, Yellow, Orange, Red lipgloss.Color
	Purple                             lipgloss.Color
}

// Tokyo Night.
var darkColors = palette{
	Bg:      lipgloss.Color("#1a1b26"),
	Surface: lipgloss.Color("#24283b"),
	Border:  lipgloss.Color("#414868"),
	Text:    lipgloss.Color("#c0caf5"),
	TextDim: lipgloss.Color("#787fa0"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Green:   lipgloss.Color("#9ece6a"),
	Yellow:  lipgloss.Color("#e0af68"),
	Orange:  lipgloss.Color("#ff9e64"),
	Red:     lipgloss.Color("#f7768e"),
	Purple:  lipgloss.Color("#bb9af7"),
}

var lightColors = palette{
	Bg:      lipgloss.Color("#d5d6db"),
	Surface: lipgloss.Color("#e9e9ec"),
	Border:  lipgloss.Color("#9699a3"),
	Text:    lipgloss.Color("#343b58"),
	TextDim: lipgloss.Color("#6a6d7c"),
	Accent:  lipgloss.Color("#34548a"),
	Green:   lipgloss.Color("#485e30"),
	Yellow:  lipgloss.Color("#8f5e15"),
	Orange:  lipgloss.Color("#965027"),
	Red:     lipgloss.Color("#8c4351"),
	Purple:  lipgloss.Color("#7847bd"),
}

var colors = darkColors

var (
	TitleStyle      lipgloss.Style
	GroupStyle      lipgloss.Style
	ItemStyle       lipgloss.Style
	ItemActiveStyle lipgloss.Style
	DimStyle        lipgloss.Style
	ErrorStyle      lipgloss.Style
	BannerStyle     lipgloss.Style
	MenuKeyStyle    lipgloss.Style
	MenuDescStyle   lipgloss.Style
	SearchBoxStyle  lipgloss.Style
)

// Per-state indicator styles.
var stateStyles map[string]lipgloss.Style

// InitTheme sets the active palette. Call before any rendering.
func InitTheme(theme string) {
	if theme == "light" {
		currentTheme = ThemeLight
		colors = lightColors
	} else {
		currentTheme = ThemeDark
		colors = darkColors
	}
	initStyles()
}

func initStyles() {
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colors.Accent)
	GroupStyle = lipgloss.NewStyle().Bold(true).Foreground(colors.Purple)
	ItemStyle = lipgloss.NewStyle().Foreground(colors.Text)
	ItemActiveStyle = lipgloss.NewStyle().Background(colors.Accent).Foreground(colors.Bg)
	DimStyle = lipgloss.NewStyle().Foreground(colors.TextDim)
	ErrorStyle = lipgloss.NewStyle().Foreground(colors.Red).Bold(true)
	BannerStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colors.Red).
		Foreground(colors.Red).
		Padding(0, 1)
	MenuKeyStyle = lipgloss.NewStyle().Foreground(colors.Accent).Bold(true)
	MenuDescStyle = lipgloss.NewStyle().Foreground(colors.TextDim)
	SearchBoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colors.Accent).
		Padding(0, 1)

	stateStyles = map[string]lipgloss.Style{
		"start":      lipgloss.NewStyle().Foreground(colors.TextDim),
		"running":    lipgloss.NewStyle().Foreground(colors.Green),
		"ready":      lipgloss.NewStyle().Foreground(colors.Accent),
		"asking":     lipgloss.NewStyle().Foreground(colors.Yellow),
		"permission": lipgloss.NewStyle().Foreground(colors.Orange),
		"idle":       lipgloss.NewStyle().Foreground(colors.TextDim),
	}
}

// GetCurrentTheme returns the active theme.
func GetCurrentTheme() Theme {
	return currentTheme
}

// StateStyle returns the indicator style for a session state, falling back
// to the dim style for unknown states.
func StateStyle(state string) lipgloss.Style {
	if s, ok := stateStyles[state]; ok {
		return s
	}
	return DimStyle
}

func init() {
	InitTheme("dark")
}

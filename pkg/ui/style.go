package ui

import (
	"tierlock/pkg/ui/base"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Use base color palette
	palette = base.DarkPalette

	primaryColor = palette.Primary
	accentColor  = palette.Accent
	warnColor    = palette.Warning

	// Background gradients
	bgDark   = lipgloss.Color("#0F172A")
	bgMedium = lipgloss.Color("#1E293B")
	bgLight  = lipgloss.Color("#334155")

	// Text colors
	textPrimary   = lipgloss.Color("#F8FAFC")
	textSecondary = lipgloss.Color("#CBD5E1")
	textMuted     = palette.Muted
)

// Styles for different UI components
var (
	appStyle = lipgloss.NewStyle().
			Background(bgDark).
			Foreground(textPrimary).
			Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 2).
			MarginBottom(1)

	groupBadgeStyle = lipgloss.NewStyle().
			Background(palette.Secondary).
			Foreground(bgDark).
			Bold(true).
			Padding(0, 1).
			MarginRight(2)

	pausedBadgeStyle = lipgloss.NewStyle().
				Background(warnColor).
				Foreground(bgDark).
				Bold(true).
				Padding(0, 1).
				MarginRight(2)

	statusBarStyle = lipgloss.NewStyle().
			Background(bgMedium).
			Foreground(textSecondary).
			Padding(0, 1)

	totalsStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	helpOverlayStyle = lipgloss.NewStyle().
				Border(lipgloss.DoubleBorder()).
				BorderForeground(primaryColor).
				Padding(1, 2).
				Background(bgMedium)
)

// Package tui provides a live terminal dashboard for a decode session.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for
// styling. It displays real-time frame flow, decode latency percentiles,
// and pipeline health.
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Color Palette
// =============================================================================

// Colors based on a modern dark theme
var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red

	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Base Styles
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder).
				MarginTop(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)
)

// =============================================================================
// Value Styles
// =============================================================================

var (
	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	valueGoodStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	valueBadStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	valueWarnStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(20)

	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	unitStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)
)

// =============================================================================
// Health Indicator
// =============================================================================

// GetDropRateStyle returns a style based on the frame drop rate.
func GetDropRateStyle(dropRate float64) lipgloss.Style {
	switch {
	case dropRate == 0:
		return valueGoodStyle
	case dropRate < 0.01: // <1%
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}

// GetHealthLabel returns a styled pipeline health indicator.
func GetHealthLabel(dropRate float64, unhealthy bool) string {
	switch {
	case unhealthy:
		return statusError.Render("● Pipeline (unhealthy)")
	case dropRate > 0.01:
		return statusWarning.Render("● Pipeline (dropping)")
	default:
		return statusOK.Render("● Pipeline")
	}
}

// GetFPSStyle returns a style based on rendered FPS versus the target.
func GetFPSStyle(rendered, target float64) lipgloss.Style {
	switch {
	case target <= 0 || rendered >= target*0.95:
		return valueGoodStyle
	case rendered >= target*0.8:
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderStyledKeyValue renders a label-value pair with a custom value style.
func RenderStyledKeyValue(label string, value string, style lipgloss.Style) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		style.Render(value),
	)
}

// RenderGauge renders a small horizontal gauge.
func RenderGauge(fraction float64, width int) string {
	if width < 10 {
		width = 10
	}

	filled := int(fraction * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := lipgloss.NewStyle().Foreground(colorPrimary).Render(repeatChar('█', filled)) +
		lipgloss.NewStyle().Foreground(colorBorder).Render(repeatChar('░', width-filled))

	percent := valueStyle.Render(fmt.Sprintf(" %3.0f%%", fraction*100))

	return bar + percent
}

func repeatChar(char rune, count int) string {
	if count <= 0 {
		return ""
	}
	result := make([]rune, count)
	for i := range result {
		result[i] = char
	}
	return string(result)
}

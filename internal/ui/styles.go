// Package ui provides terminal styling for ft CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300", // ayu light bright green
		Dark:  "#c2d94c", // ayu dark bright green
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49", // ayu light bright yellow
		Dark:  "#ffb454", // ayu dark bright yellow
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171", // ayu light bright red
		Dark:  "#f07178", // ayu dark bright red
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99", // ayu light muted
		Dark:  "#6c7680", // ayu dark muted
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6", // ayu light bright blue
		Dark:  "#59c2ff", // ayu dark bright blue
	}
)

// Status styles - consistent across all commands
var (
	PassStyle     = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle     = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle     = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle   = lipgloss.NewStyle().Foreground(ColorAccent)
	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// Status icons
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
	IconInfo = "ℹ"
)

const SeparatorLight = "──────────────────────────────────────────"

// disabled strips all styling; set by --no-color. Lipgloss already degrades
// on non-TTY output and NO_COLOR, this covers the explicit flag.
var disabled bool

// Disable turns every Render helper into a passthrough.
func Disable() { disabled = true }

func render(st lipgloss.Style, s string) string {
	if disabled {
		return s
	}
	return st.Render(s)
}

// RenderPass renders text with pass (green) styling
func RenderPass(s string) string { return render(PassStyle, s) }

// RenderWarn renders text with warning (yellow) styling
func RenderWarn(s string) string { return render(WarnStyle, s) }

// RenderFail renders text with fail (red) styling
func RenderFail(s string) string { return render(FailStyle, s) }

// RenderMuted renders text with muted (gray) styling
func RenderMuted(s string) string { return render(MutedStyle, s) }

// RenderAccent renders text with accent (blue) styling
func RenderAccent(s string) string { return render(AccentStyle, s) }

// RenderCategory renders a section header in uppercase with accent color
func RenderCategory(s string) string { return render(CategoryStyle, strings.ToUpper(s)) }

// RenderSeparator renders the light separator line in muted color
func RenderSeparator() string { return render(MutedStyle, SeparatorLight) }

// RenderPassIcon renders the pass icon with styling
func RenderPassIcon() string { return render(PassStyle, IconPass) }

// RenderWarnIcon renders the warning icon with styling
func RenderWarnIcon() string { return render(WarnStyle, IconWarn) }

// RenderFailIcon renders the fail icon with styling
func RenderFailIcon() string { return render(FailStyle, IconFail) }

// RenderSkipIcon renders the skip icon with styling
func RenderSkipIcon() string { return render(MutedStyle, IconSkip) }

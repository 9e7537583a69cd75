package style

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/compat"
	"gopkg.in/yaml.v3"
)

// Color palette for the dael CLI, covering execution status (success,
// warning, error), informational text, and accent/muted text.
var (
	// Base colors (dark terminal themes)
	MidnightColor  = "#0D1B2A" // midnight
	NavyColor      = "#1B263B" // navy
	LanternColor   = "#F4D58D" // lantern
	ChameleonColor = "#3A7D44" // chameleon
	ForestColor    = "#1E5128" // forest
	SunsetColor    = "#D88A60" // sunset
	OffWhiteColor  = "#F8F9FA" // offwhite
	WarmGrayColor  = "#CED4DA" // warmgray
	ErrorBaseColor = "#2D1B1B" // error

	// Base colors (light terminal themes)
	LightLanternColor   = "#E6A645" // dark lantern
	LightWarmGrayColor  = "#8B949E" // dark warmgray
	LightOffWhiteColor  = "#F1F3F4" // dark offwhite
	LightErrorBaseColor = "#FDEAEA" // dark errorbg

	// ErrorColor renders failed steps and execution errors.
	ErrorColor = compat.AdaptiveColor{
		Light: lipgloss.Color(SunsetColor),
		Dark:  lipgloss.Color(SunsetColor),
	}

	// WarningColor renders degraded states such as an unconfigured
	// config file or an empty tool/workflow registry.
	WarningColor = compat.AdaptiveColor{
		Light: lipgloss.Color(LightLanternColor),
		Dark:  lipgloss.Color(LanternColor),
	}

	// SuccessColor renders a completed execution or a passing validation.
	SuccessColor = compat.AdaptiveColor{
		Light: lipgloss.Color(ForestColor),
		Dark:  lipgloss.Color(ChameleonColor),
	}

	// InfoColor renders informational lines (server startup, update checks).
	InfoColor = compat.AdaptiveColor{
		Light: lipgloss.Color(NavyColor),
		Dark:  lipgloss.Color(LanternColor),
	}

	// MutedColor renders secondary text such as a workflow version or a
	// tool's resolved source.
	MutedColor = compat.AdaptiveColor{
		Light: lipgloss.Color(LightWarmGrayColor),
		Dark:  lipgloss.Color(WarmGrayColor),
	}

	// AccentColor renders workflow/tool/file names.
	AccentColor = compat.AdaptiveColor{
		Light: lipgloss.Color(ChameleonColor),
		Dark:  lipgloss.Color(LanternColor),
	}

	// CodeColor renders --help codeblocks.
	CodeColor = compat.AdaptiveColor{
		Light: lipgloss.Color(MidnightColor),
		Dark:  lipgloss.Color(MidnightColor),
	}

	// PrimaryTextColor is the base foreground for CLI help text.
	PrimaryTextColor = compat.AdaptiveColor{
		Light: lipgloss.Color(MidnightColor),
		Dark:  lipgloss.Color(OffWhiteColor),
	}

	// ErrorBgColor highlights the fang error header background.
	ErrorBgColor = compat.AdaptiveColor{
		Light: lipgloss.Color(LightErrorBaseColor),
		Dark:  lipgloss.Color(ErrorBaseColor),
	}
)

var (
	ErrorStyle = lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)
	MutedStyle = lipgloss.NewStyle().Foreground(MutedColor)

	// FileStyle renders a workflow or tool name in list output.
	FileStyle = lipgloss.NewStyle().
			Foreground(AccentColor).
			Bold(true).
			Underline(true)
)

// PrintJSON writes data to w as indented JSON, the --output json
// rendering shared by `test`, `validate`, `tools`, and `config`.
func PrintJSON(w io.Writer, data interface{}) {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		fmt.Fprintf(w, "Error encoding JSON: %v\n", err)
	}
}

// PrintYAML writes data to w as YAML, the --output yaml rendering.
func PrintYAML(w io.Writer, data interface{}) {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		fmt.Fprintf(w, "Error encoding YAML: %v\n", err)
	}
	encoder.Close()
}

func Success(w io.Writer, message string) {
	icon := lipgloss.NewStyle().Foreground(SuccessColor).Bold(true).Render("✓")
	msg := lipgloss.NewStyle().Foreground(SuccessColor).Render(message)
	fmt.Fprintf(w, "%s %s\n", icon, msg)
}

func SuccessIcon() string {
	return lipgloss.NewStyle().Foreground(SuccessColor).Bold(true).Render("✓")
}

func ErrorIcon() string {
	return lipgloss.NewStyle().Foreground(ErrorColor).Bold(true).Render("✗")
}

func Error(w io.Writer, message string) {
	icon := lipgloss.NewStyle().Foreground(ErrorColor).Bold(true).Render("✗")
	msg := lipgloss.NewStyle().Foreground(ErrorColor).Render(message)
	fmt.Fprintf(w, "%s %s\n", icon, msg)
}

func WarningIcon() string {
	return lipgloss.NewStyle().Foreground(WarningColor).Bold(true).Render("⚠")
}

func Warning(w io.Writer, message string) {
	icon := lipgloss.NewStyle().Foreground(WarningColor).Bold(true).Render("⚠")
	msg := lipgloss.NewStyle().Foreground(WarningColor).Render(message)
	fmt.Fprintf(w, "%s %s\n", icon, msg)
}

func InfoIcon() string {
	return lipgloss.NewStyle().Foreground(InfoColor).Bold(true).Render("ℹ")
}

func Info(w io.Writer, message string) {
	icon := lipgloss.NewStyle().Foreground(InfoColor).Bold(true).Render("ℹ")
	msg := lipgloss.NewStyle().Foreground(InfoColor).Render(message)
	fmt.Fprintf(w, "%s %s\n", icon, msg)
}

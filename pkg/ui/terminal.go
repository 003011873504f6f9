package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Banner printed by the CLI on interactive commands
const Banner = `
 ┌──────────────────────────────────────────┐
 │  T O N S C R A P E R   account harvester │
 └──────────────────────────────────────────┘
`

var (
	neonCyan    = lipgloss.Color("#00FFFF")
	neonMagenta = lipgloss.Color("#FF00FF")
	neonGreen   = lipgloss.Color("#39FF14")
	neonYellow  = lipgloss.Color("#FFFF00")
	neonOrange  = lipgloss.Color("#FF6700")
	dimWhite    = lipgloss.Color("#B0B0B0")

	bannerStyle    = lipgloss.NewStyle().Foreground(neonCyan).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(neonCyan).Bold(true)
	valueStyle     = lipgloss.NewStyle().Foreground(neonYellow)
	successStyle   = lipgloss.NewStyle().Foreground(neonGreen).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
	warningStyle   = lipgloss.NewStyle().Foreground(neonOrange).Bold(true)
	highlightStyle = lipgloss.NewStyle().Foreground(neonMagenta).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(dimWhite)
)

var (
	mu    sync.Mutex
	out   io.Writer = os.Stdout
	quiet bool
)

// SetOutput redirects all terminal output. nil restores stdout.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	out = w
}

// SetQuietMode suppresses everything except errors
func SetQuietMode(q bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = q
}

// IsQuietMode reports whether quiet mode is on
func IsQuietMode() bool {
	mu.Lock()
	defer mu.Unlock()
	return quiet
}

func write(always bool, s string) {
	mu.Lock()
	defer mu.Unlock()
	if quiet && !always {
		return
	}
	fmt.Fprintln(out, s)
}

// PrintBanner prints the banner
func PrintBanner() {
	write(false, bannerStyle.Render(Banner))
}

// PrintError prints an error message, with an optional detail
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf("%s: %v", msg, args[0])
	}
	write(true, errorStyle.Render(msg))
}

// PrintSuccess prints a success message
func PrintSuccess(msg string) {
	write(false, successStyle.Render(msg))
}

// PrintInfo prints a label and its value
func PrintInfo(label string, value string) {
	write(false, labelStyle.Render(label+":")+" "+valueStyle.Render(value))
}

// PrintWarning prints a warning message, with an optional detail
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf("%s: %v", msg, args[0])
	}
	write(false, warningStyle.Render(msg))
}

// PrintHighlight prints a highlighted message
func PrintHighlight(msg string) {
	write(false, highlightStyle.Render(msg))
}

// Println prints plain text
func Println(msg string) {
	write(false, msg)
}

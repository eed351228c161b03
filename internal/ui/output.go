// Package ui prints user-facing status lines and boxes.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

// Out and Err are where status lines go; tests may swap them.
var (
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr
)

var summaryBox = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("86")).
	Padding(0, 1)

// Success prints a ✓ line.
func Success(format string, args ...any) {
	successColor.Fprintf(Out, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Info prints an ℹ line.
func Info(format string, args ...any) {
	infoColor.Fprintf(Out, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Warning prints a ⚠ line to Err.
func Warning(format string, args ...any) {
	warningColor.Fprintf(Err, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Error prints a ✗ line to Err.
func Error(format string, args ...any) {
	errorColor.Fprintf(Err, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Box renders a titled summary box.
func Box(title, body string) string {
	return summaryBox.Render(lipgloss.JoinVertical(lipgloss.Left, lipgloss.NewStyle().Bold(true).Render(title), "", body))
}

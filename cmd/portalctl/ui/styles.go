package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))
)

// PrintTitle prints a section heading.
func PrintTitle(msg string) {
	fmt.Println(titleStyle.Render(msg))
}

// PrintSuccess prints a success line.
func PrintSuccess(msg string) {
	fmt.Println(successStyle.Render(msg))
}

// PrintField prints an indented label and value.
func PrintField(label, value string) {
	fmt.Printf("  %s %s\n", subtleStyle.Render(fmt.Sprintf("%-10s", label+":")), value)
}

// PrintError prints an error message.
func PrintError(msg string) {
	fmt.Println(errorStyle.Render("Error: " + msg))
}

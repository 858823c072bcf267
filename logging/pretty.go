package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Console prints human-facing command output. Structured diagnostics
// go through NewLogger instead.
type Console struct {
	writer  io.Writer
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	key     lipgloss.Style
	value   lipgloss.Style
	path    lipgloss.Style
}

// NewConsole creates a console printer writing to stdout.
func NewConsole() *Console {
	return &Console{
		writer:  os.Stdout,
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		key:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		value:   lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true),
		path:    lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Italic(true),
	}
}

// WithWriter sets a custom writer
func (c *Console) WithWriter(w io.Writer) *Console {
	c.writer = w
	return c
}

// Success prints a message with a checkmark
func (c *Console) Success(message string) {
	fmt.Fprintf(c.writer, "%s %s\n", c.success.Render("✓"), c.success.Render(message))
}

// Warn prints a warning
func (c *Console) Warn(message string) {
	fmt.Fprintf(c.writer, "%s %s\n", c.warning.Render("⚠"), c.warning.Render(message))
}

// Error prints a failure with its cause
func (c *Console) Error(message string, err error) {
	fmt.Fprintf(c.writer, "%s %s", c.failure.Render("✗"), c.failure.Render(message))
	if err != nil {
		fmt.Fprintf(c.writer, ": %s", c.failure.Render(err.Error()))
	}
	fmt.Fprintln(c.writer)
}

// Field prints a key-value pair
func (c *Console) Field(key string, value interface{}) {
	fmt.Fprintf(c.writer, "%s: %s\n", c.key.Render(key), c.value.Render(fmt.Sprint(value)))
}

// Path prints a labelled file path
func (c *Console) Path(label, path string) {
	fmt.Fprintf(c.writer, "%s: %s\n", c.key.Render(label), c.path.Render(path))
}

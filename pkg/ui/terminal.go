package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Logo printed by `igpull --version` and at the top of interactive runs
const Logo = `
  _                   _ _
 (_) __ _ _ __  _   _| | |
 | |/ _` + "`" + ` | '_ \| | | | | |
 | | (_| | |_) | |_| | | |
 |_|\__, | .__/ \__,_|_|_|
    |___/|_|
`

var (
	neonCyan    = lipgloss.Color("#00FFFF")
	neonMagenta = lipgloss.Color("#FF00FF")
	neonGreen   = lipgloss.Color("#39FF14")
	neonYellow  = lipgloss.Color("#FFFF00")
	neonRed     = lipgloss.Color("#FF3131")
	dimWhite    = lipgloss.Color("#B0B0B0")

	logoStyle      = lipgloss.NewStyle().Foreground(neonCyan).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(neonCyan).Bold(true)
	valueStyle     = lipgloss.NewStyle().Foreground(neonYellow)
	successStyle   = lipgloss.NewStyle().Foreground(neonGreen).Bold(true)
	warningStyle   = lipgloss.NewStyle().Foreground(neonYellow)
	errorStyle     = lipgloss.NewStyle().Foreground(neonRed).Bold(true)
	highlightStyle = lipgloss.NewStyle().Foreground(neonMagenta)
	dimStyle       = lipgloss.NewStyle().Foreground(dimWhite)
)

// Console writes styled status lines. Without colour every line is plain
// text; in quiet mode only warnings and errors are written.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
	quiet bool
}

// NewConsole creates a Console on out. Colour is used only when out is a
// terminal and noColor is false.
func NewConsole(out io.Writer, noColor, quiet bool) *Console {
	return &Console{
		out:   out,
		color: !noColor && IsTerminal(out),
		quiet: quiet,
	}
}

// IsTerminal reports whether w is a file attached to a terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Color reports whether the console styles its output
func (c *Console) Color() bool { return c.color }

// Quiet reports whether informational lines are suppressed
func (c *Console) Quiet() bool { return c.quiet }

// Writer returns the underlying writer
func (c *Console) Writer() io.Writer { return c.out }

func (c *Console) render(style lipgloss.Style, s string) string {
	if !c.color {
		return s
	}
	return style.Render(s)
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

// Logo prints the banner
func (c *Console) Logo() {
	if c.quiet {
		return
	}
	c.println(c.render(logoStyle, Logo))
}

// Info prints "label: value"
func (c *Console) Info(label, value string) {
	if c.quiet {
		return
	}
	c.println(c.render(labelStyle, label) + ": " + c.render(valueStyle, value))
}

// Success prints a success line
func (c *Console) Success(msg string) {
	if c.quiet {
		return
	}
	c.println(c.render(successStyle, msg))
}

// Highlight prints a line that should stand out
func (c *Console) Highlight(msg string) {
	if c.quiet {
		return
	}
	c.println(c.render(highlightStyle, msg))
}

// Dim prints a secondary line
func (c *Console) Dim(msg string) {
	if c.quiet {
		return
	}
	c.println(c.render(dimStyle, msg))
}

// Warning prints a warning, with an optional cause appended
func (c *Console) Warning(msg string, args ...interface{}) {
	c.println(c.render(warningStyle, withCause(msg, args)))
}

// Error prints an error, with an optional cause appended
func (c *Console) Error(msg string, args ...interface{}) {
	c.println(c.render(errorStyle, withCause(msg, args)))
}

func withCause(msg string, args []interface{}) string {
	if len(args) > 0 {
		return msg + ": " + fmt.Sprintf("%v", args[0])
	}
	return msg
}

var (
	defaultMu      sync.RWMutex
	defaultConsole = NewConsole(os.Stdout, false, false)
)

// SetDefault replaces the console used by the package-level Print helpers
func SetDefault(c *Console) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultConsole = c
}

// Default returns the console used by the package-level Print helpers
func Default() *Console {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultConsole
}

// PrintLogo prints the banner
func PrintLogo() { Default().Logo() }

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) { Default().Error(msg, args...) }

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) { Default().Success(msg) }

// PrintInfo prints "label: value" in cyan and yellow
func PrintInfo(label string, value string) { Default().Info(label, value) }

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) { Default().Warning(msg, args...) }

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) { Default().Highlight(msg) }

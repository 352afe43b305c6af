// Package tui holds the styles, keys and commands shared by the logportal terminal
// interfaces.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// ------------------------------------------------------ Styles -------------------------------------------------------

const (
	MARGIN                  = 2
	MAX_WIDTH               = 80
	PRIMARY_COLOR           = "#B8BABA"
	SECONDARY_COLOR         = "#626262"
	ELEMENT_COLOR           = "#EE9F40"
	SECONDARY_ELEMENT_COLOR = "#EE9F70"
	ERROR_COLOR             = "#CC0000"
	WARNING_COLOR           = "#FF7900"
	SUCCESS_COLOR           = "#34B233"
	SHUTDOWN_PERIOD         = 500 * time.Millisecond
)

var PadText = strings.Repeat(" ", MARGIN)

var BaseStyle = lipgloss.NewStyle()
var InfoStyle = BaseStyle.Copy().Foreground(lipgloss.Color(PRIMARY_COLOR)).Render
var HelpStyle = BaseStyle.Copy().Foreground(lipgloss.Color(SECONDARY_COLOR)).Render
var ItalicText = BaseStyle.Copy().Italic(true).Render
var BoldText = BaseStyle.Copy().Bold(true).Render
var ErrorText = BaseStyle.Copy().Foreground(lipgloss.Color(ERROR_COLOR)).Render
var WarningText = BaseStyle.Copy().Foreground(lipgloss.Color(WARNING_COLOR)).Render
var SuccessText = BaseStyle.Copy().Foreground(lipgloss.Color(SUCCESS_COLOR)).Render

func NewProgressBar() progress.Model {
	return progress.New(progress.WithGradient(SECONDARY_ELEMENT_COLOR, ELEMENT_COLOR))
}

// LogSeparator returns a horizontal rule fitting the terminal width.
func LogSeparator(width int) string {
	w := width - 2*MARGIN
	if w > MAX_WIDTH || w <= 0 {
		w = MAX_WIDTH
	}
	return HelpStyle(strings.Repeat("─", w)) + "\n\n"
}

// TruncatePath shortens path from the left so that it fits in width cells.
func TruncatePath(path string, width int) string {
	if width <= 0 || runewidth.StringWidth(path) <= width {
		return path
	}
	overflow := runewidth.StringWidth(path) - width
	return runewidth.TruncateLeft(path, overflow+1, "…")
}

// ByteCountSI formats a byte count with SI units.
func ByteCountSI(b int64) string {
	const unit = 1000
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "kMGTPE"[exp])
}

// ----------------------------------------------------- Spinners ------------------------------------------------------

var WaitingSpinner = spinner.Spinner{
	Frames: []string{"⠋ ", "⠙ ", "⠹ ", "⠸ ", "⠼ ", "⠴ ", "⠦ ", "⠧ ", "⠇ ", "⠏ "},
	FPS:    time.Second / 12,
}

var DecodingSpinner = spinner.Spinner{
	Frames: []string{"┉┉┉", "┅┅┅", "┄┄┄", "┉ ┉", "┅ ┅", "┄ ┄", " ┉ ", " ┉ ", " ┅ ", " ┅ ", " ┄ "},
	FPS:    time.Second / 3,
}

var ReceivingSpinner = spinner.Spinner{
	Frames: []string{"   ", "  «", " ««", "«««"},
	FPS:    time.Second / 2,
}

// ------------------------------------------------------- Keys --------------------------------------------------------

type KeyMap struct {
	Quit     key.Binding
	CopyPath key.Binding
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.CopyPath}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var Keys = KeyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("(q)", "abort"),
	),
	CopyPath: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("(c)", "copy log path"),
		key.WithDisabled(),
	),
}

// ----------------------------------------------------- Messages ------------------------------------------------------

type ErrorMsg error

// ProgressMsg is the fraction of the log received so far.
type ProgressMsg float64

// StatusMsg is a status line reported by the session.
type StatusMsg string

// ----------------------------------------------------- Commands ------------------------------------------------------

// TaskCmd prints a finished task above the interface, then runs cmd.
func TaskCmd(task string, cmd tea.Cmd) tea.Cmd {
	if task == "" {
		return cmd
	}
	return tea.Sequence(tea.Println(PadText+"• "+task), cmd)
}

// ErrorCmd prints the error above the interface and quits the program.
func ErrorCmd(err error) tea.Cmd {
	return tea.Sequence(
		tea.Println(PadText+ErrorText(fmt.Sprintf("Error: %s", err))),
		QuitCmd(),
	)
}

// QuitCmd quits the program after the shutdown period, letting the last view render.
func QuitCmd() tea.Cmd {
	return tea.Tick(SHUTDOWN_PERIOD, func(time.Time) tea.Msg {
		return tea.Quit()
	})
}

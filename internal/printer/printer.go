package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/dyluth/copse/internal/coordinator"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/fatih/color"
)

func init() {
	// Users can disable colour with NO_COLOR
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	grey   = color.New(color.FgHiBlack)
	blue   = color.New(color.FgBlue)
)

// Output destinations, swapped by tests.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(Stdout, msg)
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Fprintf(Stdout, format, a...)
}

// Warning prints a warning message in yellow with a warning emoji prefix
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(Stdout, msg)
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	cyan.Fprintf(Stdout, "→ %s", fmt.Sprintf(format, a...))
}

// Println prints a plain message
func Println(a ...any) {
	fmt.Fprintln(Stdout, a...)
}

// Printf prints a plain formatted message
func Printf(format string, a ...any) {
	fmt.Fprintf(Stdout, format, a...)
}

// Status renders a blackboard status in its colour.
func Status(s blackboard.Status) string {
	switch s {
	case blackboard.StatusSuccess:
		return green.Sprint(s)
	case blackboard.StatusFailure:
		return red.Sprint(s)
	case blackboard.StatusRunning:
		return blue.Sprint(s)
	default:
		return grey.Sprint(s)
	}
}

// CommandError is returned by Error and ErrorWithContext. Its message is
// only the title; the details have already been printed. Cause, when set,
// keeps the original error reachable for exit code mapping.
type CommandError struct {
	Title string
	Cause error
}

func (e *CommandError) Error() string { return e.Title }
func (e *CommandError) Unwrap() error { return e.Cause }

// Error creates a formatted error message with title, explanation, and suggestions.
// Prints the formatted error to stderr with colors and returns a simple error for Cobra.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with extra key/value detail lines, printed in key order.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	return printError(nil, title, explanation, context, suggestions)
}

// ErrorFrom is Error for a failure caused by err. err is printed as the
// explanation when none is given.
func ErrorFrom(err error, title string, explanation string, suggestions []string) error {
	if explanation == "" && err != nil {
		explanation = err.Error()
	}
	return printError(err, title, explanation, nil, suggestions)
}

func printError(cause error, title, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(Stderr, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(Stderr, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintf(Stderr, "\n")
		for _, k := range keys {
			fmt.Fprintf(Stderr, "  %s: %s\n", k, context[k])
		}
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(Stderr, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(Stderr, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(Stderr, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(Stderr, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	return &CommandError{Title: title, Cause: cause}
}

// Sink prints coordinator status indicators as they arrive.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

var _ coordinator.StatusSink = (*Sink)(nil)

// NewSink creates a sink writing to w, or to Stdout when w is nil.
func NewSink(w io.Writer) *Sink {
	if w == nil {
		w = Stdout
	}
	return &Sink{w: w}
}

// Report prints one indicator line: a dot or ring in the fill colour,
// the coordinator name and the text.
func (s *Sink) Report(ind coordinator.Indicator) {
	mark := "●"
	if ind.Shape == coordinator.ShapeRing {
		mark = "○"
	}

	var c *color.Color
	switch ind.Fill {
	case coordinator.FillGreen:
		c = green
	case coordinator.FillRed:
		c = red
	case coordinator.FillYellow:
		c = yellow
	case coordinator.FillBlue:
		c = blue
	default:
		c = grey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%s %-18s %s\n", c.Sprint(mark), ind.Coordinator, ind.Text)
}

package contract

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/huangsam/backfill/schema"
)

// Color variables for console output.
var (
	FailedColor  = color.New(color.FgRed, color.Bold) // FailedColor marks dates that need a rerun.
	ClosureColor = color.New(color.FgYellow)          // ClosureColor marks placeholder-loaded dates.
	SuccessColor = color.New(color.FgGreen)           // SuccessColor marks dates with real data.
	SkippedColor = color.New(color.FgCyan)            // SkippedColor marks dates with nothing to load.
)

// GetColorLabel returns a colored outcome label for console output (table).
func GetColorLabel(kind schema.OutcomeKind) string {
	text := string(kind)
	switch kind {
	case schema.FailedKind:
		return FailedColor.Sprint(text)
	case schema.ClosureProcessedKind:
		return ClosureColor.Sprint(text)
	case schema.SuccessKind:
		return SuccessColor.Sprint(text)
	default:
		return SkippedColor.Sprint(text)
	}
}

// SelectOutputFile returns the appropriate file handle for output, based on the provided
// file path. An empty path selects os.Stdout.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Fatal %s: %v\n", msg, err)
	os.Exit(1)
}

// LogWarn logs a warning message to stderr.
func LogWarn(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Warn %s: %v\n", msg, err)
}

// TruncateText truncates s to maxWidth runes with an ellipsis suffix.
// Requires maxWidth > 3 to leave room for the ellipsis.
func TruncateText(s string, maxWidth int) string {
	runes := []rune(s)
	if len(runes) > maxWidth && maxWidth > 3 {
		return string(runes[:maxWidth-3]) + "..."
	}
	return s
}

// FormatDuration renders d with millisecond precision for summaries.
func FormatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

// ParseBoolString parses a string value into a boolean.
// Accepts "yes", "no", "true", "false", "1", "0" (case-insensitive).
// Returns an error for invalid values.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}

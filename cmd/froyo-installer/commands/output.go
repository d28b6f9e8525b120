package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	labelColor   = color.New(color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

// PrintCancelled reports a run stopped by the user.
func PrintCancelled(err error) {
	_, _ = errorColor.Fprintf(os.Stderr, "%s\n", err)
}

func printSuccess(w io.Writer, msg string) {
	_, _ = successColor.Fprintln(w, msg)
}

func printWarning(w io.Writer, msg string) {
	_, _ = warningColor.Fprintln(w, msg)
}

func printError(w io.Writer, msg string) {
	_, _ = errorColor.Fprintln(w, msg)
}

func printLabelValue(w io.Writer, label string, value any) {
	_, _ = labelColor.Fprintf(w, "%s: ", label)
	fmt.Fprintln(w, value)
}

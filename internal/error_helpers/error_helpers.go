package error_helpers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// output is where errors and warnings are written; set by tests
var output io.Writer = os.Stderr

func FailOnError(err error) {
	if err != nil {
		panic(err)
	}
}

func FailOnErrorWithMessage(err error, message string) {
	if err != nil {
		panic(fmt.Sprintf("%s: %s", message, err.Error()))
	}
}

func ShowError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(output, "%s: %v\n", color.RedString("Error"), TransformError(err))
}

// ShowErrorWithMessage displays the given error nicely with the given message
func ShowErrorWithMessage(err error, message string) {
	if err == nil {
		return
	}
	fmt.Fprintf(output, "%s: %s - %v\n", color.RedString("Error"), message, TransformError(err))
}

func ShowWarning(warning string) {
	if len(warning) == 0 {
		return
	}
	fmt.Fprintf(output, "%s: %v\n", color.YellowString("Warning"), warning)
}

// TransformError removes the prefixes added by the database driver, leaving the message
func TransformError(err error) error {
	if err == nil {
		return nil
	}
	errString := strings.TrimSpace(err.Error())
	// duckdb errors are prefixed with their category, e.g. "IO Error: "
	for _, prefix := range []string{"ERROR:", "IO Error:", "Invalid Input Error:", "Binder Error:"} {
		errString = strings.TrimSpace(strings.ReplaceAll(errString, prefix, ""))
	}
	return errors.New(errString)
}

func IsCancelledError(err error) bool {
	return errors.Is(err, context.Canceled)
}

// ToError converts a recovered panic value to an error
func ToError(val any) error {
	if e, ok := val.(error); ok {
		return e
	}
	return fmt.Errorf("%v", val)
}

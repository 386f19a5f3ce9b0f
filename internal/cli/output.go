package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"storefront/internal/reconcile"
	"storefront/internal/viewcache"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // merge failed, item busy, etc.
	ExitCommandError = 2 // bad flags, unreadable state, etc.
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
}

func (f *OutputFormatter) JSON(v interface{}) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (f *OutputFormatter) View(v viewcache.View) error {
	if f.Format == "json" {
		return f.JSON(v.Collection.Response())
	}

	fmt.Fprintf(f.Writer, "%s: %d item(s), total %d\n", v.Collection.Kind, v.Count, v.Total)
	for _, it := range v.Collection.Items {
		name := it.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(f.Writer, "  %-20s x%-4d %-24s %d\n", it.ProductID, it.Quantity, name, it.Price)
	}
	return nil
}

type mergeOutput struct {
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	Notice    string `json:"notice,omitempty"`
}

func (f *OutputFormatter) Merge(state reconcile.State, sessionID string, notice *reconcile.Notice) error {
	out := mergeOutput{State: state.String(), SessionID: sessionID}
	if notice != nil {
		out.Notice = notice.Message()
	}
	if f.Format == "json" {
		return f.JSON(out)
	}

	fmt.Fprintf(f.Writer, "merge: %s\n", out.State)
	if out.Notice != "" {
		fmt.Fprintln(f.ErrWriter, out.Notice)
	}
	return nil
}

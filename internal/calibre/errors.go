package calibre

import "fmt"

// CommandError wraps a failed calibre tool invocation.
type CommandError struct {
	Operation string // "add_format", "convert", "list", "smtp"
	Err       error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("calibre %s failed: %v", e.Operation, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ImportError is returned when a file could not be added to the library or no id was reported.
type ImportError struct {
	Path   string
	Output string
	Err    error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to import %s: %v", e.Path, e.Err)
	}

	return fmt.Sprintf("failed to import %s: no book id in output %q", e.Path, e.Output)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// MissingPathError is returned when the library has no file in the requested format.
type MissingPathError struct {
	ID     int64
	Format string
	Reason string
}

func (e *MissingPathError) Error() string {
	return fmt.Sprintf("no %s file for book %d: %s", e.Format, e.ID, e.Reason)
}

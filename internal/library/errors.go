package library

import (
	"fmt"
	"strings"
	"time"
)

// AuthError is returned when the sign-in page reports an authentication failure.
type AuthError struct {
	Message string // Text of the sign-in error box
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// MFARequiredError is returned when sign-in asks for a one-time code.
type MFARequiredError struct{}

func (e *MFARequiredError) Error() string {
	return "sign-in requires a one-time passcode"
}

// LoginTimeoutError is returned when the page never reached the content library in time.
type LoginTimeoutError struct {
	Timeout time.Duration
}

func (e *LoginTimeoutError) Error() string {
	return fmt.Sprintf("login did not complete within %s", e.Timeout)
}

// MissingControlError is returned when a page control the flow depends on is absent.
type MissingControlError struct {
	Control string // Human name of the control, e.g. "more actions"
	Title   string
}

func (e *MissingControlError) Error() string {
	return fmt.Sprintf("%s control not found for %q", e.Control, e.Title)
}

// NotLoanError is returned when the matched entity is not a library loan.
type NotLoanError struct {
	Title string
}

func (e *NotLoanError) Error() string {
	return fmt.Sprintf("%q is not a library loan", e.Title)
}

// DeviceNotFoundError is returned when no listed device matches the configured name.
type DeviceNotFoundError struct {
	Device    string
	Available []string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("device %q not listed (available: %s)", e.Device, strings.Join(e.Available, ", "))
}

// DownloadTimeoutError is returned when in-progress downloads do not finish in time.
type DownloadTimeoutError struct {
	Title   string
	Timeout time.Duration
}

func (e *DownloadTimeoutError) Error() string {
	return fmt.Sprintf("download of %q did not finish within %s", e.Title, e.Timeout)
}

// DownloadCountError is returned when the download directory gained zero or several files.
type DownloadCountError struct {
	Title string
	Count int
	Files []string
}

func (e *DownloadCountError) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("failed to download %q", e.Title)
	}

	return fmt.Sprintf("downloaded too many books somehow for %q: %d new files", e.Title, e.Count)
}

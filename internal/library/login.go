package library

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/italolelis/loan_downloader/internal/browser"
	"github.com/italolelis/loan_downloader/internal/credentials"
	"github.com/italolelis/loan_downloader/internal/logctx"
)

type loginState int

const (
	stateUnknown loginState = iota
	stateAuthError
	stateAuthenticated
	stateAccountChooser
	stateMFA
	stateEmail
	stateContinue
	statePassword
)

func (s loginState) String() string {
	switch s {
	case stateAuthError:
		return "auth_error"
	case stateAuthenticated:
		return "authenticated"
	case stateAccountChooser:
		return "account_chooser"
	case stateMFA:
		return "mfa"
	case stateEmail:
		return "email"
	case stateContinue:
		return "continue"
	case statePassword:
		return "password"
	default:
		return "unknown"
	}
}

// Authenticator drives a session through the retailer sign-in pages.
type Authenticator struct {
	email   string
	creds   credentials.Store
	timeout time.Duration
	timings Timings
	now     func() time.Time
}

func NewAuthenticator(email string, creds credentials.Store, timeout time.Duration, timings Timings) *Authenticator {
	return &Authenticator{
		email:   email,
		creds:   creds,
		timeout: timeout,
		timings: timings,
		now:     time.Now,
	}
}

// Login returns once the content library is showing. Each pass acts on the first matching
// page marker in priority order; the deadline is checked at the top of every pass.
func (a *Authenticator) Login(ctx context.Context, s browser.Session) error {
	logger := logctx.LoggerFromContext(ctx)
	deadline := a.now().Add(a.timeout)

	for pass := 1; ; pass++ {
		if !a.now().Before(deadline) {
			return &LoginTimeoutError{Timeout: a.timeout}
		}

		state, el, err := a.detect(ctx, s)
		if err != nil {
			return fmt.Errorf("failed to inspect sign-in page: %w", err)
		}

		logger.Debug("login pass", "pass", pass, "state", state.String())

		switch state {
		case stateAuthError:
			msg, _ := el.Text(ctx)

			return &AuthError{Message: strings.TrimSpace(msg)}
		case stateAuthenticated:
			logger.Info("logged in", "passes", pass)

			return nil
		case stateAccountChooser:
			parent, err := el.Parent(ctx)
			if err != nil {
				return fmt.Errorf("failed to resolve account chooser: %w", err)
			}

			if err := a.clickAndWait(ctx, s, parent); err != nil {
				return fmt.Errorf("failed to choose account: %w", err)
			}
		case stateMFA:
			return &MFARequiredError{}
		case stateEmail:
			if err := el.Input(ctx, a.email); err != nil {
				return fmt.Errorf("failed to enter email: %w", err)
			}
		case stateContinue:
			if err := a.clickAndWait(ctx, s, el); err != nil {
				return fmt.Errorf("failed to continue sign-in: %w", err)
			}
		case statePassword:
			if err := a.submitPassword(ctx, s, el); err != nil {
				return err
			}
		default:
			if err := pause(ctx, a.timings.Idle); err != nil {
				return err
			}
		}
	}
}

// detect returns the highest-priority state the page is in and the element to act on.
func (a *Authenticator) detect(ctx context.Context, s browser.Session) (loginState, browser.Element, error) {
	if el, ok, err := s.Find(ctx, selAuthError); err != nil || ok {
		return stateAuthError, el, err
	}

	details, err := has(ctx, s, selEntityDetails)
	if err != nil {
		return stateUnknown, nil, err
	}

	if details {
		rows, err := has(ctx, s, selInformationRow)
		if err != nil || rows {
			return stateAuthenticated, nil, err
		}
	}

	if el, ok, err := s.Find(ctx, selAccountName); err != nil || ok {
		return stateAccountChooser, el, err
	}

	if el, ok, err := s.Find(ctx, selOTPCode); err != nil || ok {
		return stateMFA, el, err
	}

	if el, ok, err := s.Find(ctx, selEmail); err != nil {
		return stateUnknown, nil, err
	} else if ok {
		v, err := el.Value(ctx)
		if err != nil {
			return stateUnknown, nil, err
		}

		if v == "" {
			return stateEmail, el, nil
		}
	}

	password, hasPassword, err := s.Find(ctx, selPassword)
	if err != nil {
		return stateUnknown, nil, err
	}

	if !hasPassword {
		if el, ok, err := s.Find(ctx, selContinue); err != nil || ok {
			return stateContinue, el, err
		}

		return stateUnknown, nil, nil
	}

	return statePassword, password, nil
}

func (a *Authenticator) submitPassword(ctx context.Context, s browser.Session, field browser.Element) error {
	secret, err := a.creds.Password(ctx, a.email)
	if err != nil {
		return fmt.Errorf("failed to read password for %s: %w", a.email, err)
	}

	if err := field.Input(ctx, secret); err != nil {
		return fmt.Errorf("failed to enter password: %w", err)
	}

	submit, ok, err := s.Find(ctx, selSignIn)
	if err != nil {
		return err
	}

	if ok {
		if err := a.clickAndWait(ctx, s, submit); err != nil {
			return fmt.Errorf("failed to submit sign-in: %w", err)
		}

		return nil
	}

	return pause(ctx, a.timings.Navigation)
}

func (a *Authenticator) clickAndWait(ctx context.Context, s browser.Session, el browser.Element) error {
	wait := s.WaitNavigation(ctx)

	if err := el.Click(ctx); err != nil {
		return err
	}

	if err := wait(); err != nil {
		return err
	}

	return pause(ctx, a.timings.Navigation)
}

func has(ctx context.Context, f browser.Finder, selector string) (bool, error) {
	_, ok, err := f.Find(ctx, selector)

	return ok, err
}

package calibre

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/italolelis/loan_downloader/internal/cmdexec"
)

// SMTPConfig describes the relay calibre-smtp sends through.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Encryption string
	From       string
}

// Mailer sends library files as mail attachments, typically to a Send-to-Kindle address.
type Mailer struct {
	runner cmdexec.Runner
	binary string
	cfg    SMTPConfig
}

func NewMailer(runner cmdexec.Runner, binary string, cfg SMTPConfig) *Mailer {
	if binary == "" {
		binary = "calibre-smtp"
	}

	if cfg.Encryption == "" {
		cfg.Encryption = "TLS"
	}

	return &Mailer{runner: runner, binary: binary, cfg: cfg}
}

// Send mails path to the recipient address.
func (m *Mailer) Send(ctx context.Context, path, to string) error {
	args := []string{
		"--attachment", path,
		"--relay", m.cfg.Host,
		"--port", strconv.Itoa(m.cfg.Port),
		"--username", m.cfg.Username,
		"--password", m.cfg.Password,
		"--encryption-method", m.cfg.Encryption,
		m.cfg.From,
		to,
		fmt.Sprintf("Automated delivery of %s", filepath.Base(path)),
	}

	if _, err := m.runner.Run(ctx, m.binary, args...); err != nil {
		return &CommandError{Operation: "smtp", Err: err}
	}

	return nil
}

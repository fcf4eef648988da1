// Package mailer renders and delivers the EduQuiz account emails.
package mailer

import (
	"bytes"
	"context"
	"embed"
	htmltmpl "html/template"
	"net/mail"
	"strings"
	texttmpl "text/template"
	"time"

	auth "github.com/eduquiz/go-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/sethvargo/go-retry"
)

// SetupSubject is the subject of the account setup email
const SetupSubject = "Set Up Your EduQuiz Account"

//go:embed templates/*
var templateFS embed.FS

// Message is a rendered email ready for a Sender
type Message struct {
	From    mail.Address
	To      mail.Address
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a rendered message
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Mailer renders the setup templates and hands them to a Sender. It
// implements auth.SetupMailer.
type Mailer struct {
	sender   Sender
	from     mail.Address
	validity time.Duration
	retries  uint64
	backoff  time.Duration
	logger   auth.Logger
	html     *htmltmpl.Template
	text     *texttmpl.Template
}

var _ auth.SetupMailer = (*Mailer)(nil)

// Option customizes a Mailer
type Option func(*Mailer)

// WithRetries retries transient send failures n times
func WithRetries(n uint64, base time.Duration) Option {
	return func(m *Mailer) {
		m.retries = n
		if base > 0 {
			m.backoff = base
		}
	}
}

// WithValidity sets the link validity mentioned in the email body
func WithValidity(d time.Duration) Option {
	return func(m *Mailer) {
		if d > 0 {
			m.validity = d
		}
	}
}

func WithLogger(logger auth.Logger) Option {
	return func(m *Mailer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New parses the embedded templates. fromEmail is required.
func New(sender Sender, fromEmail, fromName string, opts ...Option) (*Mailer, error) {
	if sender == nil {
		return nil, goerrors.New("mail sender is required", goerrors.CategoryInternal)
	}
	if strings.TrimSpace(fromEmail) == "" {
		return nil, goerrors.New("mail from address is required", goerrors.CategoryBadInput)
	}

	html, err := htmltmpl.ParseFS(templateFS, "templates/account_setup.html")
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to parse html email template")
	}
	text, err := texttmpl.ParseFS(templateFS, "templates/account_setup.txt")
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to parse text email template")
	}

	m := &Mailer{
		sender:   sender,
		from:     mail.Address{Name: fromName, Address: fromEmail},
		validity: auth.TokenValidity,
		backoff:  250 * time.Millisecond,
		logger:   auth.NewSlogLogger(nil),
		html:     html.Option("missingkey=error"),
		text:     text.Option("missingkey=error"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

type setupData struct {
	Name       string
	SetupURL   string
	ValidHours int
}

// Render builds the setup message without sending it
func (m *Mailer) Render(email, name, setupURL string) (Message, error) {
	data := setupData{
		Name:       name,
		SetupURL:   setupURL,
		ValidHours: int(m.validity / time.Hour),
	}

	var htmlBuf, textBuf bytes.Buffer
	if err := m.html.Execute(&htmlBuf, data); err != nil {
		return Message{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render html email")
	}
	if err := m.text.Execute(&textBuf, data); err != nil {
		return Message{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render text email")
	}

	return Message{
		From:    m.from,
		To:      mail.Address{Name: name, Address: email},
		Subject: SetupSubject,
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
	}, nil
}

// SendAccountSetupEmail renders and sends the setup link to email
func (m *Mailer) SendAccountSetupEmail(ctx context.Context, email, name, setupURL string) error {
	msg, err := m.Render(email, name, setupURL)
	if err != nil {
		return err
	}

	if m.retries == 0 {
		return m.send(ctx, msg)
	}

	backoff := retry.WithMaxRetries(m.retries, retry.NewExponential(m.backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := m.send(ctx, msg)
		if IsTemporary(err) {
			m.logger.Debug("retrying setup email", "to", email, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (m *Mailer) send(ctx context.Context, msg Message) error {
	if err := m.sender.Send(ctx, msg); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send email").
			WithTextCode("EMAIL_SEND_FAILED")
	}
	return nil
}

// errTemporary marks failures worth another attempt
var errTemporary = goerrors.New("temporary mail failure", goerrors.CategoryOperation).
	WithTextCode("EMAIL_TEMPORARY")

func temporary(err error, message string) error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, message).
		WithTextCode(errTemporary.TextCode)
}

// IsTemporary reports whether a Sender flagged err as retryable
func IsTemporary(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == errTemporary.TextCode
}

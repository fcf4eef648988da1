package app

import (
	"io"
	"time"

	goerrors "github.com/goliatone/go-errors"

	auth "github.com/eduquiz/go-auth"
	"github.com/eduquiz/go-auth/config"
	"github.com/eduquiz/go-auth/mailer"
)

// NewMailer builds the setup mailer for the configured driver. The "none"
// driver returns a nil mailer. Console output goes to out.
func NewMailer(cfg config.MailConfig, logger auth.Logger, out io.Writer) (auth.SetupMailer, error) {
	var (
		sender mailer.Sender
		err    error
	)

	switch cfg.Driver {
	case "none":
		return nil, nil
	case "", "console":
		sender = mailer.NewConsoleSender(out)
	case "smtp":
		sender, err = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			TLS:      cfg.SMTP.TLS,
		})
	case "sendgrid":
		sender, err = mailer.NewSendGridSender(cfg.SendGrid.APIKey)
	default:
		return nil, goerrors.New("unknown mail driver: "+cfg.Driver, goerrors.CategoryBadInput)
	}
	if err != nil {
		return nil, err
	}

	return mailer.New(sender, cfg.FromEmail, cfg.FromName,
		mailer.WithLogger(logger),
		mailer.WithRetries(cfg.Retries, 500*time.Millisecond),
	)
}

package mailer

import (
	"context"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendGridSender delivers through the SendGrid v3 API
type SendGridSender struct {
	key  string
	host string
}

var _ Sender = (*SendGridSender)(nil)

// NewSendGridSender uses the public API host unless host is given
func NewSendGridSender(key string, host ...string) (*SendGridSender, error) {
	if key == "" {
		return nil, goerrors.New("sendgrid api key is required", goerrors.CategoryBadInput)
	}
	s := &SendGridSender{key: key, host: sendgridHost}
	if len(host) > 0 && host[0] != "" {
		s.host = host[0]
	}
	return s, nil
}

func (s *SendGridSender) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.To.Name, msg.To.Address))

	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(msg.From.Name, msg.From.Address))
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = rest.Post
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := rest.SendWithContext(ctx, req)
	if err != nil {
		return temporary(err, "sendgrid request failed")
	}

	switch {
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError:
		return temporary(fmt.Errorf("sendgrid status %d", res.StatusCode), "sendgrid unavailable")
	case res.StatusCode >= http.StatusBadRequest:
		return goerrors.New(fmt.Sprintf("sendgrid rejected the message: status %d", res.StatusCode), goerrors.CategoryOperation).
			WithTextCode("EMAIL_SEND_FAILED").
			WithMetadata(map[string]any{"body": res.Body})
	}
	return nil
}

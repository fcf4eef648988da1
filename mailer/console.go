package mailer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ConsoleSender writes messages to an io.Writer and keeps a copy of each
// one. It is the development and test driver.
type ConsoleSender struct {
	out  io.Writer
	mu   sync.Mutex
	sent []Message
}

var _ Sender = (*ConsoleSender)(nil)

// NewConsoleSender writes to out, or stdout when out is nil. Pass
// io.Discard to only record.
func NewConsoleSender(out io.Writer) *ConsoleSender {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleSender{out: out}
}

func (s *ConsoleSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body := new(strings.Builder)
	fmt.Fprintf(body, "From: %s\r\n", msg.From.String())
	fmt.Fprintf(body, "To: %s\r\n", msg.To.String())
	fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(body, "Subject: %s\r\n", msg.Subject)
	fmt.Fprint(body, "\r\n")
	fmt.Fprintf(body, "%s\r\n", msg.Text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.out, body.String()); err != nil {
		return err
	}
	s.sent = append(s.sent, msg)
	return nil
}

// Sent returns a copy of the messages sent so far
func (s *ConsoleSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}

// Last returns the most recent message
func (s *ConsoleSender) Last() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return Message{}, false
	}
	return s.sent[len(s.sent)-1], true
}

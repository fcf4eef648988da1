package activitymap

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	auth "github.com/eduquiz/go-auth"
	goerrors "github.com/goliatone/go-errors"
)

// Sink writes every event as one JSON line to w and then hands it to Next
type Sink struct {
	Next auth.ActivitySink

	mu   sync.Mutex
	enc  *json.Encoder
	opts []Option
}

var _ auth.ActivitySink = (*Sink)(nil)

func NewSink(w io.Writer, next auth.ActivitySink, opts ...Option) *Sink {
	return &Sink{
		Next: next,
		enc:  json.NewEncoder(w),
		opts: opts,
	}
}

func (s *Sink) Record(ctx context.Context, event auth.ActivityEvent) error {
	record := Normalize(event, s.opts...)

	s.mu.Lock()
	err := s.enc.Encode(record)
	s.mu.Unlock()

	if err != nil {
		err = goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write activity record").
			WithMetadata(map[string]any{"event": record.Verb})
	}

	if s.Next != nil {
		if nextErr := s.Next.Record(ctx, event); nextErr != nil && err == nil {
			err = nextErr
		}
	}
	return err
}

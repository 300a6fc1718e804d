package api

import (
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/quill/internal/inference"
)

// Event types written by SSEStreamWriter.
const (
	EventCreated   = "generation.created"
	EventDelta     = "generation.delta"
	EventCompleted = "generation.completed"
	EventCancelled = "generation.cancelled"
	EventFailed    = "generation.failed"
)

type StreamWriter interface {
	Begin(resp GenerateResponse) error
	EmitDelta(f inference.Fragment) error
	Finish(resp GenerateResponse) error
}

type streamEvent struct {
	Type           string            `json:"type"`
	SequenceNumber int               `json:"sequence_number"`
	Generation     *GenerateResponse `json:"generation,omitempty"`
	Step           *int              `json:"step,omitempty"`
	Token          *int              `json:"token,omitempty"`
	Delta          *string           `json:"delta,omitempty"`
}

// SSEStreamWriter writes generation events as server-sent events. Events
// numbered at or below the starting_after query parameter are skipped.
type SSEStreamWriter struct {
	w             io.Writer
	flusher       func()
	startingAfter int
	seq           int
	begun         bool
}

func NewSSEStreamWriter(c *echo.Context) (*SSEStreamWriter, error) {
	res := c.Response()
	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")

	return &SSEStreamWriter{
		w:             res,
		flusher:       flusher.Flush,
		startingAfter: parseStartingAfter(c.QueryParam("starting_after")),
		seq:           1,
	}, nil
}

func (s *SSEStreamWriter) Begin(resp GenerateResponse) error {
	s.begun = true
	resp.Status = "in_progress"
	return s.send(streamEvent{Type: EventCreated, Generation: &resp})
}

func (s *SSEStreamWriter) Started() bool {
	return s.begun
}

func (s *SSEStreamWriter) EmitDelta(f inference.Fragment) error {
	return s.send(streamEvent{
		Type:  EventDelta,
		Step:  &f.Step,
		Token: &f.Token,
		Delta: &f.Text,
	})
}

// Finish writes the terminal event matching resp.Status.
func (s *SSEStreamWriter) Finish(resp GenerateResponse) error {
	typ := EventCompleted
	switch resp.Status {
	case inference.StateCancelled.String():
		typ = EventCancelled
	case inference.StateFailed.String():
		typ = EventFailed
	}
	return s.send(streamEvent{Type: typ, Generation: &resp})
}

func (s *SSEStreamWriter) send(ev streamEvent) error {
	ev.SequenceNumber = s.seq
	s.seq++
	if s.startingAfter >= ev.SequenceNumber {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, b); err != nil {
		return err
	}
	s.flusher()
	return nil
}

func parseStartingAfter(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

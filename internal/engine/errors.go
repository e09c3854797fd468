package engine

import (
	"errors"
	"fmt"

	"github.com/ivlev/clipweave/internal/timeline"
)

var (
	// ErrUnresolvableTimeline: after gap resolution the background timeline
	// still carries no media at all.
	ErrUnresolvableTimeline = errors.New("unresolvable timeline: no background media anywhere")
	// ErrNoDurationSignal: neither audio, background nor captions yield a duration.
	ErrNoDurationSignal = errors.New("no duration signal: audio, background and captions are all empty")
	// ErrNoSegments: every background segment failed to render.
	ErrNoSegments = errors.New("no segment could be rendered")
)

// DecodeError describes one background segment that could not be fetched,
// decoded or encoded. It is not fatal on its own.
type DecodeError struct {
	Index    int
	Interval timeline.Interval
	Media    timeline.MediaRef
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("segment %d %s (%s): %v", e.Index, e.Interval, e.Media, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CompositionError is returned when a fatal stage fails after segment work
// has started. Segments holds what had been rendered up to that point.
type CompositionError struct {
	Stage    string
	Err      error
	Segments []SegmentReport
}

func (e *CompositionError) Error() string {
	ok := 0
	for _, s := range e.Segments {
		if s.Status != StatusDropped {
			ok++
		}
	}
	return fmt.Sprintf("composition failed at %s (%d/%d segments ready): %v", e.Stage, ok, len(e.Segments), e.Err)
}

func (e *CompositionError) Unwrap() error { return e.Err }

func joinDecodeErrors(errs []*DecodeError) error {
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return errors.Join(joined...)
}

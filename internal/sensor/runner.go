package sensor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/chachabrian/parkit-backend/internal/parking"
)

// Sink receives accepted occupancy changes
type Sink interface {
	ApplyOccupancy(ctx context.Context, sensed []bool, description string) (parking.StatusRecord, error)
}

// Runner reads frames, logs accepted changes and pushes them to the sink.
type Runner struct {
	detector  *Detector
	log       *DailyLog
	sink      Sink
	slotCount int
	now       func() time.Time
}

type Option func(*Runner)

// WithSlotCount rejects frames that do not carry exactly n slots.
func WithSlotCount(n int) Option {
	return func(r *Runner) { r.slotCount = n }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func NewRunner(detector *Detector, dailyLog *DailyLog, sink Sink, opts ...Option) *Runner {
	r := &Runner{detector: detector, log: dailyLog, sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one line. It reports whether the line was an accepted
// change. Lines that are not frames are ignored without error.
func (r *Runner) Handle(ctx context.Context, line string) (bool, error) {
	frame, err := ParseFrame(line, r.slotCount)
	if errors.Is(err, ErrNotFrame) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	at := r.now()
	description, changed := r.detector.Observe(frame, at)
	if !changed {
		return false, nil
	}

	var errs []error
	if r.log != nil {
		if err := r.log.Append(ctx, at, frame, description); err != nil {
			errs = append(errs, err)
		}
	}
	if r.sink != nil {
		if _, err := r.sink.ApplyOccupancy(ctx, frame.Slots, description); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return true, err
	}

	log.Printf("[sensor] state change saved: %s (available=%d)", description, frame.Available)
	return true, nil
}

// Run processes lines from src until it ends or ctx is cancelled, then
// closes the daily log.
func (r *Runner) Run(ctx context.Context, src io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(src)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	defer func() {
		if r.log == nil {
			return
		}
		if err := r.log.Close(context.WithoutCancel(ctx)); err != nil {
			log.Printf("[sensor] failed to close log: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if _, err := r.Handle(ctx, line); err != nil {
				log.Printf("[sensor] dropped line: %v", err)
			}
		}
	}
}

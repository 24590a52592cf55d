package progress

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/heyjunin/HLSgrab/pkg/errors"
	"github.com/heyjunin/HLSgrab/pkg/logger"
)

// Status is the lifecycle status carried by every Event.
type Status string

const (
	StatusStarted    Status = "started"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s ends the event stream.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Event is a single progress update, often serialized to JSON.
type Event struct {
	// Status indicates the overall job status.
	Status Status `json:"status"`
	// Fraction is the completed share of the job in [0, 1]. It never decreases.
	Fraction float64 `json:"fraction"`
	// Percentage is Fraction scaled to 0-100.
	Percentage float64 `json:"percentage"`
	// Stage names the current phase (e.g., "probing", "remux", "segments", "merge").
	Stage string `json:"stage,omitempty"`
	// Message is the human readable status text.
	Message string `json:"message,omitempty"`
	// Error is set on the failed terminal event.
	Error string `json:"error,omitempty"`
	// Timestamp marks when the event occurred in RFC3339 format.
	Timestamp string `json:"timestamp"`
}

// JSON returns the event as a JSON string.
func (e Event) JSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal progress event: %w", err)
	}
	return string(data), nil
}

// Sink receives every event the channel emits, including the terminal one.
// Sinks are called with the channel's lock held and must not call back into it.
type Sink interface {
	Handle(Event)
}

// channelOptions holds configuration for a Channel.
type channelOptions struct {
	throttle   time.Duration
	bufferSize int
	sinks      []Sink
}

// Option configures a Channel.
type Option func(*channelOptions)

// WithThrottle sets the minimum time interval between events sent to the Updates channel.
// Sinks still see every event. The terminal event is never throttled.
func WithThrottle(duration time.Duration) Option {
	return func(opts *channelOptions) {
		opts.throttle = duration
	}
}

// WithBufferSize sets the capacity of the Updates channel. Defaults to 16.
func WithBufferSize(n int) Option {
	return func(opts *channelOptions) {
		if n > 0 {
			opts.bufferSize = n
		}
	}
}

// WithSink attaches a sink, such as a BarSink or FileSink.
func WithSink(s Sink) Option {
	return func(opts *channelOptions) {
		if s != nil {
			opts.sinks = append(opts.sinks, s)
		}
	}
}

// Channel carries the progress fraction, status text and cancellation flag of one job.
// It has a single writer (the job) and any number of readers.
type Channel struct {
	opts channelOptions

	mu         sync.Mutex
	event      Event
	lastUpdate time.Time
	finished   bool
	updatesCh  chan Event

	cancelOnce sync.Once
	done       chan struct{}
}

// NewChannel creates a Channel in the started state.
func NewChannel(opts ...Option) *Channel {
	options := channelOptions{bufferSize: 16}
	for _, opt := range opts {
		opt(&options)
	}

	c := &Channel{
		opts: options,
		event: Event{
			Status:    StatusStarted,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		updatesCh: make(chan Event, options.bufferSize),
		done:      make(chan struct{}),
	}
	c.mu.Lock()
	c.emitInternal(true)
	c.mu.Unlock()
	return c
}

// Report sets the progress fraction and status message.
// The fraction is clamped to [0, 1] and never moves backwards. An empty message keeps the previous one.
func (c *Channel) Report(fraction float64, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	if fraction > c.event.Fraction {
		c.event.Fraction = fraction
		c.event.Percentage = fraction * 100
	}
	if message != "" {
		c.event.Message = message
	}
	c.event.Status = StatusProcessing
	c.event.Timestamp = time.Now().Format(time.RFC3339)
	c.emitInternal(false)
}

// SetStatus replaces the status message without touching the fraction.
func (c *Channel) SetStatus(message string) {
	c.Report(c.Fraction(), message)
}

// SetStage records the current phase name and emits an update.
func (c *Channel) SetStage(stage string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished || c.event.Stage == stage {
		return
	}
	c.event.Stage = stage
	c.event.Status = StatusProcessing
	c.event.Timestamp = time.Now().Format(time.RFC3339)
	c.emitInternal(true)
}

// Fraction returns the current progress fraction.
func (c *Channel) Fraction() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.event.Fraction
}

// Snapshot returns a copy of the latest event.
func (c *Channel) Snapshot() Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.event
}

// Cancel sets the cancellation flag. Only the first call has an effect; the flag is never unset.
func (c *Channel) Cancel() {
	c.cancelOnce.Do(func() {
		close(c.done)
		logger.Debug("Cancellation requested", "progress", nil)
	})
}

// Cancelled reports whether Cancel has been called.
func (c *Channel) Cancelled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the job is cancelled.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns a Cancelled error once the flag is set, nil otherwise.
// Jobs call it at every checkpoint.
func (c *Channel) Err() error {
	if c.Cancelled() {
		return errors.NewCancelled("")
	}
	return nil
}

// Updates returns the event stream. Intermediate events may be dropped if the reader
// falls behind; the terminal event is always delivered, after which the stream is closed.
func (c *Channel) Updates() <-chan Event {
	return c.updatesCh
}

// Finish emits the single terminal event and closes the stream. A nil err completes the job
// at fraction 1; a Cancelled error (or a set cancellation flag) yields the cancelled status;
// anything else yields failed. Later calls are ignored.
func (c *Channel) Finish(err error) Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return c.event
	}
	c.finished = true

	switch {
	case err == nil:
		c.event.Status = StatusCompleted
		c.event.Fraction = 1
		c.event.Percentage = 100
	case errors.IsType(err, errors.Cancelled) || c.Cancelled():
		c.event.Status = StatusCancelled
		c.event.Message = "Cancelled"
	default:
		c.event.Status = StatusFailed
		c.event.Error = err.Error()
	}
	c.event.Timestamp = time.Now().Format(time.RFC3339)

	c.emitInternal(true)
	close(c.updatesCh)
	return c.event
}

// emitInternal forwards the current event to the sinks and the Updates channel.
// Requires lock to be held by caller.
func (c *Channel) emitInternal(force bool) {
	for _, s := range c.opts.sinks {
		s.Handle(c.event)
	}

	now := time.Now()
	if !force && now.Sub(c.lastUpdate) < c.opts.throttle {
		return
	}
	c.lastUpdate = now

	if c.event.Status.Terminal() {
		// Make room by dropping the oldest pending event; only readers remove items.
		for {
			select {
			case c.updatesCh <- c.event:
				return
			default:
			}
			select {
			case <-c.updatesCh:
			default:
			}
		}
	}

	select {
	case c.updatesCh <- c.event:
	default:
	}
}

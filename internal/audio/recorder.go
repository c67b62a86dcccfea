package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stream delivers audio chunks from an open input device.
type Stream interface {
	// Next blocks until a chunk is available. It returns io.EOF when the
	// stream is exhausted and any other error when the device fails.
	Next() ([]byte, error)
	MIMEType() string
	// Close releases the underlying device. It must be safe to call more
	// than once and must unblock a pending Next.
	Close() error
}

// InputSource opens an audio stream. It abstracts the microphone so the
// pipeline is testable without real hardware.
type InputSource interface {
	Open(ctx context.Context) (Stream, error)
}

var ErrCaptureNotFound = errors.New("audio: capture not found")

type capture struct {
	stream    Stream
	startedAt time.Time
	stoppedAt time.Time

	mu     sync.Mutex
	chunks [][]byte
	done   chan struct{}
}

// Recorder runs open-ended capture sessions identified by opaque handles.
// Recording is bounded only by an explicit stop or cancel; in both cases the
// stream is released exactly once.
type Recorder struct {
	source InputSource

	mu       sync.Mutex
	captures map[string]*capture
}

func NewRecorder(source InputSource) *Recorder {
	return &Recorder{source: source, captures: make(map[string]*capture)}
}

// StartCapture opens the input source and begins buffering chunks. The
// returned handle identifies the session for StopCapture/Cancel/Elapsed.
func (r *Recorder) StartCapture(ctx context.Context) (string, error) {
	stream, err := r.source.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMicrophoneAccess, err)
	}

	c := &capture{
		stream:    stream,
		startedAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}
	handle := uuid.NewString()

	r.mu.Lock()
	r.captures[handle] = c
	r.mu.Unlock()

	go c.drain()
	return handle, nil
}

// Attach registers an already-open stream as a capture session, bypassing the
// input source. Used when the caller pushes chunks itself, as the websocket
// capture endpoint does.
func (r *Recorder) Attach(stream Stream) string {
	c := &capture{
		stream:    stream,
		startedAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}
	handle := uuid.NewString()

	r.mu.Lock()
	r.captures[handle] = c
	r.mu.Unlock()

	go c.drain()
	return handle
}

func (c *capture) drain() {
	defer close(c.done)
	for {
		chunk, err := c.stream.Next()
		if len(chunk) > 0 {
			c.mu.Lock()
			c.chunks = append(c.chunks, chunk)
			c.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// StopCapture ends the session and returns the buffered sample. The stream is
// closed before the buffer is read, so no chunk can arrive afterwards.
func (r *Recorder) StopCapture(handle string) (Sample, error) {
	c, err := r.take(handle)
	if err != nil {
		return Sample{}, err
	}

	_ = c.stream.Close()
	<-c.done
	c.stoppedAt = time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()
	size := 0
	for _, chunk := range c.chunks {
		size += len(chunk)
	}
	buf := make([]byte, 0, size)
	for _, chunk := range c.chunks {
		buf = append(buf, chunk...)
	}

	return Sample{
		Bytes:      buf,
		MIMEType:   c.stream.MIMEType(),
		CapturedAt: c.startedAt,
	}, nil
}

// Cancel ends the session and discards whatever was buffered. The device is
// still released.
func (r *Recorder) Cancel(handle string) error {
	c, err := r.take(handle)
	if err != nil {
		return err
	}
	_ = c.stream.Close()
	<-c.done
	return nil
}

// Elapsed reports how long the capture has been running. It exists for UI
// feedback only and carries no correctness weight.
func (r *Recorder) Elapsed(handle string) (time.Duration, error) {
	r.mu.Lock()
	c, ok := r.captures[handle]
	r.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrCaptureNotFound, handle)
	}
	return time.Since(c.startedAt), nil
}

func (r *Recorder) take(handle string) (*capture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.captures[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCaptureNotFound, handle)
	}
	delete(r.captures, handle)
	return c, nil
}

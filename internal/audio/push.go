package audio

import (
	"context"
	"io"
	"sync"
)

// PushStream is a Stream fed by an external producer, such as a websocket
// handler relaying browser microphone chunks.
type PushStream struct {
	mimeType string
	chunks   chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func NewPushStream(mimeType string, buffer int) *PushStream {
	if buffer <= 0 {
		buffer = 64
	}
	return &PushStream{
		mimeType: mimeType,
		chunks:   make(chan []byte, buffer),
		closed:   make(chan struct{}),
	}
}

// Push hands a chunk to the stream. Chunks pushed after close are dropped.
func (s *PushStream) Push(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	select {
	case <-s.closed:
	case s.chunks <- chunk:
	}
}

func (s *PushStream) Next() ([]byte, error) {
	select {
	case chunk := <-s.chunks:
		return chunk, nil
	case <-s.closed:
		// Drain anything buffered before reporting end of stream.
		select {
		case chunk := <-s.chunks:
			return chunk, nil
		default:
			return nil, io.EOF
		}
	}
}

func (s *PushStream) MIMEType() string { return s.mimeType }

func (s *PushStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// StreamSource adapts a pre-opened Stream to the InputSource contract.
type StreamSource struct {
	mu     sync.Mutex
	stream Stream
}

func NewStreamSource(stream Stream) *StreamSource {
	return &StreamSource{stream: stream}
}

func (s *StreamSource) Open(_ context.Context) (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil, io.ErrClosedPipe
	}
	st := s.stream
	s.stream = nil
	return st, nil
}

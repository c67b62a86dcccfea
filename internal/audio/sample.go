// Package audio acquires raw voice samples from an input source or an
// uploaded file. It performs no persistence; callers own the sample.
package audio

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrInvalidFileType marks an upload whose declared type is not audio.
	ErrInvalidFileType = errors.New("audio: file is not an audio type")
	// ErrMicrophoneAccess marks a failure to acquire the input device.
	ErrMicrophoneAccess = errors.New("audio: microphone access failed")
)

// Sample is an immutable captured audio clip.
type Sample struct {
	Bytes      []byte
	MIMEType   string
	CapturedAt time.Time
}

// FromFile builds a Sample from an uploaded file. The declared MIME type must
// begin with "audio/"; anything else is rejected before the body is read.
func FromFile(r io.Reader, mimeType string) (Sample, error) {
	if !strings.HasPrefix(strings.TrimSpace(mimeType), "audio/") {
		return Sample{}, fmt.Errorf("%w: %q", ErrInvalidFileType, mimeType)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Sample{}, fmt.Errorf("read audio file: %w", err)
	}
	return Sample{Bytes: data, MIMEType: strings.TrimSpace(mimeType), CapturedAt: time.Now().UTC()}, nil
}

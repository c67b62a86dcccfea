package voice

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/voiceback/voiceback/internal/audio"
)

// MockProvider is an in-process provider for tests and credential-less local
// runs. It counts calls so tests can assert on network-call boundaries.
type MockProvider struct {
	mu sync.Mutex

	CloneCalls int
	SynthCalls int
	ListCalls  int

	CloneErr error
	SynthErr error
	ListErr  error

	NextVoiceID string
	SynthResult Audio
	Voices      []ProviderVoice

	// LastSynthVoiceID records the voice id of the most recent synthesis so
	// tests can verify the id round-trips unchanged.
	LastSynthVoiceID string
	LastSynthText    string
	LastCloneName    string
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		NextVoiceID: "mock-voice-1",
		SynthResult: Audio{Bytes: []byte("mock audio"), MIMEType: "audio/mpeg"},
	}
}

func (p *MockProvider) CloneVoice(_ context.Context, _ audio.Sample, name string) (ClonedVoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloneCalls++
	p.LastCloneName = name
	if p.CloneErr != nil {
		return ClonedVoice{}, p.CloneErr
	}
	return ClonedVoice{
		LocalID:         uuid.NewString(),
		DisplayName:     name,
		ProviderVoiceID: p.NextVoiceID,
	}, nil
}

func (p *MockProvider) Synthesize(_ context.Context, text, voiceID string) (Audio, error) {
	if strings.TrimSpace(text) == "" {
		return Audio{}, ErrEmptyText
	}
	if strings.TrimSpace(voiceID) == "" {
		return Audio{}, ErrEmptyVoiceID
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthCalls++
	p.LastSynthVoiceID = voiceID
	p.LastSynthText = text
	if p.SynthErr != nil {
		return Audio{}, p.SynthErr
	}
	return p.SynthResult, nil
}

func (p *MockProvider) ListVoices(_ context.Context) ([]ProviderVoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListCalls++
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	out := make([]ProviderVoice, len(p.Voices))
	copy(out, p.Voices)
	return out, nil
}

package voice

import (
	"context"

	"github.com/voiceback/voiceback/internal/audio"
)

// ClonedVoice is a synthetic voice created from a user's sample. Identity for
// deduplication is ProviderVoiceID; LocalID only names the catalog entry.
type ClonedVoice struct {
	LocalID         string `json:"local_id"`
	DisplayName     string `json:"display_name"`
	ProviderVoiceID string `json:"provider_voice_id"`
	OwnerID         string `json:"owner_id,omitempty"`
}

// ProviderVoice is a voice listed by the provider, preset or cloned.
type ProviderVoice struct {
	VoiceID  string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// Audio is synthesized speech as returned by the provider.
type Audio struct {
	Bytes    []byte
	MIMEType string
}

// Cloner submits a voice sample and obtains a reusable voice identifier.
type Cloner interface {
	CloneVoice(ctx context.Context, sample audio.Sample, name string) (ClonedVoice, error)
}

// Synthesizer turns text into speech using a known voice identifier.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (Audio, error)
}

// Lister fetches the provider's voice inventory.
type Lister interface {
	ListVoices(ctx context.Context) ([]ProviderVoice, error)
}

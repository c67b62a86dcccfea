// Package pipeline wires capture, cloning, synthesis, the catalog and the
// generation log into the operations the HTTP layer exposes. Every attempt,
// success or failure, leaves exactly one log record and one notification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voiceback/voiceback/internal/audio"
	"github.com/voiceback/voiceback/internal/audioref"
	"github.com/voiceback/voiceback/internal/catalog"
	"github.com/voiceback/voiceback/internal/identity"
	"github.com/voiceback/voiceback/internal/notify"
	"github.com/voiceback/voiceback/internal/observability"
	"github.com/voiceback/voiceback/internal/voice"
	"github.com/voiceback/voiceback/internal/voicelog"
)

var ErrEmptyVoiceName = errors.New("pipeline: voice name must not be empty")

// Options collects the pipeline's collaborators. Recorder, Catalog, Log,
// Refs, Metrics, Cloner and Synthesizer are required; Lister and Identity
// may be nil.
type Options struct {
	Recorder    *audio.Recorder
	Cloner      voice.Cloner
	Synthesizer voice.Synthesizer
	Lister      voice.Lister
	Catalog     *catalog.Catalog
	Log         *voicelog.Log
	Refs        *audioref.Store
	Identity    identity.Provider
	Notifier    notify.Notifier
	Metrics     *observability.Metrics

	// DefaultVoiceID is the preset voice offered when cloning is unavailable.
	DefaultVoiceID string
	// HistoryLimit caps History listings; <= 0 means 50.
	HistoryLimit int
}

type Pipeline struct {
	recorder *audio.Recorder
	cloner   voice.Cloner
	synth    voice.Synthesizer
	lister   voice.Lister
	catalog  *catalog.Catalog
	log      *voicelog.Log
	refs     *audioref.Store
	identity identity.Provider
	notifier notify.Notifier
	metrics  *observability.Metrics

	defaultVoiceID string
	historyLimit   int
}

func New(opts Options) *Pipeline {
	if opts.Identity == nil {
		opts.Identity = identity.NewStaticProvider("", "")
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{}
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	return &Pipeline{
		recorder:       opts.Recorder,
		cloner:         opts.Cloner,
		synth:          opts.Synthesizer,
		lister:         opts.Lister,
		catalog:        opts.Catalog,
		log:            opts.Log,
		refs:           opts.Refs,
		identity:       opts.Identity,
		notifier:       opts.Notifier,
		metrics:        opts.Metrics,
		defaultVoiceID: opts.DefaultVoiceID,
		historyLimit:   opts.HistoryLimit,
	}
}

// DefaultVoiceID is the preset fallback voice.
func (p *Pipeline) DefaultVoiceID() string { return p.defaultVoiceID }

// StartCapture opens a microphone capture session.
func (p *Pipeline) StartCapture(ctx context.Context) (string, error) {
	handle, err := p.recorder.StartCapture(ctx)
	if err != nil {
		p.metrics.PipelineOperations.WithLabelValues("capture", "failure").Inc()
		p.notifier.Error("Microphone Access", err.Error())
		return "", err
	}
	p.metrics.ActiveCaptures.Inc()
	return handle, nil
}

// AttachStream registers an externally fed stream as a capture session.
func (p *Pipeline) AttachStream(stream audio.Stream) string {
	handle := p.recorder.Attach(stream)
	p.metrics.ActiveCaptures.Inc()
	return handle
}

// StopCapture ends a session and returns the buffered sample.
func (p *Pipeline) StopCapture(handle string) (audio.Sample, error) {
	sample, err := p.recorder.StopCapture(handle)
	if err != nil {
		return audio.Sample{}, err
	}
	p.metrics.ActiveCaptures.Dec()
	return sample, nil
}

// CancelCapture ends a session and discards the buffer.
func (p *Pipeline) CancelCapture(handle string) error {
	if err := p.recorder.Cancel(handle); err != nil {
		return err
	}
	p.metrics.ActiveCaptures.Dec()
	return nil
}

// CaptureElapsed reports how long a capture has been running.
func (p *Pipeline) CaptureElapsed(handle string) (time.Duration, error) {
	return p.recorder.Elapsed(handle)
}

// SaveSample records a captured sample in the generation log so it can be
// replayed or cloned later. The sample bytes are stored inline.
func (p *Pipeline) SaveSample(ctx context.Context, sample audio.Sample) voicelog.Record {
	rec := voicelog.Record{
		ID:        uuid.NewString(),
		Kind:      voicelog.KindSample,
		Success:   true,
		CreatedAt: sample.CapturedAt,
		AudioRef:  voicelog.EncodeAudioRef(sample.Bytes, sample.MIMEType),
		OwnerID:   p.ownerID(),
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	p.log.Record(ctx, rec)
	p.metrics.PipelineOperations.WithLabelValues("sample", "success").Inc()
	p.notifier.Success("Voice Sample Saved", "Your voice sample is stored in the log.")
	return rec
}

// Clone submits a sample to the provider and, on success, makes the new voice
// catalog-visible and records it. On failure the catalog is untouched and
// exactly one error record is written.
func (p *Pipeline) Clone(ctx context.Context, sample audio.Sample, name string) (voice.ClonedVoice, error) {
	if strings.TrimSpace(name) == "" {
		return voice.ClonedVoice{}, ErrEmptyVoiceName
	}

	cloned, err := p.cloner.CloneVoice(ctx, sample, name)
	if err != nil {
		p.metrics.PipelineOperations.WithLabelValues("clone", "failure").Inc()
		p.metrics.ProviderErrors.WithLabelValues("clone", errorKind(err)).Inc()
		p.log.Record(ctx, voicelog.Record{
			Kind:         voicelog.KindError,
			Success:      false,
			Text:         fmt.Sprintf("clone %q", name),
			ErrorMessage: err.Error(),
			OwnerID:      p.ownerID(),
		})
		p.notifier.Error("Voice Cloning Failed", err.Error())
		return voice.ClonedVoice{}, err
	}

	cloned.OwnerID = p.ownerID()
	p.catalog.Add(cloned)
	p.log.Record(ctx, voicelog.Record{
		Kind:    voicelog.KindClone,
		Success: true,
		VoiceID: cloned.ProviderVoiceID,
		Name:    cloned.DisplayName,
		OwnerID: cloned.OwnerID,
	})
	p.metrics.PipelineOperations.WithLabelValues("clone", "success").Inc()
	p.notifier.Success("Voice Cloned Successfully", "Your voice is ready for speech generation.")
	return cloned, nil
}

// Synthesis is the result of a successful Synthesize call. RefID resolves to
// the audio bytes until released.
type Synthesis struct {
	Audio  voice.Audio
	RefID  string
	Record voicelog.Record
}

// Synthesize generates speech for the given text and voice. A blank voice id
// falls back to the configured preset. The voice id is passed through to the
// provider exactly as given.
func (p *Pipeline) Synthesize(ctx context.Context, text, voiceID string) (Synthesis, error) {
	if strings.TrimSpace(voiceID) == "" {
		voiceID = p.defaultVoiceID
	}

	start := time.Now()
	out, err := p.synth.Synthesize(ctx, text, voiceID)
	if err != nil {
		p.metrics.PipelineOperations.WithLabelValues("synthesis", "failure").Inc()
		p.metrics.ProviderErrors.WithLabelValues("synthesis", errorKind(err)).Inc()
		p.log.Record(ctx, voicelog.Record{
			Kind:         voicelog.KindError,
			Success:      false,
			Text:         text,
			VoiceID:      voiceID,
			ErrorMessage: err.Error(),
			OwnerID:      p.ownerID(),
		})
		p.notifier.Error("Speech Generation Failed", err.Error())
		return Synthesis{}, err
	}
	p.metrics.ObserveSynthesisLatency(time.Since(start))

	rec := voicelog.Record{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Kind:      voicelog.KindSynthesis,
		Success:   true,
		Text:      text,
		VoiceID:   voiceID,
		AudioRef:  voicelog.EncodeAudioRef(out.Bytes, out.MIMEType),
		OwnerID:   p.ownerID(),
	}
	p.log.Record(ctx, rec)
	p.metrics.PipelineOperations.WithLabelValues("synthesis", "success").Inc()
	p.notifier.Success("Speech Generated", "Your text has been converted to speech.")

	return Synthesis{
		Audio:  out,
		RefID:  p.refs.Put(out.Bytes, out.MIMEType),
		Record: rec,
	}, nil
}

// VoiceInventory is the merged voice view: this client's cloned voices plus
// the provider's full listing when one is available.
type VoiceInventory struct {
	Cloned   []voice.ClonedVoice   `json:"cloned"`
	Provider []voice.ProviderVoice `json:"provider,omitempty"`
}

// Voices folds remotely persisted clone records into the catalog and returns
// the merged view. Store and provider failures degrade the listing instead of
// failing it; the catalog alone is always available.
func (p *Pipeline) Voices(ctx context.Context) VoiceInventory {
	records, err := p.log.List(ctx, voicelog.Filter{Kind: voicelog.KindClone})
	if err != nil {
		log.Printf("pipeline: listing clone records: %v", err)
	} else {
		p.catalog.MergeRemote(voicelog.CloneVoices(records))
	}

	inv := VoiceInventory{Cloned: p.catalog.All()}
	if p.lister != nil {
		provider, err := p.lister.ListVoices(ctx)
		if err != nil {
			log.Printf("pipeline: listing provider voices: %v", err)
		} else {
			inv.Provider = provider
		}
	}
	return inv
}

// History returns recent generation records, newest first, capped at the
// display limit.
func (p *Pipeline) History(ctx context.Context) ([]voicelog.Record, error) {
	return p.log.List(ctx, voicelog.Filter{Limit: p.historyLimit})
}

// HistoryRecord returns a single record by id.
func (p *Pipeline) HistoryRecord(ctx context.Context, id string) (voicelog.Record, bool, error) {
	return p.log.Get(ctx, id)
}

// HistoryAudio decodes the stored audio of a record back to playable bytes.
func (p *Pipeline) HistoryAudio(ctx context.Context, id string) ([]byte, string, error) {
	rec, ok, err := p.log.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !ok || rec.AudioRef == "" {
		return nil, "", voicelog.ErrNotAudioRef
	}
	return voicelog.DecodeAudioRef(rec.AudioRef)
}

// Audio resolves a transient synthesis ref.
func (p *Pipeline) Audio(id string) (audioref.Audio, error) {
	return p.refs.Get(id)
}

// ReleaseAudio drops a transient synthesis ref.
func (p *Pipeline) ReleaseAudio(id string) {
	p.refs.Release(id)
}

func (p *Pipeline) ownerID() string {
	user, ok := p.identity.CurrentUser()
	if !ok {
		return ""
	}
	return user.ID
}

// errorKind buckets a provider failure for the error counter.
func errorKind(err error) string {
	var pe *voice.ProviderError
	switch {
	case errors.Is(err, voice.ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, voice.ErrSubscriptionRequired):
		return "subscription_required"
	case errors.Is(err, voice.ErrVoiceNotFound):
		return "voice_not_found"
	case errors.Is(err, voice.ErrEmptyText), errors.Is(err, voice.ErrEmptyVoiceID):
		return "invalid_input"
	case errors.As(err, &pe):
		return "provider"
	default:
		return "other"
	}
}

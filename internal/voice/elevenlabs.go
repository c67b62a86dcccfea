// Package voice talks to the ElevenLabs cloning and synthesis API. Provider
// failures are classified once at the HTTP boundary into the error kinds in
// errors.go; nothing here retries.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voiceback/voiceback/internal/audio"
)

// Fixed synthesis parameters; not user-configurable.
const (
	synthStability       = 0.5
	synthSimilarityBoost = 0.75
)

// cloneFileName is the canonical name the sample is transmitted under,
// whatever it was called locally.
const cloneFileName = "voice_sample.wav"

const cloneDescription = "Voice cloned via VoiceBack"

// maxErrorBody caps how much of an error response body is read.
const maxErrorBody = 1 << 20

type ElevenLabsConfig struct {
	APIKey     string
	BaseURL    string
	ModelID    string
	HTTPClient *http.Client
}

// ElevenLabsClient implements Cloner, Synthesizer and Lister against the
// ElevenLabs HTTP API.
type ElevenLabsClient struct {
	cfg ElevenLabsConfig
}

func NewElevenLabsClient(cfg ElevenLabsConfig) *ElevenLabsClient {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 45 * time.Second}
	}
	return &ElevenLabsClient{cfg: cfg}
}

// CloneVoice submits the sample under the canonical file name and returns the
// provider-assigned voice identifier wrapped in a fresh catalog entry. A
// missing credential fails before any network call.
func (c *ElevenLabsClient) CloneVoice(ctx context.Context, sample audio.Sample, name string) (ClonedVoice, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return ClonedVoice{}, ErrMissingCredential
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "My cloned voice"
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("name", name); err != nil {
		return ClonedVoice{}, fmt.Errorf("build clone form: %w", err)
	}
	if err := form.WriteField("description", cloneDescription); err != nil {
		return ClonedVoice{}, fmt.Errorf("build clone form: %w", err)
	}
	part, err := form.CreatePart(fileHeader(cloneFileName, sample.MIMEType))
	if err != nil {
		return ClonedVoice{}, fmt.Errorf("build clone form: %w", err)
	}
	if _, err := part.Write(sample.Bytes); err != nil {
		return ClonedVoice{}, fmt.Errorf("build clone form: %w", err)
	}
	if err := form.Close(); err != nil {
		return ClonedVoice{}, fmt.Errorf("build clone form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/voices/add", &body)
	if err != nil {
		return ClonedVoice{}, err
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return ClonedVoice{}, fmt.Errorf("clone request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return ClonedVoice{}, classifyProviderError(res.StatusCode, raw)
	}

	var parsed struct {
		VoiceID string `json:"voice_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return ClonedVoice{}, fmt.Errorf("decode clone response: %w", err)
	}
	if strings.TrimSpace(parsed.VoiceID) == "" {
		return ClonedVoice{}, &ProviderError{HTTPStatus: res.StatusCode, Message: "response carried no voice_id"}
	}

	return ClonedVoice{
		LocalID:         uuid.NewString(),
		DisplayName:     name,
		ProviderVoiceID: parsed.VoiceID,
	}, nil
}

// Synthesize requests speech for text in the given voice. Empty inputs and a
// missing credential are rejected locally, before any network call.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text, voiceID string) (Audio, error) {
	if strings.TrimSpace(text) == "" {
		return Audio{}, ErrEmptyText
	}
	if strings.TrimSpace(voiceID) == "" {
		return Audio{}, ErrEmptyVoiceID
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return Audio{}, ErrMissingCredential
	}

	payload, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": c.cfg.ModelID,
		"voice_settings": map[string]any{
			"stability":        synthStability,
			"similarity_boost": synthSimilarityBoost,
		},
	})
	if err != nil {
		return Audio{}, fmt.Errorf("encode synthesis request: %w", err)
	}

	endpoint := c.cfg.BaseURL + "/text-to-speech/" + url.PathEscape(voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Audio{}, err
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return Audio{}, fmt.Errorf("synthesis request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return Audio{}, classifyProviderError(res.StatusCode, raw)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return Audio{}, fmt.Errorf("read synthesis audio: %w", err)
	}
	mimeType := strings.TrimSpace(res.Header.Get("Content-Type"))
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	return Audio{Bytes: data, MIMEType: mimeType}, nil
}

// ListVoices fetches the provider's voice inventory, presets included.
func (c *ElevenLabsClient) ListVoices(ctx context.Context) ([]ProviderVoice, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, ErrMissingCredential
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/voices", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list voices request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, classifyProviderError(res.StatusCode, raw)
	}

	var parsed struct {
		Voices []struct {
			VoiceID  string `json:"voice_id"`
			Name     string `json:"name"`
			Category string `json:"category"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode voices response: %w", err)
	}

	out := make([]ProviderVoice, 0, len(parsed.Voices))
	for _, v := range parsed.Voices {
		if strings.TrimSpace(v.VoiceID) == "" {
			continue
		}
		out = append(out, ProviderVoice{
			VoiceID:  strings.TrimSpace(v.VoiceID),
			Name:     strings.TrimSpace(v.Name),
			Category: strings.TrimSpace(v.Category),
		})
	}
	return out, nil
}

func fileHeader(filename, contentType string) textproto.MIMEHeader {
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	return h
}

package voicelog

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voiceback/voiceback/internal/store"
	"github.com/voiceback/voiceback/internal/voice"
)

// Kind classifies a generation record.
type Kind string

const (
	KindSample    Kind = "sample"
	KindClone     Kind = "clone"
	KindSynthesis Kind = "synthesis"
	KindError     Kind = "error"
)

// Record is one audit entry for a capture, clone or synthesis attempt.
// Records are append-only; nothing here mutates or deletes them.
type Record struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Kind         Kind      `json:"kind"`
	Text         string    `json:"text,omitempty"`
	AudioRef     string    `json:"audio_ref,omitempty"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	OwnerID      string    `json:"owner_id,omitempty"`
	VoiceID      string    `json:"voice_id,omitempty"`
	Name         string    `json:"name,omitempty"`
}

func (r Record) toRow() store.Row {
	row := store.Row{
		"kind":    string(r.Kind),
		"success": r.Success,
	}
	if r.ID != "" {
		row["id"] = r.ID
	}
	if !r.CreatedAt.IsZero() {
		row["created_at"] = r.CreatedAt
	}
	if r.Text != "" {
		row["text"] = r.Text
	}
	if r.AudioRef != "" {
		row["audio_data"] = r.AudioRef
	}
	if r.ErrorMessage != "" {
		row["error_message"] = r.ErrorMessage
	}
	if r.OwnerID != "" {
		row["user_id"] = r.OwnerID
	}
	if r.VoiceID != "" {
		row["voice_id"] = r.VoiceID
	}
	if r.Name != "" {
		row["name"] = r.Name
	}
	return row
}

func recordFromRow(row store.Row) Record {
	r := Record{
		Kind: Kind(asString(row["kind"])),
	}
	r.ID = asString(row["id"])
	if t, ok := row["created_at"].(time.Time); ok {
		r.CreatedAt = t
	}
	r.Text = asString(row["text"])
	r.AudioRef = asString(row["audio_data"])
	if b, ok := row["success"].(bool); ok {
		r.Success = b
	}
	r.ErrorMessage = asString(row["error_message"])
	r.OwnerID = asString(row["user_id"])
	r.VoiceID = asString(row["voice_id"])
	r.Name = asString(row["name"])
	return r
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// CloneVoices reconstructs catalog entries from remotely persisted records.
// Only successful clone records qualify; failures and bare samples never
// become catalog entries.
func CloneVoices(records []Record) []voice.ClonedVoice {
	var out []voice.ClonedVoice
	for _, r := range records {
		if r.Kind != KindClone || !r.Success || r.VoiceID == "" {
			continue
		}
		out = append(out, voice.ClonedVoice{
			LocalID:         r.ID,
			DisplayName:     r.Name,
			ProviderVoiceID: r.VoiceID,
			OwnerID:         r.OwnerID,
		})
	}
	return out
}

var ErrNotAudioRef = errors.New("voicelog: value is not an audio data reference")

// EncodeAudioRef stores audio inline as a base64 data URI, the same shape the
// stored rows have always used.
func EncodeAudioRef(data []byte, mimeType string) string {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeAudioRef is the single decode path from a stored audioRef back to
// playable bytes.
func DecodeAudioRef(ref string) (data []byte, mimeType string, err error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return nil, "", ErrNotAudioRef
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", ErrNotAudioRef
	}
	mimeType, enc, ok := strings.Cut(meta, ";")
	if !ok || enc != "base64" {
		return nil, "", ErrNotAudioRef
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("voicelog: decode audio ref: %w", err)
	}
	return data, mimeType, nil
}

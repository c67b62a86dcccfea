// Package httpapi exposes the voice pipeline over HTTP: sample upload, voice
// cloning, speech synthesis, the merged voice listing, generation history and
// a websocket capture endpoint.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/voiceback/voiceback/internal/audio"
	"github.com/voiceback/voiceback/internal/audioref"
	"github.com/voiceback/voiceback/internal/config"
	"github.com/voiceback/voiceback/internal/health"
	"github.com/voiceback/voiceback/internal/observability"
	"github.com/voiceback/voiceback/internal/pipeline"
	"github.com/voiceback/voiceback/internal/store"
	"github.com/voiceback/voiceback/internal/voice"
	"github.com/voiceback/voiceback/internal/voicelog"
)

// maxUploadBytes caps multipart sample uploads.
const maxUploadBytes = 25 << 20

type Server struct {
	cfg      config.Config
	pipeline *pipeline.Pipeline
	health   health.Report
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, p *pipeline.Pipeline, report health.Report, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		pipeline: p,
		health:   report,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections may drive a capture
				// session unless the deployment opts out.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/samples", s.handleSaveSample)
	r.Post("/v1/voices/clone", s.handleClone)
	r.Post("/v1/tts", s.handleSynthesize)
	r.Get("/v1/voices", s.handleListVoices)
	r.Get("/v1/history", s.handleHistory)
	r.Get("/v1/history/{id}/audio", s.handleHistoryAudio)
	r.Get("/v1/audio/{id}", s.handleAudioRef)
	r.Get("/v1/capture/ws", s.handleCaptureWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"writes_permitted": s.health.WritesPermitted(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	if s.health.Failed() {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]any{
		"status": readyStatus(s.health),
		"checks": s.health,
	})
}

func readyStatus(r health.Report) string {
	if r.Failed() {
		return "degraded"
	}
	return "ready"
}

// handleSaveSample accepts a multipart upload with a "file" part and records
// it as a voice sample.
func (s *Server) handleSaveSample(w http.ResponseWriter, r *http.Request) {
	sample, ok := s.sampleFromMultipart(w, r)
	if !ok {
		return
	}
	rec := s.pipeline.SaveSample(r.Context(), sample)
	respondJSON(w, http.StatusCreated, map[string]any{
		"id":         rec.ID,
		"created_at": rec.CreatedAt,
	})
}

// handleClone accepts either a multipart upload ("name" + "file") or a JSON
// body naming a previously saved sample.
func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	var (
		sample audio.Sample
		name   string
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		var ok bool
		sample, ok = s.sampleFromMultipart(w, r)
		if !ok {
			return
		}
		name = r.FormValue("name")
	} else {
		var req struct {
			Name     string `json:"name"`
			SampleID string `json:"sample_id"`
		}
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		name = req.Name
		if strings.TrimSpace(req.SampleID) == "" {
			respondError(w, http.StatusBadRequest, "invalid_request", "sample_id is required without a file upload")
			return
		}
		data, mime, err := s.pipeline.HistoryAudio(r.Context(), req.SampleID)
		if err != nil {
			if errors.Is(err, voicelog.ErrNotAudioRef) {
				respondError(w, http.StatusNotFound, "sample_not_found", "no stored audio for sample "+req.SampleID)
				return
			}
			s.respondPipelineError(w, err)
			return
		}
		sample = audio.Sample{Bytes: data, MIMEType: mime}
	}

	cloned, err := s.pipeline.Clone(r.Context(), sample, name)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cloned)
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text    string `json:"text"`
		VoiceID string `json:"voice_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	syn, err := s.pipeline.Synthesize(r.Context(), req.Text, req.VoiceID)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}

	mime := syn.Audio.MIMEType
	if mime == "" {
		mime = "audio/mpeg"
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("X-Audio-Ref", syn.RefID)
	w.Header().Set("X-Record-Id", syn.Record.ID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(syn.Audio.Bytes)
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.pipeline.Voices(r.Context()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := s.pipeline.History(r.Context())
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	// Strip inline audio from listings; it is served by the audio endpoint.
	out := make([]voicelog.Record, 0, len(recs))
	for _, rec := range recs {
		rec.AudioRef = ""
		out = append(out, rec)
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": out})
}

func (s *Server) handleHistoryAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, mime, err := s.pipeline.HistoryAudio(r.Context(), id)
	if err != nil {
		if errors.Is(err, voicelog.ErrNotAudioRef) {
			respondError(w, http.StatusNotFound, "audio_not_found", "no stored audio for record "+id)
			return
		}
		s.respondPipelineError(w, err)
		return
	}
	w.Header().Set("Content-Type", mime)
	_, _ = w.Write(data)
}

func (s *Server) handleAudioRef(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := s.pipeline.Audio(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "audio_not_found", "unknown audio ref "+id)
		return
	}
	if r.URL.Query().Get("release") == "1" {
		defer s.pipeline.ReleaseAudio(id)
	}
	w.Header().Set("Content-Type", a.MIMEType)
	_, _ = w.Write(a.Bytes)
}

func (s *Server) sampleFromMultipart(w http.ResponseWriter, r *http.Request) (audio.Sample, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return audio.Sample{}, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "multipart part \"file\" is required")
		return audio.Sample{}, false
	}
	defer file.Close()

	mime := header.Header.Get("Content-Type")
	sample, err := audio.FromFile(file, mime)
	if err != nil {
		if errors.Is(err, audio.ErrInvalidFileType) {
			respondError(w, http.StatusBadRequest, "invalid_file_type", err.Error())
		} else {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		}
		return audio.Sample{}, false
	}
	return sample, true
}

// respondPipelineError maps the pipeline error taxonomy onto HTTP statuses.
// Subscription-tier failures carry the preset voice id so a client can fall
// back to it.
func (s *Server) respondPipelineError(w http.ResponseWriter, err error) {
	var pe *voice.ProviderError
	switch {
	case errors.Is(err, voice.ErrEmptyText),
		errors.Is(err, voice.ErrEmptyVoiceID),
		errors.Is(err, pipeline.ErrEmptyVoiceName):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, voice.ErrMissingCredential):
		respondError(w, http.StatusBadRequest, "missing_credential", err.Error())
	case errors.Is(err, voice.ErrSubscriptionRequired):
		respondJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":             err.Error(),
			"code":              "subscription_required",
			"fallback_voice_id": s.pipeline.DefaultVoiceID(),
		})
	case errors.Is(err, voice.ErrVoiceNotFound):
		respondError(w, http.StatusNotFound, "voice_not_found", err.Error())
	case errors.Is(err, audio.ErrInvalidFileType):
		respondError(w, http.StatusBadRequest, "invalid_file_type", err.Error())
	case errors.Is(err, audioref.ErrNotFound):
		respondError(w, http.StatusNotFound, "audio_not_found", err.Error())
	case errors.Is(err, store.ErrPermissionDenied),
		errors.Is(err, store.ErrCollectionNotFound):
		respondError(w, http.StatusBadGateway, "store_error", err.Error())
	case errors.As(err, &pe):
		respondError(w, http.StatusBadGateway, "provider_error", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/voiceback/voiceback/internal/audio"
	"github.com/voiceback/voiceback/internal/audioref"
	"github.com/voiceback/voiceback/internal/catalog"
	"github.com/voiceback/voiceback/internal/config"
	"github.com/voiceback/voiceback/internal/health"
	"github.com/voiceback/voiceback/internal/notify"
	"github.com/voiceback/voiceback/internal/observability"
	"github.com/voiceback/voiceback/internal/pipeline"
	"github.com/voiceback/voiceback/internal/store"
	"github.com/voiceback/voiceback/internal/voice"
	"github.com/voiceback/voiceback/internal/voicelog"
)

var metricsSeq atomic.Int64

type testServer struct {
	srv      *Server
	ts       *httptest.Server
	provider *voice.MockProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Config{
		DefaultVoiceID: "EXAVITQu4vr4xnSDxMaL",
		AllowAnyOrigin: true,
	}
	metrics := observability.NewMetrics("test_httpapi_" + strconv.FormatInt(metricsSeq.Add(1), 10))
	st := store.NewInMemoryStore("voice_logs")
	vlog := voicelog.New(st, "voice_logs", notify.Discard{}, metrics)
	provider := voice.NewMockProvider()

	p := pipeline.New(pipeline.Options{
		Recorder:       audio.NewRecorder(nil),
		Cloner:         provider,
		Synthesizer:    provider,
		Lister:         provider,
		Catalog:        catalog.New(nil),
		Log:            vlog,
		Refs:           audioref.NewStore(),
		Notifier:       notify.Discard{},
		Metrics:        metrics,
		DefaultVoiceID: cfg.DefaultVoiceID,
	})

	report := health.Report{
		Reachability:     health.CheckResult{Status: health.StatusOK},
		CollectionExists: health.CheckResult{Status: health.StatusOK},
		InsertPermitted:  health.CheckResult{Status: health.StatusOK},
	}
	srv := New(cfg, p, report, metrics)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testServer{srv: srv, ts: ts, provider: provider}
}

func multipartSample(t *testing.T, fieldName, fileName, mime string, data []byte, extra map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range extra {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField(%q): %v", k, err)
		}
	}
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="` + fieldName + `"; filename="` + fileName + `"`}
	hdr["Content-Type"] = []string{mime}
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("part.Write: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipart close: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestSaveSampleAndFetchAudio(t *testing.T) {
	f := newTestServer(t)

	body, contentType := multipartSample(t, "file", "clip.wav", "audio/wav", []byte("wav bytes"), nil)
	res, err := http.Post(f.ts.URL+"/v1/samples", contentType, body)
	if err != nil {
		t.Fatalf("POST /v1/samples error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" {
		t.Fatal("missing id in response")
	}

	audioRes, err := http.Get(f.ts.URL + "/v1/history/" + created.ID + "/audio")
	if err != nil {
		t.Fatalf("GET audio error = %v", err)
	}
	defer audioRes.Body.Close()
	if audioRes.StatusCode != http.StatusOK {
		t.Fatalf("audio status = %d, want %d", audioRes.StatusCode, http.StatusOK)
	}
	got, _ := io.ReadAll(audioRes.Body)
	if string(got) != "wav bytes" {
		t.Fatalf("audio body = %q, want original bytes", got)
	}
	if ct := audioRes.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("audio content type = %q, want audio/wav", ct)
	}
}

func TestSaveSampleRejectsNonAudio(t *testing.T) {
	f := newTestServer(t)

	body, contentType := multipartSample(t, "file", "notes.txt", "text/plain", []byte("hello"), nil)
	res, err := http.Post(f.ts.URL+"/v1/samples", contentType, body)
	if err != nil {
		t.Fatalf("POST /v1/samples error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	var errRes errorResponse
	if err := json.NewDecoder(res.Body).Decode(&errRes); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errRes.Code != "invalid_file_type" {
		t.Fatalf("code = %q, want invalid_file_type", errRes.Code)
	}
}

func TestCloneUploadThenSynthesize(t *testing.T) {
	f := newTestServer(t)
	f.provider.NextVoiceID = "abc123"

	body, contentType := multipartSample(t, "file", "clip.wav", "audio/wav", []byte("wav bytes"),
		map[string]string{"name": "My voice"})
	res, err := http.Post(f.ts.URL+"/v1/voices/clone", contentType, body)
	if err != nil {
		t.Fatalf("POST clone error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(res.Body)
		t.Fatalf("clone status = %d, body %s", res.StatusCode, b)
	}
	var cloned voice.ClonedVoice
	if err := json.NewDecoder(res.Body).Decode(&cloned); err != nil {
		t.Fatalf("decode clone response: %v", err)
	}
	if cloned.ProviderVoiceID != "abc123" {
		t.Fatalf("provider voice id = %q, want abc123", cloned.ProviderVoiceID)
	}

	ttsBody, _ := json.Marshal(map[string]string{"text": "Hello world", "voice_id": cloned.ProviderVoiceID})
	ttsRes, err := http.Post(f.ts.URL+"/v1/tts", "application/json", bytes.NewReader(ttsBody))
	if err != nil {
		t.Fatalf("POST tts error = %v", err)
	}
	defer ttsRes.Body.Close()
	if ttsRes.StatusCode != http.StatusOK {
		t.Fatalf("tts status = %d, want %d", ttsRes.StatusCode, http.StatusOK)
	}
	if f.provider.LastSynthVoiceID != "abc123" {
		t.Fatalf("provider saw voice id %q, want abc123", f.provider.LastSynthVoiceID)
	}
	audioBytes, _ := io.ReadAll(ttsRes.Body)
	if len(audioBytes) == 0 {
		t.Fatal("tts returned empty audio")
	}

	refID := ttsRes.Header.Get("X-Audio-Ref")
	if refID == "" {
		t.Fatal("tts response missing X-Audio-Ref")
	}
	refRes, err := http.Get(f.ts.URL + "/v1/audio/" + refID + "?release=1")
	if err != nil {
		t.Fatalf("GET audio ref error = %v", err)
	}
	defer refRes.Body.Close()
	refBytes, _ := io.ReadAll(refRes.Body)
	if !bytes.Equal(refBytes, audioBytes) {
		t.Fatal("audio ref bytes differ from tts response")
	}

	goneRes, err := http.Get(f.ts.URL + "/v1/audio/" + refID)
	if err != nil {
		t.Fatalf("GET released ref error = %v", err)
	}
	defer goneRes.Body.Close()
	if goneRes.StatusCode != http.StatusNotFound {
		t.Fatalf("released ref status = %d, want %d", goneRes.StatusCode, http.StatusNotFound)
	}
}

func TestCloneFromSavedSample(t *testing.T) {
	f := newTestServer(t)

	body, contentType := multipartSample(t, "file", "clip.wav", "audio/wav", []byte("wav bytes"), nil)
	res, err := http.Post(f.ts.URL+"/v1/samples", contentType, body)
	if err != nil {
		t.Fatalf("POST /v1/samples error = %v", err)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	res.Body.Close()

	cloneBody, _ := json.Marshal(map[string]string{"name": "From history", "sample_id": created.ID})
	cloneRes, err := http.Post(f.ts.URL+"/v1/voices/clone", "application/json", bytes.NewReader(cloneBody))
	if err != nil {
		t.Fatalf("POST clone error = %v", err)
	}
	defer cloneRes.Body.Close()
	if cloneRes.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(cloneRes.Body)
		t.Fatalf("clone status = %d, body %s", cloneRes.StatusCode, b)
	}
	if f.provider.LastCloneName != "From history" {
		t.Fatalf("provider saw name %q, want From history", f.provider.LastCloneName)
	}
}

func TestCloneSubscriptionRequiredOffersFallback(t *testing.T) {
	f := newTestServer(t)
	f.provider.CloneErr = voice.ErrSubscriptionRequired

	body, contentType := multipartSample(t, "file", "clip.wav", "audio/wav", []byte("wav bytes"),
		map[string]string{"name": "My voice"})
	res, err := http.Post(f.ts.URL+"/v1/voices/clone", contentType, body)
	if err != nil {
		t.Fatalf("POST clone error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusPaymentRequired)
	}
	var payload struct {
		Code            string `json:"code"`
		FallbackVoiceID string `json:"fallback_voice_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Code != "subscription_required" {
		t.Fatalf("code = %q, want subscription_required", payload.Code)
	}
	if payload.FallbackVoiceID != "EXAVITQu4vr4xnSDxMaL" {
		t.Fatalf("fallback voice = %q, want preset", payload.FallbackVoiceID)
	}
}

func TestSynthesizeUnknownVoiceIs404(t *testing.T) {
	f := newTestServer(t)
	f.provider.SynthErr = voice.ErrVoiceNotFound

	body, _ := json.Marshal(map[string]string{"text": "Hello", "voice_id": "gone"})
	res, err := http.Post(f.ts.URL+"/v1/tts", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST tts error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestSynthesizeEmptyTextIs400(t *testing.T) {
	f := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"text": "   ", "voice_id": "v1"})
	res, err := http.Post(f.ts.URL+"/v1/tts", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST tts error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestVoicesAndHistoryListings(t *testing.T) {
	f := newTestServer(t)
	f.provider.NextVoiceID = "abc123"
	f.provider.Voices = []voice.ProviderVoice{{VoiceID: "EXAVITQu4vr4xnSDxMaL", Name: "Sarah", Category: "premade"}}

	body, contentType := multipartSample(t, "file", "clip.wav", "audio/wav", []byte("wav bytes"),
		map[string]string{"name": "My voice"})
	res, err := http.Post(f.ts.URL+"/v1/voices/clone", contentType, body)
	if err != nil {
		t.Fatalf("POST clone error = %v", err)
	}
	res.Body.Close()

	voicesRes, err := http.Get(f.ts.URL + "/v1/voices")
	if err != nil {
		t.Fatalf("GET voices error = %v", err)
	}
	defer voicesRes.Body.Close()
	var inv pipeline.VoiceInventory
	if err := json.NewDecoder(voicesRes.Body).Decode(&inv); err != nil {
		t.Fatalf("decode voices: %v", err)
	}
	if len(inv.Cloned) != 1 || inv.Cloned[0].ProviderVoiceID != "abc123" {
		t.Fatalf("cloned = %+v, want one entry for abc123", inv.Cloned)
	}
	if len(inv.Provider) != 1 || inv.Provider[0].Name != "Sarah" {
		t.Fatalf("provider = %+v, want Sarah", inv.Provider)
	}

	histRes, err := http.Get(f.ts.URL + "/v1/history")
	if err != nil {
		t.Fatalf("GET history error = %v", err)
	}
	defer histRes.Body.Close()
	var hist struct {
		Records []voicelog.Record `json:"records"`
	}
	if err := json.NewDecoder(histRes.Body).Decode(&hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Records) != 1 || hist.Records[0].Kind != voicelog.KindClone {
		t.Fatalf("history = %+v, want one clone record", hist.Records)
	}
	if hist.Records[0].AudioRef != "" {
		t.Fatal("history listing must not carry inline audio")
	}
}

func TestHealthAndReady(t *testing.T) {
	f := newTestServer(t)

	res, err := http.Get(f.ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	readyRes, err := http.Get(f.ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	defer readyRes.Body.Close()
	if readyRes.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d, want %d", readyRes.StatusCode, http.StatusOK)
	}
}

func TestReadyDegradedWhenStoreUnhealthy(t *testing.T) {
	f := newTestServer(t)
	f.srv.health = health.Report{
		Reachability:     health.CheckResult{Status: health.StatusFailed, Detail: "dial tcp"},
		CollectionExists: health.CheckResult{Status: health.StatusFailed},
		InsertPermitted:  health.CheckResult{Status: health.StatusFailed},
	}

	res, err := http.Get(f.ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want %d", res.StatusCode, http.StatusServiceUnavailable)
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != "degraded" {
		t.Fatalf("status = %q, want degraded", payload.Status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newTestServer(t)

	res, err := http.Get(f.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatal("metrics output missing runtime collectors")
	}
}

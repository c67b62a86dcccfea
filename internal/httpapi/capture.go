package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voiceback/voiceback/internal/audio"
)

type captureControl struct {
	Type string `json:"type"`
}

type captureResult struct {
	Type      string `json:"type"`
	RecordID  string `json:"record_id,omitempty"`
	Bytes     int    `json:"bytes,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleCaptureWS runs one capture session per connection. Binary frames are
// audio chunks; a text frame {"type":"stop"} ends the session and saves the
// sample, {"type":"cancel"} discards it, {"type":"elapsed"} reports recording
// time. Raw PCM uploads are wrapped in a WAV container before saving,
// selected with ?format=pcm16&sample_rate=16000.
func (s *Server) handleCaptureWS(w http.ResponseWriter, r *http.Request) {
	mime := strings.TrimSpace(r.URL.Query().Get("mime"))
	if mime == "" {
		mime = "audio/webm"
	}
	format := strings.TrimSpace(r.URL.Query().Get("format"))
	sampleRate := 16000
	if v := strings.TrimSpace(r.URL.Query().Get("sample_rate")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "sample_rate must be a positive integer")
			return
		}
		sampleRate = n
	}
	if !strings.HasPrefix(mime, "audio/") {
		respondError(w, http.StatusBadRequest, "invalid_file_type", "mime must be an audio type")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	stream := audio.NewPushStream(mime, 64)
	handle := s.pipeline.AttachStream(stream)
	saved := false
	defer func() {
		if !saved {
			_ = s.pipeline.CancelCapture(handle)
		}
	}()

	conn.SetReadLimit(4 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		switch msgType {
		case websocket.BinaryMessage:
			stream.Push(data)
		case websocket.TextMessage:
			var ctl captureControl
			if err := json.Unmarshal(data, &ctl); err != nil {
				writeCaptureResult(conn, captureResult{Type: "error", Error: "invalid control message"})
				continue
			}
			switch ctl.Type {
			case "stop":
				_ = stream.Close()
				sample, err := s.pipeline.StopCapture(handle)
				if err != nil {
					writeCaptureResult(conn, captureResult{Type: "error", Error: err.Error()})
					return
				}
				saved = true
				if format == "pcm16" {
					wav, err := audio.EncodeWAVPCM16LE(sample.Bytes, sampleRate)
					if err != nil {
						writeCaptureResult(conn, captureResult{Type: "error", Error: err.Error()})
						return
					}
					sample.Bytes = wav
					sample.MIMEType = "audio/wav"
				}
				rec := s.pipeline.SaveSample(r.Context(), sample)
				writeCaptureResult(conn, captureResult{Type: "saved", RecordID: rec.ID, Bytes: len(sample.Bytes)})
				return
			case "elapsed":
				d, err := s.pipeline.CaptureElapsed(handle)
				if err != nil {
					writeCaptureResult(conn, captureResult{Type: "error", Error: err.Error()})
					continue
				}
				writeCaptureResult(conn, captureResult{Type: "elapsed", ElapsedMS: d.Milliseconds()})
			case "cancel":
				saved = true
				_ = s.pipeline.CancelCapture(handle)
				writeCaptureResult(conn, captureResult{Type: "cancelled"})
				return
			default:
				writeCaptureResult(conn, captureResult{Type: "error", Error: "unknown control type " + ctl.Type})
			}
		}
	}
}

func writeCaptureResult(conn *websocket.Conn, res captureResult) {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = conn.WriteJSON(res)
}

package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func dialCapture(t *testing.T, baseURL, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/v1/capture/ws" + query
	conn, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	if res != nil {
		res.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readResult(t *testing.T, conn *websocket.Conn) captureResult {
	t.Helper()
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	var res captureResult
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("unmarshal result %q: %v", data, err)
	}
	return res
}

func TestCaptureWSStopSavesSample(t *testing.T) {
	f := newTestServer(t)
	conn := dialCapture(t, f.ts.URL, "?mime=audio/webm")

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("chunk one ")); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("chunk two")); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"elapsed"}`)); err != nil {
		t.Fatalf("write elapsed: %v", err)
	}
	if elapsed := readResult(t, conn); elapsed.Type != "elapsed" {
		t.Fatalf("elapsed result = %+v, want type elapsed", elapsed)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)); err != nil {
		t.Fatalf("write stop: %v", err)
	}

	res := readResult(t, conn)
	if res.Type != "saved" {
		t.Fatalf("result = %+v, want saved", res)
	}
	if res.RecordID == "" {
		t.Fatal("saved result missing record id")
	}
	if res.Bytes != len("chunk one chunk two") {
		t.Fatalf("saved bytes = %d, want %d", res.Bytes, len("chunk one chunk two"))
	}

	audioRes, err := http.Get(f.ts.URL + "/v1/history/" + res.RecordID + "/audio")
	if err != nil {
		t.Fatalf("GET saved audio: %v", err)
	}
	defer audioRes.Body.Close()
	body, _ := io.ReadAll(audioRes.Body)
	if string(body) != "chunk one chunk two" {
		t.Fatalf("saved audio = %q", body)
	}
	if ct := audioRes.Header.Get("Content-Type"); ct != "audio/webm" {
		t.Fatalf("saved audio content type = %q, want audio/webm", ct)
	}
}

func TestCaptureWSPCMWrappedAsWAV(t *testing.T) {
	f := newTestServer(t)
	conn := dialCapture(t, f.ts.URL, "?mime=audio/pcm&format=pcm16&sample_rate=16000")

	pcm := make([]byte, 320)
	if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)); err != nil {
		t.Fatalf("write stop: %v", err)
	}

	res := readResult(t, conn)
	if res.Type != "saved" {
		t.Fatalf("result = %+v, want saved", res)
	}
	if res.Bytes != 44+len(pcm) {
		t.Fatalf("saved bytes = %d, want %d (wav header + pcm)", res.Bytes, 44+len(pcm))
	}

	audioRes, err := http.Get(f.ts.URL + "/v1/history/" + res.RecordID + "/audio")
	if err != nil {
		t.Fatalf("GET saved audio: %v", err)
	}
	defer audioRes.Body.Close()
	body, _ := io.ReadAll(audioRes.Body)
	if string(body[0:4]) != "RIFF" {
		t.Fatalf("saved audio missing RIFF header: %q", body[:8])
	}
	if ct := audioRes.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("content type = %q, want audio/wav", ct)
	}
}

func TestCaptureWSCancelDiscards(t *testing.T) {
	f := newTestServer(t)
	conn := dialCapture(t, f.ts.URL, "")

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("chunk")); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"cancel"}`)); err != nil {
		t.Fatalf("write cancel: %v", err)
	}

	res := readResult(t, conn)
	if res.Type != "cancelled" {
		t.Fatalf("result = %+v, want cancelled", res)
	}

	histRes, err := http.Get(f.ts.URL + "/v1/history")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer histRes.Body.Close()
	var hist struct {
		Records []json.RawMessage `json:"records"`
	}
	if err := json.NewDecoder(histRes.Body).Decode(&hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Records) != 0 {
		t.Fatalf("history has %d records after cancel, want 0", len(hist.Records))
	}
}

func TestCaptureWSRejectsNonAudioMime(t *testing.T) {
	f := newTestServer(t)

	res, err := http.Get(f.ts.URL + "/v1/capture/ws?mime=text/plain")
	if err != nil {
		t.Fatalf("GET capture ws: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

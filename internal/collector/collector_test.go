package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/coffersTech/logbuf/internal/clock"
	"github.com/coffersTech/logbuf/internal/model"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const samplePayload = `{
	"bizInfo": [
		{"appKey":"shop","content":"login ok","type":1,"created":1,"url":"","userId":"u1"},
		{"appKey":"shop","content":"checkout","type":3,"created":2,"url":"","userId":"u1"}
	],
	"envInfo": {"network":{"online":true,"interfaces":["eth0"]},"platform":"linux/amd64","deviceMemory":8,"userAgent":"logbuf/0.1.0","instanceId":"inst-1"}
}`

func newTestServer(t *testing.T, tokens *TokenSet, onReport func(model.Payload)) *Server {
	t.Helper()
	s, err := NewServer(Options{Tokens: tokens, Clock: clock.Fake(epoch), Logger: zerolog.Nop(), OnReport: onReport})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func TestRegistry_Prune(t *testing.T) {
	fake := clock.Fake(epoch)
	r := NewRegistry(fake)

	r.Observe(Client{InstanceID: "stale"}, 1)
	fake.Advance(20 * time.Minute)
	r.Observe(Client{InstanceID: "fresh"}, 1)

	if n := r.Prune(10 * time.Minute); n != 1 {
		t.Errorf("Expected 1 pruned, got %d", n)
	}
	if _, ok := r.Get("stale"); ok {
		t.Error("stale should have been pruned")
	}
	if _, ok := r.Get("fresh"); !ok {
		t.Error("fresh should still exist")
	}
}

func TestRegistry_ObserveAccumulates(t *testing.T) {
	fake := clock.Fake(epoch)
	r := NewRegistry(fake)
	r.Observe(Client{InstanceID: "a"}, 2)
	fake.Advance(time.Minute)
	r.Observe(Client{InstanceID: "a"}, 3)

	c, _ := r.Get("a")
	if c.Reports != 2 || c.Records != 5 {
		t.Errorf("unexpected counters %+v", c)
	}
	if c.RegisteredAt != epoch.Unix() || c.LastSeenAt != epoch.Add(time.Minute).Unix() {
		t.Errorf("unexpected timestamps %+v", c)
	}
}

func TestRegistry_CleanupLoop(t *testing.T) {
	fake := clock.Fake(epoch)
	r := NewRegistry(fake)
	r.Observe(Client{InstanceID: "old"}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.RunCleanup(ctx, time.Minute, 10*time.Minute)
		close(done)
	}()
	fake.WaitForTimers(1)
	fake.Advance(15 * time.Minute)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := r.Get("old"); !ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := r.Get("old"); ok {
		t.Error("old should have been pruned by the loop")
	}
	cancel()
	<-done
}

func TestServer_HandleReport(t *testing.T) {
	var got model.Payload
	s := newTestServer(t, nil, func(p model.Payload) { got = p })

	req := httptest.NewRequest(http.MethodPost, "/api/report", strings.NewReader(samplePayload))
	req.RemoteAddr = "10.0.0.7:5555"
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var reply map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil || reply["accepted"] != 2 {
		t.Errorf("unexpected reply %s", w.Body.String())
	}
	if len(got.BizInfo) != 2 || got.BizInfo[1].Content != "checkout" || got.BizInfo[1].Type != 3 {
		t.Errorf("unexpected parsed records %+v", got.BizInfo)
	}
	if got.EnvInfo.DeviceMemory != 8 || len(got.EnvInfo.Network.Interfaces) != 1 {
		t.Errorf("unexpected env info %+v", got.EnvInfo)
	}

	c, ok := s.Registry().Get("inst-1")
	if !ok {
		t.Fatal("client should be registered")
	}
	if c.IP != "10.0.0.7" || c.Records != 2 {
		t.Errorf("unexpected client %+v", c)
	}
}

func TestServer_HandleReportZstd(t *testing.T) {
	s := newTestServer(t, nil, nil)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	body := enc.EncodeAll([]byte(samplePayload), nil)
	enc.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/report", bytes.NewReader(body))
	req.Header.Set("Content-Encoding", "zstd")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestServer_RejectsBadPayloads(t *testing.T) {
	s := newTestServer(t, nil, nil)
	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"not json", http.MethodPost, "{oops", http.StatusBadRequest},
		{"missing bizInfo", http.MethodPost, `{"envInfo":{}}`, http.StatusBadRequest},
		{"bizInfo not array", http.MethodPost, `{"bizInfo":{}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/report", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestServer_Auth(t *testing.T) {
	tokens, err := NewTokenSet("secret")
	if err != nil {
		t.Fatal(err)
	}
	s := newTestServer(t, tokens, nil)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/report", strings.NewReader(samplePayload))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestServer_ListClients(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.Registry().Observe(Client{InstanceID: "a"}, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var clients []Client
	if err := json.Unmarshal(w.Body.Bytes(), &clients); err != nil {
		t.Fatal(err)
	}
	if len(clients) != 1 || clients[0].InstanceID != "a" {
		t.Errorf("unexpected clients %+v", clients)
	}
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/report", strings.NewReader(samplePayload))
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), `logbuf_collector_records_total{app_key="shop"}`) {
		t.Error("metrics missing collector record counter")
	}
}

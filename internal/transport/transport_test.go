package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"

	"github.com/coffersTech/logbuf/internal/apperrors"
	"github.com/coffersTech/logbuf/internal/model"
)

func newTestClient(t *testing.T, opts ClientOptions) *Client {
	t.Helper()
	opts.Logger = zerolog.Nop()
	c, err := NewClient(opts)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestPost_Success(t *testing.T) {
	var gotAuth, gotAccept string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accepted":2}`))
	}))
	defer srv.Close()

	c := newTestClient(t, ClientOptions{APIKey: "tok"})
	resp, err := c.Post(context.Background(), srv.URL, []byte(`{"bizInfo":[]}`), time.Second)
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if resp.Status != http.StatusOK || !resp.JSON {
		t.Errorf("unexpected response %+v", resp)
	}
	if n := fastjson.GetInt(resp.Body, "accepted"); n != 2 {
		t.Errorf("Expected accepted 2, got %d", n)
	}
	if gotAuth != "Bearer tok" || gotAccept != "application/json" {
		t.Errorf("unexpected headers auth=%q accept=%q", gotAuth, gotAccept)
	}
	if string(gotBody) != `{"bizInfo":[]}` {
		t.Errorf("unexpected body %q", gotBody)
	}
}

func TestPost_CompressedBody(t *testing.T) {
	var decoded []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") != "zstd" {
			http.Error(w, "not compressed", http.StatusBadRequest)
			return
		}
		dec, err := zstd.NewReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer dec.Close()
		decoded, _ = io.ReadAll(dec)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, ClientOptions{Compress: true})
	if _, err := c.Post(context.Background(), srv.URL, []byte(`{"hello":"world"}`), time.Second); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if string(decoded) != `{"hello":"world"}` {
		t.Errorf("server decoded %q", decoded)
	}
}

func TestPost_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "invalid json advertised",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Write([]byte("{not json"))
			},
			check: func(t *testing.T, err error) {
				var target *apperrors.InvalidResponseBodyError
				if !errors.As(err, &target) {
					t.Errorf("Expected InvalidResponseBodyError, got %v", err)
				}
			},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			check: func(t *testing.T, err error) {
				var target *apperrors.StatusError
				if !errors.As(err, &target) || target.StatusCode != 500 {
					t.Errorf("Expected StatusError 500, got %v", err)
				}
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			check: func(t *testing.T, err error) {
				var target *apperrors.TimeoutError
				if !errors.As(err, &target) {
					t.Errorf("Expected TimeoutError, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			c := newTestClient(t, ClientOptions{})
			_, err := c.Post(context.Background(), srv.URL, []byte(`{}`), 50*time.Millisecond)
			tt.check(t, err)
		})
	}
}

func TestPost_PlainTextBodyAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, ClientOptions{})
	resp, err := c.Post(context.Background(), srv.URL, []byte(`{}`), time.Second)
	if err != nil {
		t.Fatalf("plain text response should succeed: %v", err)
	}
	if resp.JSON || string(resp.Body) != "ok" {
		t.Errorf("unexpected response %+v", resp)
	}
}

type recorder struct {
	mu     sync.Mutex
	bodies []string
}

func (r *recorder) handler(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.bodies = append(r.bodies, string(body))
	r.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

func TestBeacon_DeliversAndDrainsOnClose(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	b := NewBeacon(newTestClient(t, ClientOptions{}), 8, zerolog.Nop())
	for i := 0; i < 3; i++ {
		if !b.Send(srv.URL, []byte(`{}`)) {
			t.Fatal("Send should accept while open")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if rec.count() != 3 {
		t.Errorf("Expected 3 deliveries, got %d", rec.count())
	}
	if b.Send(srv.URL, []byte(`{}`)) {
		t.Error("Send after Close should be refused")
	}
}

func TestSender_ChoosesTransport(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	client := newTestClient(t, ClientOptions{})
	beacon := NewBeacon(client, 4, zerolog.Nop())
	s := NewSender(client, beacon, time.Second, zerolog.Nop())
	payload := model.Payload{BizInfo: []model.BizInfo{{AppKey: "app", Content: "hi"}}}

	if err := s.Send(context.Background(), srv.URL, payload, false); err != nil {
		t.Fatalf("POST send failed: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("POST should be synchronous, got %d deliveries", rec.count())
	}

	if err := s.Send(context.Background(), srv.URL, payload, true); err != nil {
		t.Fatalf("beacon send failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	beacon.Close(ctx)
	if rec.count() != 2 {
		t.Errorf("Expected 2 deliveries, got %d", rec.count())
	}

	if err := s.Send(context.Background(), srv.URL, payload, true); !errors.Is(err, ErrBeaconRejected) {
		t.Errorf("Expected ErrBeaconRejected from closed beacon, got %v", err)
	}
}

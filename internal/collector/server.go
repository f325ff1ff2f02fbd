// Package collector is a small ingest server for report payloads. It is meant
// for development and tests: it validates and counts what clients send, keeps
// a registry of reporting instances, and exposes Prometheus metrics.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"

	"github.com/coffersTech/logbuf/internal/clock"
	"github.com/coffersTech/logbuf/internal/metrics"
	"github.com/coffersTech/logbuf/internal/model"
)

// MaxBodySize caps an accepted request body, before decompression.
const MaxBodySize = 32 << 20

// Options configures a Server.
type Options struct {
	Tokens *TokenSet
	Clock  clock.Clock
	Logger zerolog.Logger

	// OnReport, if set, receives every accepted payload.
	OnReport func(model.Payload)
}

// Server handles report ingestion.
type Server struct {
	registry *Registry
	tokens   *TokenSet
	logger   zerolog.Logger
	onReport func(model.Payload)
	parser   fastjson.ParserPool
	decoder  *zstd.Decoder

	mu  sync.Mutex
	srv *http.Server
}

// NewServer returns a Server with its own client registry.
func NewServer(opts Options) (*Server, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &Server{
		registry: NewRegistry(opts.Clock),
		tokens:   opts.Tokens,
		logger:   opts.Logger,
		onReport: opts.OnReport,
		decoder:  dec,
	}, nil
}

// Registry returns the client registry.
func (s *Server) Registry() *Registry { return s.registry }

// Handler returns the routes:
//
//	POST /api/report   report payload (JSON, optionally zstd)
//	GET  /api/clients  registered clients
//	GET  /metrics      Prometheus metrics
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/report", s.AuthMiddleware(http.HandlerFunc(s.HandleReport)))
	mux.Handle("/api/clients", s.AuthMiddleware(http.HandlerFunc(s.HandleListClients)))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info().Str("addr", addr).Msg("collector listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server and releases the decoder.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.decoder.Close()
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// HandleReport accepts a report payload.
// POST /api/report
func (s *Server) HandleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusRequestEntityTooLarge)
		return
	}
	defer r.Body.Close()

	if strings.EqualFold(r.Header.Get("Content-Encoding"), "zstd") {
		body, err = s.decoder.DecodeAll(body, nil)
		if err != nil {
			http.Error(w, "Invalid zstd body", http.StatusBadRequest)
			return
		}
	}

	payload, err := s.parsePayload(body)
	if err != nil {
		s.logger.Debug().Err(err).Msg("rejected report")
		http.Error(w, fmt.Sprintf("Invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	perApp := make(map[string]int)
	for _, rec := range payload.BizInfo {
		perApp[rec.AppKey]++
	}
	for appKey, n := range perApp {
		metrics.RecordsIngested(appKey, n)
	}

	if id := payload.EnvInfo.InstanceID; id != "" {
		s.registry.Observe(Client{
			InstanceID: id,
			Platform:   payload.EnvInfo.Platform,
			UserAgent:  payload.EnvInfo.UserAgent,
			IP:         remoteHost(r.RemoteAddr),
		}, len(payload.BizInfo))
	}
	if s.onReport != nil {
		s.onReport(payload)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"accepted": len(payload.BizInfo)})
}

func (s *Server) parsePayload(body []byte) (model.Payload, error) {
	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return model.Payload{}, err
	}
	records := v.Get("bizInfo")
	if records == nil || records.Type() != fastjson.TypeArray {
		return model.Payload{}, errors.New("bizInfo must be an array")
	}
	arr, _ := records.Array()

	payload := model.Payload{BizInfo: make([]model.BizInfo, 0, len(arr))}
	for _, val := range arr {
		payload.BizInfo = append(payload.BizInfo, model.BizInfo{
			AppKey:  string(val.GetStringBytes("appKey")),
			Content: string(val.GetStringBytes("content")),
			Type:    val.GetInt("type"),
			Created: val.GetInt64("created"),
			URL:     string(val.GetStringBytes("url")),
			UserID:  string(val.GetStringBytes("userId")),
		})
	}

	if env := v.Get("envInfo"); env != nil {
		payload.EnvInfo = model.EnvInfo{
			Network: model.Network{
				Online: env.GetBool("network", "online"),
			},
			Platform:     string(env.GetStringBytes("platform")),
			DeviceMemory: env.GetFloat64("deviceMemory"),
			UserAgent:    string(env.GetStringBytes("userAgent")),
			InstanceID:   string(env.GetStringBytes("instanceId")),
		}
		for _, iface := range env.GetArray("network", "interfaces") {
			payload.EnvInfo.Network.Interfaces = append(payload.EnvInfo.Network.Interfaces, string(iface.GetStringBytes()))
		}
	}
	return payload, nil
}

// HandleListClients returns registered clients.
// GET /api/clients
func (s *Server) HandleListClients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.registry.List())
}

func remoteHost(addr string) string {
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

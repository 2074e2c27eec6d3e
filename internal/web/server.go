// Package web serves the operational surface: health, account and engine
// state, the execution summary stream and prometheus metrics.
package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/ordinex/signalrelay/internal/domain"
	"github.com/ordinex/signalrelay/internal/engine"
	"github.com/ordinex/signalrelay/internal/registry"
	"github.com/ordinex/signalrelay/internal/storage/summaries"
)

const summaryPollInterval = 2 * time.Second

// SummaryReader is the journal view replayed to stream subscribers.
type SummaryReader interface {
	SummariesAfter(index uint64) ([]summaries.Record, error)
}

// AccountView is the registry slice surfaced by the status endpoint.
type AccountView interface {
	All() []registry.ManagedAccount
}

// StatsSource provides the engine tallies.
type StatsSource interface {
	Stats() engine.Stats
}

// PositionView exposes the open-position set for status and operator release.
type PositionView interface {
	List(ctx context.Context) ([]domain.PositionRecord, error)
	Delete(ctx context.Context, pair domain.Pair) error
}

// Server exposes the relay's HTTP endpoints. The metrics handler is injected
// so the server stays registry-agnostic.
type Server struct {
	addr      string
	logger    *zap.Logger
	summaries SummaryReader
	accounts  AccountView
	stats     StatsSource
	positions PositionView
	metrics   http.Handler
}

func NewServer(addr string, logger *zap.Logger, sums SummaryReader, accounts AccountView, stats StatsSource, positions PositionView, metrics http.Handler) *Server {
	return &Server{
		addr:      addr,
		logger:    logger,
		summaries: sums,
		accounts:  accounts,
		stats:     stats,
		positions: positions,
		metrics:   metrics,
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/summaries/stream", s.handleSummaryStream)
	mux.HandleFunc("/positions/close", s.handleClosePosition)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("status server listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "status server")
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic ACME certificates and
// an HTTP listener on port 80 for the HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return errors.New("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("acme challenge server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("acme challenge server failed", zap.Error(err))
		}
	}()

	s.logger.Info("status server listening with auto TLS",
		zap.String("addr", s.addr),
		zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "status server")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type accountStatus struct {
	ID          string `json:"id"`
	Platform    string `json:"platform"`
	Environment string `json:"environment"`
	Active      bool   `json:"active"`
	AutoTrade   bool   `json:"auto_trade"`
	Leverage    int    `json:"leverage"`
}

type positionStatus struct {
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side"`
	OpenedAt time.Time `json:"opened_at"`
	Accounts []string  `json:"accounts"`
}

type statusResponse struct {
	Accounts  []accountStatus  `json:"accounts"`
	Engine    engine.Stats     `json:"engine"`
	Positions []positionStatus `json:"open_positions"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Accounts:  []accountStatus{},
		Positions: []positionStatus{},
	}

	if s.accounts != nil {
		for _, ma := range s.accounts.All() {
			resp.Accounts = append(resp.Accounts, accountStatus{
				ID:          ma.ID,
				Platform:    ma.Platform.String(),
				Environment: string(ma.Environment),
				Active:      ma.IsActive,
				AutoTrade:   ma.AutoTrade,
				Leverage:    ma.Leverage,
			})
		}
	}
	if s.stats != nil {
		resp.Engine = s.stats.Stats()
	}
	if s.positions != nil {
		records, err := s.positions.List(r.Context())
		if err != nil {
			s.logger.Error("position list failed", zap.Error(err))
			http.Error(w, "position store unavailable", http.StatusInternalServerError)
			return
		}
		for _, rec := range records {
			resp.Positions = append(resp.Positions, positionStatus{
				Symbol:   rec.Pair.String(),
				Side:     rec.Side.String(),
				OpenedAt: rec.OpenedAt,
				Accounts: rec.Accounts,
			})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleClosePosition releases a symbol's open-position claim so it can
// qualify again. Used when exits are managed manually.
func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.positions == nil {
		http.Error(w, "position store unavailable", http.StatusServiceUnavailable)
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "missing symbol parameter", http.StatusBadRequest)
		return
	}
	pair, err := domain.ParsePair(symbol)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.positions.Delete(r.Context(), pair); err != nil {
		s.logger.Error("position release failed",
			zap.String("pair", pair.String()),
			zap.Error(err))
		http.Error(w, "failed to release position", http.StatusInternalServerError)
		return
	}

	s.logger.Info("position released by operator", zap.String("pair", pair.String()))
	writeJSON(w, http.StatusOK, map[string]string{"closed": pair.String()})
}

func (s *Server) handleSummaryStream(w http.ResponseWriter, r *http.Request) {
	if s.summaries == nil {
		http.Error(w, "summary journal unavailable", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// comment heartbeat keeps proxies from dropping idle connections
	heartbeat := time.NewTicker(20 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(summaryPollInterval)
	defer pollTicker.Stop()

	lastIndex := parseLastEventID(s.logger, r.Header.Get("Last-Event-ID"), r.URL.Query().Get("last_event_id"))
	sendSummaries := func() error {
		records, err := s.summaries.SummariesAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Summary)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: summary\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendSummaries(); err != nil {
		s.logger.Error("summary stream initial load failed", zap.Error(err))
		http.Error(w, "failed to load summaries", http.StatusInternalServerError)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendSummaries(); err != nil {
				s.logger.Warn("summary stream poll failed", zap.Error(err))
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseLastEventID extracts an SSE cursor from the Last-Event-ID header or a
// query parameter. The header wins; the query form allows manual resumes.
func parseLastEventID(logger *zap.Logger, headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		logger.Warn("invalid last event id", zap.String("value", idStr), zap.Error(err))
		return 0
	}
	return id
}

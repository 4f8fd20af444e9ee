package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"gridwatcher/internal/analytics"
	"gridwatcher/internal/config"
	"gridwatcher/internal/faults"
	"gridwatcher/internal/storage"
	"gridwatcher/internal/trading"
)

// Server exposes the dashboard JSON API.
type Server struct {
	cfg      config.ServerConfig
	readings storage.ReadingStore
	alerts   storage.AlertStore
	detector *faults.Detector
	market   *trading.Market
	logger   zerolog.Logger
	mux      *http.ServeMux
}

// NewServer wires the API handlers.
func NewServer(cfg config.ServerConfig, readings storage.ReadingStore, alerts storage.AlertStore, detector *faults.Detector, market *trading.Market, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		readings: readings,
		alerts:   alerts,
		detector: detector,
		market:   market,
		logger:   logger.With().Str("component", "api").Logger(),
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	s.mux.HandleFunc("/api/dashboard/", s.handleDashboardSeries)
	s.mux.HandleFunc("/api/fault_check", s.handleFaultCheck)
	s.mux.HandleFunc("/api/analytics/prediction", s.handlePrediction)
	s.mux.HandleFunc("/api/trading/recommendation", s.handleTradingRecommendation)
	s.mux.HandleFunc("/api/trading/execute", s.handleTradingExecute)
	s.mux.HandleFunc("/api/trading/schedule", s.handleTradingSchedule)

	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Run serves the API until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("dashboard api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// loadWindow fetches readings for the requested window; windows are
// bounded by server.max_hours.
func (s *Server) loadWindow(r *http.Request) ([]storage.Reading, error) {
	hours := s.cfg.DefaultHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := parseHours(raw, s.cfg.MaxHours)
		if err != nil {
			return nil, err
		}
		hours = parsed
	}

	if s.readings == nil {
		return nil, storage.ErrNotConfigured
	}

	now := time.Now().UTC()
	return s.readings.ListReadingsBetween(r.Context(), now.Add(-time.Duration(hours)*time.Hour), now)
}

func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	window, err := s.loadWindow(r)
	if err != nil {
		s.respondWindowError(w, err)
		return
	}

	prediction := analytics.PredictNextHour(time.Now().UTC(), window)
	s.writeJSON(w, http.StatusOK, prediction)
}

func (s *Server) handleFaultCheck(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		s.writeError(w, http.StatusServiceUnavailable, "alert store not configured")
		return
	}

	// Run one on-demand detector pass so the response reflects current data.
	if s.detector != nil && s.readings != nil {
		now := time.Now().UTC()
		window, err := s.readings.ListReadingsBetween(r.Context(), now.Add(-time.Hour), now)
		if err == nil {
			snapshot, compErr := analytics.Compute(window)
			if compErr == nil || errors.Is(compErr, analytics.ErrInsufficientData) {
				result := s.detector.Check(now, snapshot, window)
				for _, alert := range result.Alerts {
					if _, insertErr := s.alerts.InsertAlert(r.Context(), alert); insertErr != nil {
						s.logger.Error().Err(insertErr).Msg("failed to persist on-demand alert")
					}
				}
			}
		}
	}

	open, err := s.alerts.ListOpenAlerts(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list open alerts")
		s.writeJSON(w, http.StatusOK, []alertPayload{})
		return
	}

	payload := make([]alertPayload, 0, len(open))
	for _, alert := range open {
		payload = append(payload, toAlertPayload(alert))
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleTradingRecommendation(w http.ResponseWriter, r *http.Request) {
	if s.market == nil {
		s.writeError(w, http.StatusServiceUnavailable, "trading not configured")
		return
	}

	var latest *storage.Reading
	if s.readings != nil {
		if recent, err := s.readings.ListRecentReadings(r.Context(), 1); err == nil && len(recent) > 0 {
			latest = &recent[0]
		}
	}

	s.writeJSON(w, http.StatusOK, s.market.Recommend(time.Now().UTC(), latest))
}

func (s *Server) handleTradingExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.market == nil {
		s.writeError(w, http.StatusServiceUnavailable, "trading not configured")
		return
	}

	var req trading.TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx, err := s.market.Execute(r.Context(), time.Now().UTC(), req)
	if err != nil {
		if errors.Is(err, trading.ErrInvalidTrade) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("trade execution failed")
		s.writeError(w, http.StatusInternalServerError, "trade execution failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"transaction_id": tx.ID,
		"type":           tx.Type,
		"amount_kwh":     tx.AmountKWh,
		"total_value":    tx.TotalValue,
		"status":         tx.Status,
	})
}

func (s *Server) handleTradingSchedule(w http.ResponseWriter, r *http.Request) {
	if s.market == nil {
		s.writeError(w, http.StatusServiceUnavailable, "trading not configured")
		return
	}

	batteryPct := 50.0
	if s.readings != nil {
		if recent, err := s.readings.ListRecentReadings(r.Context(), 1); err == nil && len(recent) > 0 {
			batteryPct = recent[0].BatteryWh / 10000 * 100
		}
	}

	s.writeJSON(w, http.StatusOK, s.market.Schedule(time.Now().UTC(), 24, batteryPct))
}

func (s *Server) respondWindowError(w http.ResponseWriter, err error) {
	var paramErr *paramError
	switch {
	case errors.As(err, &paramErr):
		s.writeError(w, http.StatusBadRequest, paramErr.Error())
	case errors.Is(err, storage.ErrNotConfigured):
		s.writeError(w, http.StatusServiceUnavailable, "storage not configured")
	default:
		s.logger.Error().Err(err).Msg("failed to load reading window")
		s.writeError(w, http.StatusInternalServerError, "failed to load readings")
	}
}

type alertPayload struct {
	ID        int64     `json:"id"`
	Subsystem string    `json:"subsystem"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Resolved  bool      `json:"resolved"`
}

func toAlertPayload(alert storage.Alert) alertPayload {
	return alertPayload{
		ID:        alert.ID,
		Subsystem: alert.Subsystem,
		Severity:  alert.Severity,
		Message:   alert.Message,
		Timestamp: alert.Timestamp,
		Resolved:  alert.Resolved,
	}
}

// Package dashboard serves a read-only JSON view of the trade ledger.
package dashboard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/report"
	"github.com/eddiefleurent/scranton_condor/internal/storage"
)

// Server exposes ledger rows, statistics and per-strategy summaries.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	storage   storage.Interface
	logger    *logrus.Logger
	addr      string
	authToken string
	now       func() time.Time
}

// Config configures the listener.
type Config struct {
	Addr      string
	AuthToken string
}

// PositionView is a ledger row with its row index and decoded P/L.
type PositionView struct {
	Row          int      `json:"row"`
	Date         string   `json:"date"`
	EntryTime    string   `json:"entry_time"`
	Symbol       string   `json:"symbol"`
	Strategy     string   `json:"strategy"`
	StrategyID   string   `json:"strategy_id"`
	Legs         []string `json:"legs"`
	Credit       float64  `json:"credit"`
	BuyingPower  float64  `json:"buying_power"`
	ProfitTarget float64  `json:"profit_target_debit"`
	Status       string   `json:"status"`
	StatusText   string   `json:"status_text"`
	ExitTime     string   `json:"exit_time,omitempty"`
	ExitPL       *float64 `json:"exit_pl,omitempty"`
	IVRank       float64  `json:"iv_rank"`
	Notes        string   `json:"notes,omitempty"`
}

// NewServer builds a server over the ledger.
func NewServer(cfg Config, store storage.Interface, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		storage:   store,
		logger:    logger,
		addr:      cfg.Addr,
		authToken: cfg.AuthToken,
		now:       time.Now,
	}

	s.setupRoutes()
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Get("/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		if s.authToken != "" {
			r.Use(s.authMiddleware)
		}
		r.Get("/api/positions", s.handleGetPositions)
		r.Get("/api/positions/{row}", s.handleGetPosition)
		r.Get("/api/stats", s.handleGetStats)
		r.Get("/api/strategies", s.handleGetStrategies)
		r.Get("/api/daily/{date}", s.handleGetDaily)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("dashboard request")
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": s.now().Unix(),
	})
}

// handleGetPositions lists rows; ?status=OPEN|CLOSED|EXPIRED filters.
func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	filter := strings.TrimSpace(r.URL.Query().Get("status"))
	var want models.Status
	if filter != "" {
		want = models.ParseStatus(filter)
		if want != models.StatusOpen && !want.IsTerminal() {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
	}

	positions := s.storage.Positions()
	views := make([]PositionView, 0, len(positions))
	for i := range positions {
		if want != "" && models.ParseStatus(string(positions[i].Status)) != want {
			continue
		}
		views = append(views, toView(i, &positions[i]))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	row, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	positions := s.storage.Positions()
	if row < 0 || row >= len(positions) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, toView(row, &positions[row]))
}

func (s *Server) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.storage.GetStatistics())
}

func (s *Server) handleGetStrategies(w http.ResponseWriter, _ *http.Request) {
	summaries, err := report.ByStrategy(s.storage.Positions())
	if err != nil {
		s.logger.WithError(err).Error("Failed to summarize strategies")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	type strategyView struct {
		report.StrategySummary
		WinRate float64 `json:"win_rate"`
	}
	out := make([]strategyView, 0, len(summaries))
	for _, sm := range summaries {
		out = append(out, strategyView{StrategySummary: sm, WinRate: sm.WinRate()})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDaily(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"date": date,
		"pnl":  s.storage.GetDailyPnL(date),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func toView(row int, p *models.Position) PositionView {
	v := PositionView{
		Row:          row,
		Date:         p.Date,
		EntryTime:    p.EntryTime,
		Symbol:       p.Symbol,
		Strategy:     p.Strategy,
		StrategyID:   p.StrategyID,
		Legs:         p.LegSymbols(),
		Credit:       float64(p.CreditCollected),
		BuyingPower:  float64(p.BuyingPower),
		ProfitTarget: float64(p.ProfitTarget),
		ExitTime:     p.ExitTime,
		IVRank:       float64(p.IVRank),
		Notes:        p.Notes,
	}
	status := models.ParseStatus(string(p.Status))
	v.Status = string(status)
	v.StatusText = models.DescribeStatus(status)
	if p.ExitPL.Valid {
		pl := p.ExitPL.Value
		v.ExitPL = &pl
	}
	return v
}

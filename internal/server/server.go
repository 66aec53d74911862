package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/beekhof/astrocal/internal/app"
	"github.com/beekhof/astrocal/internal/auth"
	"github.com/beekhof/astrocal/internal/calendar"
	"github.com/beekhof/astrocal/internal/ical"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

var weekdays = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Server serves the month view over HTTP.
type Server struct {
	// ctx bounds navigation fetches. It outlives single requests so a
	// dropped connection cannot cancel a run halfway.
	ctx    context.Context
	ctrl   *app.Controller
	auth   *auth.BasicAuth
	addr   string
	logger *log.Logger
	now    func() time.Time
}

// New creates a server. basicAuth may be nil to leave the navigation
// endpoints open.
func New(ctrl *app.Controller, basicAuth *auth.BasicAuth, addr string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		ctx:    context.Background(),
		ctrl:   ctrl,
		auth:   basicAuth,
		addr:   addr,
		logger: logger,
		now:    time.Now,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/month", s.handleMonthJSON)
	mux.HandleFunc("GET /calendar.ics", s.handleICS)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /prev", s.auth.Require(s.handleNavigate(-1)))
	mux.HandleFunc("POST /next", s.auth.Require(s.handleNavigate(1)))
	mux.HandleFunc("POST /refresh", s.auth.Require(s.handleRefresh))

	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.ctx = ctx
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Starting server on http://%s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type pageData struct {
	Month    calendar.Month
	Weekdays []string
	Degraded bool
	Error    string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	out := s.ctrl.Current()
	data := pageData{
		Month:    out.Month,
		Weekdays: weekdays,
		Degraded: out.Degraded(),
	}
	if out.Err != nil {
		data.Error = out.Err.Error()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Printf("Error rendering index: %v", err)
	}
}

type monthResponse struct {
	calendar.Month
	Error    string    `json:"error,omitempty"`
	Degraded bool      `json:"degraded"`
	Rendered time.Time `json:"rendered_at"`
}

func (s *Server) handleMonthJSON(w http.ResponseWriter, r *http.Request) {
	out := s.ctrl.Current()
	resp := monthResponse{Month: out.Month, Degraded: out.Degraded(), Rendered: out.RenderedAt}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Printf("Error encoding month: %v", err)
	}
}

func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	month := s.ctrl.Current().Month

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=astrocal-%s.ics", month.Period))
	if err := ical.Encode(w, month, s.now()); err != nil {
		s.logger.Printf("Error writing calendar response: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleNavigate(direction int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := s.ctrl.Advance(s.ctx, direction)
		s.finish(w, r, out)
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.finish(w, r, s.ctrl.Refresh(s.ctx))
}

// finish redirects browsers back to the page, or answers API clients
// with the resulting month.
func (s *Server) finish(w http.ResponseWriter, r *http.Request, out app.Outcome) {
	if out.Degraded() {
		s.logger.Printf("Warning: %s %s rendered without fresh events: %v", r.Method, r.URL.Path, out.Err)
	}
	if r.Header.Get("Accept") == "application/json" {
		s.handleMonthJSON(w, r)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

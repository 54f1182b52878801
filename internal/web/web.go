package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classcal/internal/apperrors"
	"classcal/internal/config"
	"classcal/internal/conflict"
	"classcal/internal/ics"
	appLog "classcal/internal/log"
	"classcal/internal/model"
	"classcal/internal/schedule"
)

const serviceName = "classcal"

// Server exposes the session manager over HTTP.
type Server struct {
	cfg     *config.Config
	manager *schedule.Manager
	now     func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, manager *schedule.Manager) *Server {
	return &Server{cfg: cfg, manager: manager, now: time.Now}
}

// Handler returns the routed http.Handler for this server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		r.Use(s.basicAuthMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/classes", s.handleList)
	r.Get("/classes.ics", s.handleFeed)
	r.Post("/classes", s.handleCreate)
	r.Get("/classes/{id}", s.handleGet)
	r.Put("/classes/{id}", s.handleUpdate)
	r.Delete("/classes/{id}", s.handleDelete)

	r.Post("/check-conflict", s.handleCheckConflict)
	r.Get("/ai/suggest", s.handleSuggest)
	r.Get("/timezones", s.handleTimezones)
	r.Get("/delete-modes", s.handleDeleteModes)
	return r
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards every handler except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="classcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"service":   serviceName,
		"calendars": map[string]string{
			string(model.PartitionEven): s.cfg.Calendars.Even,
			string(model.PartitionOdd):  s.cfg.Calendars.Odd,
		},
	})
}

// GET /classes?calendar_type=both|even|odd
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.manager.List(r.Context(), r.URL.Query().Get("calendar_type"))
	if err != nil {
		writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleFeed serves the listed sessions as an iCalendar subscription.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("calendar_type")
	sessions, err := s.manager.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	name := "Classes"
	if filter == string(model.PartitionEven) || filter == string(model.PartitionOdd) {
		name += " (" + filter + ")"
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	if err := ics.Render(w, name, sessions, s.now()); err != nil {
		appLog.Error("failed to render ics feed", err)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req schedule.SessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := s.manager.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req schedule.SessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := s.manager.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// DELETE /classes/{id}?delete_mode=this|following|all
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	mode := model.DeleteMode(r.URL.Query().Get("delete_mode"))
	res, err := s.manager.Delete(r.Context(), chi.URLParam(r, "id"), mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCheckConflict(w http.ResponseWriter, r *http.Request) {
	var req conflict.Request
	if !decodeBody(w, r, &req) {
		return
	}
	rep, err := s.manager.CheckConflict(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GET /ai/suggest?teacher=Linh&duration_hours=1.5
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hours := 1.0
	if raw := q.Get("duration_hours"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeError(w, apperrors.New(apperrors.ErrValidation, "suggest", "duration_hours must be a positive number"))
			return
		}
		hours = v
	}

	slot, err := s.manager.SuggestSlot(r.Context(), strings.TrimSpace(q.Get("teacher")), time.Duration(hours*float64(time.Hour)))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func (s *Server) handleTimezones(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Timezones())
}

func (s *Server) handleDeleteModes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"modes":   []model.DeleteMode{model.DeleteThis, model.DeleteFollowing, model.DeleteAll},
		"default": s.manager.DefaultDeleteMode(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, apperrors.Wrapf(apperrors.ErrValidation, "decode", "malformed JSON body", err))
		return false
	}
	return true
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch {
	case apperrors.Is(err, apperrors.ErrValidation, apperrors.ErrInvalidTimestamp, apperrors.ErrInvalidInterval, apperrors.ErrInvalidTimezone):
		return http.StatusBadRequest
	case apperrors.Is(err, apperrors.ErrSessionNotFound, apperrors.ErrRemoteNotFound):
		return http.StatusNotFound
	case apperrors.Is(err, apperrors.ErrRemoteService, apperrors.ErrSuggestionService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	type errResp struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		appLog.Error("request failed", err, "status", status)
	}
	writeJSON(w, status, errResp{Error: err.Error(), Code: apperrors.Code(err)})
}

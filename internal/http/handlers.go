package http

import (
	"context"
	"net/http"
	"time"

	"budgetagent/internal/log"
	"budgetagent/internal/services"
)

// readyTimeout bounds the ledger ping behind /readyz.
const readyTimeout = 3 * time.Second

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "ledger unavailable").Write(w)
			return
		}
	}
	NewJSONResponse(map[string]string{"status": "ready"}).Write(w)
}

func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	body, err := ParseJSONBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	env, err := s.svc.Monthly(r.Context(), services.MonthlyRequest{
		UserID:         body.String("user_id"),
		Month:          body.String("month"),
		IncludeAI:      body.Bool("include_ai", true),
		IncludeCompare: body.Bool("include_compare", true),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse(env).Write(w)
}

func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	body, err := ParseJSONBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	env, err := s.svc.Weekly(r.Context(), services.WeeklyRequest{
		UserID:    body.String("user_id"),
		WeekStart: body.String("week_start"),
		IncludeAI: body.Bool("include_ai", true),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse(env).Write(w)
}

func (s *Server) handleEntryCreated(w http.ResponseWriter, r *http.Request) {
	body, err := ParseJSONBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	env, err := s.svc.OnEntryCreated(r.Context(), services.EntryCreatedRequest{
		EntryID:        body.String("entry_id"),
		UserID:         body.String("user_id"),
		Month:          body.String("month"),
		IncludeAI:      body.Bool("include_ai", false),
		IncludeCompare: body.Bool("include_compare", true),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse(env).Write(w)
}

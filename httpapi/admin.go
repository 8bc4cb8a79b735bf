package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/MrEthical07/sessioncore"
	"github.com/MrEthical07/sessioncore/middleware"
)

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Sweep(r.Context())
	if err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) handleSecurityReport(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, s.engine.SecurityReport())
}

// handleListEvents filters by type, severity, userId, ip, since, until
// (RFC 3339), unresolved and limit.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	f, err := eventFilter(r)
	if err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	events, err := s.engine.SecurityEvents(r.Context(), f)
	if err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	if events == nil {
		events = []sessioncore.SecurityEvent{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleResolveEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ResolveSecurityEvent(r.Context(), mux.Vars(r)["id"]); err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func eventFilter(r *http.Request) (sessioncore.EventFilter, error) {
	q := r.URL.Query()
	f := sessioncore.EventFilter{
		Type:      q.Get("type"),
		Severity:  q.Get("severity"),
		UserID:    q.Get("userId"),
		IPAddress: q.Get("ip"),
	}
	var err error
	if f.Since, err = parseTime(q.Get("since")); err != nil {
		return f, err
	}
	if f.Until, err = parseTime(q.Get("until")); err != nil {
		return f, err
	}
	if v := q.Get("unresolved"); v != "" {
		if f.UnresolvedOnly, err = strconv.ParseBool(v); err != nil {
			return f, middleware.ErrBadRequest
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			return f, middleware.ErrBadRequest
		}
	}
	return f, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, middleware.ErrBadRequest
	}
	return t, nil
}

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/plantops/invaudit/audit"
	"github.com/plantops/invaudit/internal/inventory"
)

func (s *Server) createEquipment(w http.ResponseWriter, r *http.Request) {
	var e inventory.Equipment
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.CreateEquipment(r.Context(), s.querier(r), &e); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, e)
}

func (s *Server) getEquipment(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.GetEquipment(r.Context(), s.querier(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, e)
}

func (s *Server) listEquipment(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListEquipment(r.Context(), s.querier(r), r.URL.Query().Get("cell_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"equipment": list})
}

func (s *Server) updateEquipment(w http.ResponseWriter, r *http.Request) {
	var e inventory.Equipment
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e.ID = chi.URLParam(r, "id")
	if err := s.store.UpdateEquipment(r.Context(), s.querier(r), &e); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, e)
}

func (s *Server) deleteEquipment(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteEquipment(r.Context(), s.querier(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createPLC(w http.ResponseWriter, r *http.Request) {
	var p inventory.PLC
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.CreatePLC(r.Context(), s.querier(r), &p); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, p)
}

func (s *Server) updatePLC(w http.ResponseWriter, r *http.Request) {
	var p inventory.PLC
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p.ID = chi.URLParam(r, "id")
	if err := s.store.UpdatePLC(r.Context(), s.querier(r), &p); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, p)
}

func (s *Server) deletePLC(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePLC(r.Context(), s.querier(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createTag(w http.ResponseWriter, r *http.Request) {
	var t inventory.Tag
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.CreateTag(r.Context(), s.querier(r), &t); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, t)
}

func (s *Server) deleteTag(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTag(r.Context(), s.querier(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := audit.Query(r.Context(), s.db, filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	total, err := audit.Count(r.Context(), s.db, filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]any{
		"records": records,
		"total":   total,
	})
}

// parseAuditFilter maps query parameters onto an audit filter. Unknown
// values for bounded fields are rejected rather than silently ignored.
func parseAuditFilter(q map[string][]string) (audit.Filter, error) {
	get := func(key string) string {
		if vals := q[key]; len(vals) > 0 {
			return vals[0]
		}
		return ""
	}

	f := audit.DefaultFilter()
	f.Table = get("table")
	f.RecordID = get("record_id")
	f.UserID = get("user_id")

	switch action := get("action"); action {
	case "", "INSERT", "UPDATE", "DELETE":
		f.Action = audit.Action(action)
	default:
		return audit.Filter{}, errors.New("action must be one of INSERT, UPDATE, DELETE")
	}

	switch level := get("risk_level"); level {
	case "", "LOW", "MEDIUM", "HIGH", "CRITICAL":
		f.RiskLevel = audit.RiskLevel(level)
	default:
		return audit.Filter{}, errors.New("risk_level must be one of LOW, MEDIUM, HIGH, CRITICAL")
	}

	if since := get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return audit.Filter{}, errors.New("since must be RFC 3339")
		}
		f.Since = &t
	}
	if until := get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return audit.Filter{}, errors.New("until must be RFC 3339")
		}
		f.Until = &t
	}

	if limit := get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > 1000 {
			return audit.Filter{}, errors.New("limit must be between 1 and 1000")
		}
		f.Limit = n
	}
	if offset := get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			return audit.Filter{}, errors.New("offset must be non-negative")
		}
		f.Offset = n
	}
	return f, nil
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respond(w, status, map[string]string{"error": msg})
}

// fail maps store errors to responses. An audit write failure surfaces as
// a generic failed write: the mutation genuinely did not happen.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, inventory.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}

	var writeErr *audit.WriteError
	if errors.As(err, &writeErr) {
		s.logger.Error().Err(err).
			Str("table", writeErr.Table).
			Str("action", writeErr.Action.String()).
			Msg("mutation rolled back: audit record could not be written")
	} else {
		s.logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	s.respondError(w, http.StatusInternalServerError, "internal error")
}

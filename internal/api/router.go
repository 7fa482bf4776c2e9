// Package api exposes the inventory CRUD surface and the audit trail read
// endpoint over chi.
package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/plantops/invaudit/internal/httpmw"
	"github.com/plantops/invaudit/internal/inventory"
)

type Server struct {
	db     *sql.DB
	store  inventory.Store
	logger zerolog.Logger
}

// NewRouter assembles the middleware chain. Order matters: the principal
// must be resolved before the session binder runs, and the binder must run
// before any handler that mutates.
func NewRouter(pool *sql.DB, logger zerolog.Logger, binder *httpmw.SessionBinder) http.Handler {
	s := &Server{db: pool, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmw.PrincipalFromHeaders)
	r.Use(binder.Bind)

	r.Route("/api", func(r chi.Router) {
		r.Route("/equipment", func(r chi.Router) {
			r.Get("/", s.listEquipment)
			r.Post("/", s.createEquipment)
			r.Get("/{id}", s.getEquipment)
			r.Put("/{id}", s.updateEquipment)
			r.Delete("/{id}", s.deleteEquipment)
		})
		r.Route("/plcs", func(r chi.Router) {
			r.Post("/", s.createPLC)
			r.Put("/{id}", s.updatePLC)
			r.Delete("/{id}", s.deletePLC)
		})
		r.Route("/tags", func(r chi.Router) {
			r.Post("/", s.createTag)
			r.Delete("/{id}", s.deleteTag)
		})
		r.Get("/audit-logs", s.listAuditLogs)
	})

	return r
}

// querier prefers the request's session-bound connection so mutations
// carry the caller's audit context; the pool fallback keeps requests
// working when the binder degraded open.
func (s *Server) querier(r *http.Request) inventory.Querier {
	if conn, ok := httpmw.ConnFromContext(r.Context()); ok {
		return conn
	}
	return s.db
}

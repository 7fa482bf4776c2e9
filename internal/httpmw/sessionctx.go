package httpmw

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantops/invaudit/audit"
)

// DefaultSetupBudget is the wall-clock budget for checking out a
// connection and setting the session variables. The step runs on the hot
// path of every request and must stay invisible to end users; overruns
// are logged, never failed.
const DefaultSetupBudget = 10 * time.Millisecond

// SessionBinder is the session context setter plus request lifecycle
// binder: per request it dedicates one pooled connection, stamps the four
// audit session variables on it, and releases it exactly once when the
// request finishes or the client disconnects.
//
// Every failure on this path degrades open: the request proceeds
// unaudited-but-functional and the failure is logged. The opposite,
// degrade-closed policy lives in the audit engine.
type SessionBinder struct {
	db     *sql.DB
	logger zerolog.Logger
	budget time.Duration

	// now is replaceable for tests.
	now func() time.Time
}

func NewSessionBinder(db *sql.DB, logger zerolog.Logger) *SessionBinder {
	return &SessionBinder{
		db:     db,
		logger: logger,
		budget: DefaultSetupBudget,
		now:    time.Now,
	}
}

// WithBudget overrides the setup budget. Zero keeps the default.
func (b *SessionBinder) WithBudget(budget time.Duration) *SessionBinder {
	if budget > 0 {
		b.budget = budget
	}
	return b
}

// Bind is the middleware. It must run after principal resolution and
// before any handler that issues mutating statements.
func (b *SessionBinder) Bind(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := b.now()

		sc := audit.SessionContext{
			IPAddress: ClientIP(r),
			UserAgent: r.UserAgent(),
		}
		if principal, ok := PrincipalFromContext(r.Context()); ok && principal.ID != "" {
			sc.UserID = principal.ID
			sc.SessionID = principal.SessionID
		} else {
			sc.UserID = audit.SentinelUserID
			b.logger.Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("no authenticated principal, binding sentinel actor to session")
		}

		conn, err := b.db.Conn(r.Context())
		if err != nil {
			b.logger.Error().Err(err).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("audit session connection unavailable, request proceeds unaudited")
			next.ServeHTTP(w, r)
			return
		}

		if err := sc.Apply(r.Context(), conn); err != nil {
			b.logger.Error().Err(err).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("failed to set audit session context, request proceeds unaudited")
			_ = conn.Close()
			next.ServeHTTP(w, r)
			return
		}

		if elapsed := b.now().Sub(start); elapsed > b.budget {
			b.logger.Warn().
				Int64("duration_ms", elapsed.Milliseconds()).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("audit session context setup exceeded budget")
		}

		rel := newReleaser(conn.Close, b.logger)
		// Covers the client disconnecting mid-request; the deferred call
		// covers normal completion. Whichever fires second is a no-op.
		stop := context.AfterFunc(r.Context(), rel.release)
		defer stop()
		defer rel.release()

		next.ServeHTTP(w, r.WithContext(withConn(r.Context(), conn)))
	})
}

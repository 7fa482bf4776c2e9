// Package httpmw carries the request-scoped audit context: it binds a
// dedicated database connection to each request, sets the audit session
// variables on it, and guarantees the connection is released exactly once
// when the request ends.
package httpmw

import (
	"context"
	"database/sql"
	"net/http"
)

// Principal is the already-resolved authenticated caller. Authentication
// itself happens upstream; this package only consumes the result.
type Principal struct {
	ID        string
	SessionID string
}

type principalKey struct{}
type connKey struct{}

// WithPrincipal binds the resolved principal to the request context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the bound principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// withConn binds the request's dedicated database connection.
func withConn(ctx context.Context, conn *sql.Conn) context.Context {
	return context.WithValue(ctx, connKey{}, conn)
}

// ConnFromContext returns the request's dedicated connection. Handlers
// fall back to the shared pool when no connection was bound (degrade-open
// path); mutations then still get audited, attributed to the sentinel.
func ConnFromContext(ctx context.Context) (*sql.Conn, bool) {
	conn, ok := ctx.Value(connKey{}).(*sql.Conn)
	return conn, ok
}

// PrincipalFromHeaders resolves the principal an upstream gateway placed
// in trusted headers. It stands in for the real authentication layer.
func PrincipalFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := WithPrincipal(r.Context(), Principal{
			ID:        userID,
			SessionID: r.Header.Get("X-Session-ID"),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

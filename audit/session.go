package audit

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
)

// Session variable keys. These are connection-scoped PostgreSQL settings:
// visible to every statement on the connection that set them, invisible to
// every other connection.
const (
	SessionKeyUserID    = "audit.user_id"
	SessionKeyIPAddress = "audit.ip_address"
	SessionKeyUserAgent = "audit.user_agent"
	SessionKeySessionID = "audit.session_id"
)

// SessionContext is the per-request caller identity bound to one database
// connection for the request's lifetime. Values carry no meaning outside
// that lifetime; every checkout must overwrite all four variables.
type SessionContext struct {
	UserID    string
	IPAddress string
	UserAgent string
	SessionID string
}

// Apply writes all four session variables on conn with parameterized
// set_config statements. After it returns without error, every statement
// executed on conn for the remainder of the request observes the values,
// including statements inside nested transactions.
func (sc SessionContext) Apply(ctx context.Context, conn *sql.Conn) error {
	pairs := [...][2]string{
		{SessionKeyUserID, sc.UserID},
		{SessionKeyIPAddress, sc.IPAddress},
		{SessionKeyUserAgent, sc.UserAgent},
		{SessionKeySessionID, sc.SessionID},
	}
	for _, pair := range pairs {
		if _, err := conn.ExecContext(ctx, `SELECT set_config($1, $2, false)`, pair[0], pair[1]); err != nil {
			return fmt.Errorf("set session variable %s: %w", pair[0], err)
		}
	}
	return nil
}

// clearSessionSQL blanks all four variables in one round trip. It runs on
// every checkout of a previously used pooled connection, so a consumer
// that skips the middleware can never inherit the previous request's
// identity; its mutations fall through to the sentinel instead.
const clearSessionSQL = `SELECT set_config('` + SessionKeyUserID + `', '', false),
	set_config('` + SessionKeyIPAddress + `', '', false),
	set_config('` + SessionKeyUserAgent + `', '', false),
	set_config('` + SessionKeySessionID + `', '', false)`

// clearSession resets the session variables on a raw driver connection.
func clearSession(ctx context.Context, conn driver.Conn) error {
	if execer, ok := conn.(driver.ExecerContext); ok {
		_, err := execer.ExecContext(ctx, clearSessionSQL, nil)
		return err
	}
	queryer, ok := conn.(driver.QueryerContext)
	if !ok {
		return fmt.Errorf("connection supports neither ExecContext nor QueryContext")
	}
	rows, err := queryer.QueryContext(ctx, clearSessionSQL, nil)
	if err != nil {
		return err
	}
	return rows.Close()
}

// readSessionSQL reads all four variables in one round trip. The
// missing_ok flag makes unset variables come back as NULL instead of
// raising, so a connection that never saw the middleware degrades to the
// sentinel fallback rather than failing the caller's mutation.
const readSessionSQL = `SELECT current_setting('` + SessionKeyUserID + `', true),
	current_setting('` + SessionKeyIPAddress + `', true),
	current_setting('` + SessionKeyUserAgent + `', true),
	current_setting('` + SessionKeySessionID + `', true)`

// readSession is the engine-side best-effort lookup of the session
// variables. Any failure yields an empty context rather than an error.
func readSession(ctx context.Context, queryer driver.QueryerContext) SessionContext {
	rows, err := queryer.QueryContext(ctx, readSessionSQL, nil)
	if err != nil {
		return SessionContext{}
	}
	defer func() {
		_ = rows.Close()
	}()

	dest := make([]driver.Value, 4)
	if err := rows.Next(dest); err != nil && err != io.EOF {
		return SessionContext{}
	}

	return SessionContext{
		UserID:    settingString(dest[0]),
		IPAddress: settingString(dest[1]),
		UserAgent: settingString(dest[2]),
		SessionID: settingString(dest[3]),
	}
}

func settingString(v driver.Value) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Package audit records every mutating statement against audited tables
// as one immutable audit trail entry, written inside the same transaction
// as the mutation itself.
//
// The mechanism is a database/sql driver wrapper. Register it over lib/pq
// and every INSERT, UPDATE and DELETE flowing through the pool is
// intercepted: the engine captures full before/after row images (via a
// RETURNING rewrite and a pre-read of the statement's predicate), computes
// the changed-field diff, classifies a risk level, and inserts the record
// on the same connection. Because interception happens below the
// application layer, code that skips the HTTP middleware but uses the
// registered driver is still audited; it is attributed to the sentinel
// actor and a warning is logged.
//
// Caller identity travels as PostgreSQL session variables
// (audit.user_id, audit.ip_address, audit.user_agent, audit.session_id),
// set per request on a dedicated pooled connection by the HTTP middleware
// and read back by the engine with current_setting at write time.
//
// Two failure policies coexist deliberately and must stay separate:
//
//   - The middleware degrades open: if the pool or the set_config
//     statements fail, the request proceeds unaudited-but-functional and
//     the failure is logged at error level.
//   - The engine degrades closed: once a mutation enters it, a failed
//     audit write (WriteError) aborts the whole transaction, business
//     mutation included. A mutation that cannot be audited does not
//     commit.
//
// Known gap: statements executed through explicitly prepared statements
// (db.Prepare) bypass interception, as do processes connecting with the
// raw pq driver. Both are operational policy questions, not solvable at
// this layer. Session variables would otherwise survive pool reuse of a
// physical connection, so the wrapper blanks all four on every checkout
// of a used connection (ResetSession) and the middleware re-sets them;
// no consumer ever sees another request's identity.
package audit

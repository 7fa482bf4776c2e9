package audit

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/plantops/invaudit/internal/postgres"
)

// Conn wraps a driver connection and routes every mutating statement on an
// audited table through the record builder. Statements on non-audited
// tables and non-DML statements pass through untouched.
type Conn struct {
	driver.Conn
	builder *recordBuilder

	// inTx tracks whether database/sql has an open transaction on this
	// connection. Statements inside a transaction are observed directly;
	// autocommit statements get wrapped in an implicit transaction so the
	// audit record stays atomic with the mutation.
	inTx bool
}

func (c *Conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	conn, ok := c.Conn.(driver.ConnBeginTx)
	if !ok {
		return nil, errors.New("connection does not support BeginTx")
	}

	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}

	c.inTx = true
	return &auditTx{Tx: tx, owner: c}, nil
}

// ExecContext executes query, observing it when it is a mutating statement
// on an audited table.
func (c *Conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	execer, ok := c.Conn.(driver.ExecerContext)
	if !ok {
		return nil, errors.New("connection does not support ExecContext")
	}

	dml, err := postgres.AnalyzeDML(query)
	if err != nil {
		return nil, err
	}
	if dml == nil || !c.builder.shouldAudit(dml.Table) {
		return execer.ExecContext(ctx, query, args)
	}

	if c.inTx {
		ret, err := c.builder.observe(ctx, c.Conn, query, args, dml)
		if err != nil {
			return nil, err
		}
		return execResult{affected: int64(ret.Len())}, nil
	}

	ret, err := c.observeAutocommit(ctx, query, args, dml)
	if err != nil {
		return nil, err
	}
	return execResult{affected: int64(ret.Len())}, nil
}

// QueryContext handles DML issued through the query path (statements that
// already carry RETURNING); their result rows double as the row-image
// source and are replayed to the caller.
func (c *Conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	queryer, ok := c.Conn.(driver.QueryerContext)
	if !ok {
		return nil, errors.New("connection does not support QueryContext")
	}

	dml, err := postgres.AnalyzeDML(query)
	if err != nil {
		return nil, err
	}
	if dml == nil || !c.builder.shouldAudit(dml.Table) {
		return queryer.QueryContext(ctx, query, args)
	}

	if c.inTx {
		ret, err := c.builder.observe(ctx, c.Conn, query, args, dml)
		if err != nil {
			return nil, err
		}
		return ret.Rows(), nil
	}

	ret, err := c.observeAutocommit(ctx, query, args, dml)
	if err != nil {
		return nil, err
	}
	return ret.Rows(), nil
}

// observeAutocommit wraps a standalone mutating statement in an implicit
// transaction. Without it the mutation and its audit record would commit
// independently and a failed audit write could not take the mutation down
// with it.
func (c *Conn) observeAutocommit(ctx context.Context, query string, args []driver.NamedValue, dml *postgres.DML) (*rowSet, error) {
	beginner, ok := c.Conn.(driver.ConnBeginTx)
	if !ok {
		return nil, errors.New("connection does not support BeginTx")
	}

	tx, err := beginner.BeginTx(ctx, driver.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin audit transaction: %w", err)
	}

	ret, err := c.builder.observe(ctx, c.Conn, query, args, dml)
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return nil, fmt.Errorf("rollback after audit failure: %w: %w", rollbackErr, err)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit audited statement: %w", err)
	}
	return ret, nil
}

// Optional driver interfaces forwarded to the wrapped connection so the
// pool sees its real health and argument conversion.

func (c *Conn) Ping(ctx context.Context) error {
	if pinger, ok := c.Conn.(driver.Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// ResetSession runs when the pool hands out a previously used connection.
// The session variables of the last request are blanked here; a clear
// failure marks the connection bad rather than reusing it dirty.
func (c *Conn) ResetSession(ctx context.Context) error {
	c.inTx = false
	if resetter, ok := c.Conn.(driver.SessionResetter); ok {
		if err := resetter.ResetSession(ctx); err != nil {
			return err
		}
	}
	if err := clearSession(ctx, c.Conn); err != nil {
		return driver.ErrBadConn
	}
	return nil
}

func (c *Conn) IsValid() bool {
	if validator, ok := c.Conn.(driver.Validator); ok {
		return validator.IsValid()
	}
	return true
}

func (c *Conn) CheckNamedValue(nv *driver.NamedValue) error {
	if checker, ok := c.Conn.(driver.NamedValueChecker); ok {
		return checker.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

// auditTx clears the owner's transaction flag on completion. Audit records
// are written as each statement executes, so Commit has nothing to flush;
// if an audit write failed mid-transaction, the server has already
// poisoned the transaction and Commit degrades to a rollback.
type auditTx struct {
	Tx    driver.Tx
	owner *Conn
}

func (t *auditTx) Commit() error {
	t.owner.inTx = false
	return t.Tx.Commit()
}

func (t *auditTx) Rollback() error {
	t.owner.inTx = false
	return t.Tx.Rollback()
}

var (
	_ driver.Conn              = (*Conn)(nil)
	_ driver.ConnBeginTx       = (*Conn)(nil)
	_ driver.ExecerContext     = (*Conn)(nil)
	_ driver.QueryerContext    = (*Conn)(nil)
	_ driver.Pinger            = (*Conn)(nil)
	_ driver.SessionResetter   = (*Conn)(nil)
	_ driver.Validator         = (*Conn)(nil)
	_ driver.NamedValueChecker = (*Conn)(nil)

	_ driver.Tx = (*auditTx)(nil)
)

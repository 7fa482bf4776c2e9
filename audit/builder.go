package audit

import (
	"context"
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/plantops/invaudit/internal/canon"
	"github.com/plantops/invaudit/internal/postgres"
)

// IDGenerator generates unique IDs for audit records.
type IDGenerator interface {
	GenerateID() string
}

// IDGeneratorFunc is a function type that implements the IDGenerator interface.
type IDGeneratorFunc func() string

func (f IDGeneratorFunc) GenerateID() string {
	return f()
}

// internalTables are never audited: the audit table itself (recursion) and
// migration bookkeeping.
var internalTables = TableFilters{
	NewExcludePatternFilter("audit_logs", "goose_db_version"),
}

// recordBuilder turns one mutating statement into one audit record. It is
// shared by every connection the driver opens.
type recordBuilder struct {
	idGenerator  IDGenerator
	riskRules    RiskRules
	tableFilters TableFilters
	logger       zerolog.Logger
}

func (b *recordBuilder) fillDefaults() {
	if b.idGenerator == nil {
		b.idGenerator = IDGeneratorFunc(func() string {
			return uuid.New().String()
		})
	}
	if b.riskRules == nil {
		b.riskRules = DefaultRiskRules()
	}
	if b.tableFilters == nil {
		b.tableFilters = TableFilters{}
	}
}

func (b *recordBuilder) shouldAudit(table string) bool {
	return internalTables.ShouldAudit(table) && b.tableFilters.ShouldAudit(table)
}

// observe executes a mutating statement on conn with row-image capture and
// writes the audit record on the same connection, inside whatever
// transaction is currently open there. The returned rowSet carries the
// statement's RETURNING rows for replay to Query callers.
//
// A failure of the business statement itself is returned as-is. A failure
// of any audit step after that is returned as *WriteError; on PostgreSQL
// the erroring statement has already poisoned the enclosing transaction,
// so the mutation cannot commit without its audit record.
func (b *recordBuilder) observe(ctx context.Context, conn driver.Conn, query string, args []driver.NamedValue, dml *postgres.DML) (*rowSet, error) {
	queryer, ok := conn.(driver.QueryerContext)
	if !ok {
		return nil, fmt.Errorf("connection does not support QueryContext")
	}
	execer, ok := conn.(driver.ExecerContext)
	if !ok {
		return nil, fmt.Errorf("connection does not support ExecContext")
	}

	action := Action(dml.Kind.String())
	sess := readSession(ctx, queryer)
	userID := sess.UserID
	if _, err := uuid.Parse(userID); err != nil {
		// Fallback applied here as well as in the middleware: connections
		// that never saw the middleware (maintenance scripts, seeders)
		// still get a non-null actor.
		userID = SentinelUserID
		b.logger.Warn().
			Str("table", dml.Table).
			Str("action", action.String()).
			Msg("no session user bound to connection, recording sentinel actor")
	}

	// Old row image for UPDATE: read before the mutation, using the
	// statement's own predicate. DELETE gets its old image from RETURNING.
	var oldSet *rowSet
	if dml.Kind == postgres.KindUpdate {
		sel, err := postgres.OldImageQuery(postgres.InterpolateSQL(query, args))
		if err != nil {
			return nil, &WriteError{Table: dml.Table, Action: action, Err: err}
		}
		rows, err := queryer.QueryContext(ctx, sel, nil)
		if err != nil {
			return nil, &WriteError{Table: dml.Table, Action: action, Err: err}
		}
		if oldSet, err = drainRows(rows); err != nil {
			return nil, &WriteError{Table: dml.Table, Action: action, Err: err}
		}
	}

	stmtSQL := query
	if !dml.HasReturning {
		stmtSQL = postgres.AppendReturning(query)
	}
	rows, err := queryer.QueryContext(ctx, stmtSQL, args)
	if err != nil {
		return nil, err
	}
	ret, err := drainRows(rows)
	if err != nil {
		return nil, err
	}

	// A statement that touched no rows produces no record, matching
	// row-trigger semantics.
	if ret.Len() == 0 {
		return ret, nil
	}

	var oldValues, newValues map[string]any
	switch dml.Kind {
	case postgres.KindInsert:
		newValues = ret.Snapshot(0)
	case postgres.KindUpdate:
		newValues = ret.Snapshot(0)
		oldValues = matchOldImage(oldSet, newValues)
	case postgres.KindDelete:
		oldValues = ret.Snapshot(0)
	}

	var changed []string
	if dml.Kind == postgres.KindUpdate {
		changed = ChangedFields(oldValues, newValues)
	}

	idSource := newValues
	if dml.Kind == postgres.KindDelete {
		idSource = oldValues
	}

	rec := Record{
		ID:            b.idGenerator.GenerateID(),
		TableName:     dml.Table,
		RecordID:      canon.String(idSource["id"]),
		Action:        action,
		OldValues:     oldValues,
		NewValues:     newValues,
		ChangedFields: changed,
		UserID:        userID,
		IPAddress:     sess.IPAddress,
		UserAgent:     sess.UserAgent,
		SessionID:     sess.SessionID,
		RiskLevel:     b.riskRules.Classify(dml.Table, action, changed),
	}

	if err := insertRecord(ctx, execer, rec); err != nil {
		return nil, &WriteError{Table: dml.Table, Action: action, Err: err}
	}
	return ret, nil
}

// matchOldImage picks the pre-mutation image of the row the statement
// reported first, pairing old and new by id. Falls back to the first
// captured row when ids cannot be paired.
func matchOldImage(oldSet *rowSet, newValues map[string]any) map[string]any {
	if oldSet.Len() == 0 {
		return nil
	}
	wantID := canon.String(newValues["id"])
	if wantID != "" {
		for i := 0; i < oldSet.Len(); i++ {
			snap := oldSet.Snapshot(i)
			if canon.String(snap["id"]) == wantID {
				return snap
			}
		}
	}
	return oldSet.Snapshot(0)
}

const insertRecordSQL = `INSERT INTO audit_logs
	(id, table_name, record_id, action, old_values, new_values, changed_fields, user_id, ip_address, user_agent, session_id, risk_level, "timestamp")
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, transaction_timestamp())`

// insertRecord writes the record on the same connection so it joins the
// transaction of the mutation it describes. transaction_timestamp() keeps
// the recorded time consistent for every record of one transaction.
func insertRecord(ctx context.Context, execer driver.ExecerContext, rec Record) error {
	oldJSON, err := marshalSnapshot(rec.OldValues)
	if err != nil {
		return fmt.Errorf("encode old values: %w", err)
	}
	newJSON, err := marshalSnapshot(rec.NewValues)
	if err != nil {
		return fmt.Errorf("encode new values: %w", err)
	}
	var changedJSON driver.Value
	if rec.ChangedFields != nil {
		encoded, err := json.Marshal(rec.ChangedFields)
		if err != nil {
			return fmt.Errorf("encode changed fields: %w", err)
		}
		changedJSON = string(encoded)
	}

	args := []driver.NamedValue{
		{Ordinal: 1, Value: rec.ID},
		{Ordinal: 2, Value: rec.TableName},
		{Ordinal: 3, Value: rec.RecordID},
		{Ordinal: 4, Value: rec.Action.String()},
		{Ordinal: 5, Value: oldJSON},
		{Ordinal: 6, Value: newJSON},
		{Ordinal: 7, Value: changedJSON},
		{Ordinal: 8, Value: rec.UserID},
		{Ordinal: 9, Value: nullable(rec.IPAddress)},
		{Ordinal: 10, Value: nullable(rec.UserAgent)},
		{Ordinal: 11, Value: nullable(rec.SessionID)},
		{Ordinal: 12, Value: rec.RiskLevel.String()},
	}

	_, err = execer.ExecContext(ctx, insertRecordSQL, args)
	return err
}

func marshalSnapshot(snap map[string]any) (driver.Value, error) {
	if snap == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

func nullable(s string) driver.Value {
	if s == "" {
		return nil
	}
	return s
}

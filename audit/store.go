package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Filter narrows audit trail queries. Zero values mean "any".
type Filter struct {
	Table     string
	RecordID  string
	UserID    string
	Action    Action
	RiskLevel RiskLevel
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// DefaultFilter returns the filter used when a caller specifies nothing.
func DefaultFilter() Filter {
	return Filter{Limit: 100}
}

const selectRecordSQL = `SELECT id, table_name, record_id, action, old_values, new_values, changed_fields,
	user_id, "timestamp", ip_address, user_agent, session_id, risk_level, compliance_notes
	FROM audit_logs`

// Query reads audit records newest-first. This is the only supported
// consumer of the audit table; records are never updated or deleted.
func Query(ctx context.Context, db *sql.DB, f Filter) ([]Record, error) {
	where, args := f.clauses()
	query := selectRecordSQL + where + ` ORDER BY "timestamp" DESC, id`

	if f.Limit <= 0 {
		f.Limit = DefaultFilter().Limit
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of records matching the filter.
func Count(ctx context.Context, db *sql.DB, f Filter) (int64, error) {
	where, args := f.clauses()

	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return count, nil
}

func (f Filter) clauses() (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Table != "" {
		add("table_name = $%d", f.Table)
	}
	if f.RecordID != "" {
		add("record_id = $%d", f.RecordID)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action.String())
	}
	if f.RiskLevel != "" {
		add("risk_level = $%d", f.RiskLevel.String())
	}
	if f.Since != nil {
		add(`"timestamp" >= $%d`, *f.Since)
	}
	if f.Until != nil {
		add(`"timestamp" < $%d`, *f.Until)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec                              Record
		oldJSON, newJSON, changedJSON    sql.NullString
		ip, ua, session, notes, recordID sql.NullString
	)
	err := rows.Scan(
		&rec.ID,
		&rec.TableName,
		&recordID,
		&rec.Action,
		&oldJSON,
		&newJSON,
		&changedJSON,
		&rec.UserID,
		&rec.Timestamp,
		&ip,
		&ua,
		&session,
		&rec.RiskLevel,
		&notes,
	)
	if err != nil {
		return Record{}, fmt.Errorf("scan audit record: %w", err)
	}

	rec.RecordID = recordID.String
	rec.IPAddress = ip.String
	rec.UserAgent = ua.String
	rec.SessionID = session.String
	rec.ComplianceNotes = notes.String

	if oldJSON.Valid {
		if err := json.Unmarshal([]byte(oldJSON.String), &rec.OldValues); err != nil {
			return Record{}, fmt.Errorf("decode old values: %w", err)
		}
	}
	if newJSON.Valid {
		if err := json.Unmarshal([]byte(newJSON.String), &rec.NewValues); err != nil {
			return Record{}, fmt.Errorf("decode new values: %w", err)
		}
	}
	if changedJSON.Valid {
		if err := json.Unmarshal([]byte(changedJSON.String), &rec.ChangedFields); err != nil {
			return Record{}, fmt.Errorf("decode changed fields: %w", err)
		}
	}
	return rec, nil
}

package audit

import (
	"time"
)

// Action is the kind of mutation an audit record describes.
type Action string

func (a Action) String() string {
	return string(a)
}

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// RiskLevel is the coarse compliance-review classification attached to
// every record.
type RiskLevel string

func (l RiskLevel) String() string {
	return string(l)
}

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// SentinelUserID is the reserved actor recorded when no authenticated
// principal is bound to the session. The migration seeds a matching row in
// the users table so the actor reference never dangles.
const SentinelUserID = "00000000-0000-0000-0000-000000000000"

// Record is one immutable audit trail entry: exactly one exists per
// mutating statement against an audited table, written inside the same
// transaction as the mutation itself.
type Record struct {
	ID        string
	TableName string

	// RecordID identifies the affected row, taken from the row image's
	// id column.
	RecordID string

	Action Action

	// OldValues is the full row image before the mutation; nil for INSERT.
	OldValues map[string]any

	// NewValues is the full row image after the mutation; nil for DELETE.
	NewValues map[string]any

	// ChangedFields lists the columns whose value differs between the two
	// images, in sorted order. Populated only for UPDATE.
	ChangedFields []string

	// UserID is the acting principal, never empty: either a real user id
	// or SentinelUserID.
	UserID string

	// Timestamp is transaction time, assigned by the database.
	Timestamp time.Time

	IPAddress string
	UserAgent string
	SessionID string

	RiskLevel RiskLevel

	// ComplianceNotes is reserved for manual review tooling; the engine
	// never writes it.
	ComplianceNotes string
}

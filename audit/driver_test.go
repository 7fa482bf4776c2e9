package audit_test

import (
	"bytes"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantops/invaudit/audit"
)

// TestDriver_InsertEquipment covers the basic contract: one mutating
// statement produces exactly one audit record carrying the full new row
// image and the caller identity bound to the connection.
func TestDriver_InsertEquipment(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	db := setUpTestDB(t)
	conn := dedicatedConn(t, ctx, db)

	userID := seedUser(t, ctx, conn)
	sess := audit.SessionContext{
		UserID:    userID,
		IPAddress: "203.0.113.9",
		UserAgent: gofakeit.UserAgent(),
		SessionID: uuid.New().String(),
	}
	bindSession(t, ctx, conn, sess)

	equipmentID := seedEquipment(t, ctx, conn, "10.0.0.5")

	records := fetchRecords(t, ctx, db, "equipment", equipmentID, audit.ActionInsert)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "equipment", rec.TableName)
	assert.Equal(t, equipmentID, rec.RecordID)
	assert.Equal(t, audit.ActionInsert, rec.Action)
	assert.Nil(t, rec.OldValues)
	assert.Equal(t, equipmentID, rec.NewValues["id"])
	assert.Equal(t, "10.0.0.5", rec.NewValues["ip_address"])
	assert.Empty(t, rec.ChangedFields)
	assert.Equal(t, userID, rec.UserID)
	assert.Equal(t, sess.IPAddress, rec.IPAddress)
	assert.Equal(t, sess.UserAgent, rec.UserAgent)
	assert.Equal(t, sess.SessionID, rec.SessionID)
	assert.Equal(t, audit.RiskLow, rec.RiskLevel)
	assert.NotZero(t, rec.Timestamp)
}

// TestDriver_UpdateNetworkAddress changes an equipment ip_address and
// expects a MEDIUM record whose diff names exactly that column.
func TestDriver_UpdateNetworkAddress(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	db := setUpTestDB(t)
	conn := dedicatedConn(t, ctx, db)

	userID := seedUser(t, ctx, conn)
	bindSession(t, ctx, conn, audit.SessionContext{UserID: userID})

	equipmentID := seedEquipment(t, ctx, conn, "10.0.0.5")

	res, err := conn.ExecContext(ctx, `UPDATE equipment SET ip_address = $1 WHERE id = $2`, "10.0.0.6", equipmentID)
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	records := fetchRecords(t, ctx, db, "equipment", equipmentID, audit.ActionUpdate)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, []string{"ip_address"}, rec.ChangedFields)
	assert.Equal(t, "10.0.0.5", rec.OldValues["ip_address"])
	assert.Equal(t, "10.0.0.6", rec.NewValues["ip_address"])
	assert.Equal(t, userID, rec.UserID)
	assert.Equal(t, audit.RiskMedium, rec.RiskLevel)
}

// TestDriver_DeleteWithoutSession exercises the sentinel fallback: a
// connection that never had a caller bound still gets a complete record,
// attributed to the reserved system actor, and the engine logs a warning.
func TestDriver_DeleteWithoutSession(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	var logBuf bytes.Buffer
	db := setUpTestDB(t, audit.WithLogger(zerolog.New(&logBuf)))

	equipmentID := seedEquipment(t, ctx, db, "10.0.0.5")
	plcID := seedPLC(t, ctx, db, equipmentID)
	tagID := seedTag(t, ctx, db, plcID)

	_, err := db.ExecContext(ctx, `DELETE FROM tags WHERE id = $1`, tagID)
	require.NoError(t, err)

	records := fetchRecords(t, ctx, db, "tags", tagID, audit.ActionDelete)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, audit.SentinelUserID, rec.UserID)
	assert.Equal(t, audit.RiskHigh, rec.RiskLevel)
	assert.Equal(t, tagID, rec.OldValues["id"])
	assert.Nil(t, rec.NewValues)
	assert.Contains(t, logBuf.String(), "recording sentinel actor")
}

// TestDriver_PoolReuseClearsSession: returning a connection to the pool
// must not leak its caller identity to the next consumer. A mutation
// issued straight on the pool after the bound connection went back gets
// the sentinel actor, never the previous user.
func TestDriver_PoolReuseClearsSession(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	var logBuf bytes.Buffer
	db := setUpTestDB(t, audit.WithLogger(zerolog.New(&logBuf)))
	// Force every checkout onto the same physical connection.
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	require.NoError(t, err)

	userID := seedUser(t, ctx, conn)
	bindSession(t, ctx, conn, audit.SessionContext{UserID: userID, IPAddress: "203.0.113.9"})
	equipmentID := seedEquipment(t, ctx, conn, "10.0.0.5")
	require.NoError(t, conn.Close())

	records := fetchRecords(t, ctx, db, "equipment", equipmentID, audit.ActionInsert)
	require.Len(t, records, 1)
	require.Equal(t, userID, records[0].UserID, "held connection carries the bound user")

	// No middleware, no binding: straight on the pool, reusing the same
	// connection the previous caller's variables were set on.
	plcID := seedPLC(t, ctx, db, equipmentID)

	records = fetchRecords(t, ctx, db, "plcs", plcID, audit.ActionInsert)
	require.Len(t, records, 1)
	assert.Equal(t, audit.SentinelUserID, records[0].UserID, "pool reuse must not inherit the previous caller")
	assert.NotEqual(t, userID, records[0].UserID)
	assert.Empty(t, records[0].IPAddress)
	assert.Contains(t, logBuf.String(), "recording sentinel actor")
}

// TestDriver_AuditWriteFailureAbortsMutation: a mutation whose audit
// record cannot be written must not commit. Binding a well-formed but
// unknown user id makes the audit insert's user_id reference fail.
func TestDriver_AuditWriteFailureAbortsMutation(t *testing.T) {
	t.Parallel()

	t.Run("autocommit", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		db := setUpTestDB(t)
		conn := dedicatedConn(t, ctx, db)

		bindSession(t, ctx, conn, audit.SessionContext{UserID: uuid.New().String()})

		siteID := uuid.New().String()
		_, err := conn.ExecContext(ctx, `INSERT INTO sites (id, name) VALUES ($1, $2)`, siteID, gofakeit.Company())
		require.Error(t, err)

		var writeErr *audit.WriteError
		require.ErrorAs(t, err, &writeErr)
		assert.Equal(t, "sites", writeErr.Table)
		assert.Equal(t, audit.ActionInsert, writeErr.Action)

		var exists bool
		require.NoError(t, db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sites WHERE id = $1)`, siteID).Scan(&exists))
		assert.False(t, exists, "business mutation must roll back with the failed audit write")
		assert.Empty(t, fetchRecords(t, ctx, db, "sites", siteID, audit.ActionInsert))
	})

	t.Run("in_transaction", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		db := setUpTestDB(t)
		conn := dedicatedConn(t, ctx, db)

		bindSession(t, ctx, conn, audit.SessionContext{UserID: uuid.New().String()})

		tx, err := conn.BeginTx(ctx, nil)
		require.NoError(t, err)

		siteID := uuid.New().String()
		_, err = tx.ExecContext(ctx, `INSERT INTO sites (id, name) VALUES ($1, $2)`, siteID, gofakeit.Company())
		require.Error(t, err)

		var writeErr *audit.WriteError
		require.ErrorAs(t, err, &writeErr)
		require.NoError(t, tx.Rollback())

		var exists bool
		require.NoError(t, db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sites WHERE id = $1)`, siteID).Scan(&exists))
		assert.False(t, exists)
		assert.Empty(t, fetchRecords(t, ctx, db, "sites", siteID, audit.ActionInsert))
	})
}

// TestDriver_RollbackDiscardsRecords: the audit record joins the mutation's
// transaction, so rolling back removes both.
func TestDriver_RollbackDiscardsRecords(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	db := setUpTestDB(t)
	conn := dedicatedConn(t, ctx, db)

	userID := seedUser(t, ctx, conn)
	bindSession(t, ctx, conn, audit.SessionContext{UserID: userID})
	equipmentID := seedEquipment(t, ctx, conn, "10.0.0.5")

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)

	plcID := uuid.New().String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO plcs (id, equipment_id, name) VALUES ($1, $2, $3)`,
		plcID, equipmentID, gofakeit.Word(),
	)
	require.NoError(t, err)

	require.NoError(t, tx.Rollback())

	var exists bool
	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM plcs WHERE id = $1)`, plcID).Scan(&exists)
	require.NoError(t, err)
	assert.False(t, exists, "rolled back insert should not persist")

	records := fetchRecords(t, ctx, db, "plcs", plcID, audit.ActionInsert)
	assert.Empty(t, records, "rolled back mutation should leave no audit trail")
}

// TestDriver_TransactionalCommit writes two mutations in one transaction
// and expects one record per statement after commit.
func TestDriver_TransactionalCommit(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	db := setUpTestDB(t)
	conn := dedicatedConn(t, ctx, db)

	userID := seedUser(t, ctx, conn)
	bindSession(t, ctx, conn, audit.SessionContext{UserID: userID})
	equipmentID := seedEquipment(t, ctx, conn, "10.0.0.5")

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)

	plcID := uuid.New().String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO plcs (id, equipment_id, name, firmware_version) VALUES ($1, $2, $3, $4)`,
		plcID, equipmentID, gofakeit.Word(), "1.0.0",
	)
	require.NoError(t, err)

	_, err = tx.ExecContext(ctx, `UPDATE plcs SET firmware_version = $1 WHERE id = $2`, "1.1.0", plcID)
	require.NoError(t, err)

	require.NoError(t, tx.Commit())

	inserts := fetchRecords(t, ctx, db, "plcs", plcID, audit.ActionInsert)
	require.Len(t, inserts, 1)
	assert.Equal(t, userID, inserts[0].UserID)

	updates := fetchRecords(t, ctx, db, "plcs", plcID, audit.ActionUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, []string{"firmware_version"}, updates[0].ChangedFields)
	assert.Equal(t, "1.0.0", updates[0].OldValues["firmware_version"])
	assert.Equal(t, "1.1.0", updates[0].NewValues["firmware_version"])
}

// TestDriver_ReadsAndMissesProduceNoRecords: SELECTs are never audited and
// a mutation that touches zero rows leaves no trail either.
func TestDriver_ReadsAndMissesProduceNoRecords(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	db := setUpTestDB(t)
	conn := dedicatedConn(t, ctx, db)

	equipmentID := seedEquipment(t, ctx, conn, "10.0.0.5")

	countRecords := func() int64 {
		count, err := audit.Count(ctx, db, audit.Filter{Table: "equipment"})
		require.NoError(t, err)
		return count
	}
	before := countRecords()

	rows, err := conn.QueryContext(ctx, `SELECT * FROM equipment WHERE id = $1`, equipmentID)
	require.NoError(t, err)
	require.NoError(t, rows.Close())

	res, err := conn.ExecContext(ctx, `UPDATE equipment SET name = $1 WHERE id = $2`, gofakeit.Word(), uuid.New().String())
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)

	assert.Equal(t, before, countRecords())
}

// TestDriver_TableFilterExcludesTable: filtered tables mutate without
// leaving records while unfiltered tables keep their trail.
func TestDriver_TableFilterExcludesTable(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	db := setUpTestDB(t, audit.WithTableFilters(audit.NewExcludePatternFilter("tags")))
	conn := dedicatedConn(t, ctx, db)

	userID := seedUser(t, ctx, conn)
	bindSession(t, ctx, conn, audit.SessionContext{UserID: userID})
	equipmentID := seedEquipment(t, ctx, conn, "10.0.0.5")
	plcID := seedPLC(t, ctx, conn, equipmentID)
	tagID := seedTag(t, ctx, conn, plcID)

	assert.Empty(t, fetchRecords(t, ctx, db, "tags", tagID, audit.ActionInsert))
	assert.Len(t, fetchRecords(t, ctx, db, "plcs", plcID, audit.ActionInsert), 1)
}

// TestDriver_IdentityTableRisk: user account mutations carry the elevated
// classifications.
func TestDriver_IdentityTableRisk(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	db := setUpTestDB(t)
	conn := dedicatedConn(t, ctx, db)

	actorID := seedUser(t, ctx, conn)
	bindSession(t, ctx, conn, audit.SessionContext{UserID: actorID})

	targetID := seedUser(t, ctx, conn)

	inserts := fetchRecords(t, ctx, db, "users", targetID, audit.ActionInsert)
	require.Len(t, inserts, 1)
	assert.Equal(t, audit.RiskHigh, inserts[0].RiskLevel)

	_, err := conn.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, targetID)
	require.NoError(t, err)

	deletes := fetchRecords(t, ctx, db, "users", targetID, audit.ActionDelete)
	require.Len(t, deletes, 1)
	assert.Equal(t, audit.RiskCritical, deletes[0].RiskLevel)
}

// TestAuditLogs_AppendOnly: the guard trigger rejects any rewrite of the
// trail. Each attempt runs against its own database because the failed
// statement poisons the test transaction.
func TestAuditLogs_AppendOnly(t *testing.T) {
	t.Parallel()

	attempt := func(t *testing.T, statement string) {
		ctx := t.Context()
		db := setUpTestDB(t)

		seedEquipment(t, ctx, db, "10.0.0.5")

		_, err := db.ExecContext(ctx, statement)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "append-only")
	}

	t.Run("update_rejected", func(t *testing.T) {
		t.Parallel()
		attempt(t, `UPDATE audit_logs SET risk_level = 'LOW'`)
	})

	t.Run("delete_rejected", func(t *testing.T) {
		t.Parallel()
		attempt(t, `DELETE FROM audit_logs`)
	})
}

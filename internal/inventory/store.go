package inventory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx, so the same
// store works on the request's dedicated audited connection or on the
// shared pool.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = fmt.Errorf("inventory: not found")

// Store is the stateless data access layer for the equipment hierarchy.
type Store struct{}

func (Store) CreateEquipment(ctx context.Context, q Querier, e *Equipment) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = "active"
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO equipment (id, cell_id, name, equipment_type, ip_address, status) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.CellID, e.Name, nullEmpty(e.EquipmentType), nullEmpty(e.IPAddress), e.Status,
	)
	if err != nil {
		return fmt.Errorf("create equipment: %w", err)
	}
	return nil
}

func (Store) GetEquipment(ctx context.Context, q Querier, id string) (*Equipment, error) {
	var (
		e                 Equipment
		equipmentType, ip sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, cell_id, name, equipment_type, ip_address, status, created_at, updated_at FROM equipment WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.CellID, &e.Name, &equipmentType, &ip, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get equipment: %w", err)
	}
	e.EquipmentType = equipmentType.String
	e.IPAddress = ip.String
	return &e, nil
}

func (Store) UpdateEquipment(ctx context.Context, q Querier, e *Equipment) error {
	res, err := q.ExecContext(ctx,
		`UPDATE equipment SET name = $2, equipment_type = $3, ip_address = $4, status = $5, updated_at = now() WHERE id = $1`,
		e.ID, e.Name, nullEmpty(e.EquipmentType), nullEmpty(e.IPAddress), e.Status,
	)
	if err != nil {
		return fmt.Errorf("update equipment: %w", err)
	}
	return requireRow(res)
}

func (Store) DeleteEquipment(ctx context.Context, q Querier, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM equipment WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete equipment: %w", err)
	}
	return requireRow(res)
}

func (Store) ListEquipment(ctx context.Context, q Querier, cellID string) ([]Equipment, error) {
	query := `SELECT id, cell_id, name, equipment_type, ip_address, status, created_at, updated_at FROM equipment`
	args := []any{}
	if cellID != "" {
		query += ` WHERE cell_id = $1`
		args = append(args, cellID)
	}
	query += ` ORDER BY name`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list equipment: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var list []Equipment
	for rows.Next() {
		var (
			e                 Equipment
			equipmentType, ip sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.CellID, &e.Name, &equipmentType, &ip, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan equipment: %w", err)
		}
		e.EquipmentType = equipmentType.String
		e.IPAddress = ip.String
		list = append(list, e)
	}
	return list, rows.Err()
}

func (Store) CreatePLC(ctx context.Context, q Querier, p *PLC) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO plcs (id, equipment_id, name, ip_address, firmware_version, rack, slot) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.EquipmentID, p.Name, nullEmpty(p.IPAddress), nullEmpty(p.FirmwareVersion), p.Rack, p.Slot,
	)
	if err != nil {
		return fmt.Errorf("create plc: %w", err)
	}
	return nil
}

func (Store) UpdatePLC(ctx context.Context, q Querier, p *PLC) error {
	res, err := q.ExecContext(ctx,
		`UPDATE plcs SET name = $2, ip_address = $3, firmware_version = $4, rack = $5, slot = $6, updated_at = now() WHERE id = $1`,
		p.ID, p.Name, nullEmpty(p.IPAddress), nullEmpty(p.FirmwareVersion), p.Rack, p.Slot,
	)
	if err != nil {
		return fmt.Errorf("update plc: %w", err)
	}
	return requireRow(res)
}

func (Store) DeletePLC(ctx context.Context, q Querier, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM plcs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete plc: %w", err)
	}
	return requireRow(res)
}

func (Store) CreateTag(ctx context.Context, q Querier, t *Tag) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO tags (id, plc_id, name, data_type, address, scaling) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.PLCID, t.Name, nullEmpty(t.DataType), nullEmpty(t.Address), nullEmpty(t.Scaling),
	)
	if err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

func (Store) DeleteTag(ctx context.Context, q Querier, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

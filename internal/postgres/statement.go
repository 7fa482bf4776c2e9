// Package postgres analyzes SQL statements with the PostgreSQL parser so
// the audit layer can recognize mutating statements, find their target
// table, and derive the queries it needs to capture row images.
package postgres

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Kind is the class of a mutating statement.
type Kind int

const (
	KindInsert Kind = iota + 1
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	}
	return "UNKNOWN"
}

// DML describes a single parsed INSERT, UPDATE or DELETE statement.
type DML struct {
	Kind         Kind
	Table        string
	Schema       string
	HasReturning bool
}

// AnalyzeDML parses sql and returns a description of the statement when it
// is a single mutating statement. Non-DML statements, unparsable input and
// multi-statement batches return (nil, nil): the audit layer treats all of
// those as not auditable rather than failing the caller's query.
func AnalyzeDML(sql string) (*DML, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, nil
	}
	if len(tree.Stmts) != 1 {
		return nil, nil
	}

	switch stmt := tree.Stmts[0].Stmt.Node.(type) {
	case *pg_query.Node_InsertStmt:
		return describe(KindInsert, stmt.InsertStmt.Relation, stmt.InsertStmt.ReturningList)
	case *pg_query.Node_UpdateStmt:
		return describe(KindUpdate, stmt.UpdateStmt.Relation, stmt.UpdateStmt.ReturningList)
	case *pg_query.Node_DeleteStmt:
		return describe(KindDelete, stmt.DeleteStmt.Relation, stmt.DeleteStmt.ReturningList)
	}
	return nil, nil
}

func describe(kind Kind, rel *pg_query.RangeVar, returning []*pg_query.Node) (*DML, error) {
	if rel == nil || rel.Relname == "" {
		return nil, fmt.Errorf("%s statement has no target relation", kind)
	}
	return &DML{
		Kind:         kind,
		Table:        rel.Relname,
		Schema:       rel.Schemaname,
		HasReturning: len(returning) > 0,
	}, nil
}

// OldImageQuery builds the SELECT that reads the rows an UPDATE or DELETE
// is about to touch. interpolated must be the statement with all
// placeholders replaced by literals (see InterpolateSQL), so that the
// predicate can be carried over verbatim. The produced query is
// `SELECT * FROM <relation> WHERE <predicate>` deparsed by the PostgreSQL
// parser itself, which keeps quoting and operator precedence intact.
func OldImageQuery(interpolated string) (string, error) {
	tree, err := pg_query.Parse(interpolated)
	if err != nil {
		return "", fmt.Errorf("parse interpolated statement: %w", err)
	}
	if len(tree.Stmts) != 1 {
		return "", fmt.Errorf("expected a single statement, got %d", len(tree.Stmts))
	}

	var (
		rel   *pg_query.RangeVar
		where *pg_query.Node
	)
	switch stmt := tree.Stmts[0].Stmt.Node.(type) {
	case *pg_query.Node_UpdateStmt:
		rel, where = stmt.UpdateStmt.Relation, stmt.UpdateStmt.WhereClause
	case *pg_query.Node_DeleteStmt:
		rel, where = stmt.DeleteStmt.Relation, stmt.DeleteStmt.WhereClause
	default:
		return "", fmt.Errorf("statement is not an UPDATE or DELETE")
	}

	star := &pg_query.Node{Node: &pg_query.Node_ColumnRef{ColumnRef: &pg_query.ColumnRef{
		Fields: []*pg_query.Node{{Node: &pg_query.Node_AStar{AStar: &pg_query.A_Star{}}}},
	}}}
	sel := &pg_query.SelectStmt{
		TargetList: []*pg_query.Node{{Node: &pg_query.Node_ResTarget{ResTarget: &pg_query.ResTarget{Val: star}}}},
		FromClause: []*pg_query.Node{{Node: &pg_query.Node_RangeVar{RangeVar: rel}}},
		WhereClause: where,
		Op:          pg_query.SetOperation_SETOP_NONE,
		LimitOption: pg_query.LimitOption_LIMIT_OPTION_DEFAULT,
	}

	out := &pg_query.ParseResult{
		Version: tree.Version,
		Stmts: []*pg_query.RawStmt{{
			Stmt: &pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: sel}},
		}},
	}
	return pg_query.Deparse(out)
}

// AppendReturning rewrites a DML statement to return the affected rows.
// The caller is responsible for only passing statements without an
// existing RETURNING clause.
func AppendReturning(sql string) string {
	return strings.TrimRight(sql, " \t\r\n;") + " RETURNING *"
}

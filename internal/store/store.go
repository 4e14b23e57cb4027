// Package store implements the remote-datastore collaborator on
// PostgreSQL via pgx. It exposes exactly the three capabilities the
// pipeline needs — existence query, reference lookup, batch insert — plus
// the dashboards settings table.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ggbi/imob-import/internal/imob"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const (
	movementsTable = "imob"
	lojasTable     = "lojas"
)

// Store talks to the remote tables. It implements imob.Datastore.
type Store struct {
	db DBTX
}

// New creates a Store on the given connection source.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// ExistingKeys returns the subset of business keys already present in the
// imob table. The key column is compared as text because pasted keys
// arrive as strings while the column is a bigint.
func (s *Store) ExistingKeys(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT DISTINCT %s::text FROM %s WHERE %s::text = ANY($1)`,
		quoteIdentifier(imob.ColSeq),
		quoteIdentifier(movementsTable),
		quoteIdentifier(imob.ColSeq),
	)

	rows, err := s.db.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("query existing keys: %w", err)
	}
	defer rows.Close()

	var found []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan existing key: %w", err)
		}
		found = append(found, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read existing keys: %w", err)
	}

	return found, nil
}

// LookupLojas fetches the reference entries for the given loja ids.
func (s *Store) LookupLojas(ctx context.Context, ids []int64) ([]imob.Loja, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT id, nome_loja, segmento FROM %s WHERE id = ANY($1)`,
		quoteIdentifier(lojasTable),
	)

	rows, err := s.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query lojas: %w", err)
	}
	defer rows.Close()

	var lojas []imob.Loja
	for rows.Next() {
		var (
			id       int64
			nome     pgtype.Text
			segmento pgtype.Text
		)
		if err := rows.Scan(&id, &nome, &segmento); err != nil {
			return nil, fmt.Errorf("scan loja: %w", err)
		}

		loja := imob.Loja{ID: id, Nome: nome.String}
		if segmento.Valid {
			seg := segmento.String
			loja.Segmento = &seg
		}
		lojas = append(lojas, loja)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read lojas: %w", err)
	}

	return lojas, nil
}

// InsertRows appends one batch of fully-formed rows to the imob table in a
// single multi-row INSERT, so the batch is atomic: a failed call inserts
// none of its rows.
func (s *Store) InsertRows(ctx context.Context, rows []imob.Record) error {
	if len(rows) == 0 {
		return nil
	}

	query, args := buildInsert(movementsTable, imob.InsertColumns(), rows)
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %d rows: %w", len(rows), err)
	}
	return nil
}

// buildInsert renders a multi-row INSERT for the given column set. Missing
// map entries become NULL.
func buildInsert(table string, columns []string, rows []imob.Record) (string, []any) {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdentifier(col)
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(quoteIdentifier(table))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	arg := 1
	for r, row := range rows {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for c, col := range columns {
			if c > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", arg)
			args = append(args, row[col])
			arg++
		}
		sb.WriteString(")")
	}

	return sb.String(), args
}

// quoteIdentifier safely quotes a PostgreSQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

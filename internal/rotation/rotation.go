// Package rotation implements the operator-invoked key rotation batch.
package rotation

import (
	"context"
	"crypto/cipher"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/abalakin/clinicguard/internal/crypto"
	"github.com/abalakin/clinicguard/internal/repository/postgres"
)

// TableSpec names a table and its encrypted columns.
type TableSpec struct {
	Name    string
	Columns []string
}

// Tables lists every table holding encrypted columns. Lookup digests
// (email_hash) are key-independent and are not touched.
var Tables = []TableSpec{
	{Name: "identities", Columns: []string{"email_enc", "first_name_enc", "last_name_enc"}},
	{Name: "audit_log", Columns: []string{"ip_address_enc", "resource_enc", "details_enc"}},
}

// Stats counts per-table outcomes.
type Stats struct {
	Processed int
	Updated   int
	Errors    int
}

// Report maps table name to its stats.
type Report map[string]*Stats

// TotalErrors sums decrypt failures across tables.
func (r Report) TotalErrors() int {
	n := 0
	for _, s := range r {
		n += s.Errors
	}
	return n
}

// Run re-encrypts every encrypted column from oldKey to newKey inside one
// all-or-nothing transaction. A row that fails to decrypt under the old key
// is counted and skipped, not fatal; any true I/O error rolls everything
// back. With dryRun the full decrypt/re-encrypt work is performed and then
// discarded.
//
// The batch is a single-writer job: callers must serialize it against write
// traffic touching the same rows or accept transient decrypt failures during
// the window.
func Run(ctx context.Context, pool postgres.PgxPool, oldKey, newKey []byte, dryRun bool, log *zap.Logger) (report Report, err error) {
	oldAEAD, err := crypto.NewAEAD(oldKey)
	if err != nil {
		return nil, fmt.Errorf("old key: %w", err)
	}
	newAEAD, err := crypto.NewAEAD(newKey)
	if err != nil {
		return nil, fmt.Errorf("new key: %w", err)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil || dryRun {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	// The audit immutability trigger admits this transaction only.
	if _, err = tx.Exec(ctx, `SET LOCAL clinicguard.key_rotation = 'on'`); err != nil {
		return nil, err
	}

	report = Report{}
	for _, table := range Tables {
		stats := &Stats{}
		report[table.Name] = stats
		if err = rotateTable(ctx, tx, table, oldAEAD, newAEAD, stats, log); err != nil {
			return nil, fmt.Errorf("table %s: %w", table.Name, err)
		}
		log.Info("table rotated",
			zap.String("table", table.Name),
			zap.Int("processed", stats.Processed),
			zap.Int("updated", stats.Updated),
			zap.Int("errors", stats.Errors),
		)
	}
	return report, nil
}

// rowUpdate holds the re-encrypted values for one row. nil means the column
// is left untouched (empty or undecryptable).
type rowUpdate struct {
	id     int64
	values []*string
}

func rotateTable(
	ctx context.Context, tx pgx.Tx, table TableSpec,
	oldAEAD, newAEAD cipher.AEAD, stats *Stats, log *zap.Logger,
) error {
	sel := fmt.Sprintf(`SELECT id, %s FROM %s ORDER BY id`, columnList(table.Columns), table.Name)
	rows, err := tx.Query(ctx, sel)
	if err != nil {
		return err
	}

	// Updates are collected first: the rows iterator holds the connection.
	var updates []rowUpdate
	for rows.Next() {
		var id int64
		tokens := make([]*string, len(table.Columns))
		dest := make([]any, 0, len(table.Columns)+1)
		dest = append(dest, &id)
		for i := range tokens {
			dest = append(dest, &tokens[i])
		}
		if err := rows.Scan(dest...); err != nil {
			rows.Close()
			return err
		}

		stats.Processed++
		upd := rowUpdate{id: id, values: make([]*string, len(table.Columns))}
		changed := false
		for i, token := range tokens {
			if token == nil || *token == "" {
				continue
			}
			plaintext, err := crypto.Open(oldAEAD, *token)
			if err != nil {
				stats.Errors++
				log.Warn("row failed to decrypt under old key, skipping",
					zap.String("table", table.Name),
					zap.String("column", table.Columns[i]),
					zap.Int64("id", id),
				)
				continue
			}
			resealed, err := crypto.Seal(newAEAD, plaintext)
			if err != nil {
				rows.Close()
				return err
			}
			upd.values[i] = &resealed
			changed = true
		}
		if changed {
			updates = append(updates, upd)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, upd := range updates {
		set, args := updateArgs(table.Columns, upd)
		if len(args) == 1 {
			continue
		}
		q := fmt.Sprintf(`UPDATE %s SET %s WHERE id=$1`, table.Name, set)
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return err
		}
		stats.Updated++
	}
	return nil
}

func columnList(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

// updateArgs builds the SET clause and args ($1 is the row id) for the
// columns that were actually re-encrypted.
func updateArgs(cols []string, upd rowUpdate) (string, []any) {
	set := ""
	args := []any{upd.id}
	for i, c := range cols {
		if upd.values[i] == nil {
			continue
		}
		if set != "" {
			set += ", "
		}
		args = append(args, *upd.values[i])
		set += fmt.Sprintf("%s=$%d", c, len(args))
	}
	return set, args
}

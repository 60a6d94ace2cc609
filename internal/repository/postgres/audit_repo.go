package postgres

import (
	"context"

	"github.com/abalakin/clinicguard/internal/crypto"
	"github.com/abalakin/clinicguard/internal/errs"
	"github.com/abalakin/clinicguard/internal/model"
)

// AuditRepo implements the append-only AuditRepository. It has no update or
// delete methods; the audit_log immutability trigger rejects such statements
// from any other path with SQLSTATE 42501.
type AuditRepo struct {
	db    *DB
	codec *crypto.FieldCodec
}

// NewAuditRepo constructs an audit repository.
func NewAuditRepo(db *DB, codec *crypto.FieldCodec) *AuditRepo {
	return &AuditRepo{db: db, codec: codec}
}

// Append persists a new immutable record, encrypting IP, resource and
// details. Encryption failure aborts the write.
func (r *AuditRepo) Append(ctx context.Context, rec *model.AuditRecord) error {
	ipEnc, err := r.codec.Encode(rec.IP)
	if err != nil {
		return err
	}
	resourceEnc, err := r.codec.Encode(rec.Resource)
	if err != nil {
		return err
	}
	detailsEnc, err := r.codec.Encode(rec.Details)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO audit_log (actor_id, action, ip_address_enc, resource_enc, details_enc)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`
	row := r.db.Pool.QueryRow(ctx, q, rec.ActorID, rec.Action, ipEnc, resourceEnc, detailsEnc)
	if err := row.Scan(&rec.ID, &rec.Timestamp); err != nil {
		if isPermissionDenied(err) {
			return errs.ErrAuditImmutable
		}
		return err
	}
	return nil
}

// ListRecent returns up to limit newest records with sensitive columns
// decrypted, degrading to the Unavailable placeholder per column.
func (r *AuditRepo) ListRecent(ctx context.Context, limit int) ([]model.AuditRecord, error) {
	const q = `
SELECT id, actor_id, action, ip_address_enc, resource_enc, details_enc, created_at
FROM audit_log
ORDER BY created_at DESC, id DESC
LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditRecord
	for rows.Next() {
		var (
			rec         model.AuditRecord
			ipEnc       string
			resourceEnc string
			detailsEnc  string
		)
		if err = rows.Scan(&rec.ID, &rec.ActorID, &rec.Action, &ipEnc, &resourceEnc, &detailsEnc, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.IP = r.codec.Decode(ipEnc)
		rec.Resource = r.codec.Decode(resourceEnc)
		rec.Details = r.codec.Decode(detailsEnc)
		out = append(out, rec)
	}
	return out, rows.Err()
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/abalakin/clinicguard/internal/crypto"
	"github.com/abalakin/clinicguard/internal/errs"
	"github.com/abalakin/clinicguard/internal/identity"
	"github.com/abalakin/clinicguard/internal/model"
)

// IdentityRepo implements IdentityRepository using PostgreSQL. Email and name
// columns pass through the field codec on both paths.
type IdentityRepo struct {
	db    *DB
	codec *crypto.FieldCodec
}

// NewIdentityRepo constructs an identity repository.
func NewIdentityRepo(db *DB, codec *crypto.FieldCodec) *IdentityRepo {
	return &IdentityRepo{db: db, codec: codec}
}

const identityColumns = `id, login, role, email_enc, email_hash, first_name_enc, last_name_enc, pwd_hash, pwd_salt, created_at`

// Create inserts a new identity row. The email hash is always recomputed
// from the normalized plaintext before the write.
func (r *IdentityRepo) Create(ctx context.Context, ident *model.Identity) error {
	emailEnc, firstEnc, lastEnc, hash, err := r.prepare(ident)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO identities (login, role, email_enc, email_hash, first_name_enc, last_name_enc, pwd_hash, pwd_salt)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at`
	row := r.db.Pool.QueryRow(ctx, q,
		ident.Login, string(ident.Role), emailEnc, hash, firstEnc, lastEnc, ident.PwdHash, ident.PwdSalt)
	if err := row.Scan(&ident.ID, &ident.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return errs.ErrDuplicateIdentity
		}
		return err
	}
	ident.EmailHash = hash
	return nil
}

// Update rewrites mutable fields, recomputing the email hash from the
// current plaintext.
func (r *IdentityRepo) Update(ctx context.Context, ident *model.Identity) error {
	emailEnc, firstEnc, lastEnc, hash, err := r.prepare(ident)
	if err != nil {
		return err
	}
	const q = `
UPDATE identities
SET role=$2, email_enc=$3, email_hash=$4, first_name_enc=$5, last_name_enc=$6, pwd_hash=$7, pwd_salt=$8
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q,
		ident.ID, string(ident.Role), emailEnc, hash, firstEnc, lastEnc, ident.PwdHash, ident.PwdSalt)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.ErrDuplicateIdentity
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	ident.EmailHash = hash
	return nil
}

// prepare encrypts sensitive fields and derives the lookup hash. An attempt
// to persist the decryption placeholder aborts the write; the email is
// checked before normalization, which would otherwise lowercase the sentinel
// past the codec's guard and overwrite recoverable ciphertext.
func (r *IdentityRepo) prepare(ident *model.Identity) (emailEnc, firstEnc, lastEnc, hash string, err error) {
	if ident.Email == crypto.Unavailable {
		err = fmt.Errorf("%w: refusing to persist decryption placeholder", errs.ErrEncryptionFailed)
		return
	}
	if emailEnc, err = r.codec.Encode(identity.Normalize(ident.Email)); err != nil {
		return
	}
	if firstEnc, err = r.codec.Encode(ident.FirstName); err != nil {
		return
	}
	if lastEnc, err = r.codec.Encode(ident.LastName); err != nil {
		return
	}
	hash = identity.Hash(ident.Email)
	return
}

// GetByID selects an identity by primary key.
func (r *IdentityRepo) GetByID(ctx context.Context, id int64) (*model.Identity, error) {
	const q = `SELECT ` + identityColumns + ` FROM identities WHERE id=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, id))
}

// FindByIdentifier tries the plaintext login first, then the email digest.
// Lookups never decrypt every stored ciphertext.
func (r *IdentityRepo) FindByIdentifier(ctx context.Context, identifier string) (*model.Identity, error) {
	const byLogin = `SELECT ` + identityColumns + ` FROM identities WHERE login=$1`
	ident, err := r.scanOne(r.db.Pool.QueryRow(ctx, byLogin, identifier))
	if err == nil {
		return ident, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	const byHash = `SELECT ` + identityColumns + ` FROM identities WHERE email_hash=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, byHash, identity.Hash(identifier)))
}

// ExistsByEmailHash reports whether an identity with the digest exists.
func (r *IdentityRepo) ExistsByEmailHash(ctx context.Context, emailHash string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM identities WHERE email_hash=$1)`
	var exists bool
	if err := r.db.Pool.QueryRow(ctx, q, emailHash).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *IdentityRepo) scanOne(row pgx.Row) (*model.Identity, error) {
	var (
		ident    model.Identity
		role     string
		emailEnc string
		firstEnc string
		lastEnc  string
	)
	err := row.Scan(&ident.ID, &ident.Login, &role, &emailEnc, &ident.EmailHash,
		&firstEnc, &lastEnc, &ident.PwdHash, &ident.PwdSalt, &ident.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	ident.Role = model.Role(role)
	ident.Email = r.codec.Decode(emailEnc)
	ident.FirstName = r.codec.Decode(firstEnc)
	ident.LastName = r.codec.Decode(lastEnc)
	return &ident, nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/abalakin/clinicguard/internal/errs"
	"github.com/abalakin/clinicguard/internal/repository"
)

// ChallengeRepo implements ChallengeRepository using PostgreSQL.
type ChallengeRepo struct{ db *DB }

// NewChallengeRepo constructs a challenge repository.
func NewChallengeRepo(db *DB) *ChallengeRepo {
	return &ChallengeRepo{db: db}
}

// Issue invalidates every unused, unexpired challenge for the identity and
// inserts the new one in a single transaction, preserving the
// at-most-one-active invariant.
func (r *ChallengeRepo) Issue(
	ctx context.Context, identityID int64, codeHash, codeSalt []byte, expiresAt time.Time,
) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const invalidate = `
UPDATE otp_challenges SET used=true
WHERE identity_id=$1 AND used=false AND expires_at > now()`
	if _, err = tx.Exec(ctx, invalidate, identityID); err != nil {
		return err
	}
	const insert = `
INSERT INTO otp_challenges (identity_id, code_hash, code_salt, attempts, used, expires_at)
VALUES ($1, $2, $3, 0, false, $4)`
	if _, err = tx.Exec(ctx, insert, identityID, codeHash, codeSalt, expiresAt); err != nil {
		return err
	}
	return nil
}

// Verify runs the locked read-check-mutate sequence. The exclusive row lock
// serializes concurrent attempts for the same identity, so two simultaneous
// submissions cannot both consume the challenge or double-increment past the
// cap.
func (r *ChallengeRepo) Verify(
	ctx context.Context, identityID int64, maxAttempts int, match func(hash, salt []byte) bool,
) (status repository.VerifyStatus, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `
SELECT id, code_hash, code_salt, attempts
FROM otp_challenges
WHERE identity_id=$1 AND used=false AND expires_at > now()
ORDER BY created_at DESC
LIMIT 1
FOR UPDATE`
	var (
		id       int64
		hash     []byte
		salt     []byte
		attempts int
	)
	if err = tx.QueryRow(ctx, sel, identityID).Scan(&id, &hash, &salt, &attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.VerifyExpiredOrMissing, nil
		}
		return 0, err
	}

	const markUsed = `UPDATE otp_challenges SET used=true WHERE id=$1`

	if attempts >= maxAttempts {
		if _, err = tx.Exec(ctx, markUsed, id); err != nil {
			return 0, err
		}
		return repository.VerifyTooManyAttempts, nil
	}

	const bump = `UPDATE otp_challenges SET attempts=attempts+1 WHERE id=$1`
	if _, err = tx.Exec(ctx, bump, id); err != nil {
		return 0, err
	}

	if !match(hash, salt) {
		return repository.VerifyInvalidCode, nil
	}
	if _, err = tx.Exec(ctx, markUsed, id); err != nil {
		return 0, err
	}
	return repository.VerifyOK, nil
}

// ActiveChallengeAge returns the age of the identity's active challenge so
// callers can enforce their own session windows.
func (r *ChallengeRepo) ActiveChallengeAge(ctx context.Context, identityID int64) (time.Duration, error) {
	const q = `
SELECT created_at
FROM otp_challenges
WHERE identity_id=$1 AND used=false AND expires_at > now()
ORDER BY created_at DESC
LIMIT 1`
	var createdAt time.Time
	if err := r.db.Pool.QueryRow(ctx, q, identityID).Scan(&createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}
	return time.Since(createdAt), nil
}

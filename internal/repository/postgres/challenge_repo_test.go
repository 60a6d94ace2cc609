package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/abalakin/clinicguard/internal/errs"
	"github.com/abalakin/clinicguard/internal/repository"
)

func TestChallengeRepo_Issue_InvalidatesThenInserts(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewChallengeRepo(db)
	expires := time.Now().Add(10 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE otp_challenges SET used=true WHERE identity_id=\$1 AND used=false AND expires_at > now\(\)`).
		WithArgs(int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO otp_challenges`).
		WithArgs(int64(42), []byte("hash"), []byte("salt"), expires).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, r.Issue(context.Background(), 42, []byte("hash"), []byte("salt"), expires))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChallengeRepo_Verify_ExpiredOrMissing(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewChallengeRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, code_hash, code_salt, attempts FROM otp_challenges .+ FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectCommit()

	status, err := r.Verify(context.Background(), 42, 5, func(_, _ []byte) bool { return true })
	require.NoError(t, err)
	require.Equal(t, repository.VerifyExpiredOrMissing, status)
}

func TestChallengeRepo_Verify_TooManyAttempts(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewChallengeRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, code_hash, code_salt, attempts FROM otp_challenges .+ FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(challengeRow(7, 5))
	mock.ExpectExec(`UPDATE otp_challenges SET used=true WHERE id=\$1`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	// Even a correct code is rejected once the cap is reached.
	status, err := r.Verify(context.Background(), 42, 5, func(_, _ []byte) bool { return true })
	require.NoError(t, err)
	require.Equal(t, repository.VerifyTooManyAttempts, status)
}

func TestChallengeRepo_Verify_Match(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewChallengeRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, code_hash, code_salt, attempts FROM otp_challenges .+ FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(challengeRow(7, 4))
	mock.ExpectExec(`UPDATE otp_challenges SET attempts=attempts\+1 WHERE id=\$1`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE otp_challenges SET used=true WHERE id=\$1`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	// 4 prior failures: the 5th attempt with the right code still succeeds.
	status, err := r.Verify(context.Background(), 42, 5, func(hash, salt []byte) bool {
		return string(hash) == "stored-hash" && string(salt) == "stored-salt"
	})
	require.NoError(t, err)
	require.Equal(t, repository.VerifyOK, status)
}

func TestChallengeRepo_Verify_Mismatch(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewChallengeRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, code_hash, code_salt, attempts FROM otp_challenges .+ FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(challengeRow(7, 0))
	mock.ExpectExec(`UPDATE otp_challenges SET attempts=attempts\+1 WHERE id=\$1`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	// The challenge stays consumable after a mismatch: no used flag update.
	status, err := r.Verify(context.Background(), 42, 5, func(_, _ []byte) bool { return false })
	require.NoError(t, err)
	require.Equal(t, repository.VerifyInvalidCode, status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChallengeRepo_ActiveChallengeAge(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewChallengeRepo(db)

	created := time.Now().Add(-3 * time.Minute)
	mock.ExpectQuery(`SELECT created_at FROM otp_challenges`).
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))

	age, err := r.ActiveChallengeAge(context.Background(), 42)
	require.NoError(t, err)
	require.InDelta(t, (3 * time.Minute).Seconds(), age.Seconds(), 5)

	mock.ExpectQuery(`SELECT created_at FROM otp_challenges`).
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.ActiveChallengeAge(context.Background(), 42)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func challengeRow(id int64, attempts int) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "code_hash", "code_salt", "attempts"}).
		AddRow(id, []byte("stored-hash"), []byte("stored-salt"), attempts)
}

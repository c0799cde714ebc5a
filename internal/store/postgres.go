package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

type PostgresStore struct {
	pgOps
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{pgOps: pgOps{q: db}, db: db}
}

func (s *PostgresStore) DB() *sqlx.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunInTx runs fn in a SERIALIZABLE transaction. Serialization failures,
// deadlocks and unique violations surface as ErrTxConflict.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", classifyPgError(err))
	}
	if err := fn(pgOps{q: tx}); err != nil {
		_ = tx.Rollback()
		return classifyPgError(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", classifyPgError(err))
	}
	return nil
}

func (s *PostgresStore) ListPendingProfiles(ctx context.Context, afterID string, limit int) ([]PendingProfile, error) {
	items := make([]PendingProfile, 0)
	err := sqlx.SelectContext(ctx, s.db, &items, `
		SELECT `+pendingProfileColumns+`
		FROM pending_profiles
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending profiles: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListPendingProfilesByStatus(ctx context.Context, status, afterID string, limit int) ([]PendingProfile, error) {
	items := make([]PendingProfile, 0)
	err := sqlx.SelectContext(ctx, s.db, &items, `
		SELECT `+pendingProfileColumns+`
		FROM pending_profiles
		WHERE status = $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`, status, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending profiles by status: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListUsernames(ctx context.Context, afterKey string, limit int) ([]UsernameRecord, error) {
	items := make([]UsernameRecord, 0)
	err := sqlx.SelectContext(ctx, s.db, &items, `
		SELECT `+usernameColumns+`
		FROM usernames
		WHERE canonical_key > $1
		ORDER BY canonical_key
		LIMIT $2
	`, afterKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list usernames: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListUsernamesByPrefix(ctx context.Context, prefix string, limit int) ([]UsernameRecord, error) {
	items := make([]UsernameRecord, 0)
	err := sqlx.SelectContext(ctx, s.db, &items, `
		SELECT `+usernameColumns+`
		FROM usernames
		WHERE canonical_key LIKE $1 ESCAPE '\'
		ORDER BY canonical_key
		LIMIT $2
	`, escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("list usernames by prefix: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListRoleGrants(ctx context.Context, email string) ([]PendingRoleGrant, error) {
	items := make([]PendingRoleGrant, 0)
	err := sqlx.SelectContext(ctx, s.db, &items, `
		SELECT id, email, role, source, created_at
		FROM pending_roles
		WHERE LOWER(email) = LOWER($1)
		ORDER BY created_at, id
	`, email)
	if err != nil {
		return nil, fmt.Errorf("list role grants: %w", err)
	}
	return items, nil
}

const (
	usernameColumns       = `canonical_key, display_name, holder_id, reserved_for_email, is_pending, claimed_at`
	pendingProfileColumns = `id, email, chat_username, chat_username_normalized, display_name, status, dj_profile, created_at, created_by, claimed_by, claimed_at`
	accountColumns        = `id, email, chat_username, chat_username_normalized, role, dj_profile, updated_at`
)

// pgOps implements Tx over either the pool or an open transaction.
type pgOps struct {
	q sqlx.ExtContext
}

func (o pgOps) GetUsername(ctx context.Context, key string) (UsernameRecord, error) {
	var record UsernameRecord
	err := sqlx.GetContext(ctx, o.q, &record, `SELECT `+usernameColumns+` FROM usernames WHERE canonical_key=$1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return UsernameRecord{}, ErrNotFound
	}
	if err != nil {
		return UsernameRecord{}, fmt.Errorf("get username %s: %w", key, classifyPgError(err))
	}
	return record, nil
}

func (o pgOps) PutUsername(ctx context.Context, record UsernameRecord) error {
	_, err := sqlx.NamedExecContext(ctx, o.q, `
		INSERT INTO usernames (`+usernameColumns+`)
		VALUES (:canonical_key, :display_name, :holder_id, :reserved_for_email, :is_pending, :claimed_at)
		ON CONFLICT (canonical_key) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			holder_id = EXCLUDED.holder_id,
			reserved_for_email = EXCLUDED.reserved_for_email,
			is_pending = EXCLUDED.is_pending,
			claimed_at = EXCLUDED.claimed_at
	`, record)
	if err != nil {
		return fmt.Errorf("put username %s: %w", record.CanonicalKey, classifyPgError(err))
	}
	return nil
}

func (o pgOps) DeleteUsername(ctx context.Context, key string) error {
	if _, err := o.q.ExecContext(ctx, `DELETE FROM usernames WHERE canonical_key=$1`, key); err != nil {
		return fmt.Errorf("delete username %s: %w", key, classifyPgError(err))
	}
	return nil
}

func (o pgOps) GetPendingProfile(ctx context.Context, id string) (PendingProfile, error) {
	var profile PendingProfile
	err := sqlx.GetContext(ctx, o.q, &profile, `SELECT `+pendingProfileColumns+` FROM pending_profiles WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingProfile{}, ErrNotFound
	}
	if err != nil {
		return PendingProfile{}, fmt.Errorf("get pending profile %s: %w", id, classifyPgError(err))
	}
	return profile, nil
}

func (o pgOps) PutPendingProfile(ctx context.Context, profile PendingProfile) error {
	_, err := sqlx.NamedExecContext(ctx, o.q, `
		INSERT INTO pending_profiles (`+pendingProfileColumns+`)
		VALUES (:id, :email, :chat_username, :chat_username_normalized, :display_name, :status,
			:dj_profile, :created_at, :created_by, :claimed_by, :claimed_at)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			chat_username = EXCLUDED.chat_username,
			chat_username_normalized = EXCLUDED.chat_username_normalized,
			display_name = EXCLUDED.display_name,
			status = EXCLUDED.status,
			dj_profile = EXCLUDED.dj_profile,
			created_at = EXCLUDED.created_at,
			created_by = EXCLUDED.created_by,
			claimed_by = EXCLUDED.claimed_by,
			claimed_at = EXCLUDED.claimed_at
	`, profile)
	if err != nil {
		return fmt.Errorf("put pending profile %s: %w", profile.ID, classifyPgError(err))
	}
	return nil
}

func (o pgOps) DeletePendingProfile(ctx context.Context, id string) error {
	if _, err := o.q.ExecContext(ctx, `DELETE FROM pending_profiles WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete pending profile %s: %w", id, classifyPgError(err))
	}
	return nil
}

func (o pgOps) FindPendingProfilesByEmail(ctx context.Context, email, status string) ([]PendingProfile, error) {
	items := make([]PendingProfile, 0)
	err := sqlx.SelectContext(ctx, o.q, &items, `
		SELECT `+pendingProfileColumns+`
		FROM pending_profiles
		WHERE LOWER(email) = LOWER($1) AND status = $2
		ORDER BY id
	`, email, status)
	if err != nil {
		return nil, fmt.Errorf("find pending profiles by email: %w", classifyPgError(err))
	}
	return items, nil
}

func (o pgOps) PutRoleGrant(ctx context.Context, grant PendingRoleGrant) error {
	_, err := sqlx.NamedExecContext(ctx, o.q, `
		INSERT INTO pending_roles (id, email, role, source, created_at)
		VALUES (:id, :email, :role, :source, :created_at)
	`, grant)
	if err != nil {
		return fmt.Errorf("put role grant: %w", classifyPgError(err))
	}
	return nil
}

func (o pgOps) DeleteRoleGrantsBySource(ctx context.Context, source string) (int, error) {
	result, err := o.q.ExecContext(ctx, `DELETE FROM pending_roles WHERE source=$1`, source)
	if err != nil {
		return 0, fmt.Errorf("delete role grants: %w", classifyPgError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete role grants: %w", err)
	}
	return int(affected), nil
}

func (o pgOps) GetAccount(ctx context.Context, id string) (Account, error) {
	var account Account
	err := sqlx.GetContext(ctx, o.q, &account, `SELECT `+accountColumns+` FROM users WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account %s: %w", id, classifyPgError(err))
	}
	return account, nil
}

func (o pgOps) PutAccount(ctx context.Context, account Account) error {
	_, err := sqlx.NamedExecContext(ctx, o.q, `
		INSERT INTO users (`+accountColumns+`)
		VALUES (:id, :email, :chat_username, :chat_username_normalized, :role, :dj_profile, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			chat_username = EXCLUDED.chat_username,
			chat_username_normalized = EXCLUDED.chat_username_normalized,
			role = EXCLUDED.role,
			dj_profile = EXCLUDED.dj_profile,
			updated_at = EXCLUDED.updated_at
	`, account)
	if err != nil {
		return fmt.Errorf("put account %s: %w", account.ID, classifyPgError(err))
	}
	return nil
}

func (o pgOps) AccountExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, o.q, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email)
	if err != nil {
		return false, fmt.Errorf("check account email: %w", classifyPgError(err))
	}
	return exists, nil
}

// classifyPgError maps Postgres contention errors onto ErrTxConflict and
// leaves every other error untouched.
func classifyPgError(err error) error {
	if err == nil || errors.Is(err, ErrTxConflict) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %w", ErrTxConflict, err)
		}
	}
	return err
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

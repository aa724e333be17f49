package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps the settings singleton in a one-row table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a settings store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectSettings = `SELECT wallet_enabled, allowed_owner_types, funding_rails, compliance, updated_at
    FROM wallet_settings WHERE id = 1`

// Get returns current settings, inserting the default record on first use.
func (s *PostgresStore) Get(ctx context.Context) (Settings, error) {
	current, err := scanSettings(s.db.QueryRow(ctx, selectSettings))
	if err == nil {
		return current, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Settings{}, err
	}

	defaults := Default()
	defaults.UpdatedAt = time.Now().UTC()
	if err := s.upsert(ctx, s.db, defaults); err != nil {
		return Settings{}, err
	}
	return defaults, nil
}

// Replace merges the patch into the stored record under the row lock and
// persists the whole merged record.
func (s *PostgresStore) Replace(ctx context.Context, patch Patch) (Settings, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Settings{}, fmt.Errorf("begin settings update: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, err := scanSettings(tx.QueryRow(ctx, selectSettings+` FOR UPDATE`))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, err
		}
		current = Default()
	}

	merged := current.merge(patch)
	merged.UpdatedAt = time.Now().UTC()

	if err := s.upsert(ctx, tx, merged); err != nil {
		return Settings{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Settings{}, fmt.Errorf("commit settings update: %w", err)
	}
	return merged, nil
}

// execer covers the Exec method shared by *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) upsert(ctx context.Context, q execer, st Settings) error {
	rails, err := json.Marshal(st.FundingRails)
	if err != nil {
		return fmt.Errorf("encode funding rails: %w", err)
	}
	compliance, err := json.Marshal(st.Compliance)
	if err != nil {
		return fmt.Errorf("encode compliance: %w", err)
	}

	_, err = q.Exec(ctx, `INSERT INTO wallet_settings (id, wallet_enabled, allowed_owner_types, funding_rails, compliance, updated_at)
        VALUES (1, $1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET
            wallet_enabled = EXCLUDED.wallet_enabled,
            allowed_owner_types = EXCLUDED.allowed_owner_types,
            funding_rails = EXCLUDED.funding_rails,
            compliance = EXCLUDED.compliance,
            updated_at = EXCLUDED.updated_at`,
		st.WalletEnabled, st.AllowedOwnerTypes, rails, compliance, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func scanSettings(row pgx.Row) (Settings, error) {
	var st Settings
	var rails, compliance []byte
	if err := row.Scan(&st.WalletEnabled, &st.AllowedOwnerTypes, &rails, &compliance, &st.UpdatedAt); err != nil {
		return Settings{}, err
	}
	if err := json.Unmarshal(rails, &st.FundingRails); err != nil {
		return Settings{}, fmt.Errorf("decode funding rails: %w", err)
	}
	if err := json.Unmarshal(compliance, &st.Compliance); err != nil {
		return Settings{}, fmt.Errorf("decode compliance: %w", err)
	}
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dust3/gatekeeper/core"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// PostgresIdentityStore persists identities with a unique wallet index.
type PostgresIdentityStore struct {
	db *sql.DB
}

func NewPostgresIdentityStore(db *sql.DB) *PostgresIdentityStore {
	return &PostgresIdentityStore{db: db}
}

func (s *PostgresIdentityStore) FindByWallet(ctx context.Context, wallet string) (*core.Identity, error) {
	query := `SELECT id, wallet, active, created_at FROM identities WHERE wallet = $1`

	identity := &core.Identity{}
	err := s.db.QueryRowContext(ctx, query, wallet).
		Scan(&identity.ID, &identity.Wallet, &identity.Active, &identity.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return identity, nil
}

// Create inserts the identity. The unique index on wallet turns a creation
// race into core.ErrDuplicate so the caller can refetch.
func (s *PostgresIdentityStore) Create(ctx context.Context, identity *core.Identity) error {
	query := `INSERT INTO identities (id, wallet, active, created_at) VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecContext(ctx, query,
		identity.ID, identity.Wallet, identity.Active, identity.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicate
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// PostgresSettlementStore persists settlements with a unique item_ref
// index, making the existence check and the pending insert one statement.
type PostgresSettlementStore struct {
	db *sql.DB
}

func NewPostgresSettlementStore(db *sql.DB) *PostgresSettlementStore {
	return &PostgresSettlementStore{db: db}
}

const settlementColumns = `id, item_ref, wallet, payout_amount, idempotency_key, status, tx_signature, created_at, updated_at`

func scanSettlement(row *sql.Row) (*core.Settlement, error) {
	s := &core.Settlement{}
	var amount string
	err := row.Scan(&s.ID, &s.ItemRef, &s.Wallet, &amount, &s.IdempotencyKey,
		&s.Status, &s.TxSignature, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.PayoutAmount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid payout amount %q: %w", amount, err)
	}
	return s, nil
}

// CreatePending inserts a pending settlement unless one already exists for
// the item. ON CONFLICT reclaims a failed row in place; when the existing
// row is pending or success the statement affects nothing and the existing
// record is returned with core.ErrDuplicate.
func (s *PostgresSettlementStore) CreatePending(ctx context.Context, settlement *core.Settlement) (*core.Settlement, error) {
	query := `
		INSERT INTO settlements (` + settlementColumns + `)
		VALUES ($1, $2, $3, $4, $5, 'pending', '', now(), now())
		ON CONFLICT (item_ref) DO UPDATE
		SET status = 'pending',
		    wallet = EXCLUDED.wallet,
		    payout_amount = EXCLUDED.payout_amount,
		    idempotency_key = EXCLUDED.idempotency_key,
		    tx_signature = '',
		    updated_at = now()
		WHERE settlements.status = 'failed'
		RETURNING ` + settlementColumns

	row := s.db.QueryRowContext(ctx, query,
		settlement.ID, settlement.ItemRef, settlement.Wallet,
		settlement.PayoutAmount.String(), settlement.IdempotencyKey)

	created, err := scanSettlement(row)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}

	// Conflict with a pending or success row: hand back the existing one.
	existing, err := s.FindByItem(ctx, settlement.ItemRef)
	if err != nil {
		return nil, err
	}
	return existing, core.ErrDuplicate
}

func (s *PostgresSettlementStore) UpdateStatus(ctx context.Context, id string, status core.SettlementStatus, txSignature string) error {
	query := `UPDATE settlements SET status = $2, tx_signature = $3, updated_at = now() WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, id, string(status), txSignature)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *PostgresSettlementStore) FindByItem(ctx context.Context, itemRef string) (*core.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE item_ref = $1`

	settlement, err := scanSettlement(s.db.QueryRowContext(ctx, query, itemRef))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return settlement, nil
}

// PostgresNonceStore records consumed nonces durably; the unique index on
// nonce makes duplicate detection atomic across instances.
type PostgresNonceStore struct {
	db *sql.DB
}

func NewPostgresNonceStore(db *sql.DB) *PostgresNonceStore {
	return &PostgresNonceStore{db: db}
}

func (s *PostgresNonceStore) PutIfAbsent(ctx context.Context, nonce string, ttl time.Duration) error {
	query := `
		INSERT INTO request_nonces (nonce, expires_at)
		VALUES ($1, now() + make_interval(secs => $2))
		ON CONFLICT (nonce) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query, nonce, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return core.ErrDuplicate
	}
	return nil
}

// Sweep deletes expired nonce records and returns the count removed. Run
// it periodically; retention only has to cover the clock-skew window.
func (s *PostgresNonceStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM request_nonces WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/walletforge/privy-proxy/internal/domain"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// -------------------------
// Locking policy:
// Every mutation for one owner locks that owner's rows FOR UPDATE before
// touching the active flag, so deactivate-then-activate is linearizable per
// owner. No transaction ever spans two owners, so no cross-owner lock
// ordering is needed.
// -------------------------

// UpsertSession writes the owner's session row (partial-unique on
// discord_id where wallet_address is null; last writer wins on the provider
// id) and refreshes the credential on the owner's wallet rows so trusted
// readers can join from any row.
func (r *Repository) UpsertSession(ctx context.Context, externalID, providerID, credential string, expiresAt time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO user_wallets (discord_id, privy_user_id, jwt, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (discord_id) WHERE wallet_address IS NULL
		DO UPDATE SET privy_user_id = EXCLUDED.privy_user_id,
		              jwt           = EXCLUDED.jwt,
		              expires_at    = EXCLUDED.expires_at,
		              updated_at    = NOW()
	`, externalID, providerID, credential, expiresAt)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE user_wallets
		SET privy_user_id = $2, jwt = $3, expires_at = $4, updated_at = NOW()
		WHERE discord_id = $1 AND wallet_address IS NOT NULL
	`, externalID, providerID, credential, expiresAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) GetSession(ctx context.Context, externalID string) (domain.SessionRecord, error) {
	rec := domain.SessionRecord{ExternalID: externalID}
	err := r.pool.QueryRow(ctx, `
		SELECT privy_user_id, jwt, expires_at
		FROM user_wallets
		WHERE discord_id = $1 AND wallet_address IS NULL
	`, externalID).Scan(&rec.ProviderID, &rec.Credential, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SessionRecord{}, domain.ErrSessionNotFound
		}
		return domain.SessionRecord{}, err
	}

	// expires_at bounds server-side validity independently of the signature.
	if !rec.ExpiresAt.After(time.Now()) {
		return domain.SessionRecord{}, domain.ErrSessionNotFound
	}
	return rec, nil
}

// AddWallet records a wallet for the owner, copying the session row's
// credential onto the new row. Idempotent per (owner, address).
func (r *Repository) AddWallet(ctx context.Context, externalID, providerID, walletAddress string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var credential string
	var expiresAt time.Time
	err = tx.QueryRow(ctx, `
		SELECT jwt, expires_at
		FROM user_wallets
		WHERE discord_id = $1 AND wallet_address IS NULL
	`, externalID).Scan(&credential, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrSessionNotFound
		}
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_wallets (discord_id, privy_user_id, wallet_address, is_active, jwt, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $5, NOW(), NOW())
		ON CONFLICT (discord_id, wallet_address) DO NOTHING
	`, externalID, providerID, walletAddress, credential, expiresAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) ListWallets(ctx context.Context, externalID string) ([]domain.WalletRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, discord_id, privy_user_id, wallet_address, is_active, jwt, expires_at, created_at, updated_at
		FROM user_wallets
		WHERE discord_id = $1 AND wallet_address IS NOT NULL
		ORDER BY created_at, id
	`, externalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.WalletRecord
	for rows.Next() {
		var rec domain.WalletRecord
		if err := rows.Scan(
			&rec.ID, &rec.ExternalID, &rec.ProviderID, &rec.WalletAddress, &rec.IsActive,
			&rec.Credential, &rec.ExpiresAt, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetActiveWallet runs the deactivate-all-then-activate-one protocol in one
// transaction. A concurrent reader never observes zero or two active rows
// for the owner.
func (r *Repository) SetActiveWallet(ctx context.Context, externalID, walletAddress string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// 1) Lock the owner's rows first; serializes concurrent activations for
	//    this owner.
	rows, err := tx.Query(ctx, `
		SELECT wallet_address
		FROM user_wallets
		WHERE discord_id = $1
		FOR UPDATE
	`, externalID)
	if err != nil {
		return err
	}

	found := false
	for rows.Next() {
		var addr *string
		if err := rows.Scan(&addr); err != nil {
			rows.Close()
			return err
		}
		if addr != nil && *addr == walletAddress {
			found = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	// 2) Activation never creates a wallet; existing state stays untouched.
	if !found {
		return domain.ErrWalletNotFound
	}

	if _, err := tx.Exec(ctx, `
		UPDATE user_wallets
		SET is_active = FALSE, updated_at = NOW()
		WHERE discord_id = $1 AND is_active
	`, externalID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE user_wallets
		SET is_active = TRUE, updated_at = NOW()
		WHERE discord_id = $1 AND wallet_address = $2
	`, externalID, walletAddress); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) GetActiveWallet(ctx context.Context, externalID string) (string, error) {
	var addr string
	err := r.pool.QueryRow(ctx, `
		SELECT wallet_address
		FROM user_wallets
		WHERE discord_id = $1 AND is_active
	`, externalID).Scan(&addr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNoActiveWallet
		}
		return "", err
	}
	return addr, nil
}

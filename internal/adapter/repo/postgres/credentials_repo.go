package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/claymoreai/claymore/internal/domain"
)

// CredentialRepo arbitrates the shared LLM key pool through row locks.
type CredentialRepo struct{ Pool PgxPool }

// NewCredentialRepo constructs a CredentialRepo with the given pool.
func NewCredentialRepo(p PgxPool) *CredentialRepo { return &CredentialRepo{Pool: p} }

// Checkout leases one available credential: inside a transaction, lock one
// available row, flip it to in-use, commit. No row → ErrNoCredential.
func (r *CredentialRepo) Checkout(ctx domain.Context) (domain.Credential, error) {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return domain.Credential{}, fmt.Errorf("op=credential.checkout: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var c domain.Credential
	q := `SELECT credential_id, credential_secret FROM credentials
	      WHERE credential_status = 0 LIMIT 1 FOR UPDATE SKIP LOCKED`
	if err := tx.QueryRow(ctx, q).Scan(&c.ID, &c.Secret); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Credential{}, fmt.Errorf("op=credential.checkout: %w", domain.ErrNoCredential)
		}
		return domain.Credential{}, fmt.Errorf("op=credential.checkout: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE credentials SET credential_status = 1 WHERE credential_id = $1`, c.ID); err != nil {
		return domain.Credential{}, fmt.Errorf("op=credential.checkout: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Credential{}, fmt.Errorf("op=credential.checkout: %w", err)
	}
	return c, nil
}

// Release returns a credential to the pool. It is unconditional so it can
// run from success, error, and panic paths alike.
func (r *CredentialRepo) Release(ctx domain.Context, id string) error {
	if _, err := r.Pool.Exec(ctx, `UPDATE credentials SET credential_status = 0 WHERE credential_id = $1`, id); err != nil {
		return fmt.Errorf("op=credential.release: %w", err)
	}
	return nil
}

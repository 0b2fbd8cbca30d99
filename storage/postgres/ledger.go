package pgstore

import (
	"context"
	"strings"
	"time"

	"github.com/PaulFidika/subkit/entitlements"
	migrations "github.com/PaulFidika/subkit/migrations/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger keeps every processed transaction in Postgres. It is a
// core.TransactionAuditor, a core.EntitlementSource over what it has seen and
// a core.FinishLedger keyed on the finished_at column.
type Ledger struct {
	pg     *pgxpool.Pool
	schema string
	now    func() time.Time
}

// NewLedger targets <schema>.transactions, the table migrations.Migrate
// creates for the same schema. An empty schema means migrations.DefaultSchema.
func NewLedger(pg *pgxpool.Pool, schema string) *Ledger {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = migrations.DefaultSchema
	}
	return &Ledger{pg: pg, schema: s, now: time.Now}
}

func (l *Ledger) table() string { return l.schema + ".transactions" }

// LogTransaction upserts rec. finished_at is never touched.
func (l *Ledger) LogTransaction(ctx context.Context, source string, rec entitlements.TransactionRecord) error {
	if l.pg == nil || rec.ID == "" {
		return nil
	}
	_, err := l.pg.Exec(ctx, `INSERT INTO `+l.table()+` AS t
		(id, original_id, product_id, verification, verification_error, purchased_at,
		 revoked_at, revocation_reason, expires_at, is_upgraded, environment, source, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
		ON CONFLICT (id) DO UPDATE SET
		  original_id=EXCLUDED.original_id, product_id=EXCLUDED.product_id,
		  verification=EXCLUDED.verification, verification_error=EXCLUDED.verification_error,
		  purchased_at=EXCLUDED.purchased_at, revoked_at=EXCLUDED.revoked_at,
		  revocation_reason=EXCLUDED.revocation_reason, expires_at=EXCLUDED.expires_at,
		  is_upgraded=EXCLUDED.is_upgraded, environment=EXCLUDED.environment,
		  source=EXCLUDED.source, recorded_at=NOW()`,
		rec.ID, rec.OriginalID, rec.ProductID, string(rec.Verification), rec.VerificationError,
		nullTime(rec.PurchasedAt), rec.RevokedAt, rec.RevocationReason, rec.ExpiresAt,
		rec.IsUpgraded, rec.Environment, source)
	return err
}

// CurrentEntitlements returns the latest transaction of each subscription
// chain that is neither revoked nor expired, newest first.
func (l *Ledger) CurrentEntitlements(ctx context.Context) ([]entitlements.TransactionRecord, error) {
	out := []entitlements.TransactionRecord{}
	if l.pg == nil {
		return out, nil
	}
	rows, err := l.pg.Query(ctx, `SELECT id, original_id, product_id, verification, verification_error,
		       purchased_at, revoked_at, revocation_reason, expires_at, is_upgraded, environment
		FROM (
		  SELECT DISTINCT ON (COALESCE(NULLIF(original_id, ''), id)) *
		  FROM `+l.table()+`
		  WHERE product_id <> ''
		  ORDER BY COALESCE(NULLIF(original_id, ''), id), purchased_at DESC NULLS LAST
		) latest
		WHERE revoked_at IS NULL AND (expires_at IS NULL OR expires_at > $1)
		ORDER BY purchased_at DESC NULLS LAST`, l.now().UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Claim marks transactionID finished. Only the first caller gets true.
// A transaction not yet logged gets a placeholder row filled in later by
// LogTransaction.
func (l *Ledger) Claim(ctx context.Context, transactionID string) (bool, error) {
	if l.pg == nil {
		return true, nil
	}
	tag, err := l.pg.Exec(ctx, `INSERT INTO `+l.table()+` AS t (id, finished_at) VALUES ($1, NOW())
		ON CONFLICT (id) DO UPDATE SET finished_at=NOW() WHERE t.finished_at IS NULL`, transactionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (l *Ledger) Release(ctx context.Context, transactionID string) error {
	if l.pg == nil {
		return nil
	}
	_, err := l.pg.Exec(ctx, `UPDATE `+l.table()+` SET finished_at=NULL WHERE id=$1`, transactionID)
	return err
}

// FinishedAt returns when transactionID was finished, or nil.
func (l *Ledger) FinishedAt(ctx context.Context, transactionID string) (*time.Time, error) {
	if l.pg == nil {
		return nil, nil
	}
	var at *time.Time
	err := l.pg.QueryRow(ctx, `SELECT finished_at FROM `+l.table()+` WHERE id=$1`, transactionID).Scan(&at)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return at, err
}

func scanRecord(row pgx.Row) (entitlements.TransactionRecord, error) {
	var (
		rec          entitlements.TransactionRecord
		verification string
		purchasedAt  *time.Time
	)
	err := row.Scan(&rec.ID, &rec.OriginalID, &rec.ProductID, &verification, &rec.VerificationError,
		&purchasedAt, &rec.RevokedAt, &rec.RevocationReason, &rec.ExpiresAt, &rec.IsUpgraded, &rec.Environment)
	if err != nil {
		return entitlements.TransactionRecord{}, err
	}
	rec.Verification = entitlements.Verification(verification)
	if purchasedAt != nil {
		rec.PurchasedAt = purchasedAt.UTC()
	}
	return rec, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

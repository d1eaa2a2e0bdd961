package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/storage"
)

func normalizeInviteRecord(record storage.InviteRecord) (storage.InviteRecord, error) {
	record.KingdomID = strings.TrimSpace(record.KingdomID)
	record.RecipientID = strings.TrimSpace(record.RecipientID)
	record.CycleID = strings.TrimSpace(record.CycleID)
	record.SentBy = strings.TrimSpace(record.SentBy)
	if record.KingdomID == "" {
		return storage.InviteRecord{}, fmt.Errorf("kingdom id is required")
	}
	if record.RecipientID == "" {
		return storage.InviteRecord{}, fmt.Errorf("recipient id is required")
	}
	if record.CycleID == "" {
		return storage.InviteRecord{}, fmt.Errorf("cycle id is required")
	}
	if record.SentBy == "" {
		return storage.InviteRecord{}, fmt.Errorf("sender user id is required")
	}
	if record.CreatedAt.IsZero() {
		return storage.InviteRecord{}, fmt.Errorf("created time is required")
	}
	return record, nil
}

// ConsumeInvite records one invite and charges the kingdom's cycle ledger in
// a single transaction. The ledger is created at the given allowance when
// absent; an existing ledger's allowance only ever grows.
func (s *Store) ConsumeInvite(ctx context.Context, invite storage.InviteRecord, allowance int) (storage.InviteOutcome, error) {
	if err := ctx.Err(); err != nil {
		return storage.InviteOutcome{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.InviteOutcome{}, fmt.Errorf("storage is not configured")
	}
	record, err := normalizeInviteRecord(invite)
	if err != nil {
		return storage.InviteOutcome{}, err
	}
	if allowance <= 0 {
		return storage.InviteOutcome{}, fmt.Errorf("allowance must be positive")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.InviteOutcome{}, storeError("begin invite write", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback invite write: %v", cause, rollbackErr)
		}
		return cause
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO invites (kingdom_id, recipient_id, cycle_id, sent_by, created_at)
VALUES (?, ?, ?, ?, ?)
`,
		record.KingdomID,
		record.RecipientID,
		record.CycleID,
		record.SentBy,
		toMillis(record.CreatedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return storage.InviteOutcome{}, rollbackWith(storage.ErrAlreadyInvited)
		}
		return storage.InviteOutcome{}, rollbackWith(storeError("insert invite", err))
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO quota_ledgers (kingdom_id, cycle_id, used, allowance)
VALUES (?, ?, 0, ?)
ON CONFLICT (kingdom_id, cycle_id) DO UPDATE SET allowance = MAX(allowance, excluded.allowance)
`, record.KingdomID, record.CycleID, allowance); err != nil {
		return storage.InviteOutcome{}, rollbackWith(storeError("upsert quota ledger", err))
	}

	res, err := tx.ExecContext(ctx, `
UPDATE quota_ledgers
SET used = used + 1
WHERE kingdom_id = ? AND cycle_id = ? AND used < allowance
`, record.KingdomID, record.CycleID)
	if err != nil {
		return storage.InviteOutcome{}, rollbackWith(storeError("charge quota ledger", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storage.InviteOutcome{}, rollbackWith(storeError("charge quota ledger", err))
	}
	if affected == 0 {
		return storage.InviteOutcome{}, rollbackWith(storage.ErrQuotaExceeded)
	}

	var used, ledgerAllowance int
	row := tx.QueryRowContext(ctx, `
SELECT used, allowance
FROM quota_ledgers
WHERE kingdom_id = ? AND cycle_id = ?
`, record.KingdomID, record.CycleID)
	if err := row.Scan(&used, &ledgerAllowance); err != nil {
		return storage.InviteOutcome{}, rollbackWith(storeError("read quota ledger", err))
	}

	if err := tx.Commit(); err != nil {
		return storage.InviteOutcome{}, storeError("commit invite write", err)
	}
	return storage.InviteOutcome{Invite: record, Used: used, Allowance: ledgerAllowance}, nil
}

// GetQuota returns the ledger row for a kingdom and cycle.
func (s *Store) GetQuota(ctx context.Context, kingdomID, cycleID string) (storage.QuotaRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.QuotaRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.QuotaRecord{}, fmt.Errorf("storage is not configured")
	}
	kingdomID = strings.TrimSpace(kingdomID)
	cycleID = strings.TrimSpace(cycleID)
	if kingdomID == "" {
		return storage.QuotaRecord{}, fmt.Errorf("kingdom id is required")
	}
	if cycleID == "" {
		return storage.QuotaRecord{}, fmt.Errorf("cycle id is required")
	}

	var record storage.QuotaRecord
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT kingdom_id, cycle_id, used, allowance
FROM quota_ledgers
WHERE kingdom_id = ? AND cycle_id = ?
`, kingdomID, cycleID)
	if err := row.Scan(&record.KingdomID, &record.CycleID, &record.Used, &record.Allowance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.QuotaRecord{}, storage.ErrNotFound
		}
		return storage.QuotaRecord{}, storeError("get quota ledger", err)
	}
	return record, nil
}

// ListInvites returns the invites sent for a kingdom, newest first.
func (s *Store) ListInvites(ctx context.Context, kingdomID string) ([]storage.InviteRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	kingdomID = strings.TrimSpace(kingdomID)
	if kingdomID == "" {
		return nil, fmt.Errorf("kingdom id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT kingdom_id, recipient_id, cycle_id, sent_by, created_at
FROM invites
WHERE kingdom_id = ?
ORDER BY created_at DESC, recipient_id ASC
`, kingdomID)
	if err != nil {
		return nil, storeError("list invites", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var invites []storage.InviteRecord
	for rows.Next() {
		var record storage.InviteRecord
		var createdAt int64
		if err := rows.Scan(&record.KingdomID, &record.RecipientID, &record.CycleID, &record.SentBy, &createdAt); err != nil {
			return nil, storeError("scan invite", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		invites = append(invites, record)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list invites", err)
	}
	return invites, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/storage"
)

const defaultClaimPageSize = 50

var claimRoles = map[string]struct{}{
	"primary":  {},
	"delegate": {},
}

var claimStatuses = map[string]struct{}{
	"pending":   {},
	"active":    {},
	"inactive":  {},
	"suspended": {},
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func normalizeClaimRecord(record storage.ClaimRecord) (storage.ClaimRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.KingdomID = strings.TrimSpace(record.KingdomID)
	record.UserID = strings.TrimSpace(record.UserID)
	record.Role = strings.TrimSpace(record.Role)
	record.Status = strings.TrimSpace(record.Status)
	record.AssignedBy = strings.TrimSpace(record.AssignedBy)
	if record.ID == "" {
		return storage.ClaimRecord{}, fmt.Errorf("claim id is required")
	}
	if record.KingdomID == "" {
		return storage.ClaimRecord{}, fmt.Errorf("kingdom id is required")
	}
	if record.UserID == "" {
		return storage.ClaimRecord{}, fmt.Errorf("user id is required")
	}
	if _, ok := claimRoles[record.Role]; !ok {
		return storage.ClaimRecord{}, fmt.Errorf("claim role %q is not valid", record.Role)
	}
	if _, ok := claimStatuses[record.Status]; !ok {
		return storage.ClaimRecord{}, fmt.Errorf("claim status %q is not valid", record.Status)
	}
	if record.EndorsementCount < 0 {
		return storage.ClaimRecord{}, fmt.Errorf("endorsement count must not be negative")
	}
	if record.RequiredEndorsements < 0 {
		return storage.ClaimRecord{}, fmt.Errorf("required endorsements must not be negative")
	}
	if record.NominatedAt.IsZero() {
		return storage.ClaimRecord{}, fmt.Errorf("nominated time is required")
	}
	if record.CreatedAt.IsZero() {
		return storage.ClaimRecord{}, fmt.Errorf("created time is required")
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	return record, nil
}

func nullableMillis(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return toMillis(value)
}

// claimUniqueViolation classifies unique-index failures on the claims table.
// The kingdom/user pair index signals a duplicate row; the seated-primary
// partial index signals an occupied seat. It returns nil for other errors.
func claimUniqueViolation(err error) error {
	if !isUniqueViolation(err) {
		return nil
	}
	message := strings.ToLower(err.Error())
	if strings.Contains(message, "claims.kingdom_id, claims.user_id") ||
		strings.Contains(message, "idx_claims_kingdom_user") {
		return storage.ErrConflict
	}
	if strings.Contains(message, "claims.kingdom_id") ||
		strings.Contains(message, "idx_claims_seated_primary") {
		return storage.ErrPrimarySeatTaken
	}
	return storage.ErrConflict
}

func insertClaimExec(ctx context.Context, execer sqlExecer, record storage.ClaimRecord) error {
	_, err := execer.ExecContext(ctx, `
INSERT INTO claims (id, kingdom_id, user_id, role, status, endorsement_count, required_endorsements, assigned_by, nominated_at, activated_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		record.ID,
		record.KingdomID,
		record.UserID,
		record.Role,
		record.Status,
		record.EndorsementCount,
		record.RequiredEndorsements,
		record.AssignedBy,
		toMillis(record.NominatedAt),
		nullableMillis(record.ActivatedAt),
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	return err
}

func getClaimExec(ctx context.Context, execer sqlExecer, claimID string) (storage.ClaimRecord, error) {
	row := execer.QueryRowContext(ctx, `
SELECT `+claimColumns+`
FROM claims
WHERE id = ?
`, claimID)
	record, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ClaimRecord{}, storage.ErrNotFound
		}
		return storage.ClaimRecord{}, err
	}
	return record, nil
}

func countKingdomDelegatesExec(ctx context.Context, execer sqlExecer, kingdomID string) (int, error) {
	row := execer.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM claims
WHERE kingdom_id = ? AND role = 'delegate' AND status IN ('pending', 'active')
`, kingdomID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CreateClaim inserts a new claim row for a kingdom/user pair.
func (s *Store) CreateClaim(ctx context.Context, claim storage.ClaimRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	record, err := normalizeClaimRecord(claim)
	if err != nil {
		return err
	}
	if err := insertClaimExec(ctx, s.sqlDB, record); err != nil {
		if conflictErr := claimUniqueViolation(err); conflictErr != nil {
			return conflictErr
		}
		return storeError("create claim", err)
	}
	return nil
}

// CreateDelegateClaim inserts a delegate claim row while the kingdom roster
// has room. The roster count and the insert commit in one transaction.
func (s *Store) CreateDelegateClaim(ctx context.Context, claim storage.ClaimRecord, maxDelegates int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	record, err := normalizeClaimRecord(claim)
	if err != nil {
		return err
	}
	if record.Role != "delegate" {
		return fmt.Errorf("claim role must be delegate")
	}
	if maxDelegates <= 0 {
		return fmt.Errorf("delegate limit must be positive")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin delegate claim write", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback delegate claim write: %v", cause, rollbackErr)
		}
		return cause
	}

	count, err := countKingdomDelegatesExec(ctx, tx, record.KingdomID)
	if err != nil {
		return rollbackWith(storeError("count kingdom delegates", err))
	}
	if count >= maxDelegates {
		return rollbackWith(storage.ErrDelegateLimitReached)
	}
	if err := insertClaimExec(ctx, tx, record); err != nil {
		if conflictErr := claimUniqueViolation(err); conflictErr != nil {
			return rollbackWith(conflictErr)
		}
		return rollbackWith(storeError("insert delegate claim", err))
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit delegate claim write", err)
	}
	return nil
}

// ReviveClaim rewrites an inactive claim row back to pending. Endorsement
// tallies survive revival untouched.
func (s *Store) ReviveClaim(ctx context.Context, claimID string, revival storage.ClaimRevival) (storage.ClaimRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ClaimRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ClaimRecord{}, fmt.Errorf("storage is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return storage.ClaimRecord{}, fmt.Errorf("claim id is required")
	}
	revival, err := normalizeClaimRevival(revival)
	if err != nil {
		return storage.ClaimRecord{}, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.ClaimRecord{}, storeError("begin claim revival", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback claim revival: %v", cause, rollbackErr)
		}
		return cause
	}

	record, err := reviveClaimExec(ctx, tx, claimID, revival)
	if err != nil {
		return storage.ClaimRecord{}, rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return storage.ClaimRecord{}, storeError("commit claim revival", err)
	}
	return record, nil
}

// ReviveDelegateClaim is ReviveClaim with the delegate roster limit enforced
// inside the same transaction.
func (s *Store) ReviveDelegateClaim(ctx context.Context, claimID string, revival storage.ClaimRevival, maxDelegates int) (storage.ClaimRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ClaimRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ClaimRecord{}, fmt.Errorf("storage is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return storage.ClaimRecord{}, fmt.Errorf("claim id is required")
	}
	revival, err := normalizeClaimRevival(revival)
	if err != nil {
		return storage.ClaimRecord{}, err
	}
	if revival.Role != "delegate" {
		return storage.ClaimRecord{}, fmt.Errorf("revival role must be delegate")
	}
	if maxDelegates <= 0 {
		return storage.ClaimRecord{}, fmt.Errorf("delegate limit must be positive")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.ClaimRecord{}, storeError("begin delegate revival", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback delegate revival: %v", cause, rollbackErr)
		}
		return cause
	}

	current, err := getClaimExec(ctx, tx, claimID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.ClaimRecord{}, rollbackWith(storage.ErrNotFound)
		}
		return storage.ClaimRecord{}, rollbackWith(storeError("load claim", err))
	}
	if current.Status != "inactive" {
		return storage.ClaimRecord{}, rollbackWith(storage.ErrConflict)
	}
	count, err := countKingdomDelegatesExec(ctx, tx, current.KingdomID)
	if err != nil {
		return storage.ClaimRecord{}, rollbackWith(storeError("count kingdom delegates", err))
	}
	if count >= maxDelegates {
		return storage.ClaimRecord{}, rollbackWith(storage.ErrDelegateLimitReached)
	}
	record, err := reviveClaimExec(ctx, tx, claimID, revival)
	if err != nil {
		return storage.ClaimRecord{}, rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return storage.ClaimRecord{}, storeError("commit delegate revival", err)
	}
	return record, nil
}

func normalizeClaimRevival(revival storage.ClaimRevival) (storage.ClaimRevival, error) {
	revival.Role = strings.TrimSpace(revival.Role)
	revival.AssignedBy = strings.TrimSpace(revival.AssignedBy)
	if _, ok := claimRoles[revival.Role]; !ok {
		return storage.ClaimRevival{}, fmt.Errorf("revival role %q is not valid", revival.Role)
	}
	if revival.RequiredEndorsements < 0 {
		return storage.ClaimRevival{}, fmt.Errorf("required endorsements must not be negative")
	}
	if revival.NominatedAt.IsZero() {
		return storage.ClaimRevival{}, fmt.Errorf("nominated time is required")
	}
	return revival, nil
}

func reviveClaimExec(ctx context.Context, execer sqlExecer, claimID string, revival storage.ClaimRevival) (storage.ClaimRecord, error) {
	res, err := execer.ExecContext(ctx, `
UPDATE claims
SET role = ?, status = 'pending', required_endorsements = ?, assigned_by = ?, nominated_at = ?, activated_at = NULL, updated_at = ?
WHERE id = ? AND status = 'inactive'
`,
		revival.Role,
		revival.RequiredEndorsements,
		revival.AssignedBy,
		toMillis(revival.NominatedAt),
		toMillis(revival.NominatedAt),
		claimID,
	)
	if err != nil {
		return storage.ClaimRecord{}, storeError("revive claim", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storage.ClaimRecord{}, storeError("revive claim", err)
	}
	if affected == 0 {
		if _, getErr := getClaimExec(ctx, execer, claimID); getErr != nil {
			if errors.Is(getErr, storage.ErrNotFound) {
				return storage.ClaimRecord{}, storage.ErrNotFound
			}
			return storage.ClaimRecord{}, storeError("load claim", getErr)
		}
		return storage.ClaimRecord{}, storage.ErrConflict
	}
	record, err := getClaimExec(ctx, execer, claimID)
	if err != nil {
		return storage.ClaimRecord{}, storeError("reload claim", err)
	}
	return record, nil
}

// AdoptDelegateClaim assigns a pending self-requested delegate claim to the
// primary steward who invited the same user.
func (s *Store) AdoptDelegateClaim(ctx context.Context, claimID, assignedBy string, at time.Time) (storage.ClaimRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ClaimRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ClaimRecord{}, fmt.Errorf("storage is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	assignedBy = strings.TrimSpace(assignedBy)
	if claimID == "" {
		return storage.ClaimRecord{}, fmt.Errorf("claim id is required")
	}
	if assignedBy == "" {
		return storage.ClaimRecord{}, fmt.Errorf("assigning user id is required")
	}
	if at.IsZero() {
		return storage.ClaimRecord{}, fmt.Errorf("adoption time is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.ClaimRecord{}, storeError("begin claim adoption", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback claim adoption: %v", cause, rollbackErr)
		}
		return cause
	}

	res, err := tx.ExecContext(ctx, `
UPDATE claims
SET assigned_by = ?, updated_at = ?
WHERE id = ? AND role = 'delegate' AND status = 'pending' AND assigned_by = ''
`, assignedBy, toMillis(at), claimID)
	if err != nil {
		return storage.ClaimRecord{}, rollbackWith(storeError("adopt delegate claim", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storage.ClaimRecord{}, rollbackWith(storeError("adopt delegate claim", err))
	}
	if affected == 0 {
		if _, getErr := getClaimExec(ctx, tx, claimID); getErr != nil {
			if errors.Is(getErr, storage.ErrNotFound) {
				return storage.ClaimRecord{}, rollbackWith(storage.ErrNotFound)
			}
			return storage.ClaimRecord{}, rollbackWith(storeError("load claim", getErr))
		}
		return storage.ClaimRecord{}, rollbackWith(storage.ErrConflict)
	}
	record, err := getClaimExec(ctx, tx, claimID)
	if err != nil {
		return storage.ClaimRecord{}, rollbackWith(storeError("reload claim", err))
	}
	if err := tx.Commit(); err != nil {
		return storage.ClaimRecord{}, storeError("commit claim adoption", err)
	}
	return record, nil
}

// TransitionClaim moves a claim between statuses. Activation keeps the first
// activation timestamp and trips the seated-primary index when a second
// primary would go active.
func (s *Store) TransitionClaim(ctx context.Context, claimID, role string, from []string, to string, at time.Time) (storage.ClaimRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ClaimRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ClaimRecord{}, fmt.Errorf("storage is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	role = strings.TrimSpace(role)
	to = strings.TrimSpace(to)
	if claimID == "" {
		return storage.ClaimRecord{}, fmt.Errorf("claim id is required")
	}
	if role != "" {
		if _, ok := claimRoles[role]; !ok {
			return storage.ClaimRecord{}, fmt.Errorf("claim role %q is not valid", role)
		}
	}
	if len(from) == 0 {
		return storage.ClaimRecord{}, fmt.Errorf("source statuses are required")
	}
	for _, status := range from {
		if _, ok := claimStatuses[status]; !ok {
			return storage.ClaimRecord{}, fmt.Errorf("claim status %q is not valid", status)
		}
	}
	if _, ok := claimStatuses[to]; !ok {
		return storage.ClaimRecord{}, fmt.Errorf("claim status %q is not valid", to)
	}
	if at.IsZero() {
		return storage.ClaimRecord{}, fmt.Errorf("transition time is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.ClaimRecord{}, storeError("begin claim transition", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback claim transition: %v", cause, rollbackErr)
		}
		return cause
	}

	query := `UPDATE claims SET status = ?, updated_at = ?`
	args := []any{to, toMillis(at)}
	if to == "active" {
		query += `, activated_at = COALESCE(activated_at, ?)`
		args = append(args, toMillis(at))
	}
	marks, statusArgs := statusPlaceholders(from)
	query += ` WHERE id = ? AND status IN (` + marks + `)`
	args = append(args, claimID)
	args = append(args, statusArgs...)
	if role != "" {
		query += ` AND role = ?`
		args = append(args, role)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if conflictErr := claimUniqueViolation(err); conflictErr != nil {
			return storage.ClaimRecord{}, rollbackWith(conflictErr)
		}
		return storage.ClaimRecord{}, rollbackWith(storeError("transition claim", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storage.ClaimRecord{}, rollbackWith(storeError("transition claim", err))
	}
	if affected == 0 {
		if _, getErr := getClaimExec(ctx, tx, claimID); getErr != nil {
			if errors.Is(getErr, storage.ErrNotFound) {
				return storage.ClaimRecord{}, rollbackWith(storage.ErrNotFound)
			}
			return storage.ClaimRecord{}, rollbackWith(storeError("load claim", getErr))
		}
		return storage.ClaimRecord{}, rollbackWith(storage.ErrInvalidTransition)
	}
	record, err := getClaimExec(ctx, tx, claimID)
	if err != nil {
		return storage.ClaimRecord{}, rollbackWith(storeError("reload claim", err))
	}
	if err := tx.Commit(); err != nil {
		return storage.ClaimRecord{}, storeError("commit claim transition", err)
	}
	return record, nil
}

// SubmitEndorsement records one endorsement and settles its consequences in
// a single transaction: the tally increments, and on reaching the required
// count the claim activates exactly once while rival pending primary claims
// for the kingdom retire.
func (s *Store) SubmitEndorsement(ctx context.Context, claimID, endorserUserID string, at time.Time) (storage.EndorseOutcome, error) {
	if err := ctx.Err(); err != nil {
		return storage.EndorseOutcome{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.EndorseOutcome{}, fmt.Errorf("storage is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	endorserUserID = strings.TrimSpace(endorserUserID)
	if claimID == "" {
		return storage.EndorseOutcome{}, fmt.Errorf("claim id is required")
	}
	if endorserUserID == "" {
		return storage.EndorseOutcome{}, fmt.Errorf("endorser user id is required")
	}
	if at.IsZero() {
		return storage.EndorseOutcome{}, fmt.Errorf("endorsement time is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.EndorseOutcome{}, storeError("begin endorsement write", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback endorsement write: %v", cause, rollbackErr)
		}
		return cause
	}

	current, err := getClaimExec(ctx, tx, claimID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.EndorseOutcome{}, rollbackWith(storage.ErrNotFound)
		}
		return storage.EndorseOutcome{}, rollbackWith(storeError("load claim", err))
	}
	if current.Role != "primary" || current.Status != "pending" {
		return storage.EndorseOutcome{}, rollbackWith(storage.ErrClaimNotPending)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO endorsements (claim_id, endorser_user_id, created_at)
VALUES (?, ?, ?)
`, claimID, endorserUserID, toMillis(at)); err != nil {
		if isUniqueViolation(err) {
			return storage.EndorseOutcome{}, rollbackWith(storage.ErrDuplicateEndorsement)
		}
		return storage.EndorseOutcome{}, rollbackWith(storeError("insert endorsement", err))
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE claims
SET endorsement_count = endorsement_count + 1, updated_at = ?
WHERE id = ?
`, toMillis(at), claimID); err != nil {
		return storage.EndorseOutcome{}, rollbackWith(storeError("increment endorsement tally", err))
	}

	record, err := getClaimExec(ctx, tx, claimID)
	if err != nil {
		return storage.EndorseOutcome{}, rollbackWith(storeError("reload claim", err))
	}

	activated := false
	if record.RequiredEndorsements > 0 && record.EndorsementCount >= record.RequiredEndorsements {
		res, err := tx.ExecContext(ctx, `
UPDATE claims
SET status = 'active', activated_at = COALESCE(activated_at, ?), updated_at = ?
WHERE id = ? AND status = 'pending'
`, toMillis(at), toMillis(at), claimID)
		if err != nil {
			if conflictErr := claimUniqueViolation(err); conflictErr != nil {
				return storage.EndorseOutcome{}, rollbackWith(conflictErr)
			}
			return storage.EndorseOutcome{}, rollbackWith(storeError("activate claim", err))
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return storage.EndorseOutcome{}, rollbackWith(storeError("activate claim", err))
		}
		activated = affected == 1
		if activated {
			if _, err := tx.ExecContext(ctx, `
UPDATE claims
SET status = 'inactive', updated_at = ?
WHERE kingdom_id = ? AND role = 'primary' AND status = 'pending' AND id != ?
`, toMillis(at), record.KingdomID, claimID); err != nil {
				return storage.EndorseOutcome{}, rollbackWith(storeError("retire rival claims", err))
			}
			record, err = getClaimExec(ctx, tx, claimID)
			if err != nil {
				return storage.EndorseOutcome{}, rollbackWith(storeError("reload claim", err))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.EndorseOutcome{}, storeError("commit endorsement write", err)
	}
	return storage.EndorseOutcome{Claim: record, Count: record.EndorsementCount, Activated: activated}, nil
}

// GetClaim returns one claim by id.
func (s *Store) GetClaim(ctx context.Context, claimID string) (storage.ClaimRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ClaimRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ClaimRecord{}, fmt.Errorf("storage is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return storage.ClaimRecord{}, fmt.Errorf("claim id is required")
	}
	record, err := getClaimExec(ctx, s.sqlDB, claimID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.ClaimRecord{}, storage.ErrNotFound
		}
		return storage.ClaimRecord{}, storeError("get claim", err)
	}
	return record, nil
}

// GetClaimByKingdomAndUser returns the claim row for a kingdom/user pair.
func (s *Store) GetClaimByKingdomAndUser(ctx context.Context, kingdomID, userID string) (storage.ClaimRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ClaimRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ClaimRecord{}, fmt.Errorf("storage is not configured")
	}
	kingdomID = strings.TrimSpace(kingdomID)
	userID = strings.TrimSpace(userID)
	if kingdomID == "" {
		return storage.ClaimRecord{}, fmt.Errorf("kingdom id is required")
	}
	if userID == "" {
		return storage.ClaimRecord{}, fmt.Errorf("user id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+claimColumns+`
FROM claims
WHERE kingdom_id = ? AND user_id = ?
`, kingdomID, userID)
	record, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ClaimRecord{}, storage.ErrNotFound
		}
		return storage.ClaimRecord{}, storeError("get claim by kingdom and user", err)
	}
	return record, nil
}

// ListClaims returns one page of claims matching the query, newest first.
// Page tokens name the last claim of the previous page.
func (s *Store) ListClaims(ctx context.Context, query storage.ClaimQuery) (storage.ClaimPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.ClaimPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ClaimPage{}, fmt.Errorf("storage is not configured")
	}

	conditions := make([]string, 0, 6)
	args := make([]any, 0, 8)
	if kingdomID := strings.TrimSpace(query.KingdomID); kingdomID != "" {
		conditions = append(conditions, "kingdom_id = ?")
		args = append(args, kingdomID)
	}
	if userID := strings.TrimSpace(query.UserID); userID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, userID)
	}
	if role := strings.TrimSpace(query.Role); role != "" {
		if _, ok := claimRoles[role]; !ok {
			return storage.ClaimPage{}, fmt.Errorf("claim role %q is not valid", role)
		}
		conditions = append(conditions, "role = ?")
		args = append(args, role)
	}
	if len(query.Statuses) > 0 {
		for _, status := range query.Statuses {
			if _, ok := claimStatuses[status]; !ok {
				return storage.ClaimPage{}, fmt.Errorf("claim status %q is not valid", status)
			}
		}
		marks, statusArgs := statusPlaceholders(query.Statuses)
		conditions = append(conditions, "status IN ("+marks+")")
		args = append(args, statusArgs...)
	}
	if clause := strings.TrimSpace(query.FilterClause); clause != "" {
		conditions = append(conditions, "("+clause+")")
		args = append(args, query.FilterParams...)
	}

	if token := strings.TrimSpace(query.PageToken); token != "" {
		var tokenCreatedAt int64
		var tokenID string
		row := s.sqlDB.QueryRowContext(ctx, `SELECT created_at, id FROM claims WHERE id = ?`, token)
		if err := row.Scan(&tokenCreatedAt, &tokenID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ClaimPage{}, fmt.Errorf("page token is not valid")
			}
			return storage.ClaimPage{}, storeError("resolve page token", err)
		}
		conditions = append(conditions, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, tokenCreatedAt, tokenCreatedAt, tokenID)
	}

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = defaultClaimPageSize
	}

	listQuery := `SELECT ` + claimColumns + ` FROM claims`
	if len(conditions) > 0 {
		listQuery += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	listQuery += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return storage.ClaimPage{}, storeError("list claims", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	claims := make([]storage.ClaimRecord, 0, pageSize)
	for rows.Next() {
		record, scanErr := scanClaim(rows)
		if scanErr != nil {
			return storage.ClaimPage{}, storeError("scan claim", scanErr)
		}
		claims = append(claims, record)
	}
	if err := rows.Err(); err != nil {
		return storage.ClaimPage{}, storeError("list claims", err)
	}

	page := storage.ClaimPage{Claims: claims}
	if len(claims) > pageSize {
		page.Claims = claims[:pageSize]
		page.NextPageToken = claims[pageSize-1].ID
	}
	return page, nil
}

// CountKingdomDelegates counts pending and active delegate claims for a
// kingdom.
func (s *Store) CountKingdomDelegates(ctx context.Context, kingdomID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	kingdomID = strings.TrimSpace(kingdomID)
	if kingdomID == "" {
		return 0, fmt.Errorf("kingdom id is required")
	}
	count, err := countKingdomDelegatesExec(ctx, s.sqlDB, kingdomID)
	if err != nil {
		return 0, storeError("count kingdom delegates", err)
	}
	return count, nil
}

// ListEndorsements returns the endorsements recorded for a claim, oldest
// first.
func (s *Store) ListEndorsements(ctx context.Context, claimID string) ([]storage.EndorsementRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return nil, fmt.Errorf("claim id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT claim_id, endorser_user_id, created_at
FROM endorsements
WHERE claim_id = ?
ORDER BY created_at ASC, endorser_user_id ASC
`, claimID)
	if err != nil {
		return nil, storeError("list endorsements", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var endorsements []storage.EndorsementRecord
	for rows.Next() {
		var record storage.EndorsementRecord
		var createdAt int64
		if err := rows.Scan(&record.ClaimID, &record.EndorserUserID, &createdAt); err != nil {
			return nil, storeError("scan endorsement", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		endorsements = append(endorsements, record)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list endorsements", err)
	}
	return endorsements, nil
}

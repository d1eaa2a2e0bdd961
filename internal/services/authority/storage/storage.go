// Package storage defines persistence contracts for kingdom authority
// state: stewardship claims, endorsements, and invite quota ledgers.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict indicates a uniqueness or concurrent-update conflict, such as
// a second claim row for the same kingdom and user.
var ErrConflict = errors.New("record conflict")

// ErrDuplicateEndorsement indicates the endorser already endorsed the claim.
var ErrDuplicateEndorsement = errors.New("endorsement already recorded")

// ErrClaimNotPending indicates the claim is not open for endorsements.
var ErrClaimNotPending = errors.New("claim is not pending")

// ErrPrimarySeatTaken indicates the kingdom already has a seated primary
// steward, so activation was refused.
var ErrPrimarySeatTaken = errors.New("primary seat already taken")

// ErrDelegateLimitReached indicates the kingdom delegate roster is full.
var ErrDelegateLimitReached = errors.New("delegate limit reached")

// ErrInvalidTransition indicates the claim was not in a status the requested
// transition accepts.
var ErrInvalidTransition = errors.New("invalid claim transition")

// ErrAlreadyInvited indicates the recipient already holds an invite for the
// kingdom.
var ErrAlreadyInvited = errors.New("recipient already invited")

// ErrQuotaExceeded indicates the kingdom exhausted its invite allowance for
// the cycle.
var ErrQuotaExceeded = errors.New("invite quota exceeded")

// ErrUnavailable indicates the backing store could not serve the request,
// for example a locked or unreachable database. Callers may retry.
var ErrUnavailable = errors.New("storage unavailable")

// ClaimRecord is one stewardship claim row. A kingdom/user pair owns at most
// one row for its whole lifecycle; status changes reuse the row.
type ClaimRecord struct {
	ID                   string
	KingdomID            string
	UserID               string
	Role                 string
	Status               string
	EndorsementCount     int
	RequiredEndorsements int
	AssignedBy           string
	NominatedAt          time.Time
	ActivatedAt          time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// EndorsementRecord is one endorsement row for a pending primary claim.
type EndorsementRecord struct {
	ClaimID        string
	EndorserUserID string
	CreatedAt      time.Time
}

// EndorseOutcome reports the claim state after one endorsement was recorded.
type EndorseOutcome struct {
	Claim     ClaimRecord
	Count     int
	Activated bool
}

// ClaimRevival rewrites an inactive claim row back to pending.
type ClaimRevival struct {
	Role                 string
	RequiredEndorsements int
	AssignedBy           string
	NominatedAt          time.Time
}

// ClaimQuery selects claims for listing. FilterClause is an optional SQL
// WHERE fragment over whitelisted claim columns with matching FilterParams.
type ClaimQuery struct {
	KingdomID    string
	UserID       string
	Role         string
	Statuses     []string
	FilterClause string
	FilterParams []any
	PageSize     int
	PageToken    string
}

// ClaimPage is one page of claims ordered newest first.
type ClaimPage struct {
	Claims        []ClaimRecord
	NextPageToken string
}

// QuotaRecord is one per-kingdom, per-cycle invite ledger row.
type QuotaRecord struct {
	KingdomID string
	CycleID   string
	Used      int
	Allowance int
}

// InviteRecord is one recruitment invite row. The kingdom/recipient pair is
// unique across cycles.
type InviteRecord struct {
	KingdomID   string
	RecipientID string
	CycleID     string
	SentBy      string
	CreatedAt   time.Time
}

// InviteOutcome reports the ledger state after one invite was consumed.
type InviteOutcome struct {
	Invite    InviteRecord
	Used      int
	Allowance int
}

// ClaimStore persists stewardship claims and their endorsements.
type ClaimStore interface {
	// CreateClaim inserts a new claim row. It returns ErrConflict when the
	// kingdom/user pair already has a row.
	CreateClaim(ctx context.Context, claim ClaimRecord) error

	// CreateDelegateClaim inserts a delegate claim row while the kingdom
	// counts fewer than maxDelegates pending or active delegates. It returns
	// ErrDelegateLimitReached when the roster is full and ErrConflict when
	// the kingdom/user pair already has a row. The count and insert commit
	// atomically.
	CreateDelegateClaim(ctx context.Context, claim ClaimRecord, maxDelegates int) error

	// ReviveClaim rewrites an inactive claim row back to pending with the
	// revival's role and assignment. It returns ErrConflict when the row is
	// no longer inactive. Recorded endorsements keep their tally.
	ReviveClaim(ctx context.Context, claimID string, revival ClaimRevival) (ClaimRecord, error)

	// ReviveDelegateClaim is ReviveClaim with the delegate roster limit
	// enforced in the same transaction.
	ReviveDelegateClaim(ctx context.Context, claimID string, revival ClaimRevival, maxDelegates int) (ClaimRecord, error)

	// AdoptDelegateClaim assigns a pending self-requested delegate claim to
	// the primary steward who invited the same user. It returns ErrConflict
	// when the claim is not a pending, unassigned delegate claim.
	AdoptDelegateClaim(ctx context.Context, claimID, assignedBy string, at time.Time) (ClaimRecord, error)

	// TransitionClaim moves a claim from one of the given statuses to the
	// target status. Role narrows the match when non-empty. It returns
	// ErrInvalidTransition when the claim exists outside the given statuses
	// and ErrPrimarySeatTaken when activation would seat a second primary.
	TransitionClaim(ctx context.Context, claimID, role string, from []string, to string, at time.Time) (ClaimRecord, error)

	// SubmitEndorsement records one endorsement for a pending primary claim
	// and increments its tally. When the tally reaches the claim's required
	// count and no other primary is seated, the claim activates and rival
	// pending primary claims for the kingdom deactivate, all in the same
	// transaction. It returns ErrDuplicateEndorsement for repeat endorsers,
	// ErrClaimNotPending when the claim is not an endorsable primary claim,
	// and ErrPrimarySeatTaken when the seat check fails at threshold.
	SubmitEndorsement(ctx context.Context, claimID, endorserUserID string, at time.Time) (EndorseOutcome, error)

	// GetClaim returns one claim by id.
	GetClaim(ctx context.Context, claimID string) (ClaimRecord, error)

	// GetClaimByKingdomAndUser returns the claim row for a kingdom/user pair.
	GetClaimByKingdomAndUser(ctx context.Context, kingdomID, userID string) (ClaimRecord, error)

	// ListClaims returns one page of claims matching the query, newest first.
	ListClaims(ctx context.Context, query ClaimQuery) (ClaimPage, error)

	// CountKingdomDelegates counts pending and active delegate claims for a
	// kingdom.
	CountKingdomDelegates(ctx context.Context, kingdomID string) (int, error)

	// ListEndorsements returns the endorsements recorded for a claim, oldest
	// first.
	ListEndorsements(ctx context.Context, claimID string) ([]EndorsementRecord, error)
}

// QuotaStore persists invite quota ledgers and sent invites.
type QuotaStore interface {
	// ConsumeInvite records one invite and charges the kingdom's ledger for
	// the invite's cycle, creating the ledger at the given allowance when
	// absent. A larger allowance raises an existing ledger's cap; a smaller
	// one never lowers it. It returns ErrAlreadyInvited when the recipient
	// already holds an invite for the kingdom and ErrQuotaExceeded when the
	// ledger is exhausted. The invite and the charge commit atomically.
	ConsumeInvite(ctx context.Context, invite InviteRecord, allowance int) (InviteOutcome, error)

	// GetQuota returns the ledger row for a kingdom and cycle.
	GetQuota(ctx context.Context, kingdomID, cycleID string) (QuotaRecord, error)

	// ListInvites returns the invites sent for a kingdom, newest first.
	ListInvites(ctx context.Context, kingdomID string) ([]InviteRecord, error)
}

// Store combines the persistence contracts the authority service depends on.
type Store interface {
	ClaimStore
	QuotaStore
}

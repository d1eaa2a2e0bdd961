// Package domain implements kingdom authority lifecycle behavior: stewardship
// claims, endorsement quorums, delegate rosters, and recruitment invite
// quotas.
package domain

import (
	"time"

	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/storage"
)

// Role distinguishes the two stewardship claim kinds.
type Role string

// Claim roles.
const (
	RolePrimary  Role = "primary"
	RoleDelegate Role = "delegate"
)

// Status tracks a claim through its lifecycle. Inactive rows are revivable
// tombstones; a kingdom/user pair keeps one row across revivals.
type Status string

// Claim statuses.
const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// Live reports whether the status occupies the kingdom/user slot. Only
// inactive rows are considered vacant.
func (s Status) Live() bool {
	return s == StatusPending || s == StatusActive || s == StatusSuspended
}

const (
	// MinLevel is the minimum account level for any authority action.
	MinLevel = 20
	// RequiredEndorsements is the quorum that activates a primary claim.
	RequiredEndorsements = 10
	// MaxDelegates caps pending plus active delegate claims per kingdom.
	MaxDelegates = 2
	// BaseInviteAllowance is the per-cycle recruitment invite budget.
	BaseInviteAllowance = 35
	// TopTierInviteBonus extends the allowance for top-tier kingdoms.
	TopTierInviteBonus = 5
)

// Tier ranks a kingdom for invite allowance purposes.
type Tier string

// Kingdom tiers.
const (
	TierStandard Tier = "standard"
	TierTop      Tier = "top"
)

// Claim is one stewardship claim by a user on a kingdom.
type Claim struct {
	ID                   string
	KingdomID            string
	UserID               string
	Role                 Role
	Status               Status
	EndorsementCount     int
	RequiredEndorsements int
	AssignedBy           string
	NominatedAt          time.Time
	ActivatedAt          time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Endorsement is one recorded quorum vote for a pending primary claim.
type Endorsement struct {
	ClaimID        string
	EndorserUserID string
	CreatedAt      time.Time
}

// ClaimPage is one page of claims ordered newest first.
type ClaimPage struct {
	Claims        []Claim
	NextPageToken string
}

func claimFromRecord(record storage.ClaimRecord) Claim {
	return Claim{
		ID:                   record.ID,
		KingdomID:            record.KingdomID,
		UserID:               record.UserID,
		Role:                 Role(record.Role),
		Status:               Status(record.Status),
		EndorsementCount:     record.EndorsementCount,
		RequiredEndorsements: record.RequiredEndorsements,
		AssignedBy:           record.AssignedBy,
		NominatedAt:          record.NominatedAt,
		ActivatedAt:          record.ActivatedAt,
		CreatedAt:            record.CreatedAt,
		UpdatedAt:            record.UpdatedAt,
	}
}

func claimsFromRecords(records []storage.ClaimRecord) []Claim {
	claims := make([]Claim, 0, len(records))
	for _, record := range records {
		claims = append(claims, claimFromRecord(record))
	}
	return claims
}

func endorsementFromRecord(record storage.EndorsementRecord) Endorsement {
	return Endorsement{
		ClaimID:        record.ClaimID,
		EndorserUserID: record.EndorserUserID,
		CreatedAt:      record.CreatedAt,
	}
}

package domain

import (
	"fmt"

	apperrors "github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/platform/errors"
)

// Profile is the point-in-time identity snapshot an eligibility check runs
// against. Callers resolve it from the player directory before calling in.
type Profile struct {
	UserID        string
	LinkedAccount bool
	Level         int
	KingdomID     string
}

// IneligibleReason names the specific eligibility condition a profile fails.
type IneligibleReason string

// Eligibility failure reasons.
const (
	ReasonAccountNotLinked IneligibleReason = "account_not_linked"
	ReasonLevelTooLow      IneligibleReason = "level_too_low"
	ReasonKingdomMismatch  IneligibleReason = "kingdom_mismatch"
	ReasonExistingClaim    IneligibleReason = "existing_claim"
)

// IneligibleError reports why a profile fails an authority eligibility gate.
type IneligibleError struct {
	Reason IneligibleReason
	UserID string
}

func (e *IneligibleError) Error() string {
	if e == nil {
		return "ineligible"
	}
	return fmt.Sprintf("user %s is ineligible: %s", e.UserID, e.Reason)
}

// Code maps the unmet condition onto the platform error taxonomy.
func (e *IneligibleError) Code() apperrors.Code {
	if e == nil {
		return apperrors.CodeUnknown
	}
	switch e.Reason {
	case ReasonAccountNotLinked:
		return apperrors.CodeAuthorityAccountNotLinked
	case ReasonLevelTooLow:
		return apperrors.CodeAuthorityLevelTooLow
	case ReasonKingdomMismatch:
		return apperrors.CodeAuthorityKingdomMismatch
	case ReasonExistingClaim:
		return apperrors.CodeAuthorityExistingClaim
	default:
		return apperrors.CodeUnknown
	}
}

func checkProfile(profile Profile, kingdomID string) *IneligibleError {
	if !profile.LinkedAccount {
		return &IneligibleError{Reason: ReasonAccountNotLinked, UserID: profile.UserID}
	}
	if profile.Level < MinLevel {
		return &IneligibleError{Reason: ReasonLevelTooLow, UserID: profile.UserID}
	}
	if profile.KingdomID != kingdomID {
		return &IneligibleError{Reason: ReasonKingdomMismatch, UserID: profile.UserID}
	}
	return nil
}

// CanNominate reports whether the profile may open a primary stewardship
// claim for the kingdom. The existing claim, when non-nil, is the profile's
// current row for the kingdom; any live row blocks a fresh nomination.
func CanNominate(profile Profile, kingdomID string, existing *Claim) error {
	if err := checkProfile(profile, kingdomID); err != nil {
		return err
	}
	if existing != nil && existing.Status.Live() {
		return &IneligibleError{Reason: ReasonExistingClaim, UserID: profile.UserID}
	}
	return nil
}

// CanEndorse reports whether the profile may endorse the claim. Duplicate
// endorsements are rejected transactionally by the quorum engine, not here.
func CanEndorse(endorser Profile, claim Claim) error {
	if err := checkProfile(endorser, claim.KingdomID); err != nil {
		return err
	}
	if claim.Role != RolePrimary || claim.Status != StatusPending {
		return ErrClaimNotPending
	}
	return nil
}

// CanJoinAsDelegate reports whether the profile may hold a delegate claim
// for the kingdom, whether invited or self-requested.
func CanJoinAsDelegate(candidate Profile, kingdomID string) error {
	if err := checkProfile(candidate, kingdomID); err != nil {
		return err
	}
	return nil
}

package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/fanout"
	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/storage"
)

// InviteDelegateInput asks an active primary steward to invite a candidate
// onto the kingdom's delegate roster.
type InviteDelegateInput struct {
	PrimaryUserID string
	KingdomID     string
	CandidateRef  string
}

// DelegateInvite is the pending delegate claim an invite produced, plus a
// signed grant the candidate can redeem when a signer is configured.
type DelegateInvite struct {
	Claim Claim
	Grant string
}

// RequestDelegateInput asks to join a kingdom's delegate roster without an
// invite. The request waits on approval by an active primary steward.
type RequestDelegateInput struct {
	Requester Profile
	KingdomID string
}

// AcceptDelegateInput resolves a pending delegate claim. Invited claims are
// accepted by the candidate; self-requested claims by an active primary.
type AcceptDelegateInput struct {
	ClaimID     string
	ActorUserID string
}

// AcceptDelegateGrantInput redeems a signed delegate grant.
type AcceptDelegateGrantInput struct {
	Grant       string
	ActorUserID string
}

// DeclineDelegateInput rejects a pending delegate claim.
type DeclineDelegateInput struct {
	ClaimID     string
	ActorUserID string
}

// RevokeDelegateInput retires an active delegate claim.
type RevokeDelegateInput struct {
	ClaimID     string
	ActorUserID string
}

// InviteDelegate opens a pending delegate claim for the candidate on behalf
// of an active primary steward. When the candidate already self-requested a
// seat, the invite adopts that pending claim instead of conflicting with it.
// The roster cap counts pending and active delegates alike.
func (s *Service) InviteDelegate(ctx context.Context, input InviteDelegateInput) (DelegateInvite, error) {
	if s == nil || s.store == nil {
		return DelegateInvite{}, ErrStoreNotConfigured
	}
	if s.directory == nil {
		return DelegateInvite{}, ErrDirectoryNotConfigured
	}
	kingdomID := strings.TrimSpace(input.KingdomID)
	if kingdomID == "" {
		return DelegateInvite{}, ErrKingdomIDRequired
	}
	primaryUserID := strings.TrimSpace(input.PrimaryUserID)
	if primaryUserID == "" {
		return DelegateInvite{}, ErrUserIDRequired
	}
	candidateRef := strings.TrimSpace(input.CandidateRef)
	if candidateRef == "" {
		return DelegateInvite{}, ErrCandidateRefRequired
	}

	if err := s.requireActivePrimary(ctx, kingdomID, primaryUserID); err != nil {
		return DelegateInvite{}, err
	}

	candidate, err := s.directory.LookupProfile(ctx, candidateRef)
	if err != nil {
		return DelegateInvite{}, err
	}
	candidate.UserID = strings.TrimSpace(candidate.UserID)
	if candidate.UserID == "" {
		return DelegateInvite{}, ErrCandidateNotFound
	}
	if err := CanJoinAsDelegate(candidate, kingdomID); err != nil {
		return DelegateInvite{}, err
	}

	now := s.nowUTC()
	var existing *Claim
	current, err := s.store.GetClaimByKingdomAndUser(ctx, kingdomID, candidate.UserID)
	switch {
	case err == nil:
		claim := claimFromRecord(current)
		existing = &claim
	case errors.Is(err, storage.ErrNotFound):
	default:
		return DelegateInvite{}, storeFailure(err)
	}

	var claim Claim
	switch {
	case existing == nil:
		claimID, idErr := s.newID()
		if idErr != nil {
			return DelegateInvite{}, fmt.Errorf("generate claim id: %w", idErr)
		}
		record := storage.ClaimRecord{
			ID:          claimID,
			KingdomID:   kingdomID,
			UserID:      candidate.UserID,
			Role:        string(RoleDelegate),
			Status:      string(StatusPending),
			AssignedBy:  primaryUserID,
			NominatedAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.store.CreateDelegateClaim(ctx, record, MaxDelegates); err != nil {
			return DelegateInvite{}, mapDelegateWriteError(err)
		}
		claim = claimFromRecord(record)

	case existing.Status == StatusInactive:
		revived, reviveErr := s.store.ReviveDelegateClaim(ctx, existing.ID, storage.ClaimRevival{
			Role:        string(RoleDelegate),
			AssignedBy:  primaryUserID,
			NominatedAt: now,
		}, MaxDelegates)
		if reviveErr != nil {
			return DelegateInvite{}, mapDelegateWriteError(reviveErr)
		}
		claim = claimFromRecord(revived)

	case existing.Role == RoleDelegate && existing.Status == StatusPending && existing.AssignedBy == "":
		adopted, adoptErr := s.store.AdoptDelegateClaim(ctx, existing.ID, primaryUserID, now)
		if adoptErr != nil {
			return DelegateInvite{}, mapDelegateWriteError(adoptErr)
		}
		claim = claimFromRecord(adopted)

	default:
		return DelegateInvite{}, ErrDuplicateClaim
	}

	invite := DelegateInvite{Claim: claim}
	if s.signer != nil {
		grant, mintErr := s.signer.Mint(GrantSpec{
			KingdomID: claim.KingdomID,
			ClaimID:   claim.ID,
			UserID:    claim.UserID,
		}, now)
		if mintErr != nil {
			return DelegateInvite{}, fmt.Errorf("mint delegate grant: %w", mintErr)
		}
		invite.Grant = grant
	}

	s.publish(fanout.Event{
		Type:      fanout.EventDelegateInvited,
		KingdomID: claim.KingdomID,
		ClaimID:   claim.ID,
		UserID:    claim.UserID,
		ActorID:   primaryUserID,
		At:        now,
	})
	return invite, nil
}

// RequestDelegate opens a pending, unassigned delegate claim for the
// requester. An active primary steward resolves it later by accepting or
// declining.
func (s *Service) RequestDelegate(ctx context.Context, input RequestDelegateInput) (Claim, error) {
	if s == nil || s.store == nil {
		return Claim{}, ErrStoreNotConfigured
	}
	kingdomID := strings.TrimSpace(input.KingdomID)
	if kingdomID == "" {
		return Claim{}, ErrKingdomIDRequired
	}
	requester := input.Requester
	requester.UserID = strings.TrimSpace(requester.UserID)
	if requester.UserID == "" {
		return Claim{}, ErrUserIDRequired
	}
	if err := CanJoinAsDelegate(requester, kingdomID); err != nil {
		return Claim{}, err
	}

	now := s.nowUTC()
	var existing *Claim
	current, err := s.store.GetClaimByKingdomAndUser(ctx, kingdomID, requester.UserID)
	switch {
	case err == nil:
		claim := claimFromRecord(current)
		existing = &claim
	case errors.Is(err, storage.ErrNotFound):
	default:
		return Claim{}, storeFailure(err)
	}

	var claim Claim
	switch {
	case existing == nil:
		claimID, idErr := s.newID()
		if idErr != nil {
			return Claim{}, fmt.Errorf("generate claim id: %w", idErr)
		}
		record := storage.ClaimRecord{
			ID:          claimID,
			KingdomID:   kingdomID,
			UserID:      requester.UserID,
			Role:        string(RoleDelegate),
			Status:      string(StatusPending),
			NominatedAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.store.CreateDelegateClaim(ctx, record, MaxDelegates); err != nil {
			return Claim{}, mapDelegateWriteError(err)
		}
		claim = claimFromRecord(record)

	case existing.Status == StatusInactive:
		revived, reviveErr := s.store.ReviveDelegateClaim(ctx, existing.ID, storage.ClaimRevival{
			Role:        string(RoleDelegate),
			NominatedAt: now,
		}, MaxDelegates)
		if reviveErr != nil {
			return Claim{}, mapDelegateWriteError(reviveErr)
		}
		claim = claimFromRecord(revived)

	default:
		return Claim{}, ErrDuplicateClaim
	}

	s.publish(fanout.Event{
		Type:      fanout.EventDelegateRequested,
		KingdomID: claim.KingdomID,
		ClaimID:   claim.ID,
		UserID:    claim.UserID,
		ActorID:   claim.UserID,
		At:        now,
	})
	return claim, nil
}

// AcceptDelegate activates a pending delegate claim. Invited claims accept
// only for the invited candidate; self-requested claims accept only for an
// active primary steward of the kingdom.
func (s *Service) AcceptDelegate(ctx context.Context, input AcceptDelegateInput) (Claim, error) {
	if s == nil || s.store == nil {
		return Claim{}, ErrStoreNotConfigured
	}
	claimID := strings.TrimSpace(input.ClaimID)
	if claimID == "" {
		return Claim{}, ErrClaimIDRequired
	}
	actorUserID := strings.TrimSpace(input.ActorUserID)
	if actorUserID == "" {
		return Claim{}, ErrUserIDRequired
	}

	record, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Claim{}, ErrClaimNotFound
		}
		return Claim{}, storeFailure(err)
	}
	claim := claimFromRecord(record)
	if claim.Role != RoleDelegate {
		return Claim{}, ErrInvalidTransition
	}
	if claim.AssignedBy != "" {
		if actorUserID != claim.UserID {
			return Claim{}, ErrNotAuthorized
		}
	} else {
		if err := s.requireActivePrimary(ctx, claim.KingdomID, actorUserID); err != nil {
			return Claim{}, err
		}
	}

	return s.resolveDelegate(ctx, claimID, StatusPending, StatusActive, fanout.EventDelegateAccepted, actorUserID)
}

// AcceptDelegateWithGrant redeems a signed delegate grant to activate the
// pending claim it was minted for.
func (s *Service) AcceptDelegateWithGrant(ctx context.Context, input AcceptDelegateGrantInput) (Claim, error) {
	if s == nil || s.store == nil {
		return Claim{}, ErrStoreNotConfigured
	}
	if s.verifier == nil {
		return Claim{}, ErrVerifierNotConfigured
	}
	grant := strings.TrimSpace(input.Grant)
	if grant == "" {
		return Claim{}, ErrGrantRequired
	}
	actorUserID := strings.TrimSpace(input.ActorUserID)
	if actorUserID == "" {
		return Claim{}, ErrUserIDRequired
	}

	spec, err := s.verifier.Verify(grant, s.nowUTC())
	if err != nil {
		return Claim{}, err
	}
	if spec.UserID != actorUserID {
		return Claim{}, ErrGrantMismatch
	}

	record, err := s.store.GetClaim(ctx, spec.ClaimID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Claim{}, ErrClaimNotFound
		}
		return Claim{}, storeFailure(err)
	}
	claim := claimFromRecord(record)
	if claim.Role != RoleDelegate || claim.KingdomID != spec.KingdomID || claim.UserID != spec.UserID {
		return Claim{}, ErrGrantMismatch
	}

	return s.resolveDelegate(ctx, claim.ID, StatusPending, StatusActive, fanout.EventDelegateAccepted, actorUserID)
}

// DeclineDelegate retires a pending delegate claim. The candidate may
// decline their own claim; an active primary steward may reject or rescind.
func (s *Service) DeclineDelegate(ctx context.Context, input DeclineDelegateInput) (Claim, error) {
	return s.dismissDelegate(ctx, input.ClaimID, input.ActorUserID, StatusPending, fanout.EventDelegateDeclined)
}

// RevokeDelegate retires an active delegate claim. The delegate may step
// down; an active primary steward may revoke.
func (s *Service) RevokeDelegate(ctx context.Context, input RevokeDelegateInput) (Claim, error) {
	return s.dismissDelegate(ctx, input.ClaimID, input.ActorUserID, StatusActive, fanout.EventDelegateRevoked)
}

func (s *Service) dismissDelegate(ctx context.Context, claimID, actorUserID string, from Status, eventType string) (Claim, error) {
	if s == nil || s.store == nil {
		return Claim{}, ErrStoreNotConfigured
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return Claim{}, ErrClaimIDRequired
	}
	actorUserID = strings.TrimSpace(actorUserID)
	if actorUserID == "" {
		return Claim{}, ErrUserIDRequired
	}

	record, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Claim{}, ErrClaimNotFound
		}
		return Claim{}, storeFailure(err)
	}
	claim := claimFromRecord(record)
	if claim.Role != RoleDelegate {
		return Claim{}, ErrInvalidTransition
	}
	if actorUserID != claim.UserID {
		if err := s.requireActivePrimary(ctx, claim.KingdomID, actorUserID); err != nil {
			return Claim{}, err
		}
	}

	return s.resolveDelegate(ctx, claimID, from, StatusInactive, eventType, actorUserID)
}

func (s *Service) resolveDelegate(ctx context.Context, claimID string, from, to Status, eventType, actorUserID string) (Claim, error) {
	now := s.nowUTC()
	record, err := s.store.TransitionClaim(ctx, claimID, string(RoleDelegate), []string{string(from)}, string(to), now)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return Claim{}, ErrClaimNotFound
		case errors.Is(err, storage.ErrInvalidTransition):
			return Claim{}, ErrInvalidTransition
		default:
			return Claim{}, storeFailure(err)
		}
	}
	claim := claimFromRecord(record)
	s.publish(fanout.Event{
		Type:      eventType,
		KingdomID: claim.KingdomID,
		ClaimID:   claim.ID,
		UserID:    claim.UserID,
		ActorID:   actorUserID,
		At:        now,
	})
	return claim, nil
}

func (s *Service) requireActivePrimary(ctx context.Context, kingdomID, userID string) error {
	record, err := s.store.GetClaimByKingdomAndUser(ctx, kingdomID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotAuthorized
		}
		return storeFailure(err)
	}
	if record.Role != string(RolePrimary) || record.Status != string(StatusActive) {
		return ErrNotAuthorized
	}
	return nil
}

func mapDelegateWriteError(err error) error {
	switch {
	case errors.Is(err, storage.ErrDelegateLimitReached):
		return ErrDelegateLimitReached
	case errors.Is(err, storage.ErrConflict):
		return ErrDuplicateClaim
	case errors.Is(err, storage.ErrNotFound):
		return ErrClaimNotFound
	default:
		return storeFailure(err)
	}
}

package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/fanout"
	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/storage"
)

// EndorseInput records one quorum vote for a pending primary claim.
type EndorseInput struct {
	Endorser Profile
	ClaimID  string
}

// EndorsementResult reports the claim state after the vote landed.
type EndorsementResult struct {
	Claim     Claim
	Count     int
	Activated bool
}

// Endorse records one endorsement for a pending primary claim. The vote, the
// tally, and a threshold activation settle in a single storage transaction,
// so exactly one endorsement ever reports Activated no matter how many land
// concurrently.
func (s *Service) Endorse(ctx context.Context, input EndorseInput) (EndorsementResult, error) {
	if s == nil || s.store == nil {
		return EndorsementResult{}, ErrStoreNotConfigured
	}
	claimID := strings.TrimSpace(input.ClaimID)
	if claimID == "" {
		return EndorsementResult{}, ErrClaimIDRequired
	}
	endorser := input.Endorser
	endorser.UserID = strings.TrimSpace(endorser.UserID)
	if endorser.UserID == "" {
		return EndorsementResult{}, ErrUserIDRequired
	}

	record, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return EndorsementResult{}, ErrClaimNotFound
		}
		return EndorsementResult{}, storeFailure(err)
	}
	claim := claimFromRecord(record)
	if err := CanEndorse(endorser, claim); err != nil {
		return EndorsementResult{}, err
	}

	now := s.nowUTC()
	outcome, err := s.store.SubmitEndorsement(ctx, claimID, endorser.UserID, now)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return EndorsementResult{}, ErrClaimNotFound
		case errors.Is(err, storage.ErrClaimNotPending):
			return EndorsementResult{}, ErrClaimNotPending
		case errors.Is(err, storage.ErrDuplicateEndorsement):
			return EndorsementResult{}, ErrDuplicateEndorsement
		case errors.Is(err, storage.ErrPrimarySeatTaken):
			return EndorsementResult{}, ErrPrimarySeatTaken
		default:
			return EndorsementResult{}, storeFailure(err)
		}
	}

	result := EndorsementResult{
		Claim:     claimFromRecord(outcome.Claim),
		Count:     outcome.Count,
		Activated: outcome.Activated,
	}
	s.publish(fanout.Event{
		Type:      fanout.EventClaimEndorsed,
		KingdomID: result.Claim.KingdomID,
		ClaimID:   result.Claim.ID,
		UserID:    result.Claim.UserID,
		ActorID:   endorser.UserID,
		At:        now,
	})
	if result.Activated {
		s.publish(fanout.Event{
			Type:      fanout.EventClaimActivated,
			KingdomID: result.Claim.KingdomID,
			ClaimID:   result.Claim.ID,
			UserID:    result.Claim.UserID,
			At:        now,
		})
	}
	return result, nil
}

package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/fanout"
	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/storage"
)

// SendInviteInput sends one recruitment invite on a kingdom's cycle budget.
type SendInviteInput struct {
	SenderUserID string
	KingdomID    string
	RecipientID  string
}

// InviteReceipt reports the ledger state after an invite was charged.
type InviteReceipt struct {
	KingdomID   string
	RecipientID string
	CycleID     string
	SentBy      string
	SentAt      time.Time
	Used        int
	Allowance   int
	Remaining   int
}

// BatchInviteInput sends invites to several recipients in one call.
type BatchInviteInput struct {
	SenderUserID string
	KingdomID    string
	RecipientIDs []string
}

// SkippedInvite names a batch recipient that was not charged and why.
type SkippedInvite struct {
	RecipientID string
	Reason      error
}

// BatchInviteResult splits a batch into charged receipts and skipped
// recipients. With B invites left on the ledger and more than B recipients,
// exactly B receipts come back.
type BatchInviteResult struct {
	Sent    []InviteReceipt
	Skipped []SkippedInvite
}

// QuotaView is a point-in-time, read-only look at a kingdom's cycle budget.
// Concurrent sends can outdate it by the time the caller acts on it.
type QuotaView struct {
	KingdomID string
	CycleID   string
	Used      int
	Allowance int
	Remaining int
}

// Invite is one sent recruitment invite.
type Invite struct {
	KingdomID   string
	RecipientID string
	CycleID     string
	SentBy      string
	SentAt      time.Time
}

// SendInvite charges one recruitment invite against the kingdom's allowance
// for the current cycle. Any active steward of the kingdom may send.
func (s *Service) SendInvite(ctx context.Context, input SendInviteInput) (InviteReceipt, error) {
	if s == nil || s.store == nil {
		return InviteReceipt{}, ErrStoreNotConfigured
	}
	kingdomID := strings.TrimSpace(input.KingdomID)
	if kingdomID == "" {
		return InviteReceipt{}, ErrKingdomIDRequired
	}
	senderUserID := strings.TrimSpace(input.SenderUserID)
	if senderUserID == "" {
		return InviteReceipt{}, ErrUserIDRequired
	}
	recipientID := strings.TrimSpace(input.RecipientID)
	if recipientID == "" {
		return InviteReceipt{}, ErrRecipientIDRequired
	}
	if err := s.requireActiveSteward(ctx, kingdomID, senderUserID); err != nil {
		return InviteReceipt{}, err
	}

	now := s.nowUTC()
	cycleID := s.cycle(now)
	allowance := s.inviteAllowance(ctx, kingdomID)
	return s.consumeInvite(ctx, kingdomID, recipientID, cycleID, senderUserID, allowance, now)
}

// SendInviteBatch charges invites for each recipient in order until the
// ledger runs out, reporting every recipient either as sent or skipped.
// Charged invites stay charged even when a later recipient fails.
func (s *Service) SendInviteBatch(ctx context.Context, input BatchInviteInput) (BatchInviteResult, error) {
	if s == nil || s.store == nil {
		return BatchInviteResult{}, ErrStoreNotConfigured
	}
	kingdomID := strings.TrimSpace(input.KingdomID)
	if kingdomID == "" {
		return BatchInviteResult{}, ErrKingdomIDRequired
	}
	senderUserID := strings.TrimSpace(input.SenderUserID)
	if senderUserID == "" {
		return BatchInviteResult{}, ErrUserIDRequired
	}
	if err := s.requireActiveSteward(ctx, kingdomID, senderUserID); err != nil {
		return BatchInviteResult{}, err
	}

	now := s.nowUTC()
	cycleID := s.cycle(now)
	allowance := s.inviteAllowance(ctx, kingdomID)

	var result BatchInviteResult
	for _, recipientID := range input.RecipientIDs {
		recipientID = strings.TrimSpace(recipientID)
		if recipientID == "" {
			result.Skipped = append(result.Skipped, SkippedInvite{Reason: ErrRecipientIDRequired})
			continue
		}
		receipt, err := s.consumeInvite(ctx, kingdomID, recipientID, cycleID, senderUserID, allowance, s.nowUTC())
		if err != nil {
			if errors.Is(err, ErrAlreadyInvited) || errors.Is(err, ErrQuotaExceeded) {
				result.Skipped = append(result.Skipped, SkippedInvite{RecipientID: recipientID, Reason: err})
				continue
			}
			return result, err
		}
		result.Sent = append(result.Sent, receipt)
	}
	return result, nil
}

// QuotaRemaining reports the kingdom's invite budget for the current cycle.
// A kingdom that has not sent yet this cycle shows a full allowance.
func (s *Service) QuotaRemaining(ctx context.Context, kingdomID string) (QuotaView, error) {
	if s == nil || s.store == nil {
		return QuotaView{}, ErrStoreNotConfigured
	}
	kingdomID = strings.TrimSpace(kingdomID)
	if kingdomID == "" {
		return QuotaView{}, ErrKingdomIDRequired
	}

	now := s.nowUTC()
	cycleID := s.cycle(now)
	allowance := s.inviteAllowance(ctx, kingdomID)

	record, err := s.store.GetQuota(ctx, kingdomID, cycleID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return QuotaView{
				KingdomID: kingdomID,
				CycleID:   cycleID,
				Allowance: allowance,
				Remaining: allowance,
			}, nil
		}
		return QuotaView{}, storeFailure(err)
	}
	remaining := record.Allowance - record.Used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaView{
		KingdomID: record.KingdomID,
		CycleID:   record.CycleID,
		Used:      record.Used,
		Allowance: record.Allowance,
		Remaining: remaining,
	}, nil
}

// ListInvites returns the invites a kingdom has sent, newest first.
func (s *Service) ListInvites(ctx context.Context, kingdomID string) ([]Invite, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	kingdomID = strings.TrimSpace(kingdomID)
	if kingdomID == "" {
		return nil, ErrKingdomIDRequired
	}
	records, err := s.store.ListInvites(ctx, kingdomID)
	if err != nil {
		return nil, storeFailure(err)
	}
	invites := make([]Invite, 0, len(records))
	for _, record := range records {
		invites = append(invites, Invite{
			KingdomID:   record.KingdomID,
			RecipientID: record.RecipientID,
			CycleID:     record.CycleID,
			SentBy:      record.SentBy,
			SentAt:      record.CreatedAt,
		})
	}
	return invites, nil
}

func (s *Service) consumeInvite(ctx context.Context, kingdomID, recipientID, cycleID, senderUserID string, allowance int, at time.Time) (InviteReceipt, error) {
	outcome, err := s.store.ConsumeInvite(ctx, storage.InviteRecord{
		KingdomID:   kingdomID,
		RecipientID: recipientID,
		CycleID:     cycleID,
		SentBy:      senderUserID,
		CreatedAt:   at,
	}, allowance)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyInvited):
			return InviteReceipt{}, ErrAlreadyInvited
		case errors.Is(err, storage.ErrQuotaExceeded):
			return InviteReceipt{}, ErrQuotaExceeded
		default:
			return InviteReceipt{}, storeFailure(err)
		}
	}

	s.publish(fanout.Event{
		Type:      fanout.EventInviteSent,
		KingdomID: kingdomID,
		UserID:    recipientID,
		ActorID:   senderUserID,
		At:        at,
	})
	remaining := outcome.Allowance - outcome.Used
	if remaining < 0 {
		remaining = 0
	}
	return InviteReceipt{
		KingdomID:   kingdomID,
		RecipientID: recipientID,
		CycleID:     cycleID,
		SentBy:      senderUserID,
		SentAt:      at,
		Used:        outcome.Used,
		Allowance:   outcome.Allowance,
		Remaining:   remaining,
	}, nil
}

// inviteAllowance sizes the cycle budget for a kingdom. Tier lookup failures
// fall back to the base allowance rather than over-allocating.
func (s *Service) inviteAllowance(ctx context.Context, kingdomID string) int {
	allowance := BaseInviteAllowance
	if s.tiers == nil {
		return allowance
	}
	tier, err := s.tiers.KingdomTier(ctx, kingdomID)
	if err != nil {
		return allowance
	}
	if tier == TierTop {
		allowance += TopTierInviteBonus
	}
	return allowance
}

func (s *Service) requireActiveSteward(ctx context.Context, kingdomID, userID string) error {
	record, err := s.store.GetClaimByKingdomAndUser(ctx, kingdomID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotAuthorized
		}
		return storeFailure(err)
	}
	if record.Status != string(StatusActive) {
		return ErrNotAuthorized
	}
	return nil
}

package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/platform/errors"
	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/platform/grpc/pagination"
	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/platform/id"
	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/fanout"
	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/filter"
	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/storage"
)

// Validation errors.
var (
	ErrStoreNotConfigured     = errors.New("authority store is not configured")
	ErrDirectoryNotConfigured = errors.New("player directory is not configured")
	ErrVerifierNotConfigured  = errors.New("grant verifier is not configured")
	ErrKingdomIDRequired      = errors.New("kingdom id is required")
	ErrUserIDRequired         = errors.New("user id is required")
	ErrClaimIDRequired        = errors.New("claim id is required")
	ErrRecipientIDRequired    = errors.New("recipient id is required")
	ErrCandidateRefRequired   = errors.New("candidate reference is required")
	ErrGrantRequired          = errors.New("grant token is required")
)

// Domain failure modes, matched by code with errors.Is.
var (
	ErrClaimNotFound        = apperrors.New(apperrors.CodeNotFound, "claim not found")
	ErrCandidateNotFound    = apperrors.New(apperrors.CodeAuthorityCandidateNotFound, "candidate not found in player directory")
	ErrDuplicateClaim       = apperrors.New(apperrors.CodeAuthorityDuplicateClaim, "a claim already exists for this user and kingdom")
	ErrDuplicateEndorsement = apperrors.New(apperrors.CodeAuthorityDuplicateEndorsement, "endorsement already recorded for this user")
	ErrClaimNotPending      = apperrors.New(apperrors.CodeAuthorityClaimNotPending, "claim is not open for endorsement")
	ErrPrimarySeatTaken     = apperrors.New(apperrors.CodeAuthorityPrimarySeatTaken, "kingdom already has a seated primary steward")
	ErrInvalidTransition    = apperrors.New(apperrors.CodeAuthorityInvalidTransition, "claim state does not allow this transition")
	ErrDelegateLimitReached = apperrors.New(apperrors.CodeAuthorityDelegateLimitReached, "kingdom delegate roster is full")
	ErrNotAuthorized        = apperrors.New(apperrors.CodeAuthorityNotAuthorized, "actor does not hold the required stewardship")
	ErrAlreadyInvited       = apperrors.New(apperrors.CodeAuthorityAlreadyInvited, "recipient already holds an invite for this kingdom")
	ErrQuotaExceeded        = apperrors.New(apperrors.CodeAuthorityQuotaExceeded, "recruitment invite quota is exhausted for this cycle")
	ErrGrantInvalid         = apperrors.New(apperrors.CodeAuthorityGrantInvalid, "delegate grant is not valid")
	ErrGrantExpired         = apperrors.New(apperrors.CodeAuthorityGrantExpired, "delegate grant expired")
	ErrGrantMismatch        = apperrors.New(apperrors.CodeAuthorityGrantMismatch, "delegate grant does not match the claim")
	ErrStoreUnavailable     = apperrors.New(apperrors.CodeStoreUnavailable, "authority store is unavailable")
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Directory resolves public player references to identity snapshots.
type Directory interface {
	// LookupProfile returns the profile behind a public player reference.
	// Unknown references fail with ErrCandidateNotFound.
	LookupProfile(ctx context.Context, playerRef string) (Profile, error)
}

// TierSource reports a kingdom's standing for invite allowance purposes.
type TierSource interface {
	KingdomTier(ctx context.Context, kingdomID string) (Tier, error)
}

// EventPublisher receives committed state changes for fan-out. Publishing is
// best-effort; implementations never fail the originating mutation.
type EventPublisher interface {
	Publish(event fanout.Event)
}

// CycleFunc names the recruitment cycle containing a moment in time.
type CycleFunc func(at time.Time) string

// ISOWeekCycle names cycles by ISO week in UTC, for example "2026-W08".
func ISOWeekCycle(at time.Time) string {
	year, week := at.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// Service orchestrates kingdom authority lifecycle behavior.
type Service struct {
	store     storage.Store
	directory Directory
	tiers     TierSource
	publisher EventPublisher
	signer    *GrantSigner
	verifier  *GrantVerifier
	cycle     CycleFunc
	clock     func() time.Time
	newID     func() (string, error)
}

// Options wires optional collaborators into the service. Zero values fall
// back to sane defaults; a nil Directory disables candidate lookup and a nil
// TierSource pins every kingdom to the base invite allowance.
type Options struct {
	Directory Directory
	Tiers     TierSource
	Publisher EventPublisher
	Signer    *GrantSigner
	Verifier  *GrantVerifier
	Cycle     CycleFunc
	Clock     func() time.Time
	NewID     func() (string, error)
}

// NewService constructs authority domain use-cases over the given store.
func NewService(store storage.Store, opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = id.NewID
	}
	cycle := opts.Cycle
	if cycle == nil {
		cycle = ISOWeekCycle
	}
	return &Service{
		store:     store,
		directory: opts.Directory,
		tiers:     opts.Tiers,
		publisher: opts.Publisher,
		signer:    opts.Signer,
		verifier:  opts.Verifier,
		cycle:     cycle,
		clock:     clock,
		newID:     newID,
	}
}

func (s *Service) nowUTC() time.Time {
	return s.clock().UTC()
}

func (s *Service) publish(event fanout.Event) {
	if s == nil || s.publisher == nil {
		return
	}
	s.publisher.Publish(event)
}

// storeFailure converts transient storage outages into the retryable domain
// error and passes everything else through.
func storeFailure(err error) error {
	if errors.Is(err, storage.ErrUnavailable) {
		return apperrors.Wrap(apperrors.CodeStoreUnavailable, "authority store is unavailable", err)
	}
	return err
}

// NominateInput opens a primary stewardship claim.
type NominateInput struct {
	Nominator Profile
	KingdomID string
}

// Nominate opens a pending primary claim for the kingdom, reviving the
// nominator's retired row when one exists. The claim waits on an endorsement
// quorum before it can activate.
func (s *Service) Nominate(ctx context.Context, input NominateInput) (Claim, error) {
	if s == nil || s.store == nil {
		return Claim{}, ErrStoreNotConfigured
	}
	kingdomID := strings.TrimSpace(input.KingdomID)
	if kingdomID == "" {
		return Claim{}, ErrKingdomIDRequired
	}
	nominator := input.Nominator
	nominator.UserID = strings.TrimSpace(nominator.UserID)
	if nominator.UserID == "" {
		return Claim{}, ErrUserIDRequired
	}

	var existing *Claim
	current, err := s.store.GetClaimByKingdomAndUser(ctx, kingdomID, nominator.UserID)
	switch {
	case err == nil:
		claim := claimFromRecord(current)
		existing = &claim
	case errors.Is(err, storage.ErrNotFound):
	default:
		return Claim{}, storeFailure(err)
	}

	if err := CanNominate(nominator, kingdomID, existing); err != nil {
		return Claim{}, err
	}

	now := s.nowUTC()
	var claim Claim
	if existing != nil {
		revived, err := s.store.ReviveClaim(ctx, existing.ID, storage.ClaimRevival{
			Role:                 string(RolePrimary),
			RequiredEndorsements: RequiredEndorsements,
			NominatedAt:          now,
		})
		if err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return Claim{}, ErrDuplicateClaim
			}
			return Claim{}, storeFailure(err)
		}
		claim = claimFromRecord(revived)
	} else {
		claimID, err := s.newID()
		if err != nil {
			return Claim{}, fmt.Errorf("generate claim id: %w", err)
		}
		record := storage.ClaimRecord{
			ID:                   claimID,
			KingdomID:            kingdomID,
			UserID:               nominator.UserID,
			Role:                 string(RolePrimary),
			Status:               string(StatusPending),
			RequiredEndorsements: RequiredEndorsements,
			NominatedAt:          now,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := s.store.CreateClaim(ctx, record); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return Claim{}, ErrDuplicateClaim
			}
			return Claim{}, storeFailure(err)
		}
		claim = claimFromRecord(record)
	}

	s.publish(fanout.Event{
		Type:      fanout.EventClaimNominated,
		KingdomID: claim.KingdomID,
		ClaimID:   claim.ID,
		UserID:    claim.UserID,
		ActorID:   claim.UserID,
		At:        now,
	})
	return claim, nil
}

// GetClaim returns one claim by id.
func (s *Service) GetClaim(ctx context.Context, claimID string) (Claim, error) {
	if s == nil || s.store == nil {
		return Claim{}, ErrStoreNotConfigured
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return Claim{}, ErrClaimIDRequired
	}
	record, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Claim{}, ErrClaimNotFound
		}
		return Claim{}, storeFailure(err)
	}
	return claimFromRecord(record), nil
}

// GetClaimForUser returns the claim a user holds on a kingdom.
func (s *Service) GetClaimForUser(ctx context.Context, kingdomID, userID string) (Claim, error) {
	if s == nil || s.store == nil {
		return Claim{}, ErrStoreNotConfigured
	}
	kingdomID = strings.TrimSpace(kingdomID)
	if kingdomID == "" {
		return Claim{}, ErrKingdomIDRequired
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Claim{}, ErrUserIDRequired
	}
	record, err := s.store.GetClaimByKingdomAndUser(ctx, kingdomID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Claim{}, ErrClaimNotFound
		}
		return Claim{}, storeFailure(err)
	}
	return claimFromRecord(record), nil
}

// ListClaimsInput selects a page of kingdom claims. Filter takes an AIP-160
// expression over claim fields, for example `role = "delegate" AND status =
// "active"`.
type ListClaimsInput struct {
	KingdomID string
	Filter    string
	PageSize  int32
	PageToken string
}

// ListKingdomClaims returns one page of a kingdom's claims, newest first.
func (s *Service) ListKingdomClaims(ctx context.Context, input ListClaimsInput) (ClaimPage, error) {
	if s == nil || s.store == nil {
		return ClaimPage{}, ErrStoreNotConfigured
	}
	kingdomID := strings.TrimSpace(input.KingdomID)
	if kingdomID == "" {
		return ClaimPage{}, ErrKingdomIDRequired
	}

	condition, err := filter.ParseClaimFilter(input.Filter)
	if err != nil {
		return ClaimPage{}, err
	}

	pageSize := pagination.ClampPageSize(input.PageSize, pagination.PageSizeConfig{
		Default: defaultPageSize,
		Max:     maxPageSize,
	})
	page, err := s.store.ListClaims(ctx, storage.ClaimQuery{
		KingdomID:    kingdomID,
		FilterClause: condition.Clause,
		FilterParams: condition.Params,
		PageSize:     pageSize,
		PageToken:    strings.TrimSpace(input.PageToken),
	})
	if err != nil {
		return ClaimPage{}, storeFailure(err)
	}
	return ClaimPage{
		Claims:        claimsFromRecords(page.Claims),
		NextPageToken: page.NextPageToken,
	}, nil
}

// ListKingdomDelegates returns the kingdom's pending and active delegate
// claims, newest first.
func (s *Service) ListKingdomDelegates(ctx context.Context, kingdomID string) ([]Claim, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	kingdomID = strings.TrimSpace(kingdomID)
	if kingdomID == "" {
		return nil, ErrKingdomIDRequired
	}
	page, err := s.store.ListClaims(ctx, storage.ClaimQuery{
		KingdomID: kingdomID,
		Role:      string(RoleDelegate),
		Statuses:  []string{string(StatusPending), string(StatusActive)},
		PageSize:  maxPageSize,
	})
	if err != nil {
		return nil, storeFailure(err)
	}
	return claimsFromRecords(page.Claims), nil
}

// ListEndorsements returns the endorsements recorded for a claim, oldest
// first.
func (s *Service) ListEndorsements(ctx context.Context, claimID string) ([]Endorsement, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return nil, ErrClaimIDRequired
	}
	records, err := s.store.ListEndorsements(ctx, claimID)
	if err != nil {
		return nil, storeFailure(err)
	}
	endorsements := make([]Endorsement, 0, len(records))
	for _, record := range records {
		endorsements = append(endorsements, endorsementFromRecord(record))
	}
	return endorsements, nil
}

// SuspendClaim sidelines an active claim pending moderation review. A
// suspended primary keeps the kingdom seat so no rival can activate under it.
func (s *Service) SuspendClaim(ctx context.Context, claimID string) (Claim, error) {
	return s.moderateClaim(ctx, claimID, StatusActive, StatusSuspended, fanout.EventClaimSuspended)
}

// ReinstateClaim returns a suspended claim to active standing.
func (s *Service) ReinstateClaim(ctx context.Context, claimID string) (Claim, error) {
	return s.moderateClaim(ctx, claimID, StatusSuspended, StatusActive, fanout.EventClaimReinstated)
}

func (s *Service) moderateClaim(ctx context.Context, claimID string, from, to Status, eventType string) (Claim, error) {
	if s == nil || s.store == nil {
		return Claim{}, ErrStoreNotConfigured
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return Claim{}, ErrClaimIDRequired
	}
	now := s.nowUTC()
	record, err := s.store.TransitionClaim(ctx, claimID, "", []string{string(from)}, string(to), now)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return Claim{}, ErrClaimNotFound
		case errors.Is(err, storage.ErrInvalidTransition):
			return Claim{}, ErrInvalidTransition
		case errors.Is(err, storage.ErrPrimarySeatTaken):
			return Claim{}, ErrPrimarySeatTaken
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
		At:        now,
	})
	return claim, nil
}

package domain

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/fanout"
	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/storage"
)

func TestNominate_CreatesPendingPrimaryClaim(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 21, 20, 0, 0, 0, time.UTC)
	store := newFakeStore()
	publisher := &capturingPublisher{}
	svc := NewService(store, Options{
		Publisher: publisher,
		Clock:     fixedClock(now),
		NewID:     sequentialIDGenerator("claim-1"),
	})

	claim, err := svc.Nominate(context.Background(), NominateInput{
		Nominator: linkedProfile("user-1", "k1"),
		KingdomID: "k1",
	})
	if err != nil {
		t.Fatalf("nominate: %v", err)
	}

	if claim.ID != "claim-1" {
		t.Fatalf("claim id = %q, want %q", claim.ID, "claim-1")
	}
	if claim.Role != RolePrimary || claim.Status != StatusPending {
		t.Fatalf("claim = %s/%s, want primary/pending", claim.Role, claim.Status)
	}
	if claim.RequiredEndorsements != RequiredEndorsements {
		t.Fatalf("required endorsements = %d, want %d", claim.RequiredEndorsements, RequiredEndorsements)
	}
	if claim.EndorsementCount != 0 {
		t.Fatalf("endorsement count = %d, want 0", claim.EndorsementCount)
	}
	if !claim.NominatedAt.Equal(now) {
		t.Fatalf("nominated at = %v, want %v", claim.NominatedAt, now)
	}
	if got := publisher.eventTypes(); len(got) != 1 || got[0] != fanout.EventClaimNominated {
		t.Fatalf("published events = %v, want [%s]", got, fanout.EventClaimNominated)
	}
	if got := store.claimCount(); got != 1 {
		t.Fatalf("persisted claims = %d, want 1", got)
	}
}

func TestNominate_RevivesRetiredClaim(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 21, 20, 5, 0, 0, time.UTC)
	store := newFakeStore()
	seeded := seedClaim(store, claimSeed{
		ID: "claim-1", KingdomID: "k1", UserID: "user-1",
		Role: RoleDelegate, Status: StatusInactive,
		EndorsementCount: 4, AssignedBy: "user-9",
	})
	svc := NewService(store, Options{
		Clock: fixedClock(now),
		NewID: sequentialIDGenerator("claim-2"),
	})

	claim, err := svc.Nominate(context.Background(), NominateInput{
		Nominator: linkedProfile("user-1", "k1"),
		KingdomID: "k1",
	})
	if err != nil {
		t.Fatalf("nominate: %v", err)
	}

	if claim.ID != seeded.ID {
		t.Fatalf("claim id = %q, want revived row %q", claim.ID, seeded.ID)
	}
	if claim.Role != RolePrimary || claim.Status != StatusPending {
		t.Fatalf("claim = %s/%s, want primary/pending", claim.Role, claim.Status)
	}
	if claim.EndorsementCount != 4 {
		t.Fatalf("endorsement count = %d, want recorded tally 4", claim.EndorsementCount)
	}
	if claim.AssignedBy != "" {
		t.Fatalf("assigned by = %q, want empty after revival", claim.AssignedBy)
	}
	if !claim.ActivatedAt.IsZero() {
		t.Fatalf("activated at = %v, want zero after revival", claim.ActivatedAt)
	}
	if got := store.claimCount(); got != 1 {
		t.Fatalf("persisted claims = %d, want 1", got)
	}
}

func TestNominate_RejectsLiveClaim(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedClaim(store, claimSeed{
		ID: "claim-1", KingdomID: "k1", UserID: "user-1",
		Role: RolePrimary, Status: StatusPending,
	})
	svc := NewService(store, Options{})

	_, err := svc.Nominate(context.Background(), NominateInput{
		Nominator: linkedProfile("user-1", "k1"),
		KingdomID: "k1",
	})
	var ineligible *IneligibleError
	if !errors.As(err, &ineligible) {
		t.Fatalf("nominate error = %v, want IneligibleError", err)
	}
	if ineligible.Reason != ReasonExistingClaim {
		t.Fatalf("reason = %q, want %q", ineligible.Reason, ReasonExistingClaim)
	}
}

func TestNominate_EligibilityGates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		nominator  Profile
		wantReason IneligibleReason
	}{
		{
			name:       "unlinked account",
			nominator:  Profile{UserID: "user-1", Level: 40, KingdomID: "k1"},
			wantReason: ReasonAccountNotLinked,
		},
		{
			name:       "level too low",
			nominator:  Profile{UserID: "user-1", LinkedAccount: true, Level: MinLevel - 1, KingdomID: "k1"},
			wantReason: ReasonLevelTooLow,
		},
		{
			name:       "kingdom mismatch",
			nominator:  Profile{UserID: "user-1", LinkedAccount: true, Level: 40, KingdomID: "k2"},
			wantReason: ReasonKingdomMismatch,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := NewService(newFakeStore(), Options{})
			_, err := svc.Nominate(context.Background(), NominateInput{
				Nominator: tt.nominator,
				KingdomID: "k1",
			})
			var ineligible *IneligibleError
			if !errors.As(err, &ineligible) {
				t.Fatalf("nominate error = %v, want IneligibleError", err)
			}
			if ineligible.Reason != tt.wantReason {
				t.Fatalf("reason = %q, want %q", ineligible.Reason, tt.wantReason)
			}
		})
	}
}

func TestGetClaimForUser_NotFound(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), Options{})
	_, err := svc.GetClaimForUser(context.Background(), "k1", "user-1")
	if !errors.Is(err, ErrClaimNotFound) {
		t.Fatalf("get claim error = %v, want %v", err, ErrClaimNotFound)
	}
}

func TestListKingdomClaims_PaginatesNewestFirst(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 2, 21, 20, 10, 0, 0, time.UTC)
	store := newFakeStore()
	for i, id := range []string{"claim-1", "claim-2", "claim-3"} {
		seedClaim(store, claimSeed{
			ID: id, KingdomID: "k1", UserID: "user-" + id,
			Role: RolePrimary, Status: StatusInactive,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	seedClaim(store, claimSeed{
		ID: "other", KingdomID: "k2", UserID: "user-x",
		Role: RolePrimary, Status: StatusPending,
		CreatedAt: base.Add(time.Hour),
	})
	svc := NewService(store, Options{})

	pageOne, err := svc.ListKingdomClaims(context.Background(), ListClaimsInput{
		KingdomID: "k1",
		PageSize:  2,
	})
	if err != nil {
		t.Fatalf("list page one: %v", err)
	}
	if len(pageOne.Claims) != 2 {
		t.Fatalf("page one claims = %d, want 2", len(pageOne.Claims))
	}
	if pageOne.Claims[0].ID != "claim-3" || pageOne.Claims[1].ID != "claim-2" {
		t.Fatalf("unexpected page one order: %q, %q", pageOne.Claims[0].ID, pageOne.Claims[1].ID)
	}
	if pageOne.NextPageToken == "" {
		t.Fatal("expected non-empty next page token")
	}

	pageTwo, err := svc.ListKingdomClaims(context.Background(), ListClaimsInput{
		KingdomID: "k1",
		PageSize:  2,
		PageToken: pageOne.NextPageToken,
	})
	if err != nil {
		t.Fatalf("list page two: %v", err)
	}
	if len(pageTwo.Claims) != 1 || pageTwo.Claims[0].ID != "claim-1" {
		t.Fatalf("unexpected page two: %+v", pageTwo.Claims)
	}
	if pageTwo.NextPageToken != "" {
		t.Fatalf("page two token = %q, want empty", pageTwo.NextPageToken)
	}
}

func TestListKingdomClaims_RejectsBadFilter(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), Options{})
	_, err := svc.ListKingdomClaims(context.Background(), ListClaimsInput{
		KingdomID: "k1",
		Filter:    `secret = "x"`,
	})
	if err == nil {
		t.Fatal("list error = nil, want filter parse failure")
	}
}

func TestListKingdomDelegates_FiltersRoleAndStatus(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedClaim(store, claimSeed{ID: "c1", KingdomID: "k1", UserID: "u1", Role: RolePrimary, Status: StatusActive})
	seedClaim(store, claimSeed{ID: "c2", KingdomID: "k1", UserID: "u2", Role: RoleDelegate, Status: StatusPending})
	seedClaim(store, claimSeed{ID: "c3", KingdomID: "k1", UserID: "u3", Role: RoleDelegate, Status: StatusActive})
	seedClaim(store, claimSeed{ID: "c4", KingdomID: "k1", UserID: "u4", Role: RoleDelegate, Status: StatusInactive})
	svc := NewService(store, Options{})

	delegates, err := svc.ListKingdomDelegates(context.Background(), "k1")
	if err != nil {
		t.Fatalf("list delegates: %v", err)
	}
	if len(delegates) != 2 {
		t.Fatalf("delegates = %d, want 2", len(delegates))
	}
	for _, delegate := range delegates {
		if delegate.Role != RoleDelegate {
			t.Fatalf("delegate role = %s, want delegate", delegate.Role)
		}
		if delegate.Status != StatusPending && delegate.Status != StatusActive {
			t.Fatalf("delegate status = %s, want pending or active", delegate.Status)
		}
	}
}

func TestSuspendAndReinstate_KeepsFirstActivation(t *testing.T) {
	t.Parallel()

	activatedAt := time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 21, 20, 15, 0, 0, time.UTC)
	store := newFakeStore()
	seedClaim(store, claimSeed{
		ID: "claim-1", KingdomID: "k1", UserID: "user-1",
		Role: RolePrimary, Status: StatusActive,
		ActivatedAt: activatedAt,
	})
	publisher := &capturingPublisher{}
	svc := NewService(store, Options{
		Publisher: publisher,
		Clock:     fixedClock(now),
	})

	suspended, err := svc.SuspendClaim(context.Background(), "claim-1")
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if suspended.Status != StatusSuspended {
		t.Fatalf("status = %s, want suspended", suspended.Status)
	}

	reinstated, err := svc.ReinstateClaim(context.Background(), "claim-1")
	if err != nil {
		t.Fatalf("reinstate: %v", err)
	}
	if reinstated.Status != StatusActive {
		t.Fatalf("status = %s, want active", reinstated.Status)
	}
	if !reinstated.ActivatedAt.Equal(activatedAt) {
		t.Fatalf("activated at = %v, want original %v", reinstated.ActivatedAt, activatedAt)
	}
	want := []string{fanout.EventClaimSuspended, fanout.EventClaimReinstated}
	if got := publisher.eventTypes(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("published events = %v, want %v", got, want)
	}
}

func TestSuspendClaim_RequiresActiveStatus(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedClaim(store, claimSeed{
		ID: "claim-1", KingdomID: "k1", UserID: "user-1",
		Role: RolePrimary, Status: StatusPending,
	})
	svc := NewService(store, Options{})

	_, err := svc.SuspendClaim(context.Background(), "claim-1")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("suspend error = %v, want %v", err, ErrInvalidTransition)
	}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func sequentialIDGenerator(ids ...string) func() (string, error) {
	queue := append([]string(nil), ids...)
	index := 0
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if index >= len(queue) {
			return "", errors.New("id generator exhausted")
		}
		value := queue[index]
		index++
		return value, nil
	}
}

func linkedProfile(userID, kingdomID string) Profile {
	return Profile{
		UserID:        userID,
		LinkedAccount: true,
		Level:         MinLevel + 10,
		KingdomID:     kingdomID,
	}
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []fanout.Event
}

func (p *capturingPublisher) Publish(event fanout.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}

type fakeDirectory struct {
	profiles map[string]Profile
}

func (d *fakeDirectory) LookupProfile(_ context.Context, playerRef string) (Profile, error) {
	profile, ok := d.profiles[playerRef]
	if !ok {
		return Profile{}, ErrCandidateNotFound
	}
	return profile, nil
}

type fakeTiers struct {
	tier Tier
	err  error
}

func (t *fakeTiers) KingdomTier(context.Context, string) (Tier, error) {
	if t.err != nil {
		return "", t.err
	}
	return t.tier, nil
}

// claimSeed shapes a claim row planted directly into the fake store.
type claimSeed struct {
	ID               string
	KingdomID        string
	UserID           string
	Role             Role
	Status           Status
	EndorsementCount int
	AssignedBy       string
	ActivatedAt      time.Time
	CreatedAt        time.Time
}

func seedClaim(store *fakeStore, seed claimSeed) storage.ClaimRecord {
	at := seed.CreatedAt
	if at.IsZero() {
		at = time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	}
	record := storage.ClaimRecord{
		ID:                   seed.ID,
		KingdomID:            seed.KingdomID,
		UserID:               seed.UserID,
		Role:                 string(seed.Role),
		Status:               string(seed.Status),
		EndorsementCount:     seed.EndorsementCount,
		RequiredEndorsements: RequiredEndorsements,
		AssignedBy:           seed.AssignedBy,
		NominatedAt:          at,
		ActivatedAt:          seed.ActivatedAt,
		CreatedAt:            at,
		UpdatedAt:            at,
	}
	store.putClaim(record)
	return record
}

type fakeStore struct {
	mu           sync.Mutex
	claims       map[string]storage.ClaimRecord
	pairIndex    map[string]string
	endorsements map[string]map[string]storage.EndorsementRecord
	quotas       map[string]storage.QuotaRecord
	invites      map[string]storage.InviteRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		claims:       make(map[string]storage.ClaimRecord),
		pairIndex:    make(map[string]string),
		endorsements: make(map[string]map[string]storage.EndorsementRecord),
		quotas:       make(map[string]storage.QuotaRecord),
		invites:      make(map[string]storage.InviteRecord),
	}
}

func pairKey(left, right string) string {
	return left + "|" + right
}

func (s *fakeStore) putClaim(record storage.ClaimRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[record.ID] = record
	s.pairIndex[pairKey(record.KingdomID, record.UserID)] = record.ID
}

func (s *fakeStore) putQuota(record storage.QuotaRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[pairKey(record.KingdomID, record.CycleID)] = record
}

func (s *fakeStore) claimCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}

func (s *fakeStore) countDelegatesLocked(kingdomID string) int {
	count := 0
	for _, claim := range s.claims {
		if claim.KingdomID != kingdomID || claim.Role != "delegate" {
			continue
		}
		if claim.Status == "pending" || claim.Status == "active" {
			count++
		}
	}
	return count
}

func (s *fakeStore) seatedPrimaryLocked(kingdomID, excludeID string) bool {
	for _, claim := range s.claims {
		if claim.ID == excludeID || claim.KingdomID != kingdomID || claim.Role != "primary" {
			continue
		}
		if claim.Status == "active" || claim.Status == "suspended" {
			return true
		}
	}
	return false
}

func (s *fakeStore) CreateClaim(_ context.Context, claim storage.ClaimRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pairIndex[pairKey(claim.KingdomID, claim.UserID)]; ok {
		return storage.ErrConflict
	}
	s.claims[claim.ID] = claim
	s.pairIndex[pairKey(claim.KingdomID, claim.UserID)] = claim.ID
	return nil
}

func (s *fakeStore) CreateDelegateClaim(_ context.Context, claim storage.ClaimRecord, maxDelegates int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countDelegatesLocked(claim.KingdomID) >= maxDelegates {
		return storage.ErrDelegateLimitReached
	}
	if _, ok := s.pairIndex[pairKey(claim.KingdomID, claim.UserID)]; ok {
		return storage.ErrConflict
	}
	s.claims[claim.ID] = claim
	s.pairIndex[pairKey(claim.KingdomID, claim.UserID)] = claim.ID
	return nil
}

func (s *fakeStore) reviveLocked(claimID string, revival storage.ClaimRevival) (storage.ClaimRecord, error) {
	claim, ok := s.claims[claimID]
	if !ok {
		return storage.ClaimRecord{}, storage.ErrNotFound
	}
	if claim.Status != "inactive" {
		return storage.ClaimRecord{}, storage.ErrConflict
	}
	claim.Role = revival.Role
	claim.Status = "pending"
	claim.RequiredEndorsements = revival.RequiredEndorsements
	claim.AssignedBy = revival.AssignedBy
	claim.NominatedAt = revival.NominatedAt
	claim.ActivatedAt = time.Time{}
	claim.UpdatedAt = revival.NominatedAt
	s.claims[claimID] = claim
	return claim, nil
}

func (s *fakeStore) ReviveClaim(_ context.Context, claimID string, revival storage.ClaimRevival) (storage.ClaimRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviveLocked(claimID, revival)
}

func (s *fakeStore) ReviveDelegateClaim(_ context.Context, claimID string, revival storage.ClaimRevival, maxDelegates int) (storage.ClaimRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.claims[claimID]
	if !ok {
		return storage.ClaimRecord{}, storage.ErrNotFound
	}
	if claim.Status != "inactive" {
		return storage.ClaimRecord{}, storage.ErrConflict
	}
	if s.countDelegatesLocked(claim.KingdomID) >= maxDelegates {
		return storage.ClaimRecord{}, storage.ErrDelegateLimitReached
	}
	return s.reviveLocked(claimID, revival)
}

func (s *fakeStore) AdoptDelegateClaim(_ context.Context, claimID, assignedBy string, at time.Time) (storage.ClaimRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.claims[claimID]
	if !ok {
		return storage.ClaimRecord{}, storage.ErrNotFound
	}
	if claim.Role != "delegate" || claim.Status != "pending" || claim.AssignedBy != "" {
		return storage.ClaimRecord{}, storage.ErrConflict
	}
	claim.AssignedBy = assignedBy
	claim.UpdatedAt = at
	s.claims[claimID] = claim
	return claim, nil
}

func (s *fakeStore) TransitionClaim(_ context.Context, claimID, role string, from []string, to string, at time.Time) (storage.ClaimRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.claims[claimID]
	if !ok {
		return storage.ClaimRecord{}, storage.ErrNotFound
	}
	matched := false
	for _, status := range from {
		if claim.Status == status {
			matched = true
			break
		}
	}
	if !matched || (role != "" && claim.Role != role) {
		return storage.ClaimRecord{}, storage.ErrInvalidTransition
	}
	if to == "active" && claim.Role == "primary" && s.seatedPrimaryLocked(claim.KingdomID, claim.ID) {
		return storage.ClaimRecord{}, storage.ErrPrimarySeatTaken
	}
	claim.Status = to
	if to == "active" && claim.ActivatedAt.IsZero() {
		claim.ActivatedAt = at
	}
	claim.UpdatedAt = at
	s.claims[claimID] = claim
	return claim, nil
}

func (s *fakeStore) SubmitEndorsement(_ context.Context, claimID, endorserUserID string, at time.Time) (storage.EndorseOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.claims[claimID]
	if !ok {
		return storage.EndorseOutcome{}, storage.ErrNotFound
	}
	if claim.Role != "primary" || claim.Status != "pending" {
		return storage.EndorseOutcome{}, storage.ErrClaimNotPending
	}
	if _, ok := s.endorsements[claimID][endorserUserID]; ok {
		return storage.EndorseOutcome{}, storage.ErrDuplicateEndorsement
	}

	count := claim.EndorsementCount + 1
	activated := claim.RequiredEndorsements > 0 && count >= claim.RequiredEndorsements
	if activated && s.seatedPrimaryLocked(claim.KingdomID, claim.ID) {
		return storage.EndorseOutcome{}, storage.ErrPrimarySeatTaken
	}

	if s.endorsements[claimID] == nil {
		s.endorsements[claimID] = make(map[string]storage.EndorsementRecord)
	}
	s.endorsements[claimID][endorserUserID] = storage.EndorsementRecord{
		ClaimID:        claimID,
		EndorserUserID: endorserUserID,
		CreatedAt:      at,
	}
	claim.EndorsementCount = count
	claim.UpdatedAt = at
	if activated {
		claim.Status = "active"
		if claim.ActivatedAt.IsZero() {
			claim.ActivatedAt = at
		}
		for id, rival := range s.claims {
			if id == claimID || rival.KingdomID != claim.KingdomID {
				continue
			}
			if rival.Role == "primary" && rival.Status == "pending" {
				rival.Status = "inactive"
				rival.UpdatedAt = at
				s.claims[id] = rival
			}
		}
	}
	s.claims[claimID] = claim
	return storage.EndorseOutcome{Claim: claim, Count: count, Activated: activated}, nil
}

func (s *fakeStore) GetClaim(_ context.Context, claimID string) (storage.ClaimRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.claims[claimID]
	if !ok {
		return storage.ClaimRecord{}, storage.ErrNotFound
	}
	return claim, nil
}

func (s *fakeStore) GetClaimByKingdomAndUser(_ context.Context, kingdomID, userID string) (storage.ClaimRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claimID, ok := s.pairIndex[pairKey(kingdomID, userID)]
	if !ok {
		return storage.ClaimRecord{}, storage.ErrNotFound
	}
	claim, ok := s.claims[claimID]
	if !ok {
		return storage.ClaimRecord{}, storage.ErrNotFound
	}
	return claim, nil
}

func (s *fakeStore) ListClaims(_ context.Context, query storage.ClaimQuery) (storage.ClaimPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := make([]storage.ClaimRecord, 0, len(s.claims))
	for _, claim := range s.claims {
		if query.KingdomID != "" && claim.KingdomID != query.KingdomID {
			continue
		}
		if query.UserID != "" && claim.UserID != query.UserID {
			continue
		}
		if query.Role != "" && claim.Role != query.Role {
			continue
		}
		if len(query.Statuses) > 0 {
			matched := false
			for _, status := range query.Statuses {
				if claim.Status == status {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		filtered = append(filtered, claim)
	}
	sort.Slice(filtered, func(i int, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].ID > filtered[j].ID
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	start := 0
	if query.PageToken != "" {
		for idx := range filtered {
			if filtered[idx].ID == query.PageToken {
				start = idx + 1
				break
			}
		}
	}
	if start >= len(filtered) {
		return storage.ClaimPage{}, nil
	}
	end := start + pageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	page := storage.ClaimPage{
		Claims: append([]storage.ClaimRecord(nil), filtered[start:end]...),
	}
	if end < len(filtered) {
		page.NextPageToken = filtered[end-1].ID
	}
	return page, nil
}

func (s *fakeStore) CountKingdomDelegates(_ context.Context, kingdomID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countDelegatesLocked(kingdomID), nil
}

func (s *fakeStore) ListEndorsements(_ context.Context, claimID string) ([]storage.EndorsementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]storage.EndorsementRecord, 0, len(s.endorsements[claimID]))
	for _, record := range s.endorsements[claimID] {
		records = append(records, record)
	}
	sort.Slice(records, func(i int, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].EndorserUserID < records[j].EndorserUserID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (s *fakeStore) ConsumeInvite(_ context.Context, invite storage.InviteRecord, allowance int) (storage.InviteOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inviteKey := pairKey(invite.KingdomID, invite.RecipientID)
	if _, ok := s.invites[inviteKey]; ok {
		return storage.InviteOutcome{}, storage.ErrAlreadyInvited
	}
	quotaKey := pairKey(invite.KingdomID, invite.CycleID)
	ledger, ok := s.quotas[quotaKey]
	if !ok {
		ledger = storage.QuotaRecord{
			KingdomID: invite.KingdomID,
			CycleID:   invite.CycleID,
			Allowance: allowance,
		}
	} else if allowance > ledger.Allowance {
		ledger.Allowance = allowance
	}
	if ledger.Used >= ledger.Allowance {
		return storage.InviteOutcome{}, storage.ErrQuotaExceeded
	}
	ledger.Used++
	s.quotas[quotaKey] = ledger
	s.invites[inviteKey] = invite
	return storage.InviteOutcome{Invite: invite, Used: ledger.Used, Allowance: ledger.Allowance}, nil
}

func (s *fakeStore) GetQuota(_ context.Context, kingdomID, cycleID string) (storage.QuotaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.quotas[pairKey(kingdomID, cycleID)]
	if !ok {
		return storage.QuotaRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) ListInvites(_ context.Context, kingdomID string) ([]storage.InviteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invites := make([]storage.InviteRecord, 0)
	for _, invite := range s.invites {
		if invite.KingdomID == kingdomID {
			invites = append(invites, invite)
		}
	}
	sort.Slice(invites, func(i int, j int) bool {
		if invites[i].CreatedAt.Equal(invites[j].CreatedAt) {
			return invites[i].RecipientID < invites[j].RecipientID
		}
		return invites[i].CreatedAt.After(invites[j].CreatedAt)
	})
	return invites, nil
}

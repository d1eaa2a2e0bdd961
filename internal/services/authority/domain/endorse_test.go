package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/fanout"
)

func TestEndorse_RecordsVote(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedClaim(store, claimSeed{
		ID: "claim-1", KingdomID: "k1", UserID: "user-1",
		Role: RolePrimary, Status: StatusPending,
	})
	publisher := &capturingPublisher{}
	svc := NewService(store, Options{
		Publisher: publisher,
		Clock:     fixedClock(now),
	})

	result, err := svc.Endorse(context.Background(), EndorseInput{
		Endorser: linkedProfile("user-2", "k1"),
		ClaimID:  "claim-1",
	})
	if err != nil {
		t.Fatalf("endorse: %v", err)
	}
	if result.Count != 1 {
		t.Fatalf("count = %d, want 1", result.Count)
	}
	if result.Activated {
		t.Fatal("activated = true, want false below quorum")
	}
	if result.Claim.Status != StatusPending {
		t.Fatalf("status = %s, want pending", result.Claim.Status)
	}
	if got := publisher.eventTypes(); len(got) != 1 || got[0] != fanout.EventClaimEndorsed {
		t.Fatalf("published events = %v, want [%s]", got, fanout.EventClaimEndorsed)
	}
}

func TestEndorse_ActivatesAtQuorumAndRetiresRivals(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 21, 21, 5, 0, 0, time.UTC)
	store := newFakeStore()
	seedClaim(store, claimSeed{
		ID: "claim-1", KingdomID: "k1", UserID: "user-1",
		Role: RolePrimary, Status: StatusPending,
		EndorsementCount: RequiredEndorsements - 1,
	})
	seedClaim(store, claimSeed{
		ID: "rival", KingdomID: "k1", UserID: "user-2",
		Role: RolePrimary, Status: StatusPending,
		EndorsementCount: 3,
	})
	publisher := &capturingPublisher{}
	svc := NewService(store, Options{
		Publisher: publisher,
		Clock:     fixedClock(now),
	})

	result, err := svc.Endorse(context.Background(), EndorseInput{
		Endorser: linkedProfile("user-3", "k1"),
		ClaimID:  "claim-1",
	})
	if err != nil {
		t.Fatalf("endorse: %v", err)
	}
	if !result.Activated {
		t.Fatal("activated = false, want true at quorum")
	}
	if result.Claim.Status != StatusActive {
		t.Fatalf("status = %s, want active", result.Claim.Status)
	}
	if !result.Claim.ActivatedAt.Equal(now) {
		t.Fatalf("activated at = %v, want %v", result.Claim.ActivatedAt, now)
	}

	rival, err := svc.GetClaim(context.Background(), "rival")
	if err != nil {
		t.Fatalf("get rival: %v", err)
	}
	if rival.Status != StatusInactive {
		t.Fatalf("rival status = %s, want inactive", rival.Status)
	}
	if rival.EndorsementCount != 3 {
		t.Fatalf("rival tally = %d, want 3 preserved through retirement", rival.EndorsementCount)
	}

	want := []string{fanout.EventClaimEndorsed, fanout.EventClaimActivated}
	if got := publisher.eventTypes(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("published events = %v, want %v", got, want)
	}
}

func TestEndorse_DuplicateEndorser(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedClaim(store, claimSeed{
		ID: "claim-1", KingdomID: "k1", UserID: "user-1",
		Role: RolePrimary, Status: StatusPending,
	})
	svc := NewService(store, Options{})

	input := EndorseInput{
		Endorser: linkedProfile("user-2", "k1"),
		ClaimID:  "claim-1",
	}
	if _, err := svc.Endorse(context.Background(), input); err != nil {
		t.Fatalf("first endorse: %v", err)
	}
	_, err := svc.Endorse(context.Background(), input)
	if !errors.Is(err, ErrDuplicateEndorsement) {
		t.Fatalf("second endorse error = %v, want %v", err, ErrDuplicateEndorsement)
	}

	claim, err := svc.GetClaim(context.Background(), "claim-1")
	if err != nil {
		t.Fatalf("get claim: %v", err)
	}
	if claim.EndorsementCount != 1 {
		t.Fatalf("tally = %d, want 1", claim.EndorsementCount)
	}
}

func TestEndorse_RequiresPendingPrimary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		role   Role
		status Status
	}{
		{name: "active primary", role: RolePrimary, status: StatusActive},
		{name: "suspended primary", role: RolePrimary, status: StatusSuspended},
		{name: "pending delegate", role: RoleDelegate, status: StatusPending},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			seedClaim(store, claimSeed{
				ID: "claim-1", KingdomID: "k1", UserID: "user-1",
				Role: tt.role, Status: tt.status,
			})
			svc := NewService(store, Options{})

			_, err := svc.Endorse(context.Background(), EndorseInput{
				Endorser: linkedProfile("user-2", "k1"),
				ClaimID:  "claim-1",
			})
			if !errors.Is(err, ErrClaimNotPending) {
				t.Fatalf("endorse error = %v, want %v", err, ErrClaimNotPending)
			}
		})
	}
}

func TestEndorse_RejectsOutsiderEndorser(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedClaim(store, claimSeed{
		ID: "claim-1", KingdomID: "k1", UserID: "user-1",
		Role: RolePrimary, Status: StatusPending,
	})
	svc := NewService(store, Options{})

	_, err := svc.Endorse(context.Background(), EndorseInput{
		Endorser: linkedProfile("user-2", "k2"),
		ClaimID:  "claim-1",
	})
	var ineligible *IneligibleError
	if !errors.As(err, &ineligible) {
		t.Fatalf("endorse error = %v, want IneligibleError", err)
	}
	if ineligible.Reason != ReasonKingdomMismatch {
		t.Fatalf("reason = %q, want %q", ineligible.Reason, ReasonKingdomMismatch)
	}
}

func TestEndorse_SeatTakenAtQuorumKeepsTallyUnchanged(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedClaim(store, claimSeed{
		ID: "claim-1", KingdomID: "k1", UserID: "user-1",
		Role: RolePrimary, Status: StatusPending,
		EndorsementCount: RequiredEndorsements - 1,
	})
	seedClaim(store, claimSeed{
		ID: "seated", KingdomID: "k1", UserID: "user-2",
		Role: RolePrimary, Status: StatusSuspended,
	})
	svc := NewService(store, Options{})

	_, err := svc.Endorse(context.Background(), EndorseInput{
		Endorser: linkedProfile("user-3", "k1"),
		ClaimID:  "claim-1",
	})
	if !errors.Is(err, ErrPrimarySeatTaken) {
		t.Fatalf("endorse error = %v, want %v", err, ErrPrimarySeatTaken)
	}

	claim, err := svc.GetClaim(context.Background(), "claim-1")
	if err != nil {
		t.Fatalf("get claim: %v", err)
	}
	if claim.EndorsementCount != RequiredEndorsements-1 {
		t.Fatalf("tally = %d, want %d after refused activation", claim.EndorsementCount, RequiredEndorsements-1)
	}
	if claim.Status != StatusPending {
		t.Fatalf("status = %s, want pending", claim.Status)
	}
}

func TestEndorse_ClaimNotFound(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), Options{})
	_, err := svc.Endorse(context.Background(), EndorseInput{
		Endorser: linkedProfile("user-2", "k1"),
		ClaimID:  "missing",
	})
	if !errors.Is(err, ErrClaimNotFound) {
		t.Fatalf("endorse error = %v, want %v", err, ErrClaimNotFound)
	}
}

func TestListEndorsements_OrdersOldestFirst(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 2, 21, 21, 10, 0, 0, time.UTC)
	store := newFakeStore()
	seedClaim(store, claimSeed{
		ID: "claim-1", KingdomID: "k1", UserID: "user-1",
		Role: RolePrimary, Status: StatusPending,
	})
	svc := NewService(store, Options{Clock: fixedClock(base)})

	for i, endorser := range []string{"user-2", "user-3", "user-4"} {
		svc.clock = fixedClock(base.Add(time.Duration(i) * time.Minute))
		if _, err := svc.Endorse(context.Background(), EndorseInput{
			Endorser: linkedProfile(endorser, "k1"),
			ClaimID:  "claim-1",
		}); err != nil {
			t.Fatalf("endorse %s: %v", endorser, err)
		}
	}

	endorsements, err := svc.ListEndorsements(context.Background(), "claim-1")
	if err != nil {
		t.Fatalf("list endorsements: %v", err)
	}
	if len(endorsements) != 3 {
		t.Fatalf("endorsements = %d, want 3", len(endorsements))
	}
	want := []string{"user-2", "user-3", "user-4"}
	for i, endorsement := range endorsements {
		if endorsement.EndorserUserID != want[i] {
			t.Fatalf("endorsement[%d] = %q, want %q", i, endorsement.EndorserUserID, want[i])
		}
	}
}

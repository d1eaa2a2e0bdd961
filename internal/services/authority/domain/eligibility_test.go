package domain

import (
	"errors"
	"testing"

	apperrors "github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/platform/errors"
)

func TestCanNominate(t *testing.T) {
	t.Parallel()

	live := &Claim{Status: StatusActive}
	retired := &Claim{Status: StatusInactive}

	tests := []struct {
		name     string
		profile  Profile
		existing *Claim
		reason   IneligibleReason
	}{
		{
			name:    "eligible",
			profile: Profile{UserID: "user-1", LinkedAccount: true, Level: MinLevel, KingdomID: "k1"},
		},
		{
			name:     "retired claim does not block",
			profile:  Profile{UserID: "user-1", LinkedAccount: true, Level: MinLevel, KingdomID: "k1"},
			existing: retired,
		},
		{
			name:    "unlinked account",
			profile: Profile{UserID: "user-1", Level: 60, KingdomID: "k1"},
			reason:  ReasonAccountNotLinked,
		},
		{
			name:    "level too low",
			profile: Profile{UserID: "user-1", LinkedAccount: true, Level: MinLevel - 1, KingdomID: "k1"},
			reason:  ReasonLevelTooLow,
		},
		{
			name:    "kingdom mismatch",
			profile: Profile{UserID: "user-1", LinkedAccount: true, Level: MinLevel, KingdomID: "k2"},
			reason:  ReasonKingdomMismatch,
		},
		{
			name:     "live claim blocks",
			profile:  Profile{UserID: "user-1", LinkedAccount: true, Level: MinLevel, KingdomID: "k1"},
			existing: live,
			reason:   ReasonExistingClaim,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := CanNominate(tc.profile, "k1", tc.existing)
			if tc.reason == "" {
				if err != nil {
					t.Fatalf("CanNominate() = %v, want nil", err)
				}
				return
			}
			var ineligible *IneligibleError
			if !errors.As(err, &ineligible) {
				t.Fatalf("CanNominate() = %v, want IneligibleError", err)
			}
			if ineligible.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", ineligible.Reason, tc.reason)
			}
			if ineligible.UserID != tc.profile.UserID {
				t.Fatalf("user id = %q, want %q", ineligible.UserID, tc.profile.UserID)
			}
		})
	}
}

func TestCanEndorse(t *testing.T) {
	t.Parallel()

	endorser := Profile{UserID: "user-2", LinkedAccount: true, Level: MinLevel, KingdomID: "k1"}

	tests := []struct {
		name  string
		claim Claim
	}{
		{name: "active primary", claim: Claim{KingdomID: "k1", Role: RolePrimary, Status: StatusActive}},
		{name: "suspended primary", claim: Claim{KingdomID: "k1", Role: RolePrimary, Status: StatusSuspended}},
		{name: "pending delegate", claim: Claim{KingdomID: "k1", Role: RoleDelegate, Status: StatusPending}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if err := CanEndorse(endorser, tc.claim); !errors.Is(err, ErrClaimNotPending) {
				t.Fatalf("CanEndorse() = %v, want %v", err, ErrClaimNotPending)
			}
		})
	}

	t.Run("pending primary", func(t *testing.T) {
		t.Parallel()

		claim := Claim{KingdomID: "k1", Role: RolePrimary, Status: StatusPending}
		if err := CanEndorse(endorser, claim); err != nil {
			t.Fatalf("CanEndorse() = %v, want nil", err)
		}
	})

	t.Run("outsider endorser", func(t *testing.T) {
		t.Parallel()

		outsider := Profile{UserID: "user-3", LinkedAccount: true, Level: MinLevel, KingdomID: "k2"}
		claim := Claim{KingdomID: "k1", Role: RolePrimary, Status: StatusPending}

		var ineligible *IneligibleError
		if err := CanEndorse(outsider, claim); !errors.As(err, &ineligible) {
			t.Fatalf("CanEndorse() = %v, want IneligibleError", err)
		} else if ineligible.Reason != ReasonKingdomMismatch {
			t.Fatalf("reason = %q, want %q", ineligible.Reason, ReasonKingdomMismatch)
		}
	})
}

func TestCanJoinAsDelegate(t *testing.T) {
	t.Parallel()

	candidate := Profile{UserID: "user-2", LinkedAccount: true, Level: MinLevel, KingdomID: "k1"}
	if err := CanJoinAsDelegate(candidate, "k1"); err != nil {
		t.Fatalf("CanJoinAsDelegate() = %v, want nil", err)
	}

	var ineligible *IneligibleError
	unlinked := Profile{UserID: "user-2", Level: MinLevel, KingdomID: "k1"}
	if err := CanJoinAsDelegate(unlinked, "k1"); !errors.As(err, &ineligible) {
		t.Fatalf("CanJoinAsDelegate() = %v, want IneligibleError", err)
	} else if ineligible.Reason != ReasonAccountNotLinked {
		t.Fatalf("reason = %q, want %q", ineligible.Reason, ReasonAccountNotLinked)
	}
}

func TestIneligibleErrorCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reason IneligibleReason
		code   apperrors.Code
	}{
		{ReasonAccountNotLinked, apperrors.CodeAuthorityAccountNotLinked},
		{ReasonLevelTooLow, apperrors.CodeAuthorityLevelTooLow},
		{ReasonKingdomMismatch, apperrors.CodeAuthorityKingdomMismatch},
		{ReasonExistingClaim, apperrors.CodeAuthorityExistingClaim},
		{IneligibleReason("unknown"), apperrors.CodeUnknown},
	}

	for _, tc := range tests {
		err := &IneligibleError{Reason: tc.reason, UserID: "user-1"}
		if got := err.Code(); got != tc.code {
			t.Fatalf("Code(%q) = %v, want %v", tc.reason, got, tc.code)
		}
	}

	var nilErr *IneligibleError
	if got := nilErr.Code(); got != apperrors.CodeUnknown {
		t.Fatalf("nil Code() = %v, want %v", got, apperrors.CodeUnknown)
	}
}

func TestStatusLive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status Status
		live   bool
	}{
		{StatusPending, true},
		{StatusActive, true},
		{StatusSuspended, true},
		{StatusInactive, false},
	}

	for _, tc := range tests {
		if got := tc.status.Live(); got != tc.live {
			t.Fatalf("Live(%q) = %v, want %v", tc.status, got, tc.live)
		}
	}
}

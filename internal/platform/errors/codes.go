// Package errors provides structured error handling with gRPC status mapping.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Eligibility errors
	CodeAuthorityAccountNotLinked  Code = "AUTHORITY_ACCOUNT_NOT_LINKED"
	CodeAuthorityLevelTooLow       Code = "AUTHORITY_LEVEL_TOO_LOW"
	CodeAuthorityKingdomMismatch   Code = "AUTHORITY_KINGDOM_MISMATCH"
	CodeAuthorityExistingClaim     Code = "AUTHORITY_EXISTING_CLAIM"
	CodeAuthorityCandidateNotFound Code = "AUTHORITY_CANDIDATE_NOT_FOUND"

	// Claim and endorsement errors
	CodeAuthorityDuplicateClaim       Code = "AUTHORITY_DUPLICATE_CLAIM"
	CodeAuthorityDuplicateEndorsement Code = "AUTHORITY_DUPLICATE_ENDORSEMENT"
	CodeAuthorityClaimNotPending      Code = "AUTHORITY_CLAIM_NOT_PENDING"
	CodeAuthorityPrimarySeatTaken     Code = "AUTHORITY_PRIMARY_SEAT_TAKEN"
	CodeAuthorityInvalidTransition    Code = "AUTHORITY_INVALID_TRANSITION"
	CodeAuthorityNotAuthorized        Code = "AUTHORITY_NOT_AUTHORIZED"

	// Delegation errors
	CodeAuthorityDelegateLimitReached Code = "AUTHORITY_DELEGATE_LIMIT_REACHED"

	// Invite quota errors
	CodeAuthorityAlreadyInvited Code = "AUTHORITY_ALREADY_INVITED"
	CodeAuthorityQuotaExceeded  Code = "AUTHORITY_QUOTA_EXCEEDED"

	// Delegate grant errors
	CodeAuthorityGrantInvalid  Code = "AUTHORITY_GRANT_INVALID"
	CodeAuthorityGrantExpired  Code = "AUTHORITY_GRANT_EXPIRED"
	CodeAuthorityGrantMismatch Code = "AUTHORITY_GRANT_MISMATCH"

	// Storage errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeStoreUnavailable Code = "AUTHORITY_STORE_UNAVAILABLE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeAuthorityGrantInvalid,
		CodeAuthorityGrantMismatch:
		return codes.InvalidArgument

	// PermissionDenied - actor fails an eligibility or authorization gate
	case CodeAuthorityAccountNotLinked,
		CodeAuthorityLevelTooLow,
		CodeAuthorityKingdomMismatch,
		CodeAuthorityNotAuthorized:
		return codes.PermissionDenied

	// FailedPrecondition - state doesn't allow the operation
	case CodeAuthorityExistingClaim,
		CodeAuthorityClaimNotPending,
		CodeAuthorityPrimarySeatTaken,
		CodeAuthorityInvalidTransition,
		CodeAuthorityDelegateLimitReached,
		CodeAuthorityGrantExpired:
		return codes.FailedPrecondition

	// AlreadyExists - unique resource constraint
	case CodeAuthorityDuplicateClaim,
		CodeAuthorityDuplicateEndorsement,
		CodeAuthorityAlreadyInvited:
		return codes.AlreadyExists

	// ResourceExhausted - a consumable budget ran out
	case CodeAuthorityQuotaExceeded:
		return codes.ResourceExhausted

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeAuthorityCandidateNotFound:
		return codes.NotFound

	// Unavailable - infrastructure failure, caller may retry idempotent ops
	case CodeStoreUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}

package domain

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/platform/errors"
	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/platform/id"
)

// Environment variables configuring delegate grants.
const (
	EnvGrantIssuer     = "KINGSHOT_ATLAS_DELEGATE_GRANT_ISSUER"
	EnvGrantAudience   = "KINGSHOT_ATLAS_DELEGATE_GRANT_AUDIENCE"
	EnvGrantPrivateKey = "KINGSHOT_ATLAS_DELEGATE_GRANT_PRIVATE_KEY"
	EnvGrantPublicKey  = "KINGSHOT_ATLAS_DELEGATE_GRANT_PUBLIC_KEY"
	EnvGrantTTL        = "KINGSHOT_ATLAS_DELEGATE_GRANT_TTL"
)

// GrantSpec identifies the pending delegate claim a grant authorizes.
type GrantSpec struct {
	KingdomID string
	ClaimID   string
	UserID    string
}

// signerEnv holds raw env values before post-parse validation.
type signerEnv struct {
	Issuer     string        `env:"KINGSHOT_ATLAS_DELEGATE_GRANT_ISSUER"`
	Audience   string        `env:"KINGSHOT_ATLAS_DELEGATE_GRANT_AUDIENCE"`
	PrivateKey string        `env:"KINGSHOT_ATLAS_DELEGATE_GRANT_PRIVATE_KEY"`
	TTL        time.Duration `env:"KINGSHOT_ATLAS_DELEGATE_GRANT_TTL"         envDefault:"72h"`
}

// verifierEnv holds raw env values before post-parse validation.
type verifierEnv struct {
	Issuer    string `env:"KINGSHOT_ATLAS_DELEGATE_GRANT_ISSUER"`
	Audience  string `env:"KINGSHOT_ATLAS_DELEGATE_GRANT_AUDIENCE"`
	PublicKey string `env:"KINGSHOT_ATLAS_DELEGATE_GRANT_PUBLIC_KEY"`
}

// GrantSigner mints signed delegate grants for invites.
type GrantSigner struct {
	issuer   string
	audience string
	key      ed25519.PrivateKey
	ttl      time.Duration
	newID    func() (string, error)
}

// NewGrantSigner builds a signer from explicit configuration.
func NewGrantSigner(issuer, audience string, key ed25519.PrivateKey, ttl time.Duration, newID func() (string, error)) (*GrantSigner, error) {
	issuer = strings.TrimSpace(issuer)
	audience = strings.TrimSpace(audience)
	if issuer == "" {
		return nil, fmt.Errorf("grant issuer is required")
	}
	if audience == "" {
		return nil, fmt.Errorf("grant audience is required")
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("grant private key must be %d bytes", ed25519.PrivateKeySize)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("grant ttl must be positive")
	}
	if newID == nil {
		newID = id.NewID
	}
	return &GrantSigner{
		issuer:   issuer,
		audience: audience,
		key:      key,
		ttl:      ttl,
		newID:    newID,
	}, nil
}

// NewGrantSignerFromEnv builds a signer from the environment. An unset
// private key disables minting and returns a nil signer without error.
func NewGrantSignerFromEnv() (*GrantSigner, error) {
	var raw signerEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse delegate grant env: %w", err)
	}
	privateKey := strings.TrimSpace(raw.PrivateKey)
	if privateKey == "" {
		return nil, nil
	}
	keyBytes, err := decodeGrantKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("decode delegate grant private key: %w", err)
	}
	return NewGrantSigner(raw.Issuer, raw.Audience, ed25519.PrivateKey(keyBytes), raw.TTL, nil)
}

// Mint signs a grant for the given claim, valid from now until the signer's
// TTL elapses.
func (g *GrantSigner) Mint(spec GrantSpec, now time.Time) (string, error) {
	if g == nil || g.issuer == "" || g.audience == "" || len(g.key) != ed25519.PrivateKeySize {
		return "", errors.New("grant signer is not configured")
	}
	spec.KingdomID = strings.TrimSpace(spec.KingdomID)
	spec.ClaimID = strings.TrimSpace(spec.ClaimID)
	spec.UserID = strings.TrimSpace(spec.UserID)
	if spec.KingdomID == "" || spec.ClaimID == "" || spec.UserID == "" {
		return "", errors.New("grant spec is incomplete")
	}
	jti, err := g.newID()
	if err != nil {
		return "", fmt.Errorf("generate grant id: %w", err)
	}

	now = now.UTC()
	headerJSON, err := json.Marshal(map[string]string{
		"alg": "EdDSA",
		"typ": "JWT",
	})
	if err != nil {
		return "", fmt.Errorf("encode grant header: %w", err)
	}
	payloadJSON, err := json.Marshal(map[string]any{
		"iss":        g.issuer,
		"aud":        g.audience,
		"exp":        now.Add(g.ttl).Unix(),
		"iat":        now.Unix(),
		"jti":        jti,
		"kingdom_id": spec.KingdomID,
		"claim_id":   spec.ClaimID,
		"user_id":    spec.UserID,
	})
	if err != nil {
		return "", fmt.Errorf("encode grant payload: %w", err)
	}

	encodedHeader := base64.RawURLEncoding.EncodeToString(headerJSON)
	encodedPayload := base64.RawURLEncoding.EncodeToString(payloadJSON)
	signingInput := encodedHeader + "." + encodedPayload
	signature := ed25519.Sign(g.key, []byte(signingInput))
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}

// GrantVerifier checks signed delegate grants before redemption.
type GrantVerifier struct {
	issuer   string
	audience string
	key      ed25519.PublicKey
}

// NewGrantVerifier builds a verifier from explicit configuration.
func NewGrantVerifier(issuer, audience string, key ed25519.PublicKey) (*GrantVerifier, error) {
	issuer = strings.TrimSpace(issuer)
	audience = strings.TrimSpace(audience)
	if issuer == "" {
		return nil, fmt.Errorf("grant issuer is required")
	}
	if audience == "" {
		return nil, fmt.Errorf("grant audience is required")
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	return &GrantVerifier{issuer: issuer, audience: audience, key: key}, nil
}

// NewGrantVerifierFromEnv builds a verifier from the environment. An unset
// public key disables grant redemption and returns a nil verifier without
// error.
func NewGrantVerifierFromEnv() (*GrantVerifier, error) {
	var raw verifierEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse delegate grant env: %w", err)
	}
	publicKey := strings.TrimSpace(raw.PublicKey)
	if publicKey == "" {
		return nil, nil
	}
	keyBytes, err := decodeGrantKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("decode delegate grant public key: %w", err)
	}
	return NewGrantVerifier(raw.Issuer, raw.Audience, ed25519.PublicKey(keyBytes))
}

// delegateGrantClaims is the internal claims type used for JWT parsing.
type delegateGrantClaims struct {
	jwt.RegisteredClaims
	KingdomID string `json:"kingdom_id"`
	ClaimID   string `json:"claim_id"`
	UserID    string `json:"user_id"`
}

// Verify checks the grant's signature and intrinsic claims and returns the
// claim identity it was minted for. Callers still match that identity
// against the stored claim.
func (v *GrantVerifier) Verify(grant string, now time.Time) (GrantSpec, error) {
	if v == nil || v.issuer == "" || v.audience == "" || len(v.key) != ed25519.PublicKeySize {
		return GrantSpec{}, errors.New("grant verifier is not configured")
	}
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return GrantSpec{}, ErrGrantRequired
	}

	var parsed delegateGrantClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return GrantSpec{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != v.issuer {
		return GrantSpec{}, apperrors.WithMetadata(
			apperrors.CodeAuthorityGrantMismatch,
			"delegate grant issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, v.audience) {
		return GrantSpec{}, apperrors.WithMetadata(
			apperrors.CodeAuthorityGrantMismatch,
			"delegate grant audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}
	if parsed.ID == "" {
		return GrantSpec{}, apperrors.New(apperrors.CodeAuthorityGrantInvalid, "delegate grant jti is required")
	}
	if parsed.ExpiresAt == nil {
		return GrantSpec{}, apperrors.New(apperrors.CodeAuthorityGrantInvalid, "delegate grant exp is required")
	}

	now = now.UTC()
	if !parsed.ExpiresAt.Time.UTC().After(now) {
		return GrantSpec{}, ErrGrantExpired
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return GrantSpec{}, apperrors.New(apperrors.CodeAuthorityGrantInvalid, "delegate grant not active yet")
	}

	spec := GrantSpec{
		KingdomID: strings.TrimSpace(parsed.KingdomID),
		ClaimID:   strings.TrimSpace(parsed.ClaimID),
		UserID:    strings.TrimSpace(parsed.UserID),
	}
	if spec.KingdomID == "" || spec.ClaimID == "" || spec.UserID == "" {
		return GrantSpec{}, apperrors.New(apperrors.CodeAuthorityGrantInvalid, "delegate grant claim identity is incomplete")
	}
	return spec, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeAuthorityGrantInvalid, "delegate grant signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeAuthorityGrantInvalid, "delegate grant alg is invalid")
	}
	return apperrors.New(apperrors.CodeAuthorityGrantInvalid, "delegate grant is invalid")
}

// audienceContains reports whether the audience list contains the value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeGrantKey(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/domain"
)

// httpDirectory resolves player references and kingdom tiers from the
// dashboard directory API. The authority service never owns profile data.
type httpDirectory struct {
	baseURL    string
	httpClient *http.Client
}

func newHTTPDirectory(baseURL string) *httpDirectory {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil
	}
	return &httpDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type directoryProfileResponse struct {
	UserID        string `json:"user_id"`
	LinkedAccount bool   `json:"linked_account"`
	Level         int    `json:"level"`
	KingdomID     string `json:"kingdom_id"`
}

func (d *httpDirectory) LookupProfile(ctx context.Context, playerRef string) (domain.Profile, error) {
	if d == nil || d.httpClient == nil {
		return domain.Profile{}, errors.New("player directory is not configured")
	}
	playerRef = strings.TrimSpace(playerRef)
	if playerRef == "" {
		return domain.Profile{}, errors.New("player reference is required")
	}

	endpoint := d.baseURL + "/players/" + url.PathEscape(playerRef)
	callCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("build directory request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("call player directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Profile{}, domain.ErrCandidateNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Profile{}, fmt.Errorf("player directory status %d", resp.StatusCode)
	}

	var payload directoryProfileResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Profile{}, fmt.Errorf("decode directory response: %w", err)
	}
	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		return domain.Profile{}, errors.New("directory returned empty user id")
	}
	return domain.Profile{
		UserID:        userID,
		LinkedAccount: payload.LinkedAccount,
		Level:         payload.Level,
		KingdomID:     strings.TrimSpace(payload.KingdomID),
	}, nil
}

type kingdomTierResponse struct {
	Tier string `json:"tier"`
}

func (d *httpDirectory) KingdomTier(ctx context.Context, kingdomID string) (domain.Tier, error) {
	if d == nil || d.httpClient == nil {
		return domain.TierStandard, errors.New("player directory is not configured")
	}
	kingdomID = strings.TrimSpace(kingdomID)
	if kingdomID == "" {
		return domain.TierStandard, errors.New("kingdom id is required")
	}

	endpoint := d.baseURL + "/kingdoms/" + url.PathEscape(kingdomID) + "/tier"
	callCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.TierStandard, fmt.Errorf("build tier request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return domain.TierStandard, fmt.Errorf("call kingdom tier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.TierStandard, fmt.Errorf("kingdom tier status %d", resp.StatusCode)
	}

	var payload kingdomTierResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.TierStandard, fmt.Errorf("decode tier response: %w", err)
	}
	if strings.EqualFold(strings.TrimSpace(payload.Tier), string(domain.TierTop)) {
		return domain.TierTop, nil
	}
	return domain.TierStandard, nil
}

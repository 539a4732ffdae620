package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Verification is the outcome of checking an external account.
type Verification struct {
	Verified  bool
	AvatarURL string
}

// LinkVerifier decides whether an external competitive-programming account
// may be linked.
type LinkVerifier interface {
	Verify(ctx context.Context, externalUsername string) (Verification, error)
}

// ProfileVerifier looks the handle up on a Codeforces-compatible
// user.info endpoint and accepts it if the profile exists.
type ProfileVerifier struct {
	baseURL string
	http    *http.Client
}

// NewProfileVerifier creates a verifier against baseURL, e.g.
// "https://codeforces.com/api".
func NewProfileVerifier(baseURL string, hc *http.Client) *ProfileVerifier {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &ProfileVerifier{baseURL: baseURL, http: hc}
}

type profileResponse struct {
	Status string `json:"status"`
	Result []struct {
		Handle     string `json:"handle"`
		TitlePhoto string `json:"titlePhoto"`
	} `json:"result"`
}

func (v *ProfileVerifier) Verify(ctx context.Context, externalUsername string) (Verification, error) {
	endpoint := v.baseURL + "/user.info?handles=" + url.QueryEscape(externalUsername)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Verification{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return Verification{}, fmt.Errorf("lookup profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Verification{}, fmt.Errorf("profile service returned status %d", resp.StatusCode)
	}

	var body profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Verification{}, fmt.Errorf("decode profile: %w", err)
	}
	if body.Status != "OK" || len(body.Result) == 0 {
		return Verification{Verified: false}, nil
	}
	return Verification{Verified: true, AvatarURL: body.Result[0].TitlePhoto}, nil
}

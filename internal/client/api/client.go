// Package api implements the HTTP/JSON client for the backend verifier and
// its content-addressed storage endpoint. A cookie jar carries the session
// cookie the server sets after a successful verification, which is what
// makes session restore work across restarts of the same process.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/akarpov91/chainanchor/internal/client/models"
	"github.com/akarpov91/chainanchor/internal/common"
)

// Client is the verifier backend API surface used by the authenticator and
// the anchoring client.
type Client interface {
	RequestChallenge(ctx context.Context, address string, chainID int64, did string) (*models.Challenge, error)
	Verify(ctx context.Context, req *VerifyRequest) (*SessionInfo, error)
	Session(ctx context.Context) (*SessionInfo, error)
	Logout(ctx context.Context) error

	Upload(ctx context.Context, data []byte, fileName string) (contentID, gatewayURL string, err error)
	Fetch(ctx context.Context, contentID string) ([]byte, error)
}

// VerifyRequest is the verify submission; all fields are required.
type VerifyRequest struct {
	Message         string `json:"message"`
	Signature       string `json:"signature"`
	Address         string `json:"address"`
	ChainID         int64  `json:"chainId"`
	DecentralizedID string `json:"decentralizedId"`
	RequestID       string `json:"requestId"`
}

// SessionInfo is the server-side view of a verified session. The DID here is
// authoritative over any locally derived one.
type SessionInfo struct {
	Address    string    `json:"address"`
	ChainID    int64     `json:"chainId"`
	DID        string    `json:"did"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

// HTTPClient is the concrete Client over net/http.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string) (*HTTPClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second, Jar: jar},
	}, nil
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type challengeResponse struct {
	Challenge models.Challenge `json:"challenge"`
}

type sessionResponse struct {
	Session *SessionInfo `json:"session"`
}

type uploadResponse struct {
	ContentID  string `json:"contentId"`
	GatewayURL string `json:"gatewayUrl"`
}

func (c *HTTPClient) RequestChallenge(ctx context.Context, address string, chainID int64, did string) (*models.Challenge, error) {
	body := map[string]any{"address": address, "chainId": chainID, "decentralizedId": did}

	var resp challengeResponse
	if err := c.postJSON(ctx, "/api/challenge", body, &resp); err != nil {
		if isProtocolError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", common.ErrChallengeRequestFailed, err)
	}
	return &resp.Challenge, nil
}

func (c *HTTPClient) Verify(ctx context.Context, req *VerifyRequest) (*SessionInfo, error) {
	var resp sessionResponse
	if err := c.postJSON(ctx, "/api/verify", req, &resp); err != nil {
		if isProtocolError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", common.ErrVerificationFailed, err)
	}
	if resp.Session == nil {
		return nil, common.ErrVerificationFailed
	}
	return resp.Session, nil
}

// Session fetches the server-bound session backed by the session cookie.
// Returns (nil, nil) when no active session exists.
func (c *HTTPClient) Session(ctx context.Context) (*SessionInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/session", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Session, nil
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.postJSON(ctx, "/api/logout", struct{}{}, nil)
}

// Upload sends raw bytes to the storage endpoint. The server computes the
// content id; the client never has to trust its own hashing.
func (c *HTTPClient) Upload(ctx context.Context, data []byte, fileName string) (string, string, error) {
	url := c.baseURL + "/api/storage"
	if fileName != "" {
		url += "?name=" + fileName
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", common.ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", "", fmt.Errorf("%w: %v", common.ErrUploadFailed, decodeError(resp))
	}
	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("%w: %v", common.ErrUploadFailed, err)
	}
	return out.ContentID, out.GatewayURL, nil
}

func (c *HTTPClient) Fetch(ctx context.Context, contentID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/storage/"+contentID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeError maps the server's {"error","code"} body onto the shared
// sentinel errors so callers can restart flows precisely.
func decodeError(resp *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)

	switch body.Code {
	case "challenge_expired":
		return common.ErrChallengeExpired
	case "challenge_reused":
		return common.ErrChallengeReused
	case "unknown_challenge":
		return common.ErrRequestIDMismatch
	case "verification_failed":
		return common.ErrVerificationFailed
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return common.ErrorUnauthorized
	}
	if body.Error != "" {
		return fmt.Errorf("server error (%s): %s", resp.Status, body.Error)
	}
	return fmt.Errorf("server error: %s", resp.Status)
}

func isProtocolError(err error) bool {
	for _, sentinel := range []error{
		common.ErrChallengeExpired,
		common.ErrChallengeReused,
		common.ErrRequestIDMismatch,
		common.ErrVerificationFailed,
		common.ErrorUnauthorized,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

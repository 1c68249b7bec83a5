package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/akarpov91/chainanchor/internal/common"
	"github.com/akarpov91/chainanchor/internal/server/auth"
	"github.com/akarpov91/chainanchor/internal/server/models"
)

// maxUploadSize bounds a single storage upload.
const maxUploadSize = 32 << 20

type challengeRequest struct {
	Address         string `json:"address"`
	ChainID         int64  `json:"chainId"`
	DecentralizedID string `json:"decentralizedId"`
}

type verifyRequest struct {
	Message         string `json:"message"`
	Signature       string `json:"signature"`
	Address         string `json:"address"`
	ChainID         int64  `json:"chainId"`
	DecentralizedID string `json:"decentralizedId"`
	RequestID       string `json:"requestId"`
}

type challengePayload struct {
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

type sessionPayload struct {
	Address    string `json:"address"`
	ChainID    int64  `json:"chainId"`
	DID        string `json:"did"`
	VerifiedAt string `json:"verifiedAt"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func sessionToPayload(sess *models.Session) *sessionPayload {
	return &sessionPayload{
		Address:    sess.Address,
		ChainID:    sess.ChainID,
		DID:        sess.DID,
		VerifiedAt: sess.VerifiedAt.UTC().Format(time.RFC3339Nano),
	}
}

// writeError maps sentinel errors onto the {"error","code"} wire shape the
// client decodes back into the same sentinels.
func (s *Server) writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrChallengeExpired):
		return c.JSON(http.StatusUnauthorized, errorBody{Error: err.Error(), Code: "challenge_expired"})
	case errors.Is(err, common.ErrChallengeReused):
		return c.JSON(http.StatusConflict, errorBody{Error: err.Error(), Code: "challenge_reused"})
	case errors.Is(err, common.ErrRequestIDMismatch):
		return c.JSON(http.StatusNotFound, errorBody{Error: err.Error(), Code: "unknown_challenge"})
	case errors.Is(err, common.ErrVerificationFailed):
		return c.JSON(http.StatusUnauthorized, errorBody{Error: err.Error(), Code: "verification_failed"})
	case errors.Is(err, common.ErrorUnauthorized):
		return c.JSON(http.StatusUnauthorized, errorBody{Error: err.Error()})
	case errors.Is(err, common.ErrorNotFound):
		return c.JSON(http.StatusNotFound, errorBody{Error: err.Error()})
	}
	s.logger.Error(c.Request().Context(), "internal error", "error", err)
	return c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
}

func (s *Server) handleChallenge(c echo.Context) error {
	var req challengeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "malformed request"})
	}
	if req.ChainID != s.config.ExpectedChainID {
		// Mismatched chains still get a challenge: the DID in the message
		// binds the chain id, so a verified session is scoped to whatever
		// chain the wallet was on. Only anchoring requires the default chain.
		s.logger.Warn(c.Request().Context(), "challenge requested for non-default chain",
			"chainId", req.ChainID, "expected", s.config.ExpectedChainID)
	}

	challenge, err := s.challenges.Issue(c.Request().Context(), req.Address, req.ChainID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"challenge": challengePayload{Message: challenge.Message, RequestID: challenge.RequestID},
	})
}

func (s *Server) handleVerify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "malformed request"})
	}

	sess, err := s.challenges.Verify(c.Request().Context(), req.RequestID, req.Message, req.Signature, req.Address)
	if err != nil {
		return s.writeError(c, err)
	}

	token, err := auth.GenerateToken(sess.ID, []byte(s.config.SecretKey), s.config.SessionValidityDuration)
	if err != nil {
		return s.writeError(c, err)
	}
	c.SetCookie(&http.Cookie{
		Name:     common.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	return c.JSON(http.StatusOK, map[string]any{"session": sessionToPayload(sess)})
}

// handleSession resolves the cookie-bound session. A missing, invalid or
// expired session is not an error here: the body carries a null session and
// the client treats that as "not logged in".
func (s *Server) handleSession(c echo.Context) error {
	sess, err := s.sessionFromRequest(c)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) || errors.Is(err, common.ErrorInvalidToken) {
			return c.JSON(http.StatusOK, map[string]any{"session": nil})
		}
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"session": sessionToPayload(sess)})
}

func (s *Server) handleLogout(c echo.Context) error {
	if sess, err := s.sessionFromRequest(c); err == nil {
		if err := s.sessions.Revoke(c.Request().Context(), sess.ID); err != nil {
			s.logger.Warn(c.Request().Context(), "session revoke failed", "error", err)
		}
	}
	c.SetCookie(&http.Cookie{
		Name:     common.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, map[string]any{})
}

func (s *Server) handleUpload(c echo.Context) error {
	if _, err := s.sessionFromRequest(c); err != nil {
		return s.writeError(c, common.ErrorUnauthorized)
	}

	data, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxUploadSize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return c.JSON(http.StatusRequestEntityTooLarge, errorBody{Error: "body too large"})
		}
		return c.JSON(http.StatusBadRequest, errorBody{Error: "unreadable body"})
	}
	if len(data) == 0 {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "empty body"})
	}

	contentID, gatewayURL, err := s.storage.Upload(c.Request().Context(), data, c.QueryParam("name"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{
		"contentId":  contentID,
		"gatewayUrl": gatewayURL,
	})
}

func (s *Server) handleFetch(c echo.Context) error {
	if _, err := s.sessionFromRequest(c); err != nil {
		return s.writeError(c, common.ErrorUnauthorized)
	}

	data, err := s.storage.Fetch(c.Request().Context(), c.Param("cid"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.Blob(http.StatusOK, "application/octet-stream", data)
}

// sessionFromRequest turns the session cookie into a live session. All
// failure modes collapse into ErrorUnauthorized unless the token itself is
// malformed, which keeps its own sentinel for callers that care.
func (s *Server) sessionFromRequest(c echo.Context) (*models.Session, error) {
	cookie, err := c.Cookie(common.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, common.ErrorUnauthorized
	}
	sessionID, err := auth.GetSessionIDFromToken(cookie.Value, []byte(s.config.SecretKey))
	if err != nil {
		return nil, common.ErrorInvalidToken
	}
	return s.sessions.Get(c.Request().Context(), sessionID)
}

// Package httpapi exposes the verifier over HTTP/JSON: challenge issuance,
// signature verification, cookie-backed session introspection and the
// content-addressed storage endpoint.
package httpapi

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/akarpov91/chainanchor/internal/logging"
	"github.com/akarpov91/chainanchor/internal/server/config"
	"github.com/akarpov91/chainanchor/internal/server/models"
)

// ChallengeService is the verification surface the handlers need.
type ChallengeService interface {
	Issue(ctx context.Context, address string, chainID int64) (*models.Challenge, error)
	Verify(ctx context.Context, requestID, message, signatureHex, address string) (*models.Session, error)
}

// SessionService resolves and revokes sessions referenced by the cookie.
type SessionService interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Revoke(ctx context.Context, id string) error
}

// StorageService stores and retrieves content-addressed blobs.
type StorageService interface {
	Upload(ctx context.Context, data []byte, fileName string) (contentID, gatewayURL string, err error)
	Fetch(ctx context.Context, contentID string) ([]byte, error)
}

// Server is the public HTTP endpoint.
type Server struct {
	config     *config.Config
	logger     logging.Logger
	challenges ChallengeService
	sessions   SessionService
	storage    StorageService
	echo       *echo.Echo
}

func NewServer(cfg *config.Config, logger logging.Logger, ch ChallengeService, se SessionService, st StorageService) *Server {
	s := &Server{
		config:     cfg,
		logger:     logger,
		challenges: ch,
		sessions:   se,
		storage:    st,
		echo:       echo.New(),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Echo returns the underlying Echo instance for testing.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) Start() error {
	return s.echo.Start(s.config.EndpointAddr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.requestLogger)
}

func (s *Server) setupRoutes() {
	s.echo.POST("/api/challenge", s.handleChallenge)
	s.echo.POST("/api/verify", s.handleVerify)
	s.echo.GET("/api/session", s.handleSession)
	s.echo.POST("/api/logout", s.handleLogout)
	s.echo.POST("/api/storage", s.handleUpload)
	s.echo.GET("/api/storage/:cid", s.handleFetch)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		req := c.Request()
		s.logger.Info(req.Context(), "request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", c.Response().Status,
			"duration", time.Since(start).String(),
		)
		return nil
	}
}

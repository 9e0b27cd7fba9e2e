package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/giziai/digital-human/domain/entities"
	"github.com/giziai/digital-human/domain/repositories"
	"github.com/giziai/digital-human/internal/auth"
	"github.com/giziai/digital-human/internal/websocket"
)

const (
	defaultConversationLimit = 50
	maxConversationLimit     = 200

	claimsKey = "surfaceClaims"
)

// InitRoutes initializes all API routes
func InitRoutes(
	e *echo.Echo,
	hub *websocket.Hub,
	issuer *auth.Issuer,
	transcripts repositories.TranscriptRepository,
	logger *zap.Logger,
) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "gizi-companion",
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/auth/token", func(c echo.Context) error {
		return issueToken(c, issuer, logger)
	})

	requireSurface := surfaceAuth(issuer, logger)

	v1.GET("/conversations/:session_uuid", func(c echo.Context) error {
		return getConversation(c, transcripts, logger)
	}, requireSurface)

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return handleWebSocket(hub, c, logger)
	}, requireSurface)
}

func issueToken(c echo.Context, issuer *auth.Issuer, logger *zap.Logger) error {
	var req TokenRequest

	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.ClientID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "client_id is required",
		})
	}

	token, expiresAt, err := issuer.Authenticate(req.ClientID, req.ClientKey)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		logger.Warn("Surface authentication failed", zap.String("clientID", req.ClientID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid client credentials",
		})
	}
	if err != nil {
		logger.Error("Failed to generate surface token",
			zap.String("clientID", req.ClientID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Surface authenticated successfully", zap.String("clientID", req.ClientID))

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		ClientID:  req.ClientID,
	})
}

func getConversation(c echo.Context, transcripts repositories.TranscriptRepository, logger *zap.Logger) error {
	sessionID := c.Param("session_uuid")

	limit := defaultConversationLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_limit",
				Message: "limit must be a positive integer",
			})
		}
		limit = min(n, maxConversationLimit)
	}

	exchanges, err := transcripts.ListBySession(c.Request().Context(), sessionID, limit)
	if err != nil {
		logger.Error("Failed to list exchanges",
			zap.String("sessionID", sessionID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load conversation",
		})
	}
	if exchanges == nil {
		exchanges = []*entities.Exchange{}
	}

	return c.JSON(http.StatusOK, ConversationResponse{
		SessionUUID: sessionID,
		Exchanges:   exchanges,
	})
}

// surfaceAuth rejects requests without a valid surface JWT and stores the
// claims under claimsKey. Browsers cannot set headers on a websocket, so the
// token may also come from the token query parameter.
func surfaceAuth(issuer *auth.Issuer, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request().Header.Get("Authorization"))
			if token == "" {
				token = c.QueryParam("token")
			}

			if token == "" {
				logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "JWT token is required in Authorization header or token query parameter",
				})
			}

			claims, err := issuer.ValidateToken(token)
			if err != nil {
				logger.Warn("Request rejected: invalid token", zap.String("path", c.Path()), zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired JWT token",
				})
			}

			if claims.Role != auth.RoleSurface {
				logger.Warn("Request rejected: invalid role",
					zap.String("path", c.Path()),
					zap.String("role", claims.Role))
				return c.JSON(http.StatusForbidden, ErrorResponse{
					Error:   "invalid_role",
					Message: "Only surface tokens are allowed",
				})
			}

			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

func handleWebSocket(hub *websocket.Hub, c echo.Context, logger *zap.Logger) error {
	claims, ok := c.Get(claimsKey).(*auth.JWTClaims)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header or token query parameter",
		})
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("clientID", claims.ClientID),
		zap.String("role", claims.Role))

	return websocket.HandleWebSocket(hub, c, claims.ClientID, logger)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

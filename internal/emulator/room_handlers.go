package emulator

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredrone/internal/auth"
	"github.com/vovakirdan/wiredrone/internal/proto"
)

// ContextKeyClaims is the gin context key holding validated token claims.
const ContextKeyClaims = "claims"

const maxPublishBody = 1 << 20

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PublishResponse reports how many members received a REST publish.
type PublishResponse struct {
	Room       string `json:"room"`
	Recipients int    `json:"recipients"`
}

// RoomHandlers serves the room inspection and server-side publish endpoints.
type RoomHandlers struct {
	hub *Hub
	log *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub *Hub, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{hub: hub, log: logger}
}

// ListRooms returns the live rooms.
// GET /rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms, err := h.hub.Rooms(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list rooms")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "hub unavailable"})
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// Publish relays the JSON request body to a room.
// POST /rooms/:room/publish
func (h *RoomHandlers) Publish(c *gin.Context) {
	room := c.Param("room")
	if claims, ok := c.Get(ContextKeyClaims); ok {
		if cl, _ := claims.(*auth.Claims); cl != nil && !cl.CanPublish(room) {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPublishBody)
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	msg := proto.RawValue(body)
	if !json.Valid(body) || msg.IsZero() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "body must be a JSON value"})
		return
	}

	n, err := h.hub.Publish(c.Request.Context(), room, msg)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to publish")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "hub unavailable"})
		return
	}
	c.JSON(http.StatusOK, PublishResponse{Room: room, Recipients: n})
}

// AuthMiddleware validates a bearer JWT when jwtCfg is set and stores its
// claims in the context. A nil jwtCfg lets every request through.
func AuthMiddleware(jwtCfg *auth.JWTConfig, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtCfg == nil {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Debug().Msg("invalid authorization header format")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := auth.ValidateToken(jwtCfg, parts[1])
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

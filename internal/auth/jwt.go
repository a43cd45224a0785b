package auth

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrClientMismatch is returned when a token was issued for another client.
	ErrClientMismatch = errors.New("token issued for another client")
	// ErrChannelMismatch is returned when a token was issued for another channel.
	ErrChannelMismatch = errors.New("token issued for another channel")
)

// Permission grants actions on rooms whose name matches a pattern.
type Permission struct {
	Publish   bool `json:"publish"`
	Subscribe bool `json:"subscribe"`
}

// Claims represents JWT claims for a channel session.
type Claims struct {
	Client  string `json:"client,omitempty"`
	Channel string `json:"channel,omitempty"`
	// Data is shown to other members as the client's authData.
	Data any `json:"data,omitempty"`
	// Permissions maps room name patterns (anchored regular expressions) to
	// the actions they allow. Empty allows everything.
	Permissions map[string]Permission `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// CanSubscribe reports whether the claims allow joining room.
func (c *Claims) CanSubscribe(room string) bool {
	return c.allows(room, func(p Permission) bool { return p.Subscribe })
}

// CanPublish reports whether the claims allow publishing to room.
func (c *Claims) CanPublish(room string) bool {
	return c.allows(room, func(p Permission) bool { return p.Publish })
}

func (c *Claims) allows(room string, pick func(Permission) bool) bool {
	if len(c.Permissions) == 0 {
		return true
	}
	for pattern, perm := range c.Permissions {
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			continue
		}
		if re.MatchString(room) && pick(perm) {
			return true
		}
	}
	return false
}

// Verify checks that the claims were issued for the given session.
func (c *Claims) Verify(clientID, channel string) error {
	if c.Client != "" && c.Client != clientID {
		return ErrClientMismatch
	}
	if c.Channel != "" && c.Channel != channel {
		return ErrChannelMismatch
	}
	return nil
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// GenerateToken signs claims, filling in issuer, audience and lifetime from cfg.
func GenerateToken(cfg *JWTConfig, claims Claims) (string, error) {
	now := time.Now()
	claims.Issuer = cfg.Issuer
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	claims.IssuedAt = jwt.NewNumericDate(now)
	if cfg.TTL != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(cfg.TTL))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// ValidateToken parses and validates a JWT token.
func ValidateToken(cfg *JWTConfig, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	// Validate issuer and audience if configured
	if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
		return nil, fmt.Errorf("invalid issuer")
	}

	if cfg.Audience != "" {
		validAudience := false
		for _, aud := range claims.Audience {
			if aud == cfg.Audience {
				validAudience = true
				break
			}
		}
		if !validAudience {
			return nil, fmt.Errorf("invalid audience")
		}
	}

	return claims, nil
}

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleSurface is the only role allowed to open a websocket surface
const RoleSurface = "surface"

const defaultTokenTTL = 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid client credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	ClientID string `json:"client_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and validates surface tokens with an HMAC secret
type Issuer struct {
	secret    []byte
	clientID  string
	clientKey string
	ttl       time.Duration
	now       func() time.Time
}

// NewIssuer creates an issuer. An empty secret gets a random one, which
// invalidates tokens on restart. An empty clientKey accepts any key for clientID.
func NewIssuer(secret, clientID, clientKey string) (*Issuer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
	}
	return &Issuer{
		secret:    key,
		clientID:  clientID,
		clientKey: clientKey,
		ttl:       defaultTokenTTL,
		now:       time.Now,
	}, nil
}

// TTL is how long issued tokens stay valid
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Authenticate checks client credentials and returns a surface token
func (i *Issuer) Authenticate(clientID, clientKey string) (string, time.Time, error) {
	if clientID == "" || clientID != i.clientID {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if i.clientKey != "" && subtle.ConstantTimeCompare([]byte(clientKey), []byte(i.clientKey)) != 1 {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return i.GenerateSurfaceToken(clientID)
}

// GenerateSurfaceToken generates a JWT token for a surface client
func (i *Issuer) GenerateSurfaceToken(clientID string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := &JWTClaims{
		ClientID: clientID,
		Role:     RoleSurface,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

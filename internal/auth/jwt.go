package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var jwtSecret []byte

const stateAudience = "soulnet-oauth-state"

// ErrSecretNotInitialized is returned before InitializeJWT has run.
var ErrSecretNotInitialized = errors.New("JWT secret not initialized")

// JWTClaims represents the JWT token claims. The registered ID claim is the
// server-side session id.
type JWTClaims struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	Persistence string `json:"persistence"`
	jwt.RegisteredClaims
}

// SessionID returns the session the token was issued for.
func (c *JWTClaims) SessionID() string {
	return c.ID
}

// InitializeJWT sets the JWT secret key
func InitializeJWT(secret string) {
	jwtSecret = []byte(secret)
}

// GenerateToken creates a token bound to sessionID that expires at expiresAt.
func GenerateToken(userID, email, sessionID, persistence string, expiresAt time.Time) (string, error) {
	if len(jwtSecret) == 0 {
		return "", ErrSecretNotInitialized
	}

	now := time.Now()
	claims := JWTClaims{
		UserID:      userID,
		Email:       email,
		Persistence: persistence,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString string) (*JWTClaims, error) {
	if len(jwtSecret) == 0 {
		return nil, ErrSecretNotInitialized
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, keyFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid && claims.ID != "" {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// StateClaims travel through the federated provider as the OAuth state
// parameter.
type StateClaims struct {
	RedirectURI string `json:"redirect_uri,omitempty"`
	Persistence string `json:"persistence"`
	jwt.RegisteredClaims
}

// GenerateStateToken signs the parameters of a federated sign-in attempt.
func GenerateStateToken(redirectURI, persistence string, ttl time.Duration) (string, error) {
	if len(jwtSecret) == 0 {
		return "", ErrSecretNotInitialized
	}

	now := time.Now()
	claims := StateClaims{
		RedirectURI: redirectURI,
		Persistence: persistence,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
}

// ValidateStateToken checks a state parameter returned by the provider.
func ValidateStateToken(state string) (*StateClaims, error) {
	if len(jwtSecret) == 0 {
		return nil, ErrSecretNotInitialized
	}

	token, err := jwt.ParseWithClaims(state, &StateClaims{}, keyFunc, jwt.WithAudience(stateAudience))
	if err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	claims, ok := token.Claims.(*StateClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid state")
	}
	return claims, nil
}

func keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return jwtSecret, nil
}

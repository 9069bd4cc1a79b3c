package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/wirerelay/internal/core"
)

// TokenError is a rejected bearer token. It unwraps to core.ErrAuthRejected.
type TokenError struct {
	reason string
}

func (e *TokenError) Error() string { return "token " + e.reason }

// Reason is a short label for logs and metrics.
func (e *TokenError) Reason() string { return e.reason }

func (e *TokenError) Unwrap() error { return core.ErrAuthRejected }

var (
	// ErrTokenExpired is returned when the exp claim has passed.
	ErrTokenExpired = &TokenError{reason: "expired"}
	// ErrTokenInvalid covers bad signatures, wrong algorithms and missing or malformed claims.
	ErrTokenInvalid = &TokenError{reason: "invalid"}
)

// Claims represents the relay's bearer token claims.
// UserID is a pointer so that a missing claim can be told apart from zero.
type Claims struct {
	UserID   *int64 `json:"user_id,omitempty"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT configuration shared with the credential service.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// GenerateToken creates a signed HS256 token for the given user.
func GenerateToken(cfg *JWTConfig, userID int64, username string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   &userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// ValidateToken parses and validates a token, returning ErrTokenExpired or
// ErrTokenInvalid (wrapped with detail) on failure.
func ValidateToken(cfg *JWTConfig, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	if strings.TrimSpace(claims.Username) == "" {
		return nil, fmt.Errorf("%w: missing username claim", ErrTokenInvalid)
	}
	if claims.UserID == nil {
		id, convErr := strconv.ParseInt(claims.Subject, 10, 64)
		if convErr != nil {
			return nil, fmt.Errorf("%w: missing user_id claim", ErrTokenInvalid)
		}
		claims.UserID = &id
	}

	return claims, nil
}

// Verifier checks bearer tokens presented on relay connections.
// It is stateless and safe for concurrent use.
type Verifier struct {
	cfg *JWTConfig
}

// NewVerifier creates a verifier for tokens signed with cfg.Secret.
func NewVerifier(cfg *JWTConfig) *Verifier {
	return &Verifier{cfg: cfg}
}

// Verify validates token and returns the identity it carries.
func (v *Verifier) Verify(token string) (core.Identity, error) {
	claims, err := ValidateToken(v.cfg, token)
	if err != nil {
		return core.Identity{}, err
	}
	return core.Identity{Username: claims.Username, UserID: *claims.UserID}, nil
}

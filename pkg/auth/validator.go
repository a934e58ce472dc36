package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/volunteermatching/volops/pkg/types"
)

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// TokenValidator verifies a bearer token
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*types.AuthInfo, error)
}

// Claims contains the JWT claims for an API token
type Claims struct {
	jwt.RegisteredClaims
}

// JWTManager creates and validates HS256 bearer tokens
type JWTManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret, issuer string, ttl time.Duration) *JWTManager {
	if secret == "" {
		// Generate random key (tokens won't survive a restart)
		b := make([]byte, 32)
		rand.Read(b)
		secret = hex.EncodeToString(b)
		log.Warn().Msg("auth.secret not set, using a random signing key")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTManager{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Create signs a token for subject
func (m *JWTManager) Create(subject string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ValidateToken parses and validates a JWT token
func (m *JWTManager) ValidateToken(ctx context.Context, tokenStr string) (*types.AuthInfo, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return &types.AuthInfo{TokenType: types.TokenTypeUser, Subject: claims.Subject}, nil
}

// CompositeValidator checks the static admin token first, then JWTs.
type CompositeValidator struct {
	adminToken string
	jwt        TokenValidator
}

func NewCompositeValidator(adminToken string, jwt TokenValidator) *CompositeValidator {
	return &CompositeValidator{adminToken: adminToken, jwt: jwt}
}

func (v *CompositeValidator) ValidateAdminToken(token string) bool {
	return v.adminToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(v.adminToken)) == 1
}

func (v *CompositeValidator) ValidateToken(ctx context.Context, token string) (*types.AuthInfo, error) {
	if v.ValidateAdminToken(token) {
		return &types.AuthInfo{TokenType: types.TokenTypeAdmin, Subject: "admin"}, nil
	}
	if v.jwt == nil {
		return nil, ErrTokenInvalid
	}
	return v.jwt.ValidateToken(ctx, token)
}

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/charlesng35/taskpulse/pkg/errors"
)

// DefaultAccessTokenTTL applies when no lifetime is configured.
const DefaultAccessTokenTTL = 12 * time.Hour

const (
	tokenUseAccess = "access"
	defaultLeeway  = 30 * time.Second
)

// JWTConfig configures a JWTService. Clock is only overridden by tests.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	Leeway         time.Duration
	Clock          func() time.Time
}

// Claims is the payload of an access token. The user id travels as the subject.
type Claims struct {
	Username string `json:"usr,omitempty"`
	Use      string `json:"use"`
	jwt.RegisteredClaims
}

// UserID returns the account the token was issued to.
func (c *Claims) UserID() string { return c.Subject }

// AccessTokenInput describes who a token is for.
type AccessTokenInput struct {
	UserID   string
	Username string
	Audience []string
}

// JWTService signs and verifies HS256 access tokens for REST calls and socket upgrades.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	s := &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTokenTTL,
		now:    cfg.Clock,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultAccessTokenTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	s.parser = jwt.NewParser(opts...)
	return s, nil
}

// TTL reports the lifetime of newly issued tokens.
func (s *JWTService) TTL() time.Duration { return s.ttl }

// GenerateAccessToken signs a token for input.UserID valid for TTL from now.
func (s *JWTService) GenerateAccessToken(input AccessTokenInput) (string, error) {
	if input.UserID == "" {
		return "", errors.New("jwt: user id is required")
	}

	issued := s.now()
	claims := Claims{
		Username: input.Username,
		Use:      tokenUseAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   input.UserID,
			Issuer:    s.issuer,
			Audience:  input.Audience,
			IssuedAt:  jwt.NewNumericDate(issued),
			NotBefore: jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken verifies signature, lifetime, issuer and token use. An empty token
// is ErrUnauthorized, an expired one ErrTokenExpired and anything else ErrTokenInvalid.
func (s *JWTService) ValidateAccessToken(token string) (*Claims, error) {
	if token == "" {
		return nil, apperrors.ErrUnauthorized
	}

	claims := &Claims{}
	if _, err := s.parser.ParseWithClaims(token, claims, s.key); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired.WithInternal(err)
		}
		return nil, apperrors.ErrTokenInvalid.WithInternal(fmt.Errorf("jwt: parse token: %w", err))
	}

	switch {
	case claims.Use != tokenUseAccess:
		return nil, apperrors.ErrTokenInvalid.WithInternal(fmt.Errorf("jwt: unexpected token use %q", claims.Use))
	case claims.UserID() == "":
		return nil, apperrors.ErrTokenInvalid.WithInternal(errors.New("jwt: missing subject"))
	}
	return claims, nil
}

func (s *JWTService) key(*jwt.Token) (interface{}, error) { return s.secret, nil }

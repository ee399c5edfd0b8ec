package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const grantIssuer = "heimdex-transcoder"

var (
	ErrGrantInvalid  = errors.New("upload grant invalid")
	ErrGrantExpired  = errors.New("upload grant expired")
	ErrGrantMismatch = errors.New("upload grant does not cover this request")
)

// GrantClaims is the payload of a local upload grant. A grant names exactly
// one object key and one HTTP method.
type GrantClaims struct {
	jwt.Claims
	Key         string `json:"key"`
	Method      string `json:"method"`
	ContentType string `json:"content_type,omitempty"`
}

// GrantSigner issues and verifies HS256-signed upload grants for the local
// gateway.
type GrantSigner struct {
	secret []byte
	signer jose.Signer
	now    func() time.Time
}

func NewGrantSigner(secret []byte) (*GrantSigner, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("grant signing key must be at least 32 bytes, got %d", len(secret))
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	return &GrantSigner{secret: secret, signer: signer, now: time.Now}, nil
}

func (s *GrantSigner) Sign(key, method, contentType string, expiresAt time.Time) (string, error) {
	now := s.now()
	claims := GrantClaims{
		Claims: jwt.Claims{
			Issuer:   grantIssuer,
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(expiresAt),
		},
		Key:         key,
		Method:      method,
		ContentType: contentType,
	}

	token, err := jwt.Signed(s.signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign grant: %w", err)
	}
	return token, nil
}

// Verify checks the signature, issuer and expiry of token and returns its claims.
func (s *GrantSigner) Verify(token string) (*GrantClaims, error) {
	if token == "" {
		return nil, ErrGrantInvalid
	}

	tok, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGrantInvalid, err)
	}

	var claims GrantClaims
	if err := tok.Claims(s.secret, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGrantInvalid, err)
	}

	err = claims.Claims.ValidateWithLeeway(jwt.Expected{Issuer: grantIssuer, Time: s.now()}, 0)
	if errors.Is(err, jwt.ErrExpired) {
		return nil, ErrGrantExpired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGrantInvalid, err)
	}

	if claims.Key == "" || claims.Method == "" {
		return nil, fmt.Errorf("%w: missing key or method", ErrGrantInvalid)
	}
	return &claims, nil
}

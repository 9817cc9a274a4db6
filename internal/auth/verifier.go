// Package auth verifies bearer tokens issued by the identity provider and
// attaches the buyer identity to requests.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// RoleAdmin grants access to promo administration.
const RoleAdmin = "admin"

const rolesClaim = "roles"

var (
	// ErrInvalidToken is returned for tokens that fail parsing or validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrMissingToken is returned when no bearer token was supplied.
	ErrMissingToken = errors.New("auth: token missing")
)

// Claims is the verified identity carried by an access token.
type Claims struct {
	BuyerID uuid.UUID
	Roles   []string
}

// Verifier checks HMAC-signed access tokens.
type Verifier struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
	Now       func() time.Time
}

// NewVerifier builds an HS256 verifier for secret.
func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{
		Secret:    []byte(secret),
		Issuer:    issuer,
		Audience:  audience,
		ClockSkew: 30 * time.Second,
		Algorithm: jwa.HS256,
	}
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *Verifier) algorithm() jwa.SignatureAlgorithm {
	if v.Algorithm == "" {
		return jwa.HS256
	}
	return v.Algorithm
}

// Verify parses token and returns its claims. The subject must be a buyer
// uuid.
func (v *Verifier) Verify(token string) (Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Claims{}, ErrMissingToken
	}
	alg, err := tokenAlgorithm(trimmed)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if alg != v.algorithm() {
		return Claims{}, fmt.Errorf("%w: unexpected algorithm %s", ErrInvalidToken, alg)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(alg, v.Secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := v.validate(parsed); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	buyerID, err := uuid.Parse(parsed.Subject())
	if err != nil {
		return Claims{}, fmt.Errorf("%w: subject is not a buyer id", ErrInvalidToken)
	}
	return Claims{BuyerID: buyerID, Roles: roles(parsed)}, nil
}

func (v *Verifier) validate(tok jwt.Token) error {
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(v.now)),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	return jwt.Validate(tok, options...)
}

// Sign issues a token for buyerID valid for ttl. The API never issues tokens
// itself; this serves the seeder and tests.
func (v *Verifier) Sign(buyerID uuid.UUID, roles []string, ttl time.Duration) (string, error) {
	now := v.now()
	b := jwt.NewBuilder().
		Subject(buyerID.String()).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if v.Issuer != "" {
		b = b.Issuer(v.Issuer)
	}
	if v.Audience != "" {
		b = b.Audience([]string{v.Audience})
	}
	if len(roles) > 0 {
		b = b.Claim(rolesClaim, roles)
	}
	tok, err := b.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(v.algorithm(), v.Secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	msg, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return "", errors.New("expected exactly one signature")
	}
	headers := sigs[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" || alg == jwa.NoSignature {
		return "", errors.New("missing or none algorithm")
	}
	return alg, nil
}

func roles(tok jwt.Token) []string {
	raw, ok := tok.Get(rolesClaim)
	if !ok {
		return nil
	}
	switch vals := raw.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Fields(vals)
	}
	return nil
}

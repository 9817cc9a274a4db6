package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

var (
	testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	buyer   = uuid.MustParse("11111111-1111-1111-1111-111111111111")
)

func newTestVerifier() *Verifier {
	v := NewVerifier("test-secret", "issuer", "aud")
	v.Now = func() time.Time { return testNow }
	return v
}

func TestVerifierRoundTrip(t *testing.T) {
	v := newTestVerifier()
	token, err := v.Sign(buyer, []string{RoleAdmin}, time.Minute)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, buyer, claims.BuyerID)
	require.Equal(t, []string{RoleAdmin}, claims.Roles)
}

func TestVerifierRejectsExpiredToken(t *testing.T) {
	v := newTestVerifier()
	token, err := v.Sign(buyer, nil, time.Minute)
	require.NoError(t, err)

	v.Now = func() time.Time { return testNow.Add(time.Hour) }
	_, err = v.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifierRejectsWrongSecretAndIssuer(t *testing.T) {
	v := newTestVerifier()
	token, err := v.Sign(buyer, nil, time.Minute)
	require.NoError(t, err)

	other := newTestVerifier()
	other.Secret = []byte("another-secret")
	_, err = other.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	other = newTestVerifier()
	other.Issuer = "someone-else"
	_, err = other.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifierRejectsNonUUIDSubject(t *testing.T) {
	v := newTestVerifier()
	tok, err := jwt.NewBuilder().
		Subject("not-a-uuid").
		Issuer("issuer").
		Audience([]string{"aud"}).
		Expiration(testNow.Add(time.Minute)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, v.Secret))
	require.NoError(t, err)

	_, err = v.Verify(string(signed))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifierRejectsAlgorithmMismatch(t *testing.T) {
	v := newTestVerifier()
	tok, err := jwt.NewBuilder().
		Subject(buyer.String()).
		Issuer("issuer").
		Audience([]string{"aud"}).
		Expiration(testNow.Add(time.Minute)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS512, v.Secret))
	require.NoError(t, err)

	_, err = v.Verify(string(signed))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifierMissingToken(t *testing.T) {
	_, err := newTestVerifier().Verify("  ")
	require.True(t, errors.Is(err, ErrMissingToken))
}

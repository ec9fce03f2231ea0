package identity_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestExtractTokenPair_NestedShape(t *testing.T) {
	payload := []byte(`{"tokens":{"access":{"token":"T1","expires":"2030-01-01T00:00:00Z"},"refresh":{"token":"R1"}}}`)

	pair, err := identity.ExtractTokenPair(payload)
	require.NoError(t, err)
	require.Equal(t, "T1", pair.AccessToken)
	require.Equal(t, "R1", pair.RefreshToken)
}

func TestExtractTokenPair_FlatShape(t *testing.T) {
	payload := []byte(`{"access_token":"T1","refresh_token":"R1","token_type":"bearer"}`)

	pair, err := identity.ExtractTokenPair(payload)
	require.NoError(t, err)
	require.Equal(t, "T1", pair.AccessToken)
	require.Equal(t, "R1", pair.RefreshToken)
}

func TestExtractTokenPair_DataEnvelope(t *testing.T) {
	nested := []byte(`{"data":{"tokens":{"access":{"token":"T1"},"refresh":{"token":"R1"}}}}`)
	pair, err := identity.ExtractTokenPair(nested)
	require.NoError(t, err)
	require.Equal(t, "T1", pair.AccessToken)

	flat := []byte(`{"data":{"access_token":"T2"}}`)
	pair, err = identity.ExtractTokenPair(flat)
	require.NoError(t, err)
	require.Equal(t, "T2", pair.AccessToken)
	require.Empty(t, pair.RefreshToken)
}

func TestExtractTokenPair_NestedShapeWinsOverFlat(t *testing.T) {
	payload := []byte(`{"access_token":"flat","tokens":{"access":{"token":"nested"}}}`)

	pair, err := identity.ExtractTokenPair(payload)
	require.NoError(t, err)
	require.Equal(t, "nested", pair.AccessToken)
}

func TestExtractTokenPair_MissingAccessToken(t *testing.T) {
	for _, payload := range []string{
		`{}`,
		`{"refresh_token":"R1"}`,
		`{"tokens":{"refresh":{"token":"R1"}}}`,
		`{"tokens":{"access":{"expires":"2030-01-01T00:00:00Z"}}}`,
		`not json`,
	} {
		_, err := identity.ExtractTokenPair([]byte(payload))
		require.True(t, errors.Is(err, identity.ErrMalformedResponse), "payload: %s", payload)
	}
}

func TestExtractUser(t *testing.T) {
	user, ok := identity.ExtractUser([]byte(`{"user":{"id":1,"role":"student"},"tokens":{}}`))
	require.True(t, ok)
	require.Equal(t, "1", user.ID())
	require.Equal(t, "student", user.Role())

	user, ok = identity.ExtractUser([]byte(`{"data":{"user":{"id":"u-2"}}}`))
	require.True(t, ok)
	require.Equal(t, "u-2", user.ID())

	_, ok = identity.ExtractUser([]byte(`{"access_token":"T1"}`))
	require.False(t, ok)
}

func TestTokenExpiry_ReadsExpClaim(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": expiresAt.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	expiry, ok := identity.TokenExpiry(token)
	require.True(t, ok)
	require.True(t, expiry.Equal(expiresAt))
}

func TestTokenExpiry_OpaqueToken(t *testing.T) {
	_, ok := identity.TokenExpiry("not-a-jwt")
	require.False(t, ok)
}

func TestTokenExpiry_NoExpClaim(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, ok := identity.TokenExpiry(token)
	require.False(t, ok)
}

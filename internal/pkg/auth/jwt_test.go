// internal/pkg/auth/jwt_test.go
package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/commerce-core/internal/config"
)

const testSecret = "test-secret-test-secret-test-secret!"

func testVerifier() *Verifier {
	return NewVerifier(&config.Config{JWT: config.JWTConfig{Secret: testSecret}})
}

// mintToken signs a token the way the identity service does.
func mintToken(t *testing.T, secret, tokenType string, userID uint, ttl time.Duration) string {
	t.Helper()

	now := time.Now().UTC()
	claims := &Claims{
		UserID:    userID,
		Email:     "buyer@example.com",
		IsAdmin:   tokenType == "access" && userID == 1,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyAccessToken(t *testing.T) {
	v := testVerifier()

	claims, err := v.VerifyAccessToken(mintToken(t, testSecret, "access", 7, time.Hour))
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "buyer@example.com", claims.Email)
	assert.False(t, claims.IsAdmin)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := testVerifier()

	_, err := v.VerifyAccessToken(mintToken(t, testSecret, "access", 7, -time.Minute))
	assert.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := testVerifier()

	_, err := v.VerifyAccessToken(mintToken(t, "another-secret-another-secret!!!", "access", 7, time.Hour))
	assert.Error(t, err)
}

func TestVerifyRejectsRefreshToken(t *testing.T) {
	v := testVerifier()

	_, err := v.VerifyAccessToken(mintToken(t, testSecret, "refresh", 7, time.Hour))
	assert.Error(t, err)
}

func TestVerifyRejectsAnonymousToken(t *testing.T) {
	v := testVerifier()

	_, err := v.VerifyAccessToken(mintToken(t, testSecret, "access", 0, time.Hour))
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	assert.Equal(t, "abc.def.ghi", ExtractTokenFromHeader("Bearer abc.def.ghi"))
	assert.Empty(t, ExtractTokenFromHeader("abc.def.ghi"))
	assert.Empty(t, ExtractTokenFromHeader("Basic dXNlcjpwYXNz"))
	assert.Empty(t, ExtractTokenFromHeader(""))
}

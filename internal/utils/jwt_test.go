package utils

import (
	"testing"
	"time"

	"ventureflow/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("secret", models.UserClaims{UserID: "investor-1", Role: models.RoleInvestor}, time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "investor-1", claims.UserID)
	assert.Equal(t, "investor-1", claims.Subject)
	assert.True(t, claims.HasPermission(models.PermissionPaymentWrite))
}

func TestParseToken_Rejects(t *testing.T) {
	valid, err := GenerateToken("secret", models.UserClaims{UserID: "u"}, time.Minute)
	require.NoError(t, err)
	expired, err := GenerateToken("secret", models.UserClaims{UserID: "u"}, -time.Minute)
	require.NoError(t, err)
	noUser, err := GenerateToken("secret", models.UserClaims{}, time.Minute)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, models.UserClaims{UserID: "u"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]struct {
		secret string
		token  string
	}{
		"wrong secret":  {"other", valid},
		"expired":       {"secret", expired},
		"missing user":  {"secret", noUser},
		"unsigned":      {"secret", none},
		"garbage":       {"secret", "not-a-token"},
		"no secret set": {"", valid},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(tt.secret, tt.token)
			assert.Error(t, err)
		})
	}
}

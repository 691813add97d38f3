package auth

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func segment(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func token(header, payload string) string {
	return segment(header) + "." + segment(payload) + ".c2lnbmF0dXJl"
}

func TestExtract_NoCredential(t *testing.T) {
	for _, header := range []string{"", "Basic dXNlcjpwYXNz", "bearer abc"} {
		claims, err := Extract(header)
		require.NoError(t, err, header)
		assert.Nil(t, claims, header)
	}
}

func TestExtract_DecodesWithoutVerifying(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"known alg", `{"alg":"HS256","typ":"JWT"}`},
		{"unsupported alg", `{"alg":"ES256K","typ":"at+jwt"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := token(tt.header, `{"scope":"com.atproto.access","sub":"did:plc:abc","iat":1700000000,"exp":1700007200}`)

			claims, err := Extract("Bearer " + raw)
			require.NoError(t, err)
			require.NotNil(t, claims)
			assert.Equal(t, "did:plc:abc", claims.Subject)
			assert.Equal(t, "com.atproto.access", claims.Scope)
		})
	}
}

func TestExtract_ExpiredTokenStillDecodes(t *testing.T) {
	raw := token(`{"alg":"HS256"}`, `{"sub":"did:plc:old","exp":1}`)

	claims, err := Extract("Bearer " + raw)
	require.NoError(t, err)
	assert.Equal(t, "did:plc:old", claims.Subject)
}

func TestExtract_Malformed(t *testing.T) {
	for _, raw := range []string{
		"not-a-jwt",
		segment(`{"alg":"HS256"}`) + "." + segment("not json") + ".sig",
		segment(`{"alg":"HS256"}`) + ".%%%.sig",
	} {
		_, err := Extract("Bearer " + raw)
		assert.ErrorIs(t, err, ErrDecodeToken, raw)
	}
}

func TestExtract_HeaderMustBeJSON(t *testing.T) {
	raw := segment("not json") + "." + segment(`{"sub":"did:plc:alice"}`) + ".sig"

	claims, err := Extract("Bearer " + raw)
	assert.Nil(t, claims)
	assert.ErrorIs(t, err, ErrDecodeToken)
}

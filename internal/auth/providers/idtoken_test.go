package providers

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsignedToken builds header.claims.signature with a dummy signature.
func unsignedToken(t *testing.T, claims map[string]any, enc *base64.Encoding) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return strings.Join([]string{
		enc.EncodeToString(header),
		enc.EncodeToString(payload),
		"c2lnbmF0dXJl",
	}, ".")
}

func TestEmailFromIDToken(t *testing.T) {
	tests := []struct {
		name    string
		claims  map[string]any
		want    string
		wantErr bool
	}{
		{name: "email claim", claims: map[string]any{"email": "ada@example.com", "upn": "other@example.com"}, want: "ada@example.com"},
		{name: "preferred username", claims: map[string]any{"preferred_username": "ada@contoso.com"}, want: "ada@contoso.com"},
		{name: "preferred username without at falls to upn", claims: map[string]any{"preferred_username": "ada", "upn": "ada@contoso.com"}, want: "ada@contoso.com"},
		{name: "upn without at", claims: map[string]any{"upn": "ada"}, wantErr: true},
		{name: "no claims", claims: map[string]any{"sub": "123"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EmailFromIDToken(unsignedToken(t, tt.claims, base64.RawURLEncoding))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoEmailClaim)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmailFromIDToken_PaddedSegments(t *testing.T) {
	token := unsignedToken(t, map[string]any{"email": "a@b.co"}, base64.URLEncoding)
	got, err := EmailFromIDToken(token)
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", got)
}

func TestEmailFromIDToken_Malformed(t *testing.T) {
	for _, token := range []string{"", "only-one-part", "a.b", "a.!!!.c"} {
		_, err := EmailFromIDToken(token)
		assert.Error(t, err, token)
	}
}

func TestEmailDomain(t *testing.T) {
	assert.Equal(t, "example.com", EmailDomain("ada@example.com"))
	assert.Equal(t, "", EmailDomain("ada"))
}

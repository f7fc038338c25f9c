package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestParseToken(t *testing.T) {
	valid, err := GenerateToken(secret, "alice", RoleCustomer, time.Hour)
	require.NoError(t, err)

	expired, err := GenerateToken(secret, "alice", RoleCustomer, -time.Hour)
	require.NoError(t, err)

	otherKey, err := GenerateToken("another-secret", "alice", RoleCustomer, time.Hour)
	require.NoError(t, err)

	noRole, err := GenerateToken(secret, "alice", "", time.Hour)
	require.NoError(t, err)

	noSubject, err := GenerateToken(secret, "", RoleAdmin, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid", token: valid},
		{name: "expired", token: expired, wantErr: true},
		{name: "wrong key", token: otherKey, wantErr: true},
		{name: "unknown role", token: noRole, wantErr: true},
		{name: "no subject", token: noSubject, wantErr: true},
		{name: "garbage", token: "not.a.token", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ParseToken(secret, tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", claims.Subject)
			assert.Equal(t, RoleCustomer, claims.Role)
		})
	}
}

func TestParseTokenWithoutSecret(t *testing.T) {
	_, err := ParseToken("", "whatever")
	assert.EqualError(t, err, "jwt secret is not configured")
}

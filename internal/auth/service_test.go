package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	plain := "hunter2hunter2"

	hash, err := HashPassword(plain)
	require.NoError(t, err)

	require.True(t, ComparePasswords(hash, plain))
	require.False(t, ComparePasswords(hash, "wrong-password"))
}

func TestMintToken(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	token, err := MintToken("user-1", now)
	require.NoError(t, err)

	require.NotEmpty(t, token.ID)
	require.Equal(t, "user-1", token.UserID)
	require.Len(t, token.Token, 64) // 32 random bytes, hex encoded
	require.Equal(t, now.Add(TokenTTL), token.ExpireAt)
	require.False(t, token.Used)

	again, err := MintToken("user-1", now)
	require.NoError(t, err)
	require.NotEqual(t, token.Token, again.Token)
}

func TestNormalizeLogin(t *testing.T) {
	require.Equal(t, "john@example.com", NormalizeLogin("  John@Example.COM "))
	require.Equal(t, "", NormalizeLogin("   "))
}

func TestValidateFields(t *testing.T) {
	valid := NewUser{
		FirstName:     "John",
		LastName:      "Doe",
		Login:         "john@example.com",
		PasswordPlain: "secret123",
	}

	tests := []struct {
		name        string
		mutate      func(u *NewUser)
		expectedMsg string
	}{
		{
			name:   "valid user",
			mutate: func(u *NewUser) {},
		},
		{
			name:        "missing first name",
			mutate:      func(u *NewUser) { u.FirstName = "  " },
			expectedMsg: "Missing required field(s).",
		},
		{
			name:        "missing login",
			mutate:      func(u *NewUser) { u.Login = "" },
			expectedMsg: "Missing required field(s).",
		},
		{
			name:        "login not an email",
			mutate:      func(u *NewUser) { u.Login = "not-an-email" },
			expectedMsg: "Invalid email format.",
		},
		{
			name:        "short password",
			mutate:      func(u *NewUser) { u.PasswordPlain = "short" },
			expectedMsg: "Password must be at least 8 characters.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := valid
			tt.mutate(&u)

			err := u.ValidateFields()
			if tt.expectedMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.expectedMsg)
		})
	}
}
